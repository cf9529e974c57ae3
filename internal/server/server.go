package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
	"github.com/mohammad-safakhou/deepresearch/internal/telemetry"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// Researcher runs one research request to completion.
type Researcher interface {
	Run(ctx context.Context, req research.Request) research.Answer
	Configured() bool
}

// ReportStore persists finished runs.
type ReportStore interface {
	SaveReport(ctx context.Context, rec store.ReportRecord) error
	GetReport(ctx context.Context, id string) (store.ReportRecord, error)
	ListReports(ctx context.Context, limit int) ([]store.ReportRecord, error)
}

// Options assembles an HTTP server. Store and Searcher are optional.
type Options struct {
	Config     *config.Config
	Researcher Researcher
	Store      ReportStore
	Searcher   web_search.WebSearcher
	Metrics    http.Handler
	Logger     *log.Logger
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := opts.Logger
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	metrics := opts.Metrics
	if metrics == nil {
		metrics = (*telemetry.Telemetry)(nil).Handler()
	}
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(metrics))

	rh := &ResearchHandler{
		Researcher: opts.Researcher,
		Store:      opts.Store,
		Searcher:   opts.Searcher,
		General:    opts.Config.General,
		Research:   opts.Config.Research,
		ChunkSize:  opts.Config.Server.StreamChunkSize,
		Logger:     baseLogger,
	}
	api := e.Group("/api/v1")
	api.GET("/research/health", rh.health)

	protected := api.Group("")
	if opts.Config.Server.JWTSecret != "" {
		protected.Use(AuthMiddleware([]byte(opts.Config.Server.JWTSecret)))
	}
	protected.POST("/research/deep", rh.deepResearch)
	protected.GET("/reports", rh.listReports)
	protected.GET("/reports/:id", rh.getReport)
	return e
}

// Run wires every dependency from cfg and serves until SIGINT/SIGTERM.
func Run(ctx context.Context, cfg *config.Config) error {
	tele, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{ServiceName: cfg.Telemetry.ServiceName})
	if err != nil {
		return err
	}
	defer tele.Shutdown(context.Background())

	deps, err := BuildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	opts := Options{
		Config:     cfg,
		Researcher: deps.Orchestrator,
		Searcher:   deps.Searcher,
		Metrics:    tele.Handler(),
	}
	if dsn := cfg.PostgresDSN(); dsn != "" {
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}

	e := New(opts)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Address)
		errCh <- e.Start(cfg.Server.Address)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
