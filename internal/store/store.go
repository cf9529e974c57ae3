package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

type Store struct {
	DB     *sql.DB
	logger *log.Logger
}

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("report not found")

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ReportRecord is one persisted research run.
type ReportRecord struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	Success        bool            `json:"success"`
	Report         json.RawMessage `json:"report,omitempty"`
	Summary        json.RawMessage `json:"execution_summary"`
	SourceURLs     []string        `json:"source_urls"`
	ProcessingTime float64         `json:"processing_time"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

var (
	metricsOnce    sync.Once
	savedCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	savedCounter, metricsInitErr = meter.Int64Counter("research_reports_saved_total")
}

// DSN builds a Postgres connection string from discrete settings.
func DSN(host, port, user, pass, db, sslmode string) string {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) log() *log.Logger {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return s.logger
}

func (s *Store) Close() error { return s.DB.Close() }

// FromAnswer converts a finished run into a record.
func FromAnswer(a research.Answer) (ReportRecord, error) {
	rec := ReportRecord{
		ID:             a.ID,
		Topic:          a.Topic,
		Success:        a.Success,
		ProcessingTime: a.ProcessingTime,
		Error:          a.Error,
		SourceURLs:     []string{},
	}
	if a.Report != nil {
		data, err := json.Marshal(a.Report)
		if err != nil {
			return ReportRecord{}, fmt.Errorf("marshal report: %w", err)
		}
		rec.Report = data
		rec.SourceURLs = a.Report.SourceURLs()
	}
	summary, err := json.Marshal(a.ExecutionSummary)
	if err != nil {
		return ReportRecord{}, fmt.Errorf("marshal summary: %w", err)
	}
	rec.Summary = summary
	return rec, nil
}

func (s *Store) SaveReport(ctx context.Context, rec ReportRecord) error {
	if rec.ID == "" {
		return errors.New("report id required")
	}
	if len(rec.Summary) == 0 {
		rec.Summary = json.RawMessage(`{}`)
	}
	var report any
	if len(rec.Report) > 0 {
		report = []byte(rec.Report)
	}
	var errMsg any
	if rec.Error != "" {
		errMsg = rec.Error
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_reports (id, topic, success, report, summary, source_urls, processing_time, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Topic, rec.Success, report, []byte(rec.Summary), pq.Array(rec.SourceURLs), rec.ProcessingTime, errMsg)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rec.ID, err)
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		savedCounter.Add(ctx, 1)
	} else {
		s.log().Printf("metrics init: %v", metricsInitErr)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (ReportRecord, error) {
	var (
		rec    ReportRecord
		report []byte
		errMsg sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, topic, success, report, summary, source_urls, processing_time, error, created_at
FROM research_reports WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Topic, &rec.Success, &report, (*[]byte)(&rec.Summary), pq.Array(&rec.SourceURLs), &rec.ProcessingTime, &errMsg, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, ErrNotFound
	}
	if err != nil {
		return ReportRecord{}, fmt.Errorf("get report %s: %w", id, err)
	}
	if len(report) > 0 {
		rec.Report = report
	}
	rec.Error = errMsg.String
	return rec, nil
}

// ListReports returns the most recent reports without their bodies.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, topic, success, summary, source_urls, processing_time, error, created_at
FROM research_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	out := []ReportRecord{}
	for rows.Next() {
		var (
			rec    ReportRecord
			errMsg sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Success, (*[]byte)(&rec.Summary), pq.Array(&rec.SourceURLs), &rec.ProcessingTime, &errMsg, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
