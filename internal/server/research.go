package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

const (
	headerProcessingTime = "X-Processing-Time"
	saveTimeout          = 10 * time.Second
	healthTimeout        = 5 * time.Second
)

type ResearchHandler struct {
	Researcher Researcher
	Store      ReportStore
	Searcher   web_search.WebSearcher
	General    config.GeneralConfig
	Research   config.ResearchConfig
	ChunkSize  int
	Logger     *log.Logger
}

// deepResearch runs one research request and streams the answer. The run is
// bound to the request context, so a client disconnect cancels it. Only
// successful runs are persisted.
func (h *ResearchHandler) deepResearch(c echo.Context) error {
	var body DeepResearchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := body.ToRequest(h.General, h.Research)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ans := h.Researcher.Run(c.Request().Context(), req)
	h.persist(ans)

	payload, err := json.Marshal(ans)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("encode answer: %v", err))
	}
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(headerProcessingTime, strconv.FormatFloat(ans.ProcessingTime, 'f', 2, 64))
	resp.WriteHeader(http.StatusOK)
	return streamChunks(resp, payload, h.ChunkSize)
}

// streamChunks writes payload in fixed-size pieces, flushing after each.
func streamChunks(resp *echo.Response, payload []byte, size int) error {
	if size <= 0 {
		size = len(payload)
	}
	for len(payload) > 0 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		if _, err := resp.Write(payload[:n]); err != nil {
			return err
		}
		resp.Flush()
		payload = payload[n:]
	}
	return nil
}

func (h *ResearchHandler) persist(ans research.Answer) {
	if h.Store == nil || ans.ID == "" || !ans.Success {
		return
	}
	rec, err := store.FromAnswer(ans)
	if err != nil {
		h.Logger.Printf("persist %s: %v", ans.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := h.Store.SaveReport(ctx, rec); err != nil {
		h.Logger.Printf("persist %s: %v", ans.ID, err)
	}
}

func (h *ResearchHandler) health(c echo.Context) error {
	out := ResearchHealth{Status: "healthy", LLMConfigured: h.Researcher != nil && h.Researcher.Configured(), Search: "ok"}
	if h.Searcher == nil {
		out.Search = "not configured"
	} else {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := web_search.Ping(ctx, h.Searcher); err != nil {
			out.Search = err.Error()
		}
	}
	if !out.LLMConfigured || out.Search != "ok" {
		out.Status = "degraded"
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResearchHandler) getReport(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "report storage not configured")
	}
	rec, err := h.Store.GetReport(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *ResearchHandler) listReports(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "report storage not configured")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	recs, err := h.Store.ListReports(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ReportListResponse{Reports: recs, Count: len(recs)})
}
