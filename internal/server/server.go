// Package server exposes the latest normalized codelists over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/service"
	"github.com/gofhir/codelists/sink"
)

// ErrRefreshInProgress is returned when a refresh is requested while
// another one is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Refresher updates codelists. *service.Updater satisfies it.
type Refresher interface {
	Update(ctx context.Context, names ...string) (*service.Report, error)
}

// Server serves the codelists held in a Store.
type Server struct {
	echo      *echo.Echo
	store     *Store
	refresher Refresher
	metrics   *cl.Metrics
	log       zerolog.Logger

	refreshing sync.Mutex
}

// New creates a server. The refresher must write to store for refreshed
// codelists to become visible. A nil refresher disables POST /refresh.
func New(store *Store, refresher Refresher, metrics *cl.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		store:     store,
		refresher: refresher,
		metrics:   metrics,
		log:       log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(log))
	e.Use(RequestID())
	e.Use(Logger(log))

	e.GET("/healthz", s.health)
	e.GET("/metrics", s.getMetrics)
	e.GET("/codelists", s.listCodelists)
	e.GET("/codelists/:name", s.getCodelist)
	e.GET("/codelists/:name/issues", s.getIssues)
	e.POST("/refresh", s.refresh)

	s.echo = e
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Refresh runs one update unless another is in progress.
func (s *Server) Refresh(ctx context.Context, names ...string) (*service.Report, error) {
	if s.refresher == nil {
		return nil, errors.New("refresh not configured")
	}
	if !s.refreshing.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshing.Unlock()
	return s.refresher.Update(ctx, names...)
}

// RunRefresher refreshes every codelist each interval until ctx is done.
func (s *Server) RunRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.log.Warn().Err(err).Msg("scheduled refresh skipped")
			}
		}
	}
}

type summary struct {
	Name      string    `json:"name"`
	File      string    `json:"file"`
	RunID     string    `json:"runId"`
	Records   int       `json:"records"`
	Warnings  int       `json:"warnings"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type outcomeView struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
	Records  int    `json:"records"`
	Warnings int    `json:"warnings"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"codelists": len(s.store.List()),
		"version":   cl.Version,
	})
}

func (s *Server) getMetrics(c echo.Context) error {
	if s.metrics == nil {
		return echo.NewHTTPError(http.StatusNotFound, "metrics not collected")
	}
	return c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) listCodelists(c echo.Context) error {
	entries := s.store.List()
	out := make([]summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summary{
			Name:      e.Name,
			File:      e.File,
			RunID:     e.Result.RunID,
			Records:   len(e.Result.Records),
			Warnings:  e.Result.WarningCount(),
			UpdatedAt: e.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// getCodelist serves JSON, or CSV when the name ends in ".csv".
func (s *Server) getCodelist(c echo.Context) error {
	name := c.Param("name")
	asCSV := strings.HasSuffix(name, ".csv")
	name = strings.TrimSuffix(name, ".csv")

	entry, ok := s.store.Get(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "codelist not found: "+name)
	}

	if !asCSV {
		return c.JSON(http.StatusOK, entry)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+entry.File+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return sink.WriteCSV(c.Response(), entry.Result)
}

func (s *Server) getIssues(c echo.Context) error {
	name := c.Param("name")
	entry, ok := s.store.Get(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "codelist not found: "+name)
	}

	issues := entry.Result.Issues
	if kind := c.QueryParam("kind"); kind != "" {
		issues = entry.Result.IssuesOfKind(cl.IssueKind(kind))
	}
	if issues == nil {
		issues = []cl.Issue{}
	}
	return c.JSON(http.StatusOK, issues)
}

func (s *Server) refresh(c echo.Context) error {
	names := c.QueryParams()["codelist"]

	report, err := s.Refresh(c.Request().Context(), names...)
	switch {
	case errors.Is(err, rules.ErrUnknownCodelist):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRefreshInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	out := make([]outcomeView, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		v := outcomeView{Name: o.Name, OK: o.Err == nil, Skipped: o.Skipped}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		if o.Result != nil {
			v.Records = len(o.Result.Records)
			v.Warnings = o.Result.WarningCount()
		}
		out = append(out, v)
	}

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, out)
}
