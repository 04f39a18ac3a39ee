package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-occupancy/internal/config"
	"github.com/iliyamo/seat-occupancy/internal/handler"
	"github.com/iliyamo/seat-occupancy/internal/metrics"
	"github.com/iliyamo/seat-occupancy/internal/model"
	"github.com/iliyamo/seat-occupancy/internal/repository"
	"github.com/iliyamo/seat-occupancy/internal/session"
)

type emptyStore struct{}

func (emptyStore) GetByID(context.Context, string) (*model.Report, error) {
	return nil, repository.ErrReportNotFound
}

func (emptyStore) ListRecent(context.Context, int) ([]repository.ReportSummary, error) {
	return []repository.ReportSummary{}, nil
}

// hits records which paths a middleware wrapped.
type hits struct {
	mu    sync.Mutex
	paths []string
}

func (h *hits) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h.mu.Lock()
		h.paths = append(h.paths, c.Request().Method+" "+c.Path())
		h.mu.Unlock()
		return next(c)
	}
}

func (h *hits) list() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func newServer(t *testing.T) (*echo.Echo, *hits, *hits) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.New()
	sh := &handler.SessionHandler{
		Sessions: session.NewManager(ctx, session.Options{MinConfidence: 0.3, Listener: m}),
		Layout:   config.DefaultLayout(),
		Metrics:  m,
	}
	ingest, cache := &hits{}, &hits{}

	e := echo.New()
	RegisterRoutes(e, m.Handler())
	RegisterSessions(e, sh, ingest.middleware)
	RegisterReports(e, &handler.ReportHandler{Store: emptyStore{}}, cache.middleware)
	return e, ingest, cache
}

func call(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRouteTable(t *testing.T) {
	e, ingest, cache := newServer(t)

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "").Code)

	rec := call(e, http.MethodPost, "/v1/sessions", `{"use_default_layout":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v handler.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	base := "/v1/sessions/" + v.ID

	steps := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, base, "", http.StatusOK},
		{http.MethodPut, base + "/seats/E", `{"x":0,"y":0,"width":10,"height":10}`, http.StatusOK},
		{http.MethodDelete, base + "/seats/E", "", http.StatusNoContent},
		{http.MethodPost, base + "/start", "", http.StatusOK},
		{http.MethodPost, base + "/frames", `{"detections":[]}`, http.StatusAccepted},
		{http.MethodGet, base + "/report.csv", "", http.StatusOK},
		{http.MethodPost, base + "/stop", "", http.StatusOK},
		{http.MethodPost, base + "/reset", "", http.StatusOK},
		{http.MethodDelete, base, "", http.StatusOK},
		{http.MethodGet, "/v1/reports", "", http.StatusOK},
		{http.MethodGet, "/v1/reports/missing", "", http.StatusNotFound},
	}
	for _, s := range steps {
		rec := call(e, s.method, s.target, s.body)
		assert.Equal(t, s.want, rec.Code, "%s %s: %s", s.method, s.target, rec.Body.String())
	}

	rec = call(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "occupancy_frames_reconciled_total")

	assert.Equal(t, []string{"POST /v1/sessions/:id/frames"}, ingest.list())
	assert.Equal(t, []string{"GET /v1/reports", "GET /v1/reports/:id"}, cache.list())
}

func TestRegisterRoutes_NoMetrics(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, nil)
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/metrics", "").Code)
}
