package handler

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/seat-occupancy/internal/model"
    "github.com/iliyamo/seat-occupancy/internal/occupancy"
    "github.com/iliyamo/seat-occupancy/internal/repository"
)

// ReportCSV handles GET /v1/sessions/:id/report.csv.  Open intervals are
// counted up to the session clock; the session keeps running.
func (h *SessionHandler) ReportCSV(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    var buf bytes.Buffer
    if err := occupancy.WriteCSV(&buf, s.Rows()); err != nil {
        c.Logger().Errorf("session %s: write csv: %v", s.ID, err)
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not build report"})
    }
    name := fmt.Sprintf("seat_occupancy_%s.csv", h.now().Format("20060102_150405"))
    c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
    return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ReportStore reads archived reports.
type ReportStore interface {
    GetByID(ctx context.Context, id string) (*model.Report, error)
    ListRecent(ctx context.Context, limit int) ([]repository.ReportSummary, error)
}

// ReportHandler serves archived reports.  A nil Store means the archive is
// disabled and every request answers 503.
type ReportHandler struct {
    Store ReportStore
}

// ListReports handles GET /v1/reports?limit=N.
func (h *ReportHandler) ListReports(c echo.Context) error {
    if h.Store == nil {
        return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "report archive disabled"})
    }
    limit := 0
    if v := c.QueryParam("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
        }
        limit = n
    }
    list, err := h.Store.ListRecent(c.Request().Context(), limit)
    if err != nil {
        c.Logger().Errorf("list reports: %v", err)
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list reports"})
    }
    return c.JSON(http.StatusOK, list)
}

// GetReport handles GET /v1/reports/:id.  With ?format=csv the rows are
// returned in the same CSV layout as the live export.
func (h *ReportHandler) GetReport(c echo.Context) error {
    if h.Store == nil {
        return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "report archive disabled"})
    }
    rep, err := h.Store.GetByID(c.Request().Context(), c.Param("id"))
    if err != nil {
        if errors.Is(err, repository.ErrReportNotFound) {
            return c.JSON(http.StatusNotFound, map[string]string{"error": "report not found"})
        }
        c.Logger().Errorf("get report: %v", err)
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not load report"})
    }
    if c.QueryParam("format") == "csv" {
        var buf bytes.Buffer
        if err := occupancy.WriteCSV(&buf, rep.Rows); err != nil {
            return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not build report"})
        }
        name := fmt.Sprintf("seat_occupancy_%s.csv", rep.EndedAt.Format("20060102_150405"))
        c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
        return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
    }
    return c.JSON(http.StatusOK, rep)
}

// toMap round-trips v through JSON into a generic map.
func toMap(v any) (map[string]any, error) {
    b, err := json.Marshal(v)
    if err != nil {
        return nil, err
    }
    var m map[string]any
    if err := json.Unmarshal(b, &m); err != nil {
        return nil, err
    }
    return m, nil
}
