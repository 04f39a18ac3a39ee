package handler

import (
    "errors"
    "fmt"
    "io"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/seat-occupancy/internal/model"
    "github.com/iliyamo/seat-occupancy/internal/occupancy"
    "github.com/iliyamo/seat-occupancy/internal/queue"
    "github.com/iliyamo/seat-occupancy/internal/session"
)

// maxFrameBytes bounds one detection batch.
const maxFrameBytes = 1 << 20

// frameRequest is the body of POST /v1/sessions/:id/frames.  Timestamp is
// Unix seconds and defaults to the time the frame is accepted.
type frameRequest struct {
    Timestamp  *float64          `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
    Detections []model.Detection `json:"detections" msgpack:"detections"`
}

func (h *SessionHandler) reject(reason string) {
    if h.Metrics != nil {
        h.Metrics.FrameRejected(reason)
    }
}

// SubmitFrame handles POST /v1/sessions/:id/frames.  The body is JSON or
// msgpack by Content-Type.  Frames are queued, not reconciled inline, so
// success is 202.  A timestamp too far from server time answers 400; a
// full session queue answers 503 and the frame is lost.
func (h *SessionHandler) SubmitFrame(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFrameBytes+1))
    if err != nil {
        h.reject("bad_payload")
        return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not read body"})
    }
    if len(body) > maxFrameBytes {
        h.reject("bad_payload")
        return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "frame too large"})
    }
    var req frameRequest
    if err := queue.Decode(c.Request().Header.Get(echo.HeaderContentType), body, &req); err != nil {
        h.reject("bad_payload")
        return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid frame: %v", err)})
    }

    err = h.Sessions.SubmitFrame(c.Param("id"), req.Timestamp, req.Detections)
    switch {
    case err == nil:
        return c.JSON(http.StatusAccepted, map[string]int{"detections": len(req.Detections)})
    case errors.Is(err, session.ErrSessionNotFound):
        h.reject("unknown_session")
        return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
    case errors.Is(err, session.ErrClockSkew):
        h.reject("clock_skew")
        return c.JSON(http.StatusBadRequest, map[string]string{"error": "timestamp must be Unix seconds close to server time"})
    case errors.Is(err, session.ErrNotMonitoring):
        h.reject("not_monitoring")
        return c.JSON(http.StatusConflict, map[string]string{"error": "session is not monitoring"})
    case errors.Is(err, occupancy.ErrFrameDropped), errors.Is(err, occupancy.ErrMonitorClosed):
        c.Response().Header().Set("Retry-After", "1")
        return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "frame dropped, session is busy"})
    default:
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not queue frame"})
    }
}
