package handler // session handlers drive the monitoring lifecycle

import (
    "context"  // context carries request deadlines into session teardown
    "errors"   // errors.Is maps sentinels to status codes
    "net/http" // http defines status code constants
    "strings"  // strings inspects the Accept header
    "time"     // time formats report timestamps

    "github.com/labstack/echo/v4"               // echo framework provides context and JSON helpers
    "google.golang.org/protobuf/proto"          // proto encodes the protobuf snapshot
    "google.golang.org/protobuf/types/known/structpb" // structpb carries the snapshot without generated types

    "github.com/iliyamo/seat-occupancy/internal/config"    // config provides the default seat layout
    "github.com/iliyamo/seat-occupancy/internal/metrics"   // metrics counts rejected frames
    "github.com/iliyamo/seat-occupancy/internal/model"     // model defines regions and reports
    "github.com/iliyamo/seat-occupancy/internal/occupancy" // occupancy provides validation sentinels and formatting
    "github.com/iliyamo/seat-occupancy/internal/session"   // session manages monitoring sessions
)

// MIMEProtobuf is the content type of the protobuf session snapshot.
const MIMEProtobuf = "application/protobuf"

// SessionHandler exposes monitoring sessions over HTTP.
type SessionHandler struct {
    Sessions *session.Manager
    Layout   config.SeatLayout  // seats used when a session asks for the default layout
    Metrics  *metrics.Metrics   // optional; counts frames refused at ingestion
    Now      func() time.Time   // clock for report file names; defaults to time.Now
    // AfterArchive runs once a report has been archived, e.g. to purge the
    // report cache.  Optional.
    AfterArchive func(ctx context.Context)
}

// SeatView is one seat as shown to operators.
type SeatView struct {
    Label        string  `json:"label"`
    X            float64 `json:"x"`
    Y            float64 `json:"y"`
    Width        float64 `json:"width"`
    Height       float64 `json:"height"`
    Occupied     bool    `json:"occupied"`
    TotalSeconds float64 `json:"total_seconds"`
    TotalClock   string  `json:"total_clock"`
}

// SessionView is the status document returned by session endpoints.
type SessionView struct {
    model.SessionInfo
    SeatList []SeatView `json:"seat_list"`
}

type seatDef struct {
    Label  string `json:"label"`
    X      int    `json:"x"`
    Y      int    `json:"y"`
    Width  int    `json:"width"`
    Height int    `json:"height"`
}

func (d seatDef) region() model.Region {
    return model.Region{Label: d.Label, Box: config.SeatDef{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}.Box()}
}

// validate enforces integer pixel geometry: x/y non-negative, width and
// height positive.
func (d seatDef) validate() string {
    switch {
    case strings.TrimSpace(d.Label) == "":
        return "seat label is required"
    case d.X < 0 || d.Y < 0:
        return "x and y must be non-negative"
    case d.Width <= 0 || d.Height <= 0:
        return "width and height must be positive"
    }
    return ""
}

func (h *SessionHandler) now() time.Time {
    if h.Now != nil {
        return h.Now()
    }
    return time.Now()
}

func (h *SessionHandler) view(s *session.Session) SessionView {
    now := s.Clock()
    snap := s.Registry().Snapshot()
    seats := make([]SeatView, 0, len(snap))
    for _, seat := range snap {
        total := occupancy.TotalDuration(seat.State, now)
        seats = append(seats, SeatView{
            Label:        seat.Region.Label,
            X:            seat.Region.Box.X,
            Y:            seat.Region.Box.Y,
            Width:        seat.Region.Box.W,
            Height:       seat.Region.Box.H,
            Occupied:     seat.State.Occupied,
            TotalSeconds: total,
            TotalClock:   occupancy.FormatClock(total),
        })
    }
    return SessionView{SessionInfo: s.Info(), SeatList: seats}
}

// lookup resolves :id or writes a 404.
func (h *SessionHandler) lookup(c echo.Context) (*session.Session, error) {
    s, err := h.Sessions.Get(c.Param("id"))
    if err != nil {
        return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
    }
    return s, nil
}

// CreateSession handles POST /v1/sessions.  The body may ask for the
// configured default layout and may list extra seats; an empty body
// creates a session with no seats.
func (h *SessionHandler) CreateSession(c echo.Context) error {
    var body struct {
        UseDefaultLayout bool      `json:"use_default_layout"`
        Seats            []seatDef `json:"seats"`
    }
    if c.Request().ContentLength != 0 { // tolerate an empty POST
        if err := c.Bind(&body); err != nil {
            return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
        }
    }
    var regions []model.Region
    if body.UseDefaultLayout {
        for _, d := range h.Layout.Seats {
            regions = append(regions, model.Region{Label: d.Label, Box: d.Box()})
        }
    }
    for _, d := range body.Seats {
        if msg := d.validate(); msg != "" {
            return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
        }
        regions = append(regions, d.region())
    }
    s, err := h.Sessions.Create(regions)
    if err != nil {
        if errors.Is(err, occupancy.ErrInvalidRegion) {
            return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
        }
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create session"})
    }
    return c.JSON(http.StatusCreated, h.view(s))
}

// GetSession handles GET /v1/sessions/:id.  Clients sending
// Accept: application/protobuf receive a google.protobuf.Struct encoding of
// the same document.
func (h *SessionHandler) GetSession(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    v := h.view(s)
    accept := c.Request().Header.Get(echo.HeaderAccept)
    if strings.Contains(accept, MIMEProtobuf) || strings.Contains(accept, "application/x-protobuf") {
        b, err := encodeProtobuf(v)
        if err != nil {
            c.Logger().Errorf("session %s: protobuf encode: %v", s.ID, err)
            return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not encode session"})
        }
        return c.Blob(http.StatusOK, MIMEProtobuf, b)
    }
    return c.JSON(http.StatusOK, v)
}

// StartSession handles POST /v1/sessions/:id/start.
func (h *SessionHandler) StartSession(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    if err := s.Start(); err != nil {
        if errors.Is(err, session.ErrNoSeats) {
            return c.JSON(http.StatusConflict, map[string]string{"error": "configure at least one seat before starting"})
        }
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not start monitoring"})
    }
    return c.JSON(http.StatusOK, h.view(s))
}

// StopSession handles POST /v1/sessions/:id/stop.  Stopping an idle
// session is a no-op.
func (h *SessionHandler) StopSession(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    s.Stop()
    return c.JSON(http.StatusOK, h.view(s))
}

// ResetSession handles POST /v1/sessions/:id/reset and zeroes every
// seat's timers.  Regions are kept.
func (h *SessionHandler) ResetSession(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    s.Registry().ResetAll()
    return c.JSON(http.StatusOK, h.view(s))
}

// EndSession handles DELETE /v1/sessions/:id.  The final report is
// returned even when archiving fails; "archived" tells the two apart.
func (h *SessionHandler) EndSession(c echo.Context) error {
    ctx := c.Request().Context()
    report, err := h.Sessions.End(ctx, c.Param("id"))
    if err != nil && report == nil {
        if errors.Is(err, session.ErrSessionNotFound) {
            return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
        }
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not end session"})
    }
    archived := err == nil && h.Sessions.Archives()
    if err != nil {
        c.Logger().Warnf("session %s: %v", report.SessionID, err)
    }
    if archived && h.AfterArchive != nil {
        h.AfterArchive(ctx)
    }
    return c.JSON(http.StatusOK, map[string]any{"report": report, "archived": archived})
}

// UpsertSeat handles PUT /v1/sessions/:id/seats/:label.  Re-defining a
// seat clears its occupancy and accumulated time.
func (h *SessionHandler) UpsertSeat(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    var body struct {
        X      *int `json:"x"`
        Y      *int `json:"y"`
        Width  *int `json:"width"`
        Height *int `json:"height"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
    }
    if body.X == nil || body.Y == nil || body.Width == nil || body.Height == nil {
        return c.JSON(http.StatusBadRequest, map[string]string{"error": "x, y, width and height are required"})
    }
    def := seatDef{Label: c.Param("label"), X: *body.X, Y: *body.Y, Width: *body.Width, Height: *body.Height}
    if msg := def.validate(); msg != "" {
        return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
    }
    r := def.region()
    if err := s.Registry().Upsert(r.Label, r.Box); err != nil {
        return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
    }
    return c.JSON(http.StatusOK, h.view(s))
}

// DeleteSeat handles DELETE /v1/sessions/:id/seats/:label.
func (h *SessionHandler) DeleteSeat(c echo.Context) error {
    s, err := h.lookup(c)
    if s == nil {
        return err
    }
    if err := s.Registry().Remove(c.Param("label")); err != nil {
        if errors.Is(err, occupancy.ErrSeatNotFound) {
            return c.JSON(http.StatusNotFound, map[string]string{"error": "seat not found"})
        }
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not remove seat"})
    }
    return c.NoContent(http.StatusNoContent)
}

// encodeProtobuf converts the view into a structpb.Struct via its JSON
// form so field names match the JSON document.
func encodeProtobuf(v SessionView) ([]byte, error) {
    m, err := toMap(v)
    if err != nil {
        return nil, err
    }
    st, err := structpb.NewStruct(m)
    if err != nil {
        return nil, err
    }
    return proto.Marshal(st)
}
