// Package session owns monitoring sessions.  Each session has its own seat
// registry and a monitor goroutine that is the only writer of occupancy
// state; the registry is discarded when the session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/seat-occupancy/internal/model"
	"github.com/iliyamo/seat-occupancy/internal/occupancy"
)

var (
	// ErrSessionNotFound is returned for unknown or already ended sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotMonitoring is returned when frames arrive outside monitoring.
	ErrNotMonitoring = errors.New("session is not monitoring")
	// ErrNoSeats is returned when monitoring is started with no seats.
	ErrNoSeats = errors.New("session has no seats configured")
	// ErrClockSkew is returned for frame timestamps too far from the
	// session clock, usually relative rather than Unix seconds.
	ErrClockSkew = errors.New("frame timestamp outside allowed clock skew")
)

const (
	// DefaultMaxClockSkew bounds how far a caller timestamp may stray from
	// the session clock when Options.MaxClockSkew is not positive.
	DefaultMaxClockSkew = 5 * time.Minute

	// closeFrameWait is how long Stop waits for room for its closing frame.
	closeFrameWait = 250 * time.Millisecond
)

// Session is one monitoring run over a fixed camera view.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	phase   model.SessionPhase
	monitor *occupancy.Monitor
	now     func() time.Time
}

// Registry returns the session's seat registry for reads and seat
// configuration.
func (s *Session) Registry() *occupancy.Registry { return s.monitor.Registry() }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() model.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start begins accepting frames.
func (s *Session) Start() error {
	if s.Registry().Len() == 0 {
		return ErrNoSeats
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = model.PhaseMonitoring
	return nil
}

// Stop pauses monitoring.  An empty frame stamped with the current time is
// queued behind any pending frames so open intervals are closed and the
// pause is not counted as occupied time.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseMonitoring {
		return
	}
	s.phase = model.PhaseStopped
	if err := s.monitor.SubmitWait(model.Frame{Timestamp: s.Clock()}, closeFrameWait); err != nil {
		log.Warnf("session %s: closing frame not queued: %v", s.ID, err)
	}
}

// Submit queues a frame for reconciliation.
func (s *Session) Submit(f model.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseMonitoring {
		return ErrNotMonitoring
	}
	return s.monitor.Submit(f)
}

// Clock returns the session time in Unix seconds.  Frames that arrive
// without a timestamp and live reports are stamped with it.
func (s *Session) Clock() float64 {
	t := s.now()
	return float64(t.UnixNano()) / float64(time.Second)
}

// Rows exports the current totals as of the session clock.
func (s *Session) Rows() []model.ReportRow {
	return occupancy.Export(s.Registry().Snapshot(), s.Clock())
}

// Info summarises the session.
func (s *Session) Info() model.SessionInfo {
	seen, dropped, persons, seated := s.monitor.Stats()
	return model.SessionInfo{
		ID:            s.ID,
		Phase:         s.Phase(),
		CreatedAt:     s.CreatedAt,
		Seats:         s.Registry().Len(),
		FramesSeen:    seen,
		FramesDropped: dropped,
		LastPersons:   persons,
		LastSeated:    seated,
	}
}

// Archiver persists the final report of an ended session.
type Archiver interface {
	SaveReport(ctx context.Context, r *model.Report) error
}

// Options configure a Manager.
type Options struct {
	MinConfidence float64
	FrameBuffer   int
	MaxClockSkew  time.Duration
	Listener      occupancy.Listener
	Archiver      Archiver
	Now           func() time.Time
}

// Manager tracks open sessions by id.
type Manager struct {
	ctx  context.Context
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.  Session monitors stop when ctx is
// cancelled.
func NewManager(ctx context.Context, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = DefaultMaxClockSkew
	}
	return &Manager{ctx: ctx, opts: opts, sessions: make(map[string]*Session)}
}

// Create opens a session seeded with the given seats and starts its
// monitor goroutine.  The session begins in the configuring phase.
func (m *Manager) Create(seats []model.Region) (*Session, error) {
	reg := occupancy.NewRegistry()
	for _, r := range seats {
		if err := reg.Upsert(r.Label, r.Box); err != nil {
			return nil, err
		}
	}
	id := uuid.NewString()
	s := &Session{
		ID:        id,
		CreatedAt: m.opts.Now().UTC(),
		phase:     model.PhaseConfiguring,
		now:       m.opts.Now,
		monitor: occupancy.NewMonitor(reg, occupancy.Options{
			SessionID:     id,
			MinConfidence: m.opts.MinConfidence,
			Buffer:        m.opts.FrameBuffer,
			Listener:      m.opts.Listener,
		}),
	}
	go s.monitor.Run(m.ctx)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	log.Infof("session %s: created with %d seats", id, len(seats))
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// SubmitFrame queues detections for the session.  Timestamps are Unix
// seconds; a nil timestamp is replaced with the session clock, and one
// further than MaxClockSkew from it is rejected with ErrClockSkew.
func (m *Manager) SubmitFrame(id string, ts *float64, dets []model.Detection) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	f := model.Frame{Detections: dets}
	if ts != nil {
		now := s.Clock()
		if math.Abs(*ts-now) > m.opts.MaxClockSkew.Seconds() {
			return fmt.Errorf("%w: %.3f is %.0fs from session clock", ErrClockSkew, *ts, *ts-now)
		}
		f.Timestamp = *ts
	} else {
		f.Timestamp = s.Clock()
	}
	return s.Submit(f)
}

// End stops the session, waits for every frame it already accepted to be
// reconciled, then freezes its report and hands it to the archiver.
// The session is removed even when archiving fails; the report is
// returned together with the archive error.
func (m *Manager) End(ctx context.Context, id string) (*model.Report, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.Stop()
	s.monitor.Close()
	select {
	case <-s.monitor.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	report := &model.Report{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		StartedAt: s.CreatedAt,
		EndedAt:   m.opts.Now().UTC(),
		Rows:      s.Rows(),
	}
	log.Infof("session %s: ended, %d seats reported", id, len(report.Rows))
	if m.opts.Archiver == nil {
		return report, nil
	}
	if err := m.opts.Archiver.SaveReport(ctx, report); err != nil {
		return report, fmt.Errorf("archive report: %w", err)
	}
	return report, nil
}

// Archives reports whether ended sessions are handed to an archiver.
func (m *Manager) Archives() bool { return m.opts.Archiver != nil }

// EndAll ends every open session, archiving each report.  Used on
// shutdown.
func (m *Manager) EndAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if _, err := m.End(ctx, id); err != nil {
			log.Errorf("session %s: end on shutdown: %v", id, err)
		}
	}
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// OccupiedSeats counts occupied seats across all open sessions.
func (m *Manager) OccupiedSeats() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		for _, seat := range s.Registry().Snapshot() {
			if seat.State.Occupied {
				n++
			}
		}
	}
	return n
}
