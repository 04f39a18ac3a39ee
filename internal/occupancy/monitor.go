package occupancy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/seat-occupancy/internal/model"
)

// DefaultFrameBuffer is the frame queue size used when Options.Buffer is
// not positive.
const DefaultFrameBuffer = 16

// FrameResult describes the outcome of reconciling one frame.
type FrameResult struct {
	Timestamp   float64
	Persons     int // person detections above the confidence threshold
	Seated      int // of those, how many sit inside a seat
	Transitions []Transition
	Took        time.Duration
}

// Listener is told about every reconciled or dropped frame.  Calls come
// from the monitor goroutine and must not block for long.
type Listener interface {
	FrameReconciled(sessionID string, r FrameResult)
	FrameDropped(sessionID string)
}

// Listeners fans every call out to each listener in order.
type Listeners []Listener

func (ls Listeners) FrameReconciled(sessionID string, r FrameResult) {
	for _, l := range ls {
		l.FrameReconciled(sessionID, r)
	}
}

func (ls Listeners) FrameDropped(sessionID string) {
	for _, l := range ls {
		l.FrameDropped(sessionID)
	}
}

// Options configure a Monitor.
type Options struct {
	SessionID     string
	MinConfidence float64
	Buffer        int
	Listener      Listener
}

// Monitor feeds frames into one registry.  Producers hand frames to
// Submit; a single goroutine started with Run owns reconciliation, so at
// most one reconcile is ever in flight for the registry.
type Monitor struct {
	reg      *Registry
	opts     Options
	frames   chan model.Frame
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	seen        atomic.Uint64
	dropped     atomic.Uint64
	lastPersons atomic.Int64
	lastSeated  atomic.Int64
}

// NewMonitor creates a monitor for reg.  Run must be called to start
// consuming frames.
func NewMonitor(reg *Registry, opts Options) *Monitor {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultFrameBuffer
	}
	return &Monitor{
		reg:    reg,
		opts:   opts,
		frames: make(chan model.Frame, opts.Buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Registry returns the registry the monitor writes to.
func (m *Monitor) Registry() *Registry { return m.reg }

// Submit queues a frame without blocking.  When the queue is full the
// frame is discarded and ErrFrameDropped returned.
func (m *Monitor) Submit(f model.Frame) error {
	select {
	case <-m.stop:
		return ErrMonitorClosed
	default:
	}
	select {
	case m.frames <- f:
		return nil
	default:
		m.dropped.Add(1)
		if m.opts.Listener != nil {
			m.opts.Listener.FrameDropped(m.opts.SessionID)
		}
		return ErrFrameDropped
	}
}

// SubmitWait queues a frame, waiting up to timeout for room in the queue.
// It returns ErrFrameDropped if the queue is still full after timeout.
func (m *Monitor) SubmitWait(f model.Frame, timeout time.Duration) error {
	select {
	case <-m.stop:
		return ErrMonitorClosed
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m.frames <- f:
		return nil
	case <-m.stop:
		return ErrMonitorClosed
	case <-t.C:
		m.dropped.Add(1)
		if m.opts.Listener != nil {
			m.opts.Listener.FrameDropped(m.opts.SessionID)
		}
		return ErrFrameDropped
	}
}

// Run consumes frames until ctx is cancelled or Close is called.  After
// Close, frames already queued are reconciled before Run returns.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			m.drain()
			return
		case f := <-m.frames:
			m.process(f)
		}
	}
}

func (m *Monitor) drain() {
	for {
		select {
		case f := <-m.frames:
			m.process(f)
		default:
			return
		}
	}
}

// Close stops Run once the frames already queued have been reconciled.
// Wait on Done for the final state.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Stats returns frame counters and the person counts of the latest frame.
func (m *Monitor) Stats() (seen, dropped uint64, persons, seated int) {
	return m.seen.Load(), m.dropped.Load(), int(m.lastPersons.Load()), int(m.lastSeated.Load())
}

func (m *Monitor) process(f model.Frame) FrameResult {
	start := time.Now()
	persons := PersonDetections(f.Detections, m.opts.MinConfidence)
	transitions, seated := reconcile(m.reg, persons, f.Timestamp)

	m.seen.Add(1)
	m.lastPersons.Store(int64(len(persons)))
	m.lastSeated.Store(int64(seated))

	res := FrameResult{
		Timestamp:   f.Timestamp,
		Persons:     len(persons),
		Seated:      seated,
		Transitions: transitions,
		Took:        time.Since(start),
	}
	if m.opts.Listener != nil {
		m.opts.Listener.FrameReconciled(m.opts.SessionID, res)
	}
	return res
}
