package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/seat-occupancy/internal/occupancy"
)

// Metrics holds the occupancy service collectors.  It implements
// occupancy.Listener so every session monitor can report into it.
type Metrics struct {
	// Last reconciled frame, across all sessions
	LastPersons atomic.Int64
	LastSeated  atomic.Int64

	framesReconciled prometheus.Counter
	framesDropped    prometheus.Counter
	framesRejected   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	reconcileSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_frames_reconciled_total",
			Help: "Total detection frames reconciled against seat registries",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_frames_dropped_total",
			Help: "Total frames discarded because a session queue was full",
		}),
		framesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occupancy_frames_rejected_total",
			Help: "Total frames refused before queueing, by reason",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occupancy_seat_transitions_total",
			Help: "Total seat state changes, by kind",
		}, []string{"kind"}),
		reconcileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "occupancy_reconcile_seconds",
			Help:    "Time spent reconciling one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}

	m.registry.MustRegister(m.framesReconciled, m.framesDropped, m.framesRejected, m.transitions, m.reconcileSeconds)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_last_frame_persons",
			Help: "Person detections in the most recent frame",
		},
		func() float64 { return float64(m.LastPersons.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_last_frame_seated",
			Help: "Person detections inside a seat in the most recent frame",
		},
		func() float64 { return float64(m.LastSeated.Load()) },
	))

	return m
}

// RegisterSessionGauges exposes live session figures computed on scrape.
func (m *Metrics) RegisterSessionGauges(active, occupied func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_active_sessions",
			Help: "Monitoring sessions currently open",
		},
		active,
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_seats_occupied",
			Help: "Seats currently occupied across all sessions",
		},
		occupied,
	))
}

// FrameReconciled implements occupancy.Listener.
func (m *Metrics) FrameReconciled(_ string, r occupancy.FrameResult) {
	m.framesReconciled.Inc()
	m.reconcileSeconds.Observe(r.Took.Seconds())
	m.LastPersons.Store(int64(r.Persons))
	m.LastSeated.Store(int64(r.Seated))
	for _, t := range r.Transitions {
		m.transitions.WithLabelValues(string(t.Kind)).Inc()
	}
}

// FrameDropped implements occupancy.Listener.
func (m *Metrics) FrameDropped(string) {
	m.framesDropped.Inc()
}

// FrameRejected counts frames refused at ingestion (bad payload, unknown
// session, session not monitoring).
func (m *Metrics) FrameRejected(reason string) {
	m.framesRejected.WithLabelValues(reason).Inc()
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
