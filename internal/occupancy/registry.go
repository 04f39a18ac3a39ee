package occupancy

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/iliyamo/seat-occupancy/internal/model"
)

type seat struct {
	region model.Region
	state  model.SeatState
}

// SeatSnapshot is a detached copy of one registry entry.  Mutating it has
// no effect on the registry.
type SeatSnapshot struct {
	Region model.Region    `json:"region"`
	State  model.SeatState `json:"state"`
}

// Registry holds the monitored seats of one session and their occupancy
// state.  All methods are safe for concurrent use; every read and write
// takes the registry mutex.
//
// Upsert resets state: configuring a label that already exists starts it
// over as an empty seat with no accumulated time, while keeping its
// position in iteration order.
type Registry struct {
	mu    sync.Mutex
	order []string
	seats map[string]*seat
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seats: make(map[string]*seat)}
}

// ValidateRegion checks a seat definition before it reaches the registry.
func ValidateRegion(label string, box model.Box) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidRegion)
	}
	for _, v := range []float64{box.X, box.Y, box.W, box.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %q has non-finite geometry", ErrInvalidRegion, label)
		}
	}
	if box.W <= 0 || box.H <= 0 {
		return fmt.Errorf("%w: %q width and height must be positive", ErrInvalidRegion, label)
	}
	if box.X < 0 || box.Y < 0 {
		return fmt.Errorf("%w: %q x and y must not be negative", ErrInvalidRegion, label)
	}
	return nil
}

// Upsert adds the seat or replaces an existing one with the same label.
// The stored state is always reset to empty.
func (r *Registry) Upsert(label string, box model.Box) error {
	label = strings.TrimSpace(label)
	if err := ValidateRegion(label, box); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seats[label]; !ok {
		r.order = append(r.order, label)
	}
	r.seats[label] = &seat{region: model.Region{Label: label, Box: box}}
	return nil
}

// Remove deletes the seat with the given label.
func (r *Registry) Remove(label string) error {
	label = strings.TrimSpace(label)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seats[label]; !ok {
		return fmt.Errorf("%w: %q", ErrSeatNotFound, label)
	}
	delete(r.seats, label)
	for i, l := range r.order {
		if l == label {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// ResetAll clears occupancy and accumulated time of every seat.  Regions
// are kept.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seats {
		s.state = model.SeatState{}
	}
}

// Get returns a copy of one seat.
func (r *Registry) Get(label string) (SeatSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.seats[strings.TrimSpace(label)]
	if !ok {
		return SeatSnapshot{}, false
	}
	return s.snapshot(), true
}

// Len returns the number of configured seats.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Labels returns the seat labels in insertion order.
func (r *Registry) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Snapshot returns copies of all seats in insertion order.
func (r *Registry) Snapshot() []SeatSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SeatSnapshot, 0, len(r.order))
	for _, label := range r.order {
		out = append(out, r.seats[label].snapshot())
	}
	return out
}

func (s *seat) snapshot() SeatSnapshot {
	st := s.state
	if st.StartTime != nil {
		t := *st.StartTime
		st.StartTime = &t
	}
	return SeatSnapshot{Region: s.region, State: st}
}
