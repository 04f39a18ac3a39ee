package occupancy

import "github.com/iliyamo/seat-occupancy/internal/model"

// TransitionKind names the direction of an occupancy change.
type TransitionKind string

const (
	SeatOccupied TransitionKind = "OCCUPIED"
	SeatVacated  TransitionKind = "VACATED"
)

// Transition records one seat changing state during reconciliation.
// Elapsed is the interval closed by a vacate and zero for an occupy.
type Transition struct {
	Label   string         `json:"label"`
	Kind    TransitionKind `json:"kind"`
	At      float64        `json:"at"`
	Elapsed float64        `json:"elapsed"`
}

// Reconcile updates every seat in reg from one frame of detections
// observed at now (seconds).  Only person detections are considered.  A
// seat is occupied when any person center lies inside it; several people
// in the same seat count once, and overlapping seats are updated
// independently.  Accumulated time only grows when an occupied seat
// becomes empty.  It returns the transitions in registry order.
func Reconcile(reg *Registry, detections []model.Detection, now float64) []Transition {
	ts, _ := reconcile(reg, detections, now)
	return ts
}

// reconcile also returns how many person detections sit in at least one
// seat.
func reconcile(reg *Registry, detections []model.Detection, now float64) ([]Transition, int) {
	persons := make([]model.Box, 0, len(detections))
	for _, d := range detections {
		if d.IsPerson() {
			persons = append(persons, d.Box)
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var transitions []Transition
	for _, label := range reg.order {
		s := reg.seats[label]
		occupiedNow := false
		for _, p := range persons {
			if Occupies(p, s.region.Box) {
				occupiedNow = true
				break
			}
		}
		switch {
		case occupiedNow && !s.state.Occupied:
			start := now
			s.state.Occupied = true
			s.state.StartTime = &start
			transitions = append(transitions, Transition{Label: label, Kind: SeatOccupied, At: now})
		case !occupiedNow && s.state.Occupied:
			elapsed := openInterval(s.state, now)
			s.state.AccumulatedTime += elapsed
			s.state.StartTime = nil
			s.state.Occupied = false
			transitions = append(transitions, Transition{Label: label, Kind: SeatVacated, At: now, Elapsed: elapsed})
		}
	}

	seated := 0
	for _, p := range persons {
		for _, label := range reg.order {
			if Occupies(p, reg.seats[label].region.Box) {
				seated++
				break
			}
		}
	}
	return transitions, seated
}

// PersonDetections keeps the person detections whose confidence is at
// least minConfidence.
func PersonDetections(detections []model.Detection, minConfidence float64) []model.Detection {
	out := make([]model.Detection, 0, len(detections))
	for _, d := range detections {
		if d.IsPerson() && d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}
