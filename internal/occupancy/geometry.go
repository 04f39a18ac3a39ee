package occupancy

import "github.com/iliyamo/seat-occupancy/internal/model"

// Occupies reports whether the center of det lies inside region.  Both
// bounds are inclusive, so a center sitting exactly on an edge counts.
// Zero-sized detections are valid and use their origin as center.
func Occupies(det, region model.Box) bool {
	cx, cy := det.Center()
	return region.X <= cx && cx <= region.X+region.W &&
		region.Y <= cy && cy <= region.Y+region.H
}
