package occupancy

import (
	"fmt"
	"strconv"

	"github.com/iliyamo/seat-occupancy/internal/model"
)

// TotalDuration returns the seconds a seat has been occupied as of now:
// the closed intervals plus the open one when the seat is occupied.
func TotalDuration(state model.SeatState, now float64) float64 {
	return state.AccumulatedTime + openInterval(state, now)
}

// openInterval never goes negative, so a clock that steps backwards
// cannot shrink a total.
func openInterval(state model.SeatState, now float64) float64 {
	if !state.Occupied || state.StartTime == nil {
		return 0
	}
	if d := now - *state.StartTime; d > 0 {
		return d
	}
	return 0
}

// FormatSeconds renders seconds with exactly two decimals.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 2, 64)
}

// FormatClock renders seconds as minutes and seconds, e.g. 125.7 -> "2:05".
// Minutes are not wrapped into hours.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
