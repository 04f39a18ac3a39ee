// Package occupancy implements seat occupancy tracking: which seats are
// taken in a camera frame and for how long they have been taken.
package occupancy

import "errors"

// ErrInvalidRegion is returned when a seat is configured with an empty
// label, a negative origin or a non-positive width or height.  Handlers
// should translate this into an HTTP 400 response.
var ErrInvalidRegion = errors.New("invalid seat region")

// ErrSeatNotFound is returned when removing a label that is not present.
var ErrSeatNotFound = errors.New("seat not found")

// ErrFrameDropped is returned by Monitor.Submit when the frame buffer is
// full and the frame was discarded.
var ErrFrameDropped = errors.New("frame dropped: monitor buffer full")

// ErrMonitorClosed is returned by Monitor.Submit after Close.
var ErrMonitorClosed = errors.New("monitor closed")
