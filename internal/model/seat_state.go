package model

// SeatState is the mutable occupancy record kept for each region.
//
// Fields:
//  Occupied        – true while at least one person is inside the region.
//  StartTime       – timestamp (seconds) when the open interval began; nil
//                    exactly when Occupied is false.
//  AccumulatedTime – seconds of closed occupied intervals.  The open
//                    interval is not included.
type SeatState struct {
    Occupied        bool     `json:"occupied"`
    StartTime       *float64 `json:"start_time,omitempty"`
    AccumulatedTime float64  `json:"accumulated_time"`
}
