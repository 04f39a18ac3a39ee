package model

import "time"

// ReportRow is one line of an occupancy report: a seat label and the
// total seconds it was occupied, open interval included.
type ReportRow struct {
    Label        string  `json:"label"`
    TotalSeconds float64 `json:"total_seconds"`
}

// Report is the archived result of a finished monitoring session.
//
// Fields:
//  ID        – occupancy_reports.id (uuid).
//  SessionID – monitoring session that produced the report.
//  StartedAt – when the session was created.
//  EndedAt   – when the session was ended and the report frozen.
//  Rows      – per-seat totals in registry order.
type Report struct {
    ID        string      `json:"id"`
    SessionID string      `json:"session_id"`
    StartedAt time.Time   `json:"started_at"`
    EndedAt   time.Time   `json:"ended_at"`
    Rows      []ReportRow `json:"rows"`
}
