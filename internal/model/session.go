package model

import "time"

// SessionPhase mirrors the operator flow: seats are configured first,
// then monitored, and monitoring may be paused.
type SessionPhase string

const (
    PhaseConfiguring SessionPhase = "CONFIGURING"
    PhaseMonitoring  SessionPhase = "MONITORING"
    PhaseStopped     SessionPhase = "STOPPED"
)

// SessionInfo is the externally visible summary of a monitoring session.
type SessionInfo struct {
    ID            string       `json:"id"`
    Phase         SessionPhase `json:"phase"`
    CreatedAt     time.Time    `json:"created_at"`
    Seats         int          `json:"seats"`
    FramesSeen    uint64       `json:"frames_seen"`
    FramesDropped uint64       `json:"frames_dropped"`
    LastPersons   int          `json:"last_persons"`
    LastSeated    int          `json:"last_seated"`
}
