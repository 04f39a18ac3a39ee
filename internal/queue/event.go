// Package queue defines message payloads exchanged over the message broker
// and the background consumers that read them.
package queue

import (
    "encoding/json"
    "fmt"
    "mime"

    "github.com/vmihailenco/msgpack/v5"

    "github.com/iliyamo/seat-occupancy/internal/model"
)

// Queue names. Both are declared durable by producers and consumers.
const (
    DetectionsQueue  = "occupancy.detections"
    TransitionsQueue = "occupancy.transitions"
)

// Content types understood by DecodeFrameEvent.
const (
    ContentTypeJSON    = "application/json"
    ContentTypeMsgpack = "application/msgpack"
)

// FrameDetectionsEvent is one batch of person detections pushed by the
// upstream detector.  Timestamp is Unix seconds; when nil the session
// clock stamps the frame on arrival.  Timestamps too far from server time
// are refused and the delivery is nacked.
type FrameDetectionsEvent struct {
    SessionID  string            `json:"session_id" msgpack:"session_id"`
    Timestamp  *float64          `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
    Detections []model.Detection `json:"detections" msgpack:"detections"`
}

// Frame converts the event into a reconciler frame.  A missing timestamp
// is left at zero for the caller to fill.
func (e FrameDetectionsEvent) Frame() model.Frame {
    f := model.Frame{Detections: e.Detections}
    if e.Timestamp != nil {
        f.Timestamp = *e.Timestamp
    }
    return f
}

// SeatTransitionEvent is published whenever a seat flips between empty and
// occupied.  ElapsedSeconds is the interval closed by a vacate and zero for
// an occupy.
type SeatTransitionEvent struct {
    SessionID      string  `json:"session_id"`
    Label          string  `json:"seat"`
    Kind           string  `json:"kind"`
    At             float64 `json:"at"`
    ElapsedSeconds float64 `json:"elapsed_seconds"`
    EmittedAt      string  `json:"emitted_at"`
}

// Decode unmarshals body into v according to contentType, which may be
// JSON or msgpack.  An empty content type is treated as JSON.
func Decode(contentType string, body []byte, v interface{}) error {
    mt := ContentTypeJSON
    if contentType != "" {
        parsed, _, err := mime.ParseMediaType(contentType)
        if err != nil {
            return fmt.Errorf("content type %q: %w", contentType, err)
        }
        mt = parsed
    }
    switch mt {
    case ContentTypeJSON:
        if err := json.Unmarshal(body, v); err != nil {
            return fmt.Errorf("unmarshal json: %w", err)
        }
    case ContentTypeMsgpack, "application/x-msgpack":
        if err := msgpack.Unmarshal(body, v); err != nil {
            return fmt.Errorf("unmarshal msgpack: %w", err)
        }
    default:
        return fmt.Errorf("unsupported content type %q", contentType)
    }
    return nil
}

// DecodeFrameEvent decodes a detections payload and checks that it names
// a session.
func DecodeFrameEvent(contentType string, body []byte) (FrameDetectionsEvent, error) {
    var ev FrameDetectionsEvent
    if err := Decode(contentType, body, &ev); err != nil {
        return ev, err
    }
    if ev.SessionID == "" {
        return ev, fmt.Errorf("missing session_id")
    }
    return ev, nil
}
