package model

// PersonClass is the detector class id that means "person".  Detectors
// are configured to emit COCO ids, where person is always 0.
const PersonClass = 0

// Detection is one object reported by the detector for a single frame.
type Detection struct {
    Box        Box     `json:"box" msgpack:"box"`
    Confidence float64 `json:"confidence" msgpack:"confidence"`
    ClassID    int     `json:"class_id" msgpack:"class_id"`
}

// IsPerson reports whether the detection belongs to the person class.
func (d Detection) IsPerson() bool { return d.ClassID == PersonClass }

// Frame is an immutable batch of detections observed at Timestamp
// (seconds).  Frames are produced by ingestion and consumed by exactly
// one monitor goroutine.
type Frame struct {
    Timestamp  float64
    Detections []Detection
}
