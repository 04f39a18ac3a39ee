package model

// Box is an axis-aligned rectangle in image pixel coordinates.  X and Y
// locate the top-left corner; W and H extend right and down.  Detector
// output may carry fractional coordinates, so every field is a float.
type Box struct {
    X float64 `json:"x" msgpack:"x"`
    Y float64 `json:"y" msgpack:"y"`
    W float64 `json:"w" msgpack:"w"`
    H float64 `json:"h" msgpack:"h"`
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
    return b.X + b.W/2, b.Y + b.H/2
}

// Region describes one monitored seat: a label that is unique within a
// registry and the rectangle it covers in the camera image.
//
// Fields:
//  Label – seat identifier such as "A" or "R2-07".
//  Box   – seat geometry, same coordinate space as detections.
type Region struct {
    Label string `json:"label"`
    Box   Box    `json:"box"`
}
