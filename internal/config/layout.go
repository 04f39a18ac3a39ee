package config

import (
    "fmt"
    "os"

    "github.com/pelletier/go-toml/v2"

    "github.com/iliyamo/seat-occupancy/internal/model"
    "github.com/iliyamo/seat-occupancy/internal/occupancy"
)

// SeatDef is one seat in a layout file.  Coordinates are integer pixels in
// the camera image.
type SeatDef struct {
    Label  string `toml:"label" json:"label"`
    X      int    `toml:"x" json:"x"`
    Y      int    `toml:"y" json:"y"`
    Width  int    `toml:"width" json:"width"`
    Height int    `toml:"height" json:"height"`
}

// Box converts the definition into detection coordinates.
func (d SeatDef) Box() model.Box {
    return model.Box{X: float64(d.X), Y: float64(d.Y), W: float64(d.Width), H: float64(d.Height)}
}

// SeatLayout is the default set of seats a new session can start with.
//
//   [[seats]]
//   label = "A"
//   x = 25
//   y = 150
//   width = 100
//   height = 100
type SeatLayout struct {
    Seats []SeatDef `toml:"seats"`
}

// DefaultLayout is a row of four 100x100 seats across a 640x480 frame.
func DefaultLayout() SeatLayout {
    return SeatLayout{Seats: []SeatDef{
        {Label: "A", X: 25, Y: 150, Width: 100, Height: 100},
        {Label: "B", X: 175, Y: 150, Width: 100, Height: 100},
        {Label: "C", X: 325, Y: 150, Width: 100, Height: 100},
        {Label: "D", X: 475, Y: 150, Width: 100, Height: 100},
    }}
}

// LoadLayout reads a TOML seat layout.  An empty path yields DefaultLayout.
func LoadLayout(path string) (SeatLayout, error) {
    if path == "" {
        return DefaultLayout(), nil
    }
    data, err := os.ReadFile(path)
    if err != nil {
        return SeatLayout{}, fmt.Errorf("read seat layout: %w", err)
    }
    return ParseLayout(data)
}

// ParseLayout decodes a TOML seat layout.  Seats with an invalid region or
// a duplicate label are rejected so a bad file fails at startup.
func ParseLayout(data []byte) (SeatLayout, error) {
    var l SeatLayout
    if err := toml.Unmarshal(data, &l); err != nil {
        return SeatLayout{}, fmt.Errorf("decode seat layout: %w", err)
    }
    seen := make(map[string]bool, len(l.Seats))
    for i, s := range l.Seats {
        if err := occupancy.ValidateRegion(s.Label, s.Box()); err != nil {
            return SeatLayout{}, fmt.Errorf("seat layout: seat %d: %w", i+1, err)
        }
        if seen[s.Label] {
            return SeatLayout{}, fmt.Errorf("seat layout: duplicate label %q", s.Label)
        }
        seen[s.Label] = true
    }
    return l, nil
}
