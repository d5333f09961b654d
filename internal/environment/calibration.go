package environment

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// OutputTarget defines where the cameras render to.
type OutputTarget int

const (
	// OutputDisplay renders each camera to its own display.
	OutputDisplay OutputTarget = iota
	// OutputSplitHorizontal tiles all cameras left to right on display 0.
	OutputSplitHorizontal
	// OutputSplitVertical tiles all cameras bottom to top on display 0.
	OutputSplitVertical
)

var outputTargetNames = [...]string{"display", "split_horizontal", "split_vertical"}

func (o OutputTarget) String() string {
	if o < 0 || int(o) >= len(outputTargetNames) {
		return fmt.Sprintf("OutputTarget(%d)", int(o))
	}
	return outputTargetNames[o]
}

// ParseOutputTarget parses "display", "split_horizontal" or
// "split_vertical".
func ParseOutputTarget(s string) (OutputTarget, error) {
	for i, n := range outputTargetNames {
		if n == s {
			return OutputTarget(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output target %q", s)
}

// Point is a 2D NDC offset. It serializes as {"x":..,"y":..} to stay
// compatible with calibration files written by the calibration tool.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec2 converts p to an mgl64 vector.
func (p Point) Vec2() mgl64.Vec2 { return mgl64.Vec2{p.X, p.Y} }

// Quad holds the four measured corners of a projection. The corners travel
// together.
type Quad struct {
	TopLeft     Point `json:"topLeft"`
	TopRight    Point `json:"topRight"`
	BottomLeft  Point `json:"bottomLeft"`
	BottomRight Point `json:"bottomRight"`
}

// UnitQuad returns the quad of the undistorted clip square.
func UnitQuad() Quad {
	return Quad{
		TopLeft:     Point{-1, 1},
		TopRight:    Point{1, 1},
		BottomLeft:  Point{-1, -1},
		BottomRight: Point{1, -1},
	}
}

// UnmarshalJSON rejects quads with missing corners.
func (q *Quad) UnmarshalJSON(b []byte) error {
	var raw struct {
		TopLeft     *Point `json:"topLeft"`
		TopRight    *Point `json:"topRight"`
		BottomLeft  *Point `json:"bottomLeft"`
		BottomRight *Point `json:"bottomRight"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.TopLeft == nil || raw.TopRight == nil || raw.BottomLeft == nil || raw.BottomRight == nil {
		return fmt.Errorf("projection quad requires all four corners")
	}
	*q = Quad{*raw.TopLeft, *raw.TopRight, *raw.BottomLeft, *raw.BottomRight}
	return nil
}

// Calibration is the persisted per-camera calibration record. Records are
// matched to cameras by name.
type Calibration struct {
	Name                 string       `json:"name"`
	VirtualDisplay       int          `json:"virtualDisplay"`
	ViewportSize         float64      `json:"viewportSize"`
	OutputTarget         OutputTarget `json:"outputTarget"`
	ProjectionCorrection bool         `json:"projectionCorrection"`
	ProjectionQuad       Quad         `json:"projectionQuad"`
}

// DefaultCalibration returns the record of an uncalibrated camera.
func DefaultCalibration(name string) Calibration {
	return Calibration{
		Name:           name,
		ViewportSize:   1,
		ProjectionQuad: UnitQuad(),
	}
}

// HighestVirtualDisplay returns the largest virtual display index, or 0.
func HighestVirtualDisplay(calibrations []Calibration) int {
	display := 0
	for _, c := range calibrations {
		display = max(display, c.VirtualDisplay)
	}
	return display
}

// MatchAndOverwrite replaces every record in dst whose name appears in src
// with the src record.
func MatchAndOverwrite(src, dst []Calibration) {
	for i := range dst {
		for _, s := range src {
			if dst[i].Name == s.Name {
				dst[i] = s
				break
			}
		}
	}
}

// Rect is a normalized viewport rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}
