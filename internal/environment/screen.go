package environment

import (
	"fmt"

	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// ScreenKind identifies one wall of the cubic environment.
type ScreenKind int

const (
	Front ScreenKind = iota
	Back
	Left
	Right
	Top
	Bottom
)

// ScreenKinds lists every screen kind in index order.
var ScreenKinds = []ScreenKind{Front, Back, Left, Right, Top, Bottom}

var screenKindNames = [...]string{"Front", "Back", "Left", "Right", "Top", "Bottom"}

func (k ScreenKind) String() string {
	if k < 0 || int(k) >= len(screenKindNames) {
		return fmt.Sprintf("ScreenKind(%d)", int(k))
	}
	return screenKindNames[k]
}

// Local screen centers in units of the environment dimensions.
var screenPositions = [...]mgl64.Vec3{
	{0, 0.5, 0.5},  // Front
	{0, 0.5, -0.5}, // Back
	{-0.5, 0.5, 0}, // Left
	{0.5, 0.5, 0},  // Right
	{0, 1, 0},      // Top
	{0, 0, 0},      // Bottom
}

// Local screen rotations; each screen's +Z points out of the room.
var screenRotations = [...]mgl64.Quat{
	mgl64.QuatIdent(),
	geom.Euler(0, 180, 0),
	geom.Euler(0, -90, 0),
	geom.Euler(0, 90, 0),
	geom.Euler(-90, 0, 0),
	geom.Euler(90, 0, 0),
}

// Screen is one projection surface, positioned in environment-local space.
type Screen struct {
	Kind   ScreenKind
	Width  float64 // meters
	Height float64 // meters
	Local  geom.Pose
}

// NewScreen returns the screen of kind for an environment of dims.
func NewScreen(kind ScreenKind, dims mgl64.Vec3) Screen {
	p := screenPositions[kind]
	s := Screen{
		Kind: kind,
		Local: geom.Pose{
			Position: mgl64.Vec3{p.X() * dims.X(), p.Y() * dims.Y(), p.Z() * dims.Z()},
			Rotation: screenRotations[kind],
		},
	}
	switch kind {
	case Front, Back:
		s.Width, s.Height = dims.X(), dims.Y()
	case Left, Right:
		s.Width, s.Height = dims.Z(), dims.Y()
	case Top, Bottom:
		s.Width, s.Height = dims.X(), dims.Z()
	}
	return s
}

// Corners returns the bottom-left, top-left, top-right and bottom-right
// corners in the space of parent.
func (s Screen) Corners(parent geom.Pose) [4]mgl64.Vec3 {
	pose := parent.Compose(s.Local)
	w, h := s.Width/2, s.Height/2
	return [4]mgl64.Vec3{
		pose.TransformPoint(mgl64.Vec3{-w, -h, 0}),
		pose.TransformPoint(mgl64.Vec3{-w, h, 0}),
		pose.TransformPoint(mgl64.Vec3{w, h, 0}),
		pose.TransformPoint(mgl64.Vec3{w, -h, 0}),
	}
}
