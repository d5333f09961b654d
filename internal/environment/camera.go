package environment

import (
	"errors"
	"fmt"

	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/homography"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/go-gl/mathgl/mgl64"
)

// StereoTarget selects which eye a camera renders.
type StereoTarget int

const (
	Mono StereoTarget = iota
	EyeLeft
	EyeRight
)

func (s StereoTarget) String() string {
	switch s {
	case Mono:
		return "mono"
	case EyeLeft:
		return "left"
	case EyeRight:
		return "right"
	}
	return fmt.Sprintf("StereoTarget(%d)", int(s))
}

// EyePosition returns the world position of the given eye for a head pose.
// Stereo eyes sit half the separation to either side along the head's
// right axis.
func EyePosition(head geom.Pose, target StereoTarget, separation float64) mgl64.Vec3 {
	switch target {
	case EyeLeft:
		return head.TransformPoint(geom.Right.Mul(-separation / 2))
	case EyeRight:
		return head.TransformPoint(geom.Right.Mul(separation / 2))
	}
	return head.Position
}

// CameraName returns the name of the camera facing kind for target.
func CameraName(kind ScreenKind, target StereoTarget) string {
	name := "Virtual Camera " + kind.String()
	switch target {
	case EyeLeft:
		name += " L"
	case EyeRight:
		name += " R"
	}
	return name
}

// Camera renders one screen for one eye.
type Camera struct {
	Name   string
	Screen ScreenKind
	Eye    StereoTarget

	// Pose is the camera's world pose: the eye position with the screen's
	// rotation.
	Pose geom.Pose

	calibration  Calibration
	correction   mgl64.Mat4
	uncalibrated bool
	display      int
	viewport     Rect
}

// NewCamera returns an uncalibrated camera for kind and target.
func NewCamera(kind ScreenKind, target StereoTarget) *Camera {
	name := CameraName(kind, target)
	c := &Camera{
		Name:       name,
		Screen:     kind,
		Eye:        target,
		Pose:       geom.IdentityPose(),
		correction: mgl64.Ident4(),
	}
	c.ApplyCalibration(DefaultCalibration(name))
	return c
}

// Calibration returns the camera's current calibration record.
func (c *Camera) Calibration() Calibration {
	cal := c.calibration
	cal.Name = c.Name
	return cal
}

// ApplyCalibration stores cal, rebuilds the correction matrix when
// projection correction is enabled and lays out the viewport for the
// output target. Degenerate quads leave the camera uncalibrated with an
// identity correction.
func (c *Camera) ApplyCalibration(cal Calibration) {
	c.calibration = cal
	if cal.ProjectionCorrection {
		c.rebuildCorrection(cal.ProjectionQuad)
	}
	if cal.OutputTarget == OutputDisplay {
		c.display = cal.VirtualDisplay
		c.viewport = Rect{0, 0, 1, 1}
		c.calibration.ViewportSize = 1
		return
	}
	c.display = 0
	i, s := float64(cal.VirtualDisplay), cal.ViewportSize
	if cal.OutputTarget == OutputSplitHorizontal {
		c.viewport = Rect{i * s, 0, s, 1}
	} else {
		c.viewport = Rect{0, i * s, 1, s}
	}
}

func (c *Camera) rebuildCorrection(q Quad) {
	m, err := homography.ComputeCorrection(q.BottomLeft.Vec2(), q.TopLeft.Vec2(), q.TopRight.Vec2(), q.BottomRight.Vec2())
	c.correction = m
	c.uncalibrated = err != nil
	if errors.Is(err, homography.ErrNoUniqueSolution) {
		monitoring.Diagf("environment: %s: degenerate projection quad, using identity", c.Name)
	} else if err != nil {
		monitoring.Opsf("environment: %s: correction failed: %v", c.Name, err)
	}
}

// Correction returns the matrix post-multiplied onto the projection:
// identity unless projection correction is enabled.
func (c *Camera) Correction() mgl64.Mat4 {
	if !c.calibration.ProjectionCorrection {
		return mgl64.Ident4()
	}
	return c.correction
}

// Uncalibrated reports whether the last enabled correction was degenerate.
func (c *Camera) Uncalibrated() bool {
	return c.calibration.ProjectionCorrection && c.uncalibrated
}

// Display returns the physical display the camera renders to.
func (c *Camera) Display() int { return c.display }

// Viewport returns the normalized viewport rectangle on Display.
func (c *Camera) Viewport() Rect { return c.viewport }
