package viewpoint

import (
	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/go-gl/mathgl/mgl64"
)

// CameraOutput is what the renderer needs for one camera in one frame.
type CameraOutput struct {
	Camera   string
	Screen   environment.ScreenKind
	Eye      environment.StereoTarget
	Display  int
	Viewport environment.Rect

	Projection mgl64.Mat4 // off-axis projection
	Correction mgl64.Mat4 // projector correction, identity when disabled
	Final      mgl64.Mat4 // Correction * Projection

	Position mgl64.Vec3 // camera world position (the eye)
	Rotation mgl64.Quat // camera world rotation (the screen's)

	Uncalibrated bool
}

// RenderSink receives camera outputs from the frame loop.
type RenderSink interface {
	Submit(CameraOutput)
}

// RenderSinkFunc adapts a function to RenderSink.
type RenderSinkFunc func(CameraOutput)

// Submit calls f(out).
func (f RenderSinkFunc) Submit(out CameraOutput) { f(out) }
