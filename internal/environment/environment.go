// Package environment models the cubic projection room: its screens, the
// cameras rendering them and their calibration records.
package environment

import (
	"fmt"

	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/go-gl/mathgl/mgl64"
)

// Options configures a new Environment.
type Options struct {
	Dimensions    mgl64.Vec3 // meters, x y z
	Pose          geom.Pose  // floor center in world space
	Stereo        bool
	EyeSeparation float64
	NearClipPlane float64
	FarClipPlane  float64
	NearGuard     float64
	OutputTarget  OutputTarget
}

// DefaultDimensions returns the size of the reference installation.
func DefaultDimensions() mgl64.Vec3 { return mgl64.Vec3{3, 2.45, 3} }

// OptionsFromCave builds Options from a loaded CaveConfig.
func OptionsFromCave(cfg *config.CaveConfig) (Options, error) {
	target, err := ParseOutputTarget(cfg.GetOutputTarget())
	if err != nil {
		return Options{}, err
	}
	dims, pos := cfg.GetDimensions(), cfg.GetPosition()
	return Options{
		Dimensions: mgl64.Vec3(dims),
		Pose: geom.Pose{
			Position: mgl64.Vec3(pos),
			Rotation: geom.Euler(0, cfg.GetYawDegrees(), 0),
		},
		Stereo:        cfg.GetStereo(),
		EyeSeparation: cfg.GetEyeSeparation(),
		NearClipPlane: cfg.GetNearClipPlane(),
		FarClipPlane:  cfg.GetFarClipPlane(),
		NearGuard:     cfg.GetNearGuard(),
		OutputTarget:  target,
	}, nil
}

// Environment is the projection room. It is owned by the frame loop and is
// not safe for concurrent use.
type Environment struct {
	pose    geom.Pose
	dims    mgl64.Vec3
	screens [6]Screen
	cameras []*Camera

	EyeSeparation float64
	NearClipPlane float64
	FarClipPlane  float64
	NearGuard     float64

	outputTarget OutputTarget
	locked       bool
}

// New builds an environment with one camera per screen, or two in stereo.
// Virtual displays are assigned in camera order.
func New(opts Options) *Environment {
	if geom.IsZeroQuat(opts.Pose.Rotation) {
		opts.Pose.Rotation = mgl64.QuatIdent()
	}
	if opts.Dimensions == (mgl64.Vec3{}) {
		opts.Dimensions = DefaultDimensions()
	}
	e := &Environment{
		pose:          opts.Pose,
		EyeSeparation: opts.EyeSeparation,
		NearClipPlane: opts.NearClipPlane,
		FarClipPlane:  opts.FarClipPlane,
		NearGuard:     opts.NearGuard,
	}
	for _, kind := range ScreenKinds {
		if opts.Stereo {
			e.cameras = append(e.cameras, NewCamera(kind, EyeLeft), NewCamera(kind, EyeRight))
		} else {
			e.cameras = append(e.cameras, NewCamera(kind, Mono))
		}
	}
	e.Resize(opts.Dimensions)
	e.SetOutputTarget(opts.OutputTarget, false)

	eyes := e.pose.TransformPoint(mgl64.Vec3{0, 1.7, 0})
	for _, c := range e.cameras {
		e.PlaceCamera(c, eyes)
	}
	return e
}

// Dimensions returns the room size in meters.
func (e *Environment) Dimensions() mgl64.Vec3 { return e.dims }

// Pose returns the world pose of the room's floor center.
func (e *Environment) Pose() geom.Pose { return e.pose }

// Center returns the world position of the room's center.
func (e *Environment) Center() mgl64.Vec3 {
	return e.pose.TransformPoint(geom.Up.Mul(e.dims.Y() / 2))
}

// LocalBounds returns the room volume in local space.
func (e *Environment) LocalBounds() geom.Bounds {
	return geom.NewBounds(geom.Up.Mul(e.dims.Y()/2), e.dims)
}

// Contains reports whether a world point lies inside the room.
func (e *Environment) Contains(p mgl64.Vec3) bool {
	return e.LocalBounds().Contains(e.pose.InverseTransformPoint(p))
}

// Resize changes the room dimensions and rebuilds the screens.
func (e *Environment) Resize(dims mgl64.Vec3) {
	e.dims = dims
	for _, kind := range ScreenKinds {
		e.screens[kind] = NewScreen(kind, dims)
	}
}

// Screen returns the screen of kind.
func (e *Environment) Screen(kind ScreenKind) Screen { return e.screens[kind] }

// ScreenPose returns the world pose of the screen of kind.
func (e *Environment) ScreenPose(kind ScreenKind) geom.Pose {
	return e.pose.Compose(e.screens[kind].Local)
}

// Cameras returns the cameras in creation order.
func (e *Environment) Cameras() []*Camera { return e.cameras }

// Camera returns the camera with the given name, or nil.
func (e *Environment) Camera(name string) *Camera {
	for _, c := range e.cameras {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// OutputTarget returns the current output target.
func (e *Environment) OutputTarget() OutputTarget { return e.outputTarget }

// SetOutputTarget applies target to every camera. Split viewports divide
// the display evenly between the cameras. Unless keepDisplays is set each
// camera's virtual display becomes its index.
func (e *Environment) SetOutputTarget(target OutputTarget, keepDisplays bool) {
	size := 1 / float64(len(e.cameras))
	for i, c := range e.cameras {
		cal := c.Calibration()
		cal.ViewportSize = size
		cal.OutputTarget = target
		if !keepDisplays {
			cal.VirtualDisplay = i
		}
		c.ApplyCalibration(cal)
	}
	e.outputTarget = target
}

// CollectCalibrations returns the calibration of every camera.
func (e *Environment) CollectCalibrations() []Calibration {
	out := make([]Calibration, len(e.cameras))
	for i, c := range e.cameras {
		out[i] = c.Calibration()
	}
	return out
}

// MatchAndApplyCalibrations applies each record to the camera of the same
// name and returns the names that matched no camera.
func (e *Environment) MatchAndApplyCalibrations(calibrations []Calibration) []string {
	var unmatched []string
	for _, cal := range calibrations {
		c := e.Camera(cal.Name)
		if c == nil {
			monitoring.Diagf("environment: no camera named %q, calibration ignored", cal.Name)
			unmatched = append(unmatched, cal.Name)
			continue
		}
		c.ApplyCalibration(cal)
	}
	return unmatched
}

// Uncalibrated returns the names of cameras whose enabled correction could
// not be solved.
func (e *Environment) Uncalibrated() []string {
	var names []string
	for _, c := range e.cameras {
		if c.Uncalibrated() {
			names = append(names, c.Name)
		}
	}
	return names
}

// Locked reports whether the cameras ignore the tracked eye.
func (e *Environment) Locked() bool { return e.locked }

// LockCamerasToPosition freezes every camera at p.
func (e *Environment) LockCamerasToPosition(p mgl64.Vec3) {
	e.locked = true
	for _, c := range e.cameras {
		e.PlaceCamera(c, p)
	}
}

// UnlockCameras lets the cameras follow the eye again.
func (e *Environment) UnlockCameras() { e.locked = false }

// PlaceCamera moves c to eye, facing its screen.
func (e *Environment) PlaceCamera(c *Camera, eye mgl64.Vec3) {
	c.Pose = geom.Pose{Position: eye, Rotation: e.ScreenPose(c.Screen).Rotation}
}

func (e *Environment) String() string {
	return fmt.Sprintf("environment(%.2fx%.2fx%.2f, %d cameras, %s)",
		e.dims.X(), e.dims.Y(), e.dims.Z(), len(e.cameras), e.outputTarget)
}
