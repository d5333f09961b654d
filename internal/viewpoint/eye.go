package viewpoint

import (
	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/filter"
	"github.com/banshee-data/cave.view/internal/geom"
)

// RawEyePose returns the unfiltered eye pose of a and its head state,
// taken from the head trackable. A NotTracked head carries its last known
// pose.
func RawEyePose(a *actors.Actor) (geom.Pose, body.TrackingState) {
	h := a.Head()
	return geom.Pose{Position: h.Position, Rotation: h.Rotation}, h.State
}

// EyeTracker smooths the eye pose of the selected actor. Without an actor
// it holds the last filtered pose.
type EyeTracker struct {
	rate           float64
	positionParams filter.Params
	rotationParams filter.Params

	position filter.Filter3
	rotation filter.Filter4

	raw      geom.Pose
	filtered geom.Pose
	state    body.TrackingState
}

// NewEyeTracker returns a tracker sampling at rate Hz, resting at initial
// until the first update.
func NewEyeTracker(rate float64, positionParams, rotationParams filter.Params, initial geom.Pose) *EyeTracker {
	return &EyeTracker{
		rate:           rate,
		positionParams: positionParams,
		rotationParams: rotationParams,
		raw:            initial,
		filtered:       initial,
	}
}

// Update filters the eye pose of a. A nil actor or a NotTracked head leaves
// the pose unchanged.
func (t *EyeTracker) Update(a *actors.Actor) geom.Pose {
	if a == nil {
		return t.filtered
	}
	raw, state := RawEyePose(a)
	t.state = state
	if state == body.NotTracked {
		return t.filtered
	}
	t.raw = raw
	t.filtered = geom.Pose{
		Position: t.position.Filter(t.raw.Position, t.rate, t.positionParams),
		Rotation: t.rotation.Filter(t.raw.Rotation, t.rate, t.rotationParams),
	}
	return t.filtered
}

// Pose returns the last filtered eye pose.
func (t *EyeTracker) Pose() geom.Pose { return t.filtered }

// Raw returns the last unfiltered eye pose.
func (t *EyeTracker) Raw() geom.Pose { return t.raw }

// State returns the head state of the last update.
func (t *EyeTracker) State() body.TrackingState { return t.state }

// Reset discards the filter state; the next update passes through.
func (t *EyeTracker) Reset() {
	t.position.Reset()
	t.rotation.Reset()
}
