// Package actors maps per-frame body detections onto persistent actors and
// provides the selection, trigger and heat-map helpers built on them.
package actors

import (
	"time"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// heightMargin is added to the skeleton's vertical extent to cover the top
// of the skull above the head joint.
const heightMargin = 0.1

// Actor is a tracked person that persists across frames.
type Actor struct {
	trackingID uint64
	createdAt  time.Time

	// Body is the latest body data in world space.
	Body body.BodyData

	bounds geom.Bounds
	height float64

	head       *Trackable
	handLeft   *Trackable
	handRight  *Trackable
	trackables []*Trackable

	onTrack   func(*Actor, *Trackable)
	onUntrack func(*Actor, *Trackable)
}

func newActor(id uint64, createdAt time.Time, construction Construction) *Actor {
	a := &Actor{trackingID: id, createdAt: createdAt}
	a.head = NewHead()
	a.handLeft = NewHand(Left)
	a.handRight = NewHand(Right)
	a.track(a.head)
	a.track(a.handLeft)
	a.track(a.handRight)
	if construction == ConstructionFull {
		for t := body.JointType(0); t < body.JointCount; t++ {
			if t == body.Head || t == body.HandLeft || t == body.HandRight {
				continue
			}
			a.track(NewJoint(t))
		}
	}
	return a
}

// TrackingID returns the sensor tracking id.
func (a *Actor) TrackingID() uint64 { return a.trackingID }

// CreatedAt returns the time the actor was first seen.
func (a *Actor) CreatedAt() time.Time { return a.createdAt }

// Bounds returns the world-space box around the skeleton and its trackables.
func (a *Actor) Bounds() geom.Bounds { return a.bounds }

// Height returns the tallest extent seen so far, in meters.
func (a *Actor) Height() float64 { return a.height }

// Lean returns the sensor's lean estimate.
func (a *Actor) Lean() mgl64.Vec2 { return a.Body.Lean }

// FloorPosition returns the bounds center projected onto the floor.
func (a *Actor) FloorPosition() mgl64.Vec3 {
	c := a.bounds.Center
	return mgl64.Vec3{c.X(), a.bounds.Min().Y(), c.Z()}
}

// Head returns the head trackable.
func (a *Actor) Head() *Trackable { return a.head }

// Hand returns the hand trackable for side.
func (a *Actor) Hand(side Side) *Trackable {
	if side == Right {
		return a.handRight
	}
	return a.handLeft
}

// Trackables returns the actor's tracked points. The slice must not be
// modified.
func (a *Actor) Trackables() []*Trackable { return a.trackables }

// JointTrackable returns the trackable following joint t, or nil.
func (a *Actor) JointTrackable(t body.JointType) *Trackable {
	for _, tr := range a.trackables {
		if tr.Joint == t {
			return tr
		}
	}
	return nil
}

// SetCallbacks registers functions called when a trackable starts or stops
// being tracked.
func (a *Actor) SetCallbacks(onTrack, onUntrack func(*Actor, *Trackable)) {
	a.onTrack = onTrack
	a.onUntrack = onUntrack
}

// Track adds t to the actor. Tracking an already tracked trackable is a
// no-op.
func (a *Actor) Track(t *Trackable) {
	if t.tracked {
		return
	}
	a.track(t)
	t.update(&a.Body)
	if a.onTrack != nil {
		a.onTrack(a, t)
	}
}

func (a *Actor) track(t *Trackable) {
	t.tracked = true
	a.trackables = append(a.trackables, t)
}

// Untrack removes t from the actor.
func (a *Actor) Untrack(t *Trackable) {
	for i, tr := range a.trackables {
		if tr == t {
			a.trackables = append(a.trackables[:i], a.trackables[i+1:]...)
			t.tracked = false
			if a.onUntrack != nil {
				a.onUntrack(a, t)
			}
			return
		}
	}
}

func (a *Actor) untrackAll() {
	for len(a.trackables) > 0 {
		a.Untrack(a.trackables[len(a.trackables)-1])
	}
}

// update refreshes the body from d, moves it into world space with pose and
// recomputes the trackables and bounds.
func (a *Actor) update(d *body.Detection, floor mgl64.Vec4, pose geom.Pose) {
	a.Body.Refresh(d, floor)
	for i := range a.Body.Joints {
		j := &a.Body.Joints[i]
		j.Position = pose.TransformPoint(j.Position)
		j.Rotation = pose.Rotation.Mul(j.Rotation)
	}
	if a.Body.Face != nil {
		face := pose.Rotation.Mul(*a.Body.Face)
		a.Body.Face = &face
	}

	for _, t := range a.trackables {
		t.update(&a.Body)
	}
	a.updateBounds()
}

func (a *Actor) updateBounds() {
	b := geom.NewBounds(a.Body.Joint(body.SpineBase).Position, mgl64.Vec3{})
	for _, t := range []body.JointType{body.Head, body.FootLeft, body.FootRight} {
		if j := a.Body.Joint(t); j.State != body.NotTracked {
			b = b.Encapsulate(j.Position)
		}
	}
	for _, t := range a.trackables {
		if t.State != body.NotTracked {
			b = b.Encapsulate(t.Position)
		}
	}
	a.bounds = b
	if h := b.Size.Y() + heightMargin; h > a.height {
		a.height = h
	}
}
