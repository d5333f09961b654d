package actors

import (
	"fmt"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// Kind tags a Trackable.
type Kind int

const (
	KindHead Kind = iota
	KindHand
	KindJoint
)

func (k Kind) String() string {
	switch k {
	case KindHead:
		return "head"
	case KindHand:
		return "hand"
	case KindJoint:
		return "joint"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Side is the body side of a hand trackable.
type Side int

const (
	Left Side = iota
	Right
)

// headFallbackOffset is how far above the spine-shoulder the head is assumed
// to be when the sensor has lost it.
const headFallbackOffset = 0.3

// Trackable is one tracked point of an actor. The per-kind behaviour lives
// in update; Kind, Side and Joint are fixed at construction.
type Trackable struct {
	Kind  Kind
	Side  Side           // KindHand only
	Joint body.JointType // joint the trackable follows

	Position mgl64.Vec3
	Rotation mgl64.Quat
	State    body.TrackingState

	// Hand classification, KindHand only.
	HandState  body.HandState
	Confidence body.Confidence

	tracked bool
}

// NewHead returns a head trackable.
func NewHead() *Trackable {
	return &Trackable{Kind: KindHead, Joint: body.Head, Rotation: mgl64.QuatIdent()}
}

// NewHand returns a hand trackable for side.
func NewHand(side Side) *Trackable {
	joint := body.HandLeft
	if side == Right {
		joint = body.HandRight
	}
	return &Trackable{Kind: KindHand, Side: side, Joint: joint, Rotation: mgl64.QuatIdent()}
}

// NewJoint returns a trackable that follows joint t.
func NewJoint(t body.JointType) *Trackable {
	return &Trackable{Kind: KindJoint, Joint: t, Rotation: mgl64.QuatIdent()}
}

// Tracked reports whether the trackable is currently tracked by its actor.
func (t *Trackable) Tracked() bool { return t.tracked }

// Pose returns the trackable's world pose.
func (t *Trackable) Pose() geom.Pose {
	return geom.Pose{Position: t.Position, Rotation: t.Rotation}
}

func (t *Trackable) String() string {
	if t.Kind == KindJoint {
		return fmt.Sprintf("%s(%s)", t.Kind, t.Joint)
	}
	if t.Kind == KindHand {
		if t.Side == Left {
			return "hand(left)"
		}
		return "hand(right)"
	}
	return t.Kind.String()
}

func (t *Trackable) update(b *body.BodyData) {
	switch t.Kind {
	case KindHead:
		t.updateHead(b)
	case KindHand:
		j := b.Joint(t.Joint)
		t.Position, t.Rotation, t.State = j.Position, j.Rotation, j.State
		hand := b.HandLeft
		if t.Side == Right {
			hand = b.HandRight
		}
		t.HandState, t.Confidence = hand.State, hand.Confidence
	default:
		j := b.Joint(t.Joint)
		t.Position, t.Rotation, t.State = j.Position, j.Rotation, j.State
	}
}

// updateHead prefers the face rotation of a tracked head. A lost head
// falls back to the upper spine and reports Inferred; with the
// spine-shoulder lost too it keeps its last pose and reports NotTracked.
func (t *Trackable) updateHead(b *body.BodyData) {
	head := b.Joint(body.Head)
	if head.State == body.NotTracked {
		if b.Joint(body.SpineShoulder).State == body.NotTracked {
			t.State = body.NotTracked
			return
		}
		t.Position, t.Rotation = HeadFallback(b)
		t.State = body.Inferred
		return
	}
	t.Position = head.Position
	t.Rotation = head.Rotation
	if b.Face != nil && !geom.IsZeroQuat(*b.Face) {
		t.Rotation = *b.Face
	}
	t.State = head.State
}

// HeadFallback estimates the head pose from the upper spine when the head
// joint is lost: 0.3 m above the spine-shoulder, rotated halfway between the
// shoulders. The spine-shoulder must be tracked or inferred.
func HeadFallback(b *body.BodyData) (mgl64.Vec3, mgl64.Quat) {
	spine := b.Joint(body.SpineShoulder)
	rotation := mgl64.QuatNlerp(
		b.Joint(body.ShoulderLeft).Rotation,
		b.Joint(body.ShoulderRight).Rotation,
		0.5,
	)
	return spine.Position.Add(geom.Up.Mul(headFallbackOffset)), rotation
}
