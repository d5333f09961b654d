package body

import (
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// The sensor reports a right-handed camera space facing the room. Real space
// mirrors it on X, places Y = 0 on the floor and keeps Z pointing away from
// the sensor.

// CameraSpacePointToRealSpace converts a sensor point into real space.
func CameraSpacePointToRealSpace(p mgl64.Vec3, floor mgl64.Vec4) mgl64.Vec3 {
	return mgl64.Vec3{-p.X(), p.Y() + floor.W(), p.Z()}
}

// OrientationToRealSpace converts a sensor joint orientation (x, y, z, w)
// into real space.
func OrientationToRealSpace(o mgl64.Vec4) mgl64.Quat {
	return mgl64.Quat{W: o.W(), V: mgl64.Vec3{o.X(), -o.Y(), -o.Z()}}
}

// FaceRotationToRealSpace converts a sensor face rotation (x, y, z, w) into
// real space. Faces look back at the sensor, hence the half turn about Y.
func FaceRotationToRealSpace(r mgl64.Vec4) mgl64.Quat {
	halfTurn := mgl64.Quat{W: 0, V: mgl64.Vec3{0, 1, 0}}
	return halfTurn.Mul(mgl64.Quat{W: r.W(), V: mgl64.Vec3{-r.X(), -r.Y(), r.Z()}})
}

// FloorRotationCorrection returns the rotation that levels a tilted sensor
// using the floor clip plane. A zero plane yields identity.
func FloorRotationCorrection(floor mgl64.Vec4) mgl64.Quat {
	if geom.Approximately(floor.Dot(floor), 0) {
		return mgl64.QuatIdent()
	}
	up := floor.Vec3()
	right := up.Cross(geom.Forward)
	forward := right.Cross(up)
	return geom.LookRotation(
		mgl64.Vec3{forward.X(), -forward.Y(), forward.Z()},
		mgl64.Vec3{up.X(), up.Y(), -up.Z()},
	)
}

// InferRotationFromParent derives a joint rotation from the bone direction
// when the sensor reports none. The bone points along +Z.
func InferRotationFromParent(position, parent mgl64.Vec3) mgl64.Quat {
	direction := position.Sub(parent)
	perpendicular := direction.Cross(geom.Up)
	normal := perpendicular.Cross(direction)
	return geom.LookRotation(
		direction.Add(geom.Forward.Mul(1e-4)),
		normal.Add(geom.Up.Mul(1e-4)),
	)
}

// RealJoint is a joint in real space.
type RealJoint struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	State    TrackingState
}

// BodyData is a detection converted into real space.
type BodyData struct {
	TrackingID uint64
	Lean       mgl64.Vec2
	Joints     [JointCount]RealJoint
	HandLeft   Hand
	HandRight  Hand

	// Face is the real-space face rotation, or nil when no face was found.
	Face *mgl64.Quat
}

// Joint returns the real-space joint of type t.
func (b *BodyData) Joint(t JointType) RealJoint { return b.Joints[t] }

// Refresh converts d into real space using the floor clip plane. Joints
// without orientation get one inferred from their parent. SpineShoulder is
// converted first since the neck and shoulders hang off it.
func (b *BodyData) Refresh(d *Detection, floor mgl64.Vec4) {
	b.TrackingID = d.TrackingID
	b.Lean = d.Lean
	b.HandLeft = d.HandLeft
	b.HandRight = d.HandRight
	b.Face = nil
	if d.Face != nil {
		q := FaceRotationToRealSpace(d.Face.Rotation)
		b.Face = &q
	}

	correction := FloorRotationCorrection(floor)
	convert := func(t JointType) {
		j := d.Joint(t)
		position := correction.Rotate(CameraSpacePointToRealSpace(j.Position, floor))
		var rotation mgl64.Quat
		if geom.IsZeroQuat(mgl64.Quat{W: j.Orientation.W(), V: j.Orientation.Vec3()}) {
			rotation = InferRotationFromParent(position, b.Joints[t.Parent()].Position)
		} else {
			rotation = correction.Mul(OrientationToRealSpace(j.Orientation))
		}
		b.Joints[t] = RealJoint{Position: position, Rotation: rotation, State: j.State}
	}

	convert(SpineShoulder)
	for t := JointType(0); t < JointCount; t++ {
		convert(t)
	}
}
