// Package geom holds the small rigid-body helpers shared by tracking,
// projection and the environment model.
//
// Coordinates are meters with Y up and Z forward. Rotations are unit
// quaternions from mgl64; Euler angles follow the Z, X, Y application order
// used by the calibration tooling.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Axis vectors.
var (
	Right   = mgl64.Vec3{1, 0, 0}
	Up      = mgl64.Vec3{0, 1, 0}
	Forward = mgl64.Vec3{0, 0, 1}
)

// ApproxEpsilon is the tolerance used by Approximately.
const ApproxEpsilon = 1e-6

// Approximately reports whether a and b are equal within a small relative
// tolerance.
func Approximately(a, b float64) bool {
	return math.Abs(b-a) < math.Max(ApproxEpsilon*math.Max(math.Abs(a), math.Abs(b)), ApproxEpsilon*8)
}

// Euler returns the rotation for angles in degrees applied Z first, then X,
// then Y.
func Euler(x, y, z float64) mgl64.Quat {
	qx := mgl64.QuatRotate(mgl64.DegToRad(x), Right)
	qy := mgl64.QuatRotate(mgl64.DegToRad(y), Up)
	qz := mgl64.QuatRotate(mgl64.DegToRad(z), Forward)
	return qy.Mul(qx).Mul(qz)
}

// LookRotation returns the rotation whose +Z axis points along forward and
// whose +Y axis is as close to up as possible. A zero forward yields identity.
func LookRotation(forward, up mgl64.Vec3) mgl64.Quat {
	const tiny = 1e-12
	if forward.Len() < tiny {
		return mgl64.QuatIdent()
	}
	z := forward.Normalize()
	x := up.Cross(z)
	if x.Len() < tiny {
		// up is parallel to forward; pick any perpendicular.
		x = Up.Cross(z)
		if x.Len() < tiny {
			x = Right
		}
	}
	x = x.Normalize()
	y := z.Cross(x)
	return mgl64.Mat4ToQuat(mgl64.Mat3FromCols(x, y, z).Mat4()).Normalize()
}

// IsZeroQuat reports whether all four components are approximately zero.
// Sensors report a zero quaternion for joints without orientation data.
func IsZeroQuat(q mgl64.Quat) bool {
	sq := q.W*q.W + q.V.Dot(q.V)
	return Approximately(sq, 0)
}

// LerpVec3 interpolates linearly between a and b.
func LerpVec3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Pose is a rigid transform: rotation followed by translation.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// IdentityPose returns the pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// TransformPoint maps a point from the pose's local space to its parent.
func (p Pose) TransformPoint(local mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.Rotation.Rotate(local))
}

// InverseTransformPoint maps a parent-space point into the pose's local space.
func (p Pose) InverseTransformPoint(world mgl64.Vec3) mgl64.Vec3 {
	return p.Rotation.Inverse().Rotate(world.Sub(p.Position))
}

// Compose returns the world pose of child expressed in p's local space.
func (p Pose) Compose(child Pose) Pose {
	return Pose{
		Position: p.TransformPoint(child.Position),
		Rotation: p.Rotation.Mul(child.Rotation),
	}
}

// Bounds is an axis-aligned box described by its center and full size.
type Bounds struct {
	Center mgl64.Vec3
	Size   mgl64.Vec3
}

// NewBounds returns a bounds of the given size around center.
func NewBounds(center, size mgl64.Vec3) Bounds {
	return Bounds{Center: center, Size: size}
}

// Min returns the minimum corner.
func (b Bounds) Min() mgl64.Vec3 { return b.Center.Sub(b.Size.Mul(0.5)) }

// Max returns the maximum corner.
func (b Bounds) Max() mgl64.Vec3 { return b.Center.Add(b.Size.Mul(0.5)) }

// Encapsulate grows the bounds to include point.
func (b Bounds) Encapsulate(point mgl64.Vec3) Bounds {
	lo, hi := b.Min(), b.Max()
	for i := 0; i < 3; i++ {
		lo[i] = math.Min(lo[i], point[i])
		hi[i] = math.Max(hi[i], point[i])
	}
	return Bounds{Center: lo.Add(hi).Mul(0.5), Size: hi.Sub(lo)}
}

// Contains reports whether point lies inside or on the bounds.
func (b Bounds) Contains(point mgl64.Vec3) bool {
	lo, hi := b.Min(), b.Max()
	for i := 0; i < 3; i++ {
		if point[i] < lo[i] || point[i] > hi[i] {
			return false
		}
	}
	return true
}

// SqrDistance returns the squared distance between two points.
func SqrDistance(a, b mgl64.Vec3) float64 {
	d := a.Sub(b)
	return d.Dot(d)
}
