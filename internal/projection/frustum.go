// Package projection builds the off-axis perspective projection for a
// display surface seen from a tracked eye.
//
// The eye is given in the surface's local frame: the surface is centered at
// the origin, spans width along X and height along Y, and its normal points
// along +Z away from the viewer. A viewer in front of the surface therefore
// has a negative local Z.
package projection

import (
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultNearGuard replaces the near distance when the eye lies on the
// surface plane.
const DefaultNearGuard = 0.01

// Frustum holds the extents of an asymmetric frustum at the near distance.
type Frustum struct {
	Left, Right, Bottom, Top float64
	Near                     float64
}

// ComputeFrustum returns the frustum extents for localEye and a surface of
// the given size. nearGuard is used as the near distance when localEye.Z is
// approximately zero; a non-positive guard selects DefaultNearGuard.
func ComputeFrustum(localEye mgl64.Vec3, width, height, nearGuard float64) Frustum {
	if nearGuard <= 0 {
		nearGuard = DefaultNearGuard
	}
	near := -localEye.Z()
	if geom.Approximately(localEye.Z(), 0) {
		near = nearGuard
	}
	return Frustum{
		Left:   -localEye.X() - 0.5*width,
		Right:  -localEye.X() + 0.5*width,
		Bottom: -localEye.Y() - 0.5*height,
		Top:    -localEye.Y() + 0.5*height,
		Near:   near,
	}
}

// Matrix returns the perspective matrix for the frustum. The clip planes are
// scaled by the eye distance, so nearClip and farClip act as multipliers of
// the distance to the surface plane for the depth terms.
func (f Frustum) Matrix(nearClip, farClip float64) mgl64.Mat4 {
	n := f.Near
	var m mgl64.Mat4
	m.Set(0, 0, 2*n/(f.Right-f.Left))
	m.Set(1, 1, 2*n/(f.Top-f.Bottom))
	m.Set(0, 2, (f.Right+f.Left)/(f.Right-f.Left))
	m.Set(1, 2, (f.Top+f.Bottom)/(f.Top-f.Bottom))
	m.Set(2, 2, -(farClip+nearClip*n)/(farClip-nearClip*n))
	m.Set(3, 2, -1)
	m.Set(2, 3, -(2*farClip*nearClip*n)/(farClip-nearClip*n))
	return m
}

// ComputeAsymmetricFrustum returns the projection matrix for a surface of
// width x height meters seen from localEye.
func ComputeAsymmetricFrustum(localEye mgl64.Vec3, width, height, nearClip, farClip, nearGuard float64) mgl64.Mat4 {
	return ComputeFrustum(localEye, width, height, nearGuard).Matrix(nearClip, farClip)
}
