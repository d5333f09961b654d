package homography

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// CorrectionSystem returns the 8x8 system whose solution are the homography
// coefficients taking the NDC corners (-1,-1), (-1,1), (1,1), (1,-1) to
// bl, tl, tr and br. Unknowns are ordered a, b, c, d, e, f, g, h for
//
//	u = (a·x + b·y + c) / (g·x + h·y + 1)
//	v = (d·x + e·y + f) / (g·x + h·y + 1)
func CorrectionSystem(bl, tl, tr, br mgl64.Vec2) ([][]float64, []float64) {
	a := [][]float64{
		{1, 1, -1, 0, 0, 0, -bl.X(), -bl.X()},
		{0, 0, 0, 1, 1, -1, -bl.Y(), -bl.Y()},
		{1, -1, -1, 0, 0, 0, -tl.X(), tl.X()},
		{0, 0, 0, 1, -1, -1, -tl.Y(), tl.Y()},
		{-1, -1, -1, 0, 0, 0, tr.X(), tr.X()},
		{0, 0, 0, -1, -1, -1, tr.Y(), tr.Y()},
		{-1, 1, -1, 0, 0, 0, br.X(), -br.X()},
		{0, 0, 0, -1, 1, -1, br.Y(), -br.Y()},
	}
	b := []float64{-bl.X(), -bl.Y(), -tl.X(), -tl.Y(), -tr.X(), -tr.Y(), -br.X(), -br.Y()}
	return a, b
}

// ComputeCorrection returns the 4x4 correction matrix warping clip space
// onto the measured quad. The depth term is 1 - |g| - |h| so the corrected
// depth range cannot overflow.
//
// When the corners do not define a unique homography the identity is
// returned together with ErrNoUniqueSolution.
func ComputeCorrection(bl, tl, tr, br mgl64.Vec2) (mgl64.Mat4, error) {
	x, err := Solve(CorrectionSystem(bl, tl, tr, br))
	if err != nil {
		return mgl64.Ident4(), err
	}
	var m mgl64.Mat4
	m.Set(0, 0, x[0])
	m.Set(0, 1, x[1])
	m.Set(0, 3, x[2])
	m.Set(1, 0, x[3])
	m.Set(1, 1, x[4])
	m.Set(1, 3, x[5])
	m.Set(3, 0, x[6])
	m.Set(3, 1, x[7])
	m.Set(3, 3, 1)
	m.Set(2, 2, 1-math.Abs(x[6])-math.Abs(x[7]))
	return m, nil
}

// Apply maps an NDC point through a correction matrix.
func Apply(m mgl64.Mat4, p mgl64.Vec2) mgl64.Vec2 {
	v := m.Mul4x1(mgl64.Vec4{p.X(), p.Y(), 0, 1})
	return mgl64.Vec2{v.X() / v.W(), v.Y() / v.W()}
}
