package filter

import "github.com/go-gl/mathgl/mgl64"

// Filter3 filters a 3D vector per component.
type Filter3 struct {
	c [3]OneEuro
}

// Filter smooths v taken at rate Hz.
func (f *Filter3) Filter(v mgl64.Vec3, rate float64, p Params) mgl64.Vec3 {
	return mgl64.Vec3{
		f.c[0].Filter(v[0], rate, p),
		f.c[1].Filter(v[1], rate, p),
		f.c[2].Filter(v[2], rate, p),
	}
}

// Reset discards the state of every component.
func (f *Filter3) Reset() { *f = Filter3{} }

// Filter4 filters a quaternion per component. The result is not
// renormalized, so its length may drift slightly from one.
type Filter4 struct {
	c [4]OneEuro
}

// Filter smooths q taken at rate Hz.
func (f *Filter4) Filter(q mgl64.Quat, rate float64, p Params) mgl64.Quat {
	return mgl64.Quat{
		V: mgl64.Vec3{
			f.c[0].Filter(q.V[0], rate, p),
			f.c[1].Filter(q.V[1], rate, p),
			f.c[2].Filter(q.V[2], rate, p),
		},
		W: f.c[3].Filter(q.W, rate, p),
	}
}

// Reset discards the state of every component.
func (f *Filter4) Reset() { *f = Filter4{} }
