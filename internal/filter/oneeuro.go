// Package filter implements the one-euro adaptive low-pass filter used to
// smooth tracked positions and rotations.
//
// The filter cutoff rises with the estimated speed of the signal, so slow
// movements are smoothed heavily while fast ones pass with little lag.
// Parameters are passed on every call; a OneEuro value only carries state
// and must not be shared between tracked quantities.
package filter

import "math"

// Params configures a one-euro filter.
type Params struct {
	MinCutoff        float64 `json:"min_cutoff"`
	Beta             float64 `json:"beta"`
	DerivativeCutoff float64 `json:"derivative_cutoff"`
}

// DefaultParams returns MinCutoff 1, Beta 0 and DerivativeCutoff 1.
func DefaultParams() Params {
	return Params{MinCutoff: 1, Beta: 0, DerivativeCutoff: 1}
}

// Alpha returns the exponential smoothing factor for cutoff c (Hz) at
// sample rate r (Hz).
func Alpha(rate, cutoff float64) float64 {
	te := 1.0 / rate
	tau := 1.0 / (2 * math.Pi * cutoff)
	return 1.0 / (1.0 + tau/te)
}

type lowPass struct {
	hat float64
}

func (l *lowPass) apply(x, alpha float64) float64 {
	l.hat = alpha*x + (1-alpha)*l.hat
	return l.hat
}

// OneEuro is the state of one scalar channel.
type OneEuro struct {
	x           lowPass
	dx          lowPass
	initialized bool
}

// Initialized reports whether the filter has seen its first sample.
func (f *OneEuro) Initialized() bool { return f.initialized }

// Reset discards the filter state; the next sample passes through.
func (f *OneEuro) Reset() { *f = OneEuro{} }

// Filter smooths sample taken at rate Hz.
func (f *OneEuro) Filter(sample, rate float64, p Params) float64 {
	if !f.initialized {
		f.x.hat = sample
		f.dx.hat = 0
		f.initialized = true
		return sample
	}
	dx := (sample - f.x.hat) * rate
	edx := f.dx.apply(dx, Alpha(rate, p.DerivativeCutoff))
	cutoff := p.MinCutoff + p.Beta*math.Abs(edx)
	return f.x.apply(sample, Alpha(rate, cutoff))
}

// Value returns the last smoothed value.
func (f *OneEuro) Value() float64 { return f.x.hat }

// Derivative returns the last smoothed derivative.
func (f *OneEuro) Derivative() float64 { return f.dx.hat }
