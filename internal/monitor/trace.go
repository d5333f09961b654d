// Package monitor exposes the running viewpoint pipeline: the HTTP status
// and calibration API, debug charts, eye trace plots and the gRPC health
// service.
package monitor

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cave.view/internal/viewpoint"
)

// DefaultTraceCapacity keeps about ten seconds of samples at 60 Hz.
const DefaultTraceCapacity = 600

// EyeTrace is a ring buffer of recent eye samples. Add matches
// viewpoint.Pipeline.OnSample. EyeTrace is safe for concurrent use.
type EyeTrace struct {
	mu      sync.Mutex
	samples []viewpoint.Sample
	next    int
	full    bool
}

// NewEyeTrace returns a trace holding up to capacity samples. A
// non-positive capacity uses DefaultTraceCapacity.
func NewEyeTrace(capacity int) *EyeTrace {
	if capacity <= 0 {
		capacity = DefaultTraceCapacity
	}
	return &EyeTrace{samples: make([]viewpoint.Sample, capacity)}
}

// Add records s, replacing the oldest sample when full.
func (t *EyeTrace) Add(s viewpoint.Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[t.next] = s
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
}

// Len returns the number of samples held.
func (t *EyeTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.samples)
	}
	return t.next
}

// Samples returns a copy of the samples, oldest first.
func (t *EyeTrace) Samples() []viewpoint.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]viewpoint.Sample(nil), t.samples[:t.next]...)
	}
	out := make([]viewpoint.Sample, 0, len(t.samples))
	out = append(out, t.samples[t.next:]...)
	return append(out, t.samples[:t.next]...)
}

// Reset drops every sample.
func (t *EyeTrace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.samples)
	t.next = 0
	t.full = false
}

// TraceStats describes the sample-to-sample movement of the eye. Jitter is
// the standard deviation of the per-sample position step along X, Y and Z.
type TraceStats struct {
	Samples        int        `json:"samples"`
	RawJitter      [3]float64 `json:"raw_jitter"`
	FilteredJitter [3]float64 `json:"filtered_jitter"`
}

// Stats summarizes the trace. Jitter needs at least three samples.
func (t *EyeTrace) Stats() TraceStats {
	samples := t.Samples()
	st := TraceStats{Samples: len(samples)}
	if len(samples) < 3 {
		return st
	}
	raw := make([]float64, len(samples)-1)
	filtered := make([]float64, len(samples)-1)
	for axis := 0; axis < 3; axis++ {
		for i := 1; i < len(samples); i++ {
			raw[i-1] = samples[i].Raw.Position[axis] - samples[i-1].Raw.Position[axis]
			filtered[i-1] = samples[i].Filtered.Position[axis] - samples[i-1].Filtered.Position[axis]
		}
		st.RawJitter[axis] = stat.StdDev(raw, nil)
		st.FilteredJitter[axis] = stat.StdDev(filtered, nil)
	}
	return st
}
