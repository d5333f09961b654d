package feed

import (
	"context"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
)

// walkerPeriod is the time one lap of the walker takes.
const walkerPeriod = 20 * time.Second

// Walker is a synthetic source: one tracked person walking a circle in
// front of a floor-level sensor. It drives demos and tests without hardware.
type Walker struct {
	clock    timeutil.Clock
	interval time.Duration
	center   mgl64.Vec3
	radius   float64
	counter  int64
}

// NewWalker returns a walker that emits a frame every interval, circling
// inside a room of the given width, height and depth.
func NewWalker(clock timeutil.Clock, interval time.Duration, dims [3]float64) *Walker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	radius := 0.25 * math.Min(dims[0], dims[2])
	if radius <= 0 {
		radius = 0.5
	}
	return &Walker{
		clock:    clock,
		interval: interval,
		center:   mgl64.Vec3{0, 0, radius + 1},
		radius:   radius,
	}
}

// Frame returns the walker's frame at t. Each call advances the counter.
func (w *Walker) Frame(t time.Time) *body.Frame {
	w.counter++
	phase := 2 * math.Pi * float64(t.UnixNano()%int64(walkerPeriod)) / float64(walkerPeriod)
	at := w.center.Add(mgl64.Vec3{w.radius * math.Cos(phase), 0, w.radius * math.Sin(phase)})
	f := &body.Frame{
		Counter:        w.counter,
		Timestamp:      t,
		FloorClipPlane: mgl64.Vec4{0, 1, 0, 0},
		Detections:     []body.Detection{body.StandingDetection(1, at)},
	}
	f.Normalize()
	return f
}

// Run publishes one frame immediately and then one per tick.
func (w *Walker) Run(ctx context.Context, h *Handoff) error {
	monitoring.Diagf("feed: synthetic walker every %v, radius %.2fm", w.interval, w.radius)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	h.Restart()
	_ = h.Publish(w.Frame(w.clock.Now()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			_ = h.Publish(w.Frame(now))
		}
	}
}
