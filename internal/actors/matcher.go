package actors

import (
	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/go-gl/mathgl/mgl64"
)

// Matcher keeps the set of actors in step with the sensor's detections.
//
// Frames must be normalized (tracked detections first, ascending tracking
// ids) before Process is called; the sensor reports ids that only increase
// during a session, so actors are also kept in ascending id order and a
// single merge walk matches both lists.
//
// Matcher is not safe for concurrent use.
type Matcher struct {
	cfg   MatcherConfig
	clock timeutil.Clock

	current []*Actor
	scratch []*Actor

	lastCounter int64
	seenFrame   bool
	session     int64
	comparisons int

	onCreate  []func(*Actor)
	onDestroy []func(*Actor)
}

// NewMatcher returns a matcher. A nil clock uses the wall clock and a zero
// sensor rotation is treated as identity.
func NewMatcher(cfg MatcherConfig, clock timeutil.Clock) *Matcher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if geom.IsZeroQuat(cfg.SensorPose.Rotation) {
		cfg.SensorPose.Rotation = mgl64.QuatIdent()
	}
	return &Matcher{cfg: cfg, clock: clock}
}

// OnCreate registers fn to run after a new actor has received its first
// update.
func (m *Matcher) OnCreate(fn func(*Actor)) { m.onCreate = append(m.onCreate, fn) }

// OnDestroy registers fn to run once when an actor is retired.
func (m *Matcher) OnDestroy(fn func(*Actor)) { m.onDestroy = append(m.onDestroy, fn) }

// Actors returns the live actors in ascending tracking id order. The slice
// is reused by the next Process call and must not be retained.
func (m *Matcher) Actors() []*Actor { return m.current }

// Find returns the actor with the given tracking id, or nil.
func (m *Matcher) Find(id uint64) *Actor {
	lo, hi := 0, len(m.current)
	for lo < hi {
		mid := (lo + hi) / 2
		switch a := m.current[mid]; {
		case a.trackingID == id:
			return a
		case a.trackingID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil
}

// Comparisons returns the number of id comparisons made by the last Process
// call.
func (m *Matcher) Comparisons() int { return m.comparisons }

// LastCounter returns the counter of the last processed frame.
func (m *Matcher) LastCounter() int64 { return m.lastCounter }

// NewSession reports whether f belongs to a later sensor session than the
// last processed frame.
func (m *Matcher) NewSession(f *body.Frame) bool {
	return m.seenFrame && f.Session != m.session
}

// Process matches the tracked detections of f against the live actors.
// A frame from a new sensor session first retires every actor of the old
// one. Otherwise frames whose counter is not newer than the last processed
// frame are dropped and Process returns false.
func (m *Matcher) Process(f *body.Frame) bool {
	if m.NewSession(f) {
		monitoring.Opsf("actors: sensor session %d started, retiring %d actors", f.Session, len(m.current))
		m.Reset()
	}
	if m.seenFrame && f.Counter <= m.lastCounter {
		monitoring.Diagf("actors: dropping stale frame %d (last %d)", f.Counter, m.lastCounter)
		return false
	}
	m.seenFrame = true
	m.session = f.Session
	m.lastCounter = f.Counter
	m.comparisons = 0

	detections := f.Tracked()
	prev := m.current
	next := m.scratch[:0]

	i, j := 0, 0
	for i < len(prev) && j < len(detections) {
		m.comparisons++
		a, d := prev[i], &detections[j]
		switch {
		case a.trackingID == d.TrackingID:
			a.update(d, f.FloorClipPlane, m.cfg.SensorPose)
			next = append(next, a)
			i++
			j++
		case a.trackingID < d.TrackingID:
			m.retire(a)
			i++
		default:
			next = append(next, m.create(d, f))
			j++
		}
	}
	for ; i < len(prev); i++ {
		m.retire(prev[i])
	}
	for ; j < len(detections); j++ {
		next = append(next, m.create(&detections[j], f))
	}

	clear(prev)
	m.scratch = prev[:0]
	m.current = next
	return true
}

// Reset retires every live actor and forgets the last frame counter, as
// when the sensor session restarts.
func (m *Matcher) Reset() {
	for _, a := range m.current {
		m.retire(a)
	}
	clear(m.current)
	m.current = m.current[:0]
	m.seenFrame = false
	m.lastCounter = 0
}

func (m *Matcher) create(d *body.Detection, f *body.Frame) *Actor {
	a := newActor(d.TrackingID, m.clock.Now(), m.cfg.Construction)
	a.update(d, f.FloorClipPlane, m.cfg.SensorPose)
	monitoring.Opsf("actors: created actor %d", a.trackingID)
	for _, fn := range m.onCreate {
		fn(a)
	}
	return a
}

func (m *Matcher) retire(a *Actor) {
	monitoring.Opsf("actors: destroyed actor %d", a.trackingID)
	for _, fn := range m.onDestroy {
		fn(a)
	}
	a.untrackAll()
}
