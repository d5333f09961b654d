package actors

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// frameOf builds a normalized frame with one standing body per id, spaced
// one meter apart along X.
func frameOf(counter int64, ids ...uint64) *body.Frame {
	f := &body.Frame{Counter: counter}
	for i, id := range ids {
		f.Detections = append(f.Detections, body.StandingDetection(id, mgl64.Vec3{float64(i), 0, 2}))
	}
	f.Normalize()
	return f
}

type recorder struct {
	created   []uint64
	destroyed map[uint64]int
}

func record(m *Matcher) *recorder {
	r := &recorder{destroyed: map[uint64]int{}}
	m.OnCreate(func(a *Actor) { r.created = append(r.created, a.TrackingID()) })
	m.OnDestroy(func(a *Actor) { r.destroyed[a.TrackingID()]++ })
	return r
}

func ids(actors []*Actor) []uint64 {
	out := make([]uint64, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.TrackingID())
	}
	return out
}

func randomAscending(rng *rand.Rand, n int, maxID uint64) []uint64 {
	var out []uint64
	for id := uint64(1); id <= maxID; id++ {
		if rng.Intn(int(maxID)) < n {
			out = append(out, id)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Matcher
// ----------------------------------------------------------------------------

func TestMatcher_ScenarioDestroyOnce(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	m := NewMatcher(MatcherConfig{}, clock)
	r := record(m)

	require.True(t, m.Process(frameOf(1, 5, 9)))
	assert.Equal(t, []uint64{5, 9}, ids(m.Actors()))
	nine := m.Find(9)
	require.NotNil(t, nine)

	clock.Advance(time.Second)
	require.True(t, m.Process(frameOf(2, 9)))
	assert.Equal(t, []uint64{9}, ids(m.Actors()))
	assert.Equal(t, 1, r.destroyed[5])
	assert.Same(t, nine, m.Find(9))
	assert.Equal(t, epoch, m.Find(9).CreatedAt())

	clock.Advance(time.Second)
	require.True(t, m.Process(frameOf(3, 9)))
	assert.Equal(t, 1, r.destroyed[5], "retired actors are not destroyed again")
	assert.Equal(t, []uint64{5, 9}, r.created)
}

func TestMatcher_RandomFrames(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		clock := timeutil.NewMockClock(epoch)
		m := NewMatcher(MatcherConfig{}, clock)
		r := record(m)

		a := randomAscending(rng, rng.Intn(12), 40)
		b := randomAscending(rng, rng.Intn(12), 40)

		require.True(t, m.Process(frameOf(1, a...)))
		before := map[uint64]*Actor{}
		for _, act := range m.Actors() {
			before[act.TrackingID()] = act
		}
		r.created = nil
		clock.Advance(time.Second)

		require.True(t, m.Process(frameOf(2, b...)))
		got := ids(m.Actors())
		if len(b) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, b, got)
		}
		assert.LessOrEqual(t, m.Comparisons(), len(a)+len(b))

		for _, id := range a {
			if slices.Contains(b, id) {
				assert.Same(t, before[id], m.Find(id))
				assert.Equal(t, epoch, m.Find(id).CreatedAt())
				assert.Zero(t, r.destroyed[id])
			} else {
				assert.Equal(t, 1, r.destroyed[id], "id %d", id)
			}
		}
		for _, id := range b {
			if !slices.Contains(a, id) {
				assert.Contains(t, r.created, id)
				assert.Equal(t, epoch.Add(time.Second), m.Find(id).CreatedAt())
			}
		}
		assert.True(t, slices.IsSorted(got))
	}
}

func TestMatcher_LinearComparisons(t *testing.T) {
	t.Parallel()
	var odd, even []uint64
	for i := uint64(1); i <= 100; i++ {
		if i%2 == 1 {
			odd = append(odd, i)
		} else {
			even = append(even, i)
		}
	}
	cases := []struct {
		name string
		a, b []uint64
	}{
		{"interleaved", odd, even},
		{"disjoint low then high", odd[:25], even[25:]},
		{"identical", even, even},
		{"all new", nil, odd},
		{"all gone", even, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
			m.Process(frameOf(1, tc.a...))
			m.Process(frameOf(2, tc.b...))
			assert.LessOrEqual(t, m.Comparisons(), len(tc.a)+len(tc.b))
			assert.Len(t, m.Actors(), len(tc.b))
		})
	}
}

func TestMatcher_IgnoresUntrackedDetections(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	f := frameOf(1, 4, 8)
	f.Detections = append(f.Detections, body.Detection{TrackingID: 0, Tracked: false})
	f.Normalize()
	require.True(t, body.IsSorted(f.Detections))
	m.Process(f)
	assert.Equal(t, []uint64{4, 8}, ids(m.Actors()))
}

func TestMatcher_DropsStaleFrames(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	r := record(m)

	assert.True(t, m.Process(frameOf(0, 1)), "first frame is always processed")
	assert.True(t, m.Process(frameOf(5, 1)))
	assert.False(t, m.Process(frameOf(5)), "duplicate counter")
	assert.False(t, m.Process(frameOf(3)), "older counter")
	assert.Equal(t, []uint64{1}, ids(m.Actors()))
	assert.Empty(t, r.destroyed)
	assert.Equal(t, int64(5), m.LastCounter())

	assert.True(t, m.Process(frameOf(6)))
	assert.Empty(t, m.Actors())
	assert.Equal(t, 1, r.destroyed[1])
}

func TestMatcher_Reset(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	r := record(m)
	m.Process(frameOf(10, 2, 3))
	m.Reset()
	assert.Empty(t, m.Actors())
	assert.Equal(t, map[uint64]int{2: 1, 3: 1}, r.destroyed)
	assert.True(t, m.Process(frameOf(1, 2)), "counter restarts after reset")
}

func TestMatcher_NewSessionRetiresOldActors(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	r := record(m)
	require.True(t, m.Process(frameOf(500, 7)))

	// the reconnected sensor starts again at frame 1 with lower ids
	next := frameOf(1, 2)
	next.Session = 1
	assert.True(t, m.NewSession(next))
	require.True(t, m.Process(next))
	assert.Equal(t, map[uint64]int{7: 1}, r.destroyed)
	require.Len(t, m.Actors(), 1)
	assert.Equal(t, uint64(2), m.Actors()[0].TrackingID())
	assert.Equal(t, int64(1), m.LastCounter())

	again := frameOf(1, 2)
	again.Session = 1
	assert.False(t, m.NewSession(again))
	assert.False(t, m.Process(again), "counters are checked within a session")
}

func TestMatcher_SlicesDoNotAlias(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	m.Process(frameOf(1, 1, 2, 3))
	first := m.Actors()
	m.Process(frameOf(2, 2, 3, 4))
	second := m.Actors()
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotSame(t, &first[0], &second[0])
}

func TestMatcher_SensorPose(t *testing.T) {
	t.Parallel()
	cfg := MatcherConfig{SensorPose: geom.Pose{Position: mgl64.Vec3{1, 0, 0}, Rotation: mgl64.QuatIdent()}}
	m := NewMatcher(cfg, timeutil.NewMockClock(epoch))
	m.Process(frameOf(1, 7))
	head := m.Find(7).Head()
	want := mgl64.Vec3{1, 0, 2}.Add(body.TPose[body.Head])
	assert.True(t, want.ApproxEqualThreshold(head.Position, 1e-9), "%v", head.Position)
}

func TestMatcherConfigFromCave(t *testing.T) {
	t.Parallel()
	cfg := DefaultMatcherConfig()
	assert.Equal(t, ConstructionBasic, cfg.Construction)
	assert.True(t, mgl64.QuatIdent().ApproxEqual(cfg.SensorPose.Rotation))

	_, err := ParseConstruction("partial")
	assert.Error(t, err)
}

// ----------------------------------------------------------------------------
// Actor and trackables
// ----------------------------------------------------------------------------

func TestActor_BoundsAndHeight(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	m.Process(frameOf(1, 1))
	a := m.Find(1)

	b := a.Bounds()
	assert.InDelta(t, 0, b.Min().Y(), 1e-9)
	assert.InDelta(t, 1.7, b.Max().Y(), 1e-9)
	assert.InDelta(t, 1.8, a.Height(), 1e-9)
	assert.InDelta(t, 0.76, b.Size.X(), 1e-9, "hands widen the bounds")

	floor := a.FloorPosition()
	assert.InDelta(t, 0, floor.Y(), 1e-9)
	assert.InDelta(t, 2, floor.Z(), 0.1)

	// Crouching lowers the bounds but not the recorded height.
	f := frameOf(2, 1)
	for jt, j := range f.Detections[0].Joints {
		j.Position[1] *= 0.5
		f.Detections[0].Joints[jt] = j
	}
	m.Process(f)
	assert.InDelta(t, 0.85, a.Bounds().Max().Y(), 1e-9)
	assert.InDelta(t, 1.8, a.Height(), 1e-9)
}

func TestActor_Construction(t *testing.T) {
	t.Parallel()
	basic := newActor(1, epoch, ConstructionBasic)
	assert.Len(t, basic.Trackables(), 3)
	assert.Nil(t, basic.JointTrackable(body.KneeLeft))

	full := newActor(2, epoch, ConstructionFull)
	assert.Len(t, full.Trackables(), body.JointCount)
	require.NotNil(t, full.JointTrackable(body.KneeLeft))
	assert.Equal(t, KindJoint, full.JointTrackable(body.KneeLeft).Kind)
	assert.Equal(t, KindHead, full.JointTrackable(body.Head).Kind)
	assert.Equal(t, Right, full.Hand(Right).Side)
}

func TestTrackable_HeadFallback(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	f := frameOf(1, 1)
	d := &f.Detections[0]
	head := d.Joints[body.Head]
	head.State = body.NotTracked
	d.Joints[body.Head] = head
	m.Process(f)

	a := m.Find(1)
	h := a.Head()
	assert.Equal(t, body.Inferred, h.State)
	want := a.Body.Joint(body.SpineShoulder).Position.Add(mgl64.Vec3{0, 0.3, 0})
	assert.True(t, want.ApproxEqualThreshold(h.Position, 1e-9))
	wantRot := mgl64.QuatNlerp(a.Body.Joint(body.ShoulderLeft).Rotation, a.Body.Joint(body.ShoulderRight).Rotation, 0.5)
	assert.True(t, wantRot.ApproxEqualThreshold(h.Rotation, 1e-9))
}

func TestTrackable_HeadPrefersFace(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	f := frameOf(1, 1)
	f.Detections[0].Face = &body.Face{Rotation: mgl64.Vec4{0, 0, 0, 1}}
	m.Process(f)

	a := m.Find(1)
	require.NotNil(t, a.Body.Face)
	assert.Equal(t, body.Tracked, a.Head().State)
	assert.True(t, a.Body.Face.ApproxEqual(a.Head().Rotation))
	// A forward-facing face looks back at the sensor.
	fwd := a.Head().Rotation.Rotate(geom.Forward)
	assert.InDelta(t, -1, fwd.Z(), 1e-9)
}

func TestTrackable_HandState(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	f := frameOf(1, 1)
	f.Detections[0].HandRight = body.Hand{State: body.HandLasso, Confidence: body.ConfidenceLow}
	m.Process(f)

	a := m.Find(1)
	assert.Equal(t, body.HandOpen, a.Hand(Left).HandState)
	assert.Equal(t, body.HandLasso, a.Hand(Right).HandState)
	assert.Equal(t, body.ConfidenceLow, a.Hand(Right).Confidence)
	assert.Equal(t, a.Body.Joint(body.HandRight).Position, a.Hand(Right).Position)
	assert.Equal(t, "hand(right)", a.Hand(Right).String())
}

func TestActor_TrackUntrackCallbacks(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	var tracked, untracked []string
	m.OnCreate(func(a *Actor) {
		a.SetCallbacks(
			func(_ *Actor, tr *Trackable) { tracked = append(tracked, tr.String()) },
			func(_ *Actor, tr *Trackable) { untracked = append(untracked, tr.String()) },
		)
	})
	m.Process(frameOf(1, 1))
	a := m.Find(1)

	knee := NewJoint(body.KneeLeft)
	a.Track(knee)
	a.Track(knee)
	assert.True(t, knee.Tracked())
	assert.Equal(t, []string{"joint(KneeLeft)"}, tracked)
	assert.Equal(t, a.Body.Joint(body.KneeLeft).Position, knee.Position)

	a.Untrack(knee)
	assert.False(t, knee.Tracked())
	assert.Equal(t, []string{"joint(KneeLeft)"}, untracked)

	m.Process(frameOf(2))
	assert.Len(t, untracked, 4, "retiring releases every trackable")
	assert.Empty(t, a.Trackables())
}

// ----------------------------------------------------------------------------
// Selection
// ----------------------------------------------------------------------------

func TestSelection(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	m := NewMatcher(MatcherConfig{}, clock)
	m.Process(frameOf(1, 20))
	clock.Advance(time.Second)
	// 20 stays at x=0 on this frame, 21 at x=1, 22 at x=2.
	m.Process(frameOf(2, 20, 21, 22))
	all := m.Actors()

	assert.Equal(t, uint64(20), LongestTracked(all).TrackingID())
	assert.Nil(t, LongestTracked(nil))

	far := mgl64.Vec3{2, 1, 2}
	assert.Equal(t, uint64(22), ClosestToPoint(all, far).TrackingID())
	assert.Equal(t, uint64(22), ClosestJointToPoint(all, body.HandRight, far).TrackingID())

	rightHalf := func(p mgl64.Vec3) bool { return p.X() > 0.5 }
	assert.Equal(t, uint64(21), LongestTrackedInside(all, rightHalf).TrackingID(), "ties go to the lower id")
	assert.Nil(t, LongestTrackedInside(all, func(mgl64.Vec3) bool { return false }))
}

// ----------------------------------------------------------------------------
// Trigger
// ----------------------------------------------------------------------------

func TestTrigger_EnterExit(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	trig := NewTrigger(geom.NewBounds(mgl64.Vec3{1, 1, 2}, mgl64.Vec3{1.2, 2, 2}))
	var entered, exited []uint64
	trig.OnEnter = func(a *Actor) { entered = append(entered, a.TrackingID()) }
	trig.OnExit = func(a *Actor) { exited = append(exited, a.TrackingID()) }

	// 1 at x=0 (outside), 2 at x=1 (inside).
	m.Process(frameOf(1, 1, 2))
	trig.Update(m.Actors())
	assert.Equal(t, []uint64{2}, entered)
	assert.Equal(t, uint64(2), trig.Closest().TrackingID())

	// 2 moves to x=0, 3 appears at x=1.
	m.Process(frameOf(2, 2, 3))
	trig.Update(m.Actors())
	assert.Equal(t, []uint64{2, 3}, entered)
	assert.Equal(t, []uint64{2}, exited)

	// 3 vanishes.
	m.Process(frameOf(3))
	trig.Update(m.Actors())
	assert.Equal(t, []uint64{2, 3}, exited)
	assert.Empty(t, trig.Inside())
	assert.Nil(t, trig.Closest())
}

// ----------------------------------------------------------------------------
// Heat map
// ----------------------------------------------------------------------------

func TestHeatMap(t *testing.T) {
	t.Parallel()
	area := geom.NewBounds(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{2, 2, 1})
	h := NewHeatMap(area, 0)
	cols, rows := h.Dims()
	assert.Equal(t, 8, cols)
	assert.Equal(t, 4, rows)
	assert.Equal(t, DefaultHeatMapCellSize, h.CellSize())

	h.AddPoint(mgl64.Vec3{-1, 0, -0.5}) // min corner
	h.AddPoint(mgl64.Vec3{1, 0, 0.5})   // max corner clamps into the last cell
	h.AddPoint(mgl64.Vec3{1, 0, 0.5})
	h.AddPoint(mgl64.Vec3{5, 0, 0}) // outside

	assert.Equal(t, 1.0, h.Cell(0, 0))
	assert.Equal(t, 2.0, h.Cell(7, 3))

	s := h.Stats()
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 2.0, s.Max)
	assert.InDelta(t, 3.0/32, s.Mean, 1e-12)
	assert.Greater(t, s.StdDev, 0.0)

	snap := h.Snapshot()
	assert.Len(t, snap, 32)
	h.Reset()
	assert.Equal(t, 0, h.Stats().Samples)
	assert.Equal(t, 2.0, snap[31], "snapshot is a copy")
}

func TestHeatMap_AddActors(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	m.Process(frameOf(1, 1, 2))
	h := NewHeatMap(geom.NewBounds(mgl64.Vec3{0, 1, 2}, mgl64.Vec3{1, 2, 1}), 0.25)
	h.Add(m.Actors())
	assert.Equal(t, 1, h.Stats().Samples, "only the actor at x=0 is inside")
}

func TestTrackable_HeadLostWithSpineKeepsLastPose(t *testing.T) {
	t.Parallel()
	m := NewMatcher(MatcherConfig{}, timeutil.NewMockClock(epoch))
	m.Process(frameOf(1, 1))
	last := m.Find(1).Head().Position

	f := frameOf(2, 1)
	for _, jt := range []body.JointType{body.Head, body.SpineShoulder} {
		j := f.Detections[0].Joints[jt]
		j.State = body.NotTracked
		j.Position = j.Position.Add(mgl64.Vec3{0, 0, 1})
		f.Detections[0].Joints[jt] = j
	}
	m.Process(f)
	head := m.Find(1).Head()
	assert.Equal(t, body.NotTracked, head.State)
	assert.Equal(t, last, head.Position)
}
