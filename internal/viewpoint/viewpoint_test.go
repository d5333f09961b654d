package viewpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/feed"
	"github.com/banshee-data/cave.view/internal/filter"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/homography"
	"github.com/banshee-data/cave.view/internal/projection"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// queue is a FrameSource returning queued frames in order.
type queue struct {
	mu     sync.Mutex
	frames []*body.Frame
}

func (q *queue) push(f *body.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, f)
}

func (q *queue) Take() (*body.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// collector is a RenderSink keeping the outputs of the last Render.
type collector struct {
	mu  sync.Mutex
	out []CameraOutput
}

func (c *collector) Submit(out CameraOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, out)
}

func (c *collector) take() []CameraOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.out
	c.out = nil
	return out
}

type body1 struct {
	id     uint64
	origin mgl64.Vec3
}

func frameWith(counter int64, bodies ...body1) *body.Frame {
	f := &body.Frame{Counter: counter}
	for _, b := range bodies {
		f.Detections = append(f.Detections, body.StandingDetection(b.id, b.origin))
	}
	f.Normalize()
	return f
}

func testConfig() Config {
	return Config{
		SampleRateHz:   30,
		PositionFilter: filter.DefaultParams(),
		RotationFilter: filter.DefaultParams(),
		Matcher:        actors.MatcherConfig{SensorPose: geom.IdentityPose()},
	}
}

func newTestPipeline(t *testing.T, opts environment.Options) (*Pipeline, *queue, *collector, *timeutil.MockClock) {
	t.Helper()
	if opts.NearClipPlane == 0 {
		opts.NearClipPlane, opts.FarClipPlane, opts.NearGuard = 0.1, 1000, 0.01
	}
	env := environment.New(opts)
	q := &queue{}
	sink := &collector{}
	clock := timeutil.NewMockClock(epoch)
	p, err := New(testConfig(), env, q, sink, clock)
	require.NoError(t, err)
	return p, q, sink, clock
}

func vecNear(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqualThreshold(got, 1e-9), "want %v got %v", want, got)
}

// ----------------------------------------------------------------------------
// Eye pose
// ----------------------------------------------------------------------------

func actorAt(t *testing.T, d body.Detection) *actors.Actor {
	t.Helper()
	m := actors.NewMatcher(actors.MatcherConfig{}, timeutil.NewMockClock(epoch))
	f := &body.Frame{Counter: 1, Detections: []body.Detection{d}}
	f.Normalize()
	require.True(t, m.Process(f))
	return m.Find(d.TrackingID)
}

func TestRawEyePose(t *testing.T) {
	t.Parallel()
	origin := mgl64.Vec3{0, 0, 1}
	head := origin.Add(body.TPose[body.Head])

	t.Run("tracked head prefers face", func(t *testing.T) {
		d := body.StandingDetection(1, origin)
		d.Face = &body.Face{Rotation: mgl64.Vec4{0, 0, 0, 1}}
		a := actorAt(t, d)
		pose, state := RawEyePose(a)
		assert.Equal(t, body.Tracked, state)
		vecNear(t, head, pose.Position)
		assert.True(t, a.Body.Face.ApproxEqual(pose.Rotation))
	})
	t.Run("tracked head without face", func(t *testing.T) {
		a := actorAt(t, body.StandingDetection(1, origin))
		pose, _ := RawEyePose(a)
		assert.True(t, a.Body.Joint(body.Head).Rotation.ApproxEqual(pose.Rotation))
	})
	t.Run("inferred head", func(t *testing.T) {
		d := body.StandingDetection(1, origin)
		j := d.Joints[body.Head]
		j.State = body.Inferred
		d.Joints[body.Head] = j
		pose, state := RawEyePose(actorAt(t, d))
		assert.Equal(t, body.Inferred, state)
		vecNear(t, head, pose.Position)
	})
	t.Run("lost head uses spine shoulder", func(t *testing.T) {
		d := body.StandingDetection(1, origin)
		j := d.Joints[body.Head]
		j.State = body.NotTracked
		d.Joints[body.Head] = j
		pose, state := RawEyePose(actorAt(t, d))
		assert.Equal(t, body.Inferred, state)
		vecNear(t, origin.Add(body.TPose[body.SpineShoulder]).Add(mgl64.Vec3{0, 0.3, 0}), pose.Position)
	})
	t.Run("lost head and spine keep last pose", func(t *testing.T) {
		m := actors.NewMatcher(actors.MatcherConfig{}, timeutil.NewMockClock(epoch))
		require.True(t, m.Process(frameWith(1, body1{1, origin})))
		lost := frameWith(2, body1{1, origin.Add(mgl64.Vec3{0.5, 0, 0})})
		delete(lost.Detections[0].Joints, body.Head)
		delete(lost.Detections[0].Joints, body.SpineShoulder)
		require.True(t, m.Process(lost))

		pose, state := RawEyePose(m.Find(1))
		assert.Equal(t, body.NotTracked, state)
		vecNear(t, head, pose.Position)
	})
}

func TestEyeTracker_HoldsWhenHeadAndSpineLost(t *testing.T) {
	t.Parallel()
	p, q, _, _ := newTestPipeline(t, environment.Options{})
	origin := mgl64.Vec3{0.4, 0, 1}
	q.push(frameWith(1, body1{3, origin}))
	require.True(t, p.Step())
	before := p.EyePose()
	vecNear(t, origin.Add(body.TPose[body.Head]), before.Position)

	lost := frameWith(2, body1{3, origin})
	delete(lost.Detections[0].Joints, body.Head)
	delete(lost.Detections[0].Joints, body.SpineShoulder)
	q.push(lost)
	require.True(t, p.Step())

	require.NotNil(t, p.Actor())
	assert.Equal(t, before, p.EyePose(), "eye must not move toward the sensor origin")
	assert.Equal(t, body.NotTracked, p.eyes.State())
}

func TestEyeTracker_HoldsWithoutActor(t *testing.T) {
	t.Parallel()
	initial := geom.Pose{Position: mgl64.Vec3{0, 1.7, 0}, Rotation: mgl64.QuatIdent()}
	tr := NewEyeTracker(30, filter.DefaultParams(), filter.DefaultParams(), initial)
	assert.Equal(t, initial, tr.Update(nil))

	a := actorAt(t, body.StandingDetection(1, mgl64.Vec3{0.5, 0, 0}))
	first := tr.Update(a)
	vecNear(t, mgl64.Vec3{0.5, 1.7, 0}, first.Position)
	assert.Equal(t, first, tr.Update(nil))
	assert.Equal(t, first, tr.Pose())
}

// ----------------------------------------------------------------------------
// Pipeline
// ----------------------------------------------------------------------------

func TestPipeline_RendersEveryCamera(t *testing.T) {
	t.Parallel()
	p, q, sink, _ := newTestPipeline(t, environment.Options{})
	q.push(frameWith(1, body1{7, mgl64.Vec3{0.2, 0, 0.3}}))
	require.True(t, p.Step())

	out := sink.take()
	require.Len(t, out, 6)
	eye := mgl64.Vec3{0.2, 1.7, 0.3}
	for _, o := range out {
		vecNear(t, eye, o.Position)
		assert.Equal(t, o.Correction.Mul4(o.Projection), o.Final)
		env := p.Environment()
		screen := env.Screen(o.Screen)
		local := env.ScreenPose(o.Screen).InverseTransformPoint(eye)
		want := projection.ComputeAsymmetricFrustum(local, screen.Width, screen.Height, 0.1, 1000, 0.01)
		assert.True(t, want.ApproxEqualThreshold(o.Projection, 1e-9), o.Camera)
		assert.True(t, env.ScreenPose(o.Screen).Rotation.ApproxEqual(o.Rotation))
	}
	assert.Equal(t, uint64(7), p.Actor().TrackingID())
	assert.Equal(t, uint64(7), p.Status().SelectedActor)
}

func TestPipeline_AppliesCorrection(t *testing.T) {
	t.Parallel()
	p, q, sink, _ := newTestPipeline(t, environment.Options{})
	quad := environment.Quad{
		TopLeft:     environment.Point{X: -0.9, Y: 0.95},
		TopRight:    environment.Point{X: 0.92, Y: 1},
		BottomLeft:  environment.Point{X: -1, Y: -1},
		BottomRight: environment.Point{X: 1, Y: -0.97},
	}
	p.Environment().MatchAndApplyCalibrations([]environment.Calibration{
		{Name: "Virtual Camera Front", ProjectionCorrection: true, ProjectionQuad: quad, ViewportSize: 1},
	})
	q.push(frameWith(1, body1{7, mgl64.Vec3{}}))
	p.Step()

	for _, o := range sink.take() {
		if o.Screen != environment.Front {
			assert.Equal(t, mgl64.Ident4(), o.Correction, o.Camera)
			continue
		}
		assert.NotEqual(t, mgl64.Ident4(), o.Correction)
		assert.False(t, o.Uncalibrated)
		tl := homography.Apply(o.Correction, mgl64.Vec2{-1, 1})
		assert.InDelta(t, -0.9, tl.X(), 1e-9)
		assert.Equal(t, o.Correction.Mul4(o.Projection), o.Final)
	}
}

func TestPipeline_StereoEyes(t *testing.T) {
	t.Parallel()
	p, q, sink, _ := newTestPipeline(t, environment.Options{Stereo: true, EyeSeparation: 0.06})
	q.push(frameWith(1, body1{3, mgl64.Vec3{}}))
	p.Step()

	out := sink.take()
	require.Len(t, out, 12)
	left, right := out[0], out[1]
	assert.Equal(t, environment.EyeLeft, left.Eye)
	head := p.EyePose()
	vecNear(t, environment.EyePosition(head, environment.EyeLeft, 0.06), left.Position)
	vecNear(t, environment.EyePosition(head, environment.EyeRight, 0.06), right.Position)
	assert.InDelta(t, 0.06, right.Position.Sub(left.Position).Len(), 1e-9)
}

func TestPipeline_SelectsActorInside(t *testing.T) {
	t.Parallel()
	p, q, _, clock := newTestPipeline(t, environment.Options{})

	// 5 stands outside the 3x3 room, 9 inside.
	q.push(frameWith(1, body1{5, mgl64.Vec3{4, 0, 0}}, body1{9, mgl64.Vec3{0.5, 0, 0}}))
	p.Step()
	require.NotNil(t, p.Actor())
	assert.Equal(t, uint64(9), p.Actor().TrackingID())
	held := p.EyePose()

	// 9 leaves the sensor: nobody left inside, the eye holds.
	clock.Advance(time.Second)
	q.push(frameWith(2, body1{5, mgl64.Vec3{4, 0, 0}}))
	p.Step()
	assert.Nil(t, p.Actor())
	assert.Equal(t, held, p.EyePose())

	// 5 walks in and is picked up.
	q.push(frameWith(3, body1{5, mgl64.Vec3{1, 0, 0}}))
	p.Step()
	require.NotNil(t, p.Actor())
	assert.Equal(t, uint64(5), p.Actor().TrackingID())

	// A newer actor inside does not steal the view.
	q.push(frameWith(4, body1{5, mgl64.Vec3{1, 0, 0}}, body1{12, mgl64.Vec3{0, 0, 0}}))
	p.Step()
	assert.Equal(t, uint64(5), p.Actor().TrackingID())
	assert.Len(t, p.Status().Actors, 2)
}

func TestPipeline_LongestPolicy(t *testing.T) {
	t.Parallel()
	env := environment.New(environment.Options{NearClipPlane: 0.1, FarClipPlane: 10, NearGuard: 0.01})
	q := &queue{}
	cfg := testConfig()
	cfg.SelectionPolicy = "longest"
	p, err := New(cfg, env, q, nil, timeutil.NewMockClock(epoch))
	require.NoError(t, err)
	q.push(frameWith(1, body1{5, mgl64.Vec3{4, 0, 0}}))
	p.Step()
	require.NotNil(t, p.Actor())

	cfg.SelectionPolicy = "nearest_wizard"
	_, err = New(cfg, env, q, nil, nil)
	assert.Error(t, err)
}

func TestPipeline_DropsStaleFrames(t *testing.T) {
	t.Parallel()
	p, q, _, _ := newTestPipeline(t, environment.Options{})
	q.push(frameWith(4, body1{1, mgl64.Vec3{}}))
	q.push(frameWith(4, body1{1, mgl64.Vec3{}}))
	q.push(frameWith(2))
	assert.True(t, p.Step())
	assert.False(t, p.Step())
	assert.False(t, p.Step())
	assert.False(t, p.Step(), "no frame available")

	s := p.Status()
	assert.Equal(t, uint64(1), s.FramesProcessed)
	assert.Equal(t, uint64(2), s.FramesDropped)
	assert.Equal(t, int64(4), s.FrameCounter)
	assert.Len(t, s.Actors, 1)
}

func TestPipeline_SensorRestartStartsOver(t *testing.T) {
	t.Parallel()
	env := environment.New(environment.Options{NearClipPlane: 0.1, FarClipPlane: 10, NearGuard: 0.01})
	h := feed.NewHandoff()
	p, err := New(testConfig(), env, h, nil, timeutil.NewMockClock(epoch))
	require.NoError(t, err)
	var destroyed []uint64
	p.Matcher().OnDestroy(func(a *actors.Actor) { destroyed = append(destroyed, a.TrackingID()) })

	require.NoError(t, h.Publish(frameWith(500, body1{7, mgl64.Vec3{0.5, 0, 0}})))
	require.True(t, p.Step())
	require.NotNil(t, p.Actor())
	assert.Equal(t, uint64(7), p.Actor().TrackingID())

	// The sensor reconnects and counts frames and ids from scratch.
	h.Restart()
	require.NoError(t, h.Publish(frameWith(1, body1{2, mgl64.Vec3{-0.5, 0, 0}})))
	require.True(t, p.Step())

	assert.Equal(t, []uint64{7}, destroyed)
	require.NotNil(t, p.Actor())
	assert.Equal(t, uint64(2), p.Actor().TrackingID())
	vecNear(t, mgl64.Vec3{-0.5, 0, 0}.Add(body.TPose[body.Head]), p.EyePose().Position)

	require.NoError(t, h.Publish(frameWith(2, body1{2, mgl64.Vec3{-0.5, 0, 0}})))
	assert.True(t, p.Step())
	s := p.Status()
	assert.Equal(t, uint64(3), s.FramesProcessed)
	assert.Zero(t, s.FramesDropped)
	assert.Equal(t, int64(2), s.FrameCounter)
}

func TestPipeline_LockedCamerasStay(t *testing.T) {
	t.Parallel()
	p, q, sink, _ := newTestPipeline(t, environment.Options{})
	center := p.Environment().Center()
	p.Environment().LockCamerasToPosition(center)

	q.push(frameWith(1, body1{1, mgl64.Vec3{1, 0, 1}}))
	p.Step()
	for _, o := range sink.take() {
		vecNear(t, center, o.Position)
	}
	assert.True(t, p.Status().Locked)
}

func TestPipeline_DoRunsOnFrameLoop(t *testing.T) {
	t.Parallel()
	p, _, _, _ := newTestPipeline(t, environment.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Do(ctx, func(env *environment.Environment) {
			env.SetOutputTarget(environment.OutputSplitVertical, true)
		})
	}()
	for {
		p.Step()
		select {
		case err := <-errCh:
			require.NoError(t, err)
			p.Step()
			assert.Equal(t, "split_vertical", p.Status().OutputTarget)
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPipeline_DoHonoursContext(t *testing.T) {
	t.Parallel()
	p, _, _, _ := newTestPipeline(t, environment.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Do(ctx, func(*environment.Environment) {}), context.Canceled)
}

func TestPipeline_HealthAndSamples(t *testing.T) {
	t.Parallel()
	p, q, _, clock := newTestPipeline(t, environment.Options{})
	var samples []Sample
	p.OnSample(func(s Sample) { samples = append(samples, s) })

	assert.False(t, p.Healthy())
	q.push(frameWith(1, body1{2, mgl64.Vec3{}}))
	p.Step()
	assert.True(t, p.Healthy())
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(2), samples[0].ActorID)
	assert.Equal(t, samples[0].Raw.Position, samples[0].Filtered.Position, "first sample passes through")

	clock.Advance(3 * time.Second)
	assert.False(t, p.Healthy())

	stats := p.HeatMap().Stats()
	assert.Equal(t, 1, stats.Samples)
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()
	p, q, sink, clock := newTestPipeline(t, environment.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ticker := clock.NewTicker(16 * time.Millisecond)
	go func() { done <- p.Run(ctx, ticker) }()

	q.push(frameWith(1, body1{2, mgl64.Vec3{}}))
	clock.Advance(16 * time.Millisecond)
	require.Eventually(t, func() bool { return p.Status().FramesProcessed == 1 }, 2*time.Second, time.Millisecond)
	assert.NotEmpty(t, sink.take())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConfigFromCave(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 30.0, cfg.SampleRateHz)
	assert.Equal(t, filter.DefaultParams(), cfg.PositionFilter)
	assert.Equal(t, "longest_inside", cfg.SelectionPolicy)
	assert.Equal(t, 2*time.Second, cfg.StaleFrameTimeout)
}
