// Package viewpoint turns tracked bodies into per-camera projection
// matrices: it selects the actor whose eyes drive the view, smooths the eye
// pose and computes the off-axis projection and projector correction for
// every camera of the environment.
package viewpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/filter"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/projection"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/go-gl/mathgl/mgl64"
)

// FrameSource hands over the newest unread sensor frame.
type FrameSource interface {
	// Take returns the newest frame not yet taken, or false.
	Take() (*body.Frame, bool)
}

// Config holds the pipeline parameters.
type Config struct {
	SampleRateHz      float64
	PositionFilter    filter.Params
	RotationFilter    filter.Params
	Matcher           actors.MatcherConfig
	SelectionPolicy   string
	HeatMapCellSize   float64
	StaleFrameTimeout time.Duration
}

// DefaultConfig returns pipeline configuration loaded from the canonical
// defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromCave(config.MustLoadDefaultConfig())
}

// ConfigFromCave builds a Config from a loaded CaveConfig.
func ConfigFromCave(cfg *config.CaveConfig) Config {
	pmc, pb, pdc := cfg.GetPositionFilter().Get()
	rmc, rb, rdc := cfg.GetRotationFilter().Get()
	return Config{
		SampleRateHz:      cfg.GetSampleRateHz(),
		PositionFilter:    filter.Params{MinCutoff: pmc, Beta: pb, DerivativeCutoff: pdc},
		RotationFilter:    filter.Params{MinCutoff: rmc, Beta: rb, DerivativeCutoff: rdc},
		Matcher:           actors.MatcherConfigFromCave(cfg),
		SelectionPolicy:   cfg.GetSelectionPolicy(),
		HeatMapCellSize:   cfg.GetHeatMapCellSize(),
		StaleFrameTimeout: cfg.GetStaleFrameTimeout(),
	}
}

// Sample is one eye update, published to observers.
type Sample struct {
	Time     time.Time
	Counter  int64
	ActorID  uint64
	State    body.TrackingState
	Raw      geom.Pose
	Filtered geom.Pose
}

// ActorStatus describes one live actor.
type ActorStatus struct {
	ID        uint64     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Height    float64    `json:"height"`
	Center    [3]float64 `json:"center"`
	Inside    bool       `json:"inside"`
}

// Status is a snapshot of the pipeline for monitoring.
type Status struct {
	FrameCounter    int64         `json:"frame_counter"`
	FramesProcessed uint64        `json:"frames_processed"`
	FramesDropped   uint64        `json:"frames_dropped"`
	LastFrameAt     time.Time     `json:"last_frame_at"`
	Comparisons     int           `json:"comparisons"`
	Actors          []ActorStatus `json:"actors"`
	SelectedActor   uint64        `json:"selected_actor"`
	EyePosition     [3]float64    `json:"eye_position"`
	EyeRotation     [4]float64    `json:"eye_rotation"` // x y z w
	Locked          bool          `json:"locked"`
	OutputTarget    string        `json:"output_target"`
	Uncalibrated    []string      `json:"uncalibrated,omitempty"`
}

type command struct {
	fn   func(*environment.Environment)
	done chan struct{}
}

// Pipeline runs the per-frame viewpoint update. Step and Run must be called
// from a single goroutine; Do, Status and OnSample are safe from any
// goroutine.
type Pipeline struct {
	cfg      Config
	env      *environment.Environment
	source   FrameSource
	sink     RenderSink
	clock    timeutil.Clock
	matcher  *actors.Matcher
	selector Selector
	eyes     *EyeTracker
	presence *actors.Trigger
	heatMap  *actors.HeatMap

	actor     *actors.Actor
	reselect  bool
	processed uint64
	dropped   uint64
	lastFrame time.Time

	commands chan command

	mu        sync.RWMutex
	status    Status
	observers []func(Sample)
}

// New wires a pipeline. A nil clock uses the wall clock.
func New(cfg Config, env *environment.Environment, source FrameSource, sink RenderSink, clock timeutil.Clock) (*Pipeline, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.SampleRateHz <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRateHz)
	}
	selector, err := SelectorForPolicy(cfg.SelectionPolicy, env)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		env:      env,
		source:   source,
		sink:     sink,
		clock:    clock,
		matcher:  actors.NewMatcher(cfg.Matcher, clock),
		selector: selector,
		presence: actors.NewTrigger(geom.NewBounds(env.Center(), env.Dimensions())),
		heatMap:  actors.NewHeatMap(env.LocalBounds(), cfg.HeatMapCellSize),
		commands: make(chan command, 16),
	}
	initial := geom.Pose{
		Position: env.Pose().TransformPoint(mgl64.Vec3{0, 1.7, 0}),
		Rotation: env.Pose().Rotation,
	}
	p.eyes = NewEyeTracker(cfg.SampleRateHz, cfg.PositionFilter, cfg.RotationFilter, initial)

	p.matcher.OnCreate(p.onCreate)
	p.matcher.OnDestroy(p.onDestroy)
	p.presence.OnEnter = func(a *actors.Actor) { monitoring.Opsf("viewpoint: actor %d entered", a.TrackingID()) }
	p.presence.OnExit = func(a *actors.Actor) { monitoring.Opsf("viewpoint: actor %d left", a.TrackingID()) }
	return p, nil
}

// Environment returns the environment. It must only be touched from the
// frame loop or through Do.
func (p *Pipeline) Environment() *environment.Environment { return p.env }

// Matcher returns the actor matcher.
func (p *Pipeline) Matcher() *actors.Matcher { return p.matcher }

// HeatMap returns the floor occupancy map in environment-local space.
func (p *Pipeline) HeatMap() *actors.HeatMap { return p.heatMap }

// Actor returns the actor driving the viewpoint, or nil.
func (p *Pipeline) Actor() *actors.Actor { return p.actor }

// EyePose returns the filtered eye pose.
func (p *Pipeline) EyePose() geom.Pose { return p.eyes.Pose() }

// OnSample registers fn to receive every eye update.
func (p *Pipeline) OnSample(fn func(Sample)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Pipeline) onCreate(a *actors.Actor) {
	if p.actor == nil && p.selector.Accept(a) {
		p.setActor(a)
	}
}

func (p *Pipeline) onDestroy(a *actors.Actor) {
	if p.actor == a {
		p.actor = nil
		p.reselect = true
	}
}

func (p *Pipeline) setActor(a *actors.Actor) {
	if a == p.actor {
		return
	}
	p.actor = a
	if a != nil {
		monitoring.Opsf("viewpoint: following actor %d", a.TrackingID())
	}
}

// Do runs fn against the environment on the frame loop and waits for it to
// finish.
func (p *Pipeline) Do(ctx context.Context, fn func(*environment.Environment)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case p.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) drainCommands() {
	for {
		select {
		case cmd := <-p.commands:
			cmd.fn(p.env)
			close(cmd.done)
		default:
			return
		}
	}
}

// Step runs one frame: pending environment commands, the newest sensor
// frame if any, actor selection, eye filtering and rendering. It reports
// whether a new frame was processed.
func (p *Pipeline) Step() bool {
	p.drainCommands()

	var (
		frame    *body.Frame
		hasFrame bool
	)
	if p.source != nil {
		frame, hasFrame = p.source.Take()
	}
	processed := false
	if hasFrame {
		if p.matcher.NewSession(frame) {
			p.eyes.Reset()
		}
		if p.matcher.Process(frame) {
			processed = true
			p.processed++
			p.lastFrame = p.clock.Now()
		} else {
			p.dropped++
		}
	}

	all := p.matcher.Actors()
	if p.reselect || p.actor == nil || !p.selector.Accept(p.actor) {
		p.setActor(p.selector.Select(all))
		p.reselect = false
	}

	if processed {
		p.presence.Update(all)
		for _, a := range all {
			p.heatMap.AddPoint(p.env.Pose().InverseTransformPoint(a.FloorPosition()))
		}
		if p.actor != nil {
			p.eyes.Update(p.actor)
			p.publish(frame.Counter)
		}
	}

	p.Render()
	p.updateStatus()
	return processed
}

func (p *Pipeline) publish(counter int64) {
	s := Sample{
		Time:     p.clock.Now(),
		Counter:  counter,
		ActorID:  p.actor.TrackingID(),
		State:    p.eyes.State(),
		Raw:      p.eyes.Raw(),
		Filtered: p.eyes.Pose(),
	}
	monitoring.Tracef("viewpoint: frame %d actor %d eye %v", counter, s.ActorID, s.Filtered.Position)
	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()
	for _, fn := range observers {
		fn(s)
	}
}

// Render computes and submits the output of every camera for the current
// eye pose. Locked cameras keep their position.
func (p *Pipeline) Render() {
	eye := p.eyes.Pose()
	for _, c := range p.env.Cameras() {
		out := p.renderCamera(c, eye)
		if p.sink != nil {
			p.sink.Submit(out)
		}
	}
}

func (p *Pipeline) renderCamera(c *environment.Camera, eye geom.Pose) CameraOutput {
	position := c.Pose.Position
	if !p.env.Locked() {
		position = environment.EyePosition(eye, c.Eye, p.env.EyeSeparation)
		p.env.PlaceCamera(c, position)
	}
	screen := p.env.Screen(c.Screen)
	local := p.env.ScreenPose(c.Screen).InverseTransformPoint(position)
	proj := projection.ComputeAsymmetricFrustum(local, screen.Width, screen.Height,
		p.env.NearClipPlane, p.env.FarClipPlane, p.env.NearGuard)
	correction := c.Correction()
	return CameraOutput{
		Camera:       c.Name,
		Screen:       c.Screen,
		Eye:          c.Eye,
		Display:      c.Display(),
		Viewport:     c.Viewport(),
		Projection:   proj,
		Correction:   correction,
		Final:        correction.Mul4(proj),
		Position:     c.Pose.Position,
		Rotation:     c.Pose.Rotation,
		Uncalibrated: c.Uncalibrated(),
	}
}

func (p *Pipeline) updateStatus() {
	all := p.matcher.Actors()
	s := Status{
		FrameCounter:    p.matcher.LastCounter(),
		FramesProcessed: p.processed,
		FramesDropped:   p.dropped,
		LastFrameAt:     p.lastFrame,
		Comparisons:     p.matcher.Comparisons(),
		Actors:          make([]ActorStatus, 0, len(all)),
		Locked:          p.env.Locked(),
		OutputTarget:    p.env.OutputTarget().String(),
		Uncalibrated:    p.env.Uncalibrated(),
	}
	for _, a := range all {
		c := a.Bounds().Center
		s.Actors = append(s.Actors, ActorStatus{
			ID:        a.TrackingID(),
			CreatedAt: a.CreatedAt(),
			Height:    a.Height(),
			Center:    [3]float64(c),
			Inside:    p.env.Contains(c),
		})
	}
	if p.actor != nil {
		s.SelectedActor = p.actor.TrackingID()
	}
	eye := p.eyes.Pose()
	s.EyePosition = [3]float64(eye.Position)
	s.EyeRotation = [4]float64{eye.Rotation.X(), eye.Rotation.Y(), eye.Rotation.Z(), eye.Rotation.W}

	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Status returns the latest snapshot.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Healthy reports whether a frame was processed within the stale frame
// timeout.
func (p *Pipeline) Healthy() bool {
	s := p.Status()
	if s.LastFrameAt.IsZero() {
		return false
	}
	timeout := p.cfg.StaleFrameTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return p.clock.Since(s.LastFrameAt) <= timeout
}

// Run steps the pipeline on every tick until ctx is done.
func (p *Pipeline) Run(ctx context.Context, ticker timeutil.Ticker) error {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.Step()
		}
	}
}
