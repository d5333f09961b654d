package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/fsutil"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/banshee-data/cave.view/internal/viewpoint"
)

// MessageType identifies a calibrator message. The values are shared with
// existing calibration tools.
type MessageType int

const (
	MsgDisconnect        MessageType = 1
	MsgSync              MessageType = 10
	MsgCalibration       MessageType = 11
	MsgShowHelpers       MessageType = 30
	MsgLockCameras       MessageType = 31
	MsgOnlyCameraDisplay MessageType = 32
)

func (t MessageType) String() string {
	switch t {
	case MsgDisconnect:
		return "disconnect"
	case MsgSync:
		return "sync"
	case MsgCalibration:
		return "calibration"
	case MsgShowHelpers:
		return "show_helpers"
	case MsgLockCameras:
		return "lock_cameras"
	case MsgOnlyCameraDisplay:
		return "only_camera_display"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Message is one calibrator request or reply. Calibration messages carry a
// Package; flag messages carry Value, where booleans are 0 or 1.
type Message struct {
	Type    MessageType `json:"type"`
	Package *Package    `json:"package,omitempty"`
	Value   int         `json:"value"`
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Executor runs fn on the goroutine that owns the environment.
// viewpoint.Pipeline satisfies it.
type Executor interface {
	Do(ctx context.Context, fn func(*environment.Environment)) error
}

// Calibrator answers calibration tool messages against a running
// environment. Applied packages go to the store and to the calibration file
// when those are configured.
type Calibrator struct {
	exec  Executor
	store *Store
	fsys  fsutil.FileSystem
	file  string
	clock timeutil.Clock

	mu    sync.Mutex
	flags Flags
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithStore records every applied package in s.
func WithStore(s *Store) Option { return func(c *Calibrator) { c.store = s } }

// WithFile writes every applied package to path on fsys.
func WithFile(fsys fsutil.FileSystem, path string) Option {
	return func(c *Calibrator) {
		c.fsys = fsys
		c.file = path
	}
}

// WithClock sets the clock used for package timestamps.
func WithClock(clock timeutil.Clock) Option { return func(c *Calibrator) { c.clock = clock } }

// NewCalibrator returns a Calibrator driving exec.
func NewCalibrator(exec Executor, opts ...Option) *Calibrator {
	c := &Calibrator{
		exec:  exec,
		clock: timeutil.RealClock{},
		flags: DefaultFlags(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flags returns the current toggles.
func (c *Calibrator) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// Restore loads the persisted toggles and the newest calibration, preferring
// the store over the file, and applies them. It reports where the
// calibration came from, or "" when none was found.
func (c *Calibrator) Restore(ctx context.Context) (string, error) {
	if c.store != nil {
		f, err := c.store.LoadFlags(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.flags = f
		c.mu.Unlock()
	}

	var (
		p      Package
		source string
	)
	if c.store != nil {
		latest, snap, err := c.store.Latest(ctx)
		switch {
		case err == nil:
			p, source = latest, "snapshot "+snap.ID
		case !errors.Is(err, ErrNoSnapshot):
			return "", err
		}
	}
	if source == "" && c.file != "" {
		fromFile, err := LoadFile(c.fsys, c.file)
		if err == nil {
			p, source = fromFile, c.file
		} else {
			monitoring.Diagf("calibration: no usable calibration file: %v", err)
		}
	}

	flags := c.Flags()
	err := c.exec.Do(ctx, func(env *environment.Environment) {
		if source != "" {
			if unmatched := p.Apply(env); len(unmatched) > 0 {
				monitoring.Diagf("calibration: restore left %d calibrations unmatched", len(unmatched))
			}
		}
		applyLock(env, flags.LockCameras)
	})
	if err != nil {
		return "", err
	}
	if source != "" {
		monitoring.Opsf("calibration: restored %d cameras from %s", len(p.Calibrations), source)
	}
	return source, nil
}

func applyLock(env *environment.Environment, lock bool) {
	if lock {
		env.LockCamerasToPosition(env.Center())
	} else {
		env.UnlockCameras()
	}
}

// Handle executes msg and returns the replies for the tool.
func (c *Calibrator) Handle(ctx context.Context, msg Message) ([]Message, error) {
	switch msg.Type {
	case MsgCalibration:
		if msg.Package == nil || msg.Package.IsEmpty() {
			return nil, ErrEmptyPackage
		}
		if err := c.apply(ctx, *msg.Package); err != nil {
			return nil, err
		}
		return c.sync(ctx)
	case MsgSync:
		return c.sync(ctx)
	case MsgShowHelpers:
		f := c.update(ctx, func(f *Flags) { f.ShowHelpers = msg.Value > 0 })
		return []Message{{Type: MsgShowHelpers, Value: boolValue(f.ShowHelpers)}}, nil
	case MsgLockCameras:
		lock := msg.Value > 0
		if err := c.exec.Do(ctx, func(env *environment.Environment) { applyLock(env, lock) }); err != nil {
			return nil, err
		}
		f := c.update(ctx, func(f *Flags) { f.LockCameras = lock })
		return []Message{{Type: MsgLockCameras, Value: boolValue(f.LockCameras)}}, nil
	case MsgOnlyCameraDisplay:
		f := c.update(ctx, func(f *Flags) { f.OnlyCameraDisplay = clampDisplay(msg.Value) })
		return []Message{{Type: MsgOnlyCameraDisplay, Value: f.OnlyCameraDisplay}}, nil
	case MsgDisconnect:
		monitoring.Opsf("calibration: tool disconnected")
		return nil, nil
	default:
		monitoring.Opsf("calibration: ignoring unknown message type %d", int(msg.Type))
		return nil, nil
	}
}

// Apply applies p as if a tool had sent it, without replies.
func (c *Calibrator) Apply(ctx context.Context, p Package) error {
	if p.IsEmpty() {
		return ErrEmptyPackage
	}
	return c.apply(ctx, p)
}

func (c *Calibrator) apply(ctx context.Context, p Package) error {
	var unmatched []string
	err := c.exec.Do(ctx, func(env *environment.Environment) {
		unmatched = p.Apply(env)
	})
	if err != nil {
		return err
	}
	monitoring.Opsf("calibration: applied %d calibrations (%d unmatched), output %s",
		len(p.Calibrations), len(unmatched), p.OutputTarget)

	// persistence failures are logged; the applied state stands
	if c.store != nil {
		if _, err := c.store.Save(ctx, p, "calibrator"); err != nil {
			monitoring.Opsf("calibration: failed to store snapshot: %v", err)
		}
	}
	if c.file != "" {
		if err := SaveFile(c.fsys, c.file, p); err != nil {
			monitoring.Opsf("calibration: failed to write %s: %v", c.file, err)
		}
	}
	return nil
}

// Current returns the package for the calibrations applied right now.
func (c *Calibrator) Current(ctx context.Context) (Package, error) {
	var p Package
	err := c.exec.Do(ctx, func(env *environment.Environment) {
		p = Collect(env, c.clock.Now())
	})
	return p, err
}

func (c *Calibrator) sync(ctx context.Context) ([]Message, error) {
	var (
		p      Package
		locked bool
	)
	err := c.exec.Do(ctx, func(env *environment.Environment) {
		p = Collect(env, c.clock.Now())
		locked = env.Locked()
	})
	if err != nil {
		return nil, err
	}
	f := c.Flags()
	return []Message{
		{Type: MsgCalibration, Package: &p},
		{Type: MsgShowHelpers, Value: boolValue(f.ShowHelpers)},
		{Type: MsgLockCameras, Value: boolValue(locked)},
		{Type: MsgOnlyCameraDisplay, Value: f.OnlyCameraDisplay},
	}, nil
}

func (c *Calibrator) update(ctx context.Context, fn func(*Flags)) Flags {
	c.mu.Lock()
	fn(&c.flags)
	f := c.flags
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveFlags(ctx, f); err != nil {
			monitoring.Opsf("calibration: failed to store flags: %v", err)
		}
	}
	return f
}

// Sink wraps next so that only cameras on the selected display are
// forwarded while OnlyCameraDisplay is set.
func (c *Calibrator) Sink(next viewpoint.RenderSink) viewpoint.RenderSink {
	return viewpoint.RenderSinkFunc(func(out viewpoint.CameraOutput) {
		if only := c.Flags().OnlyCameraDisplay; only >= 0 && out.Display != only {
			return
		}
		next.Submit(out)
	})
}
