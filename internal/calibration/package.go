// Package calibration moves projector calibrations in and out of the
// environment: the JSON package exchanged with calibration tools, its file and
// database persistence, and the message handler the tools talk to.
package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/fsutil"
)

// ErrEmptyPackage is returned when a package carries no calibrations.
var ErrEmptyPackage = errors.New("calibration: package has no calibrations")

// Package is the calibration state of every camera plus the output target,
// in the format shared with calibration tools.
type Package struct {
	Timestamp             string                    `json:"timestamp"`
	OutputTarget          environment.OutputTarget  `json:"outputTarget"`
	HighestVirtualDisplay int                       `json:"highestVirtualDisplay"`
	Calibrations          []environment.Calibration `json:"calibrations"`
}

// NewPackage stamps calibrations with t and their highest display.
func NewPackage(t time.Time, target environment.OutputTarget, calibrations []environment.Calibration) Package {
	return Package{
		Timestamp:             t.Format(time.RFC3339Nano),
		OutputTarget:          target,
		HighestVirtualDisplay: environment.HighestVirtualDisplay(calibrations),
		Calibrations:          calibrations,
	}
}

// Collect snapshots the calibrations currently applied to env.
func Collect(env *environment.Environment, now time.Time) Package {
	return NewPackage(now, env.OutputTarget(), env.CollectCalibrations())
}

// IsEmpty reports whether p has no calibrations.
func (p Package) IsEmpty() bool { return len(p.Calibrations) == 0 }

// Time parses the package timestamp.
func (p Package) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.Timestamp)
}

// Apply matches the calibrations to env's cameras by name and switches the
// output target while keeping the per-camera displays. It returns the names
// that matched no camera.
func (p Package) Apply(env *environment.Environment) []string {
	unmatched := env.MatchAndApplyCalibrations(p.Calibrations)
	env.SetOutputTarget(p.OutputTarget, true)
	return unmatched
}

// Encode returns the compact wire form of p.
func (p Package) Encode() ([]byte, error) {
	if p.IsEmpty() {
		return nil, ErrEmptyPackage
	}
	return json.Marshal(p)
}

// Decode parses a package. Unknown fields are ignored.
func Decode(data []byte) (Package, error) {
	var p Package
	if err := json.Unmarshal(bytes.TrimSpace(data), &p); err != nil {
		return Package{}, fmt.Errorf("calibration: decode package: %w", err)
	}
	if p.IsEmpty() {
		return Package{}, ErrEmptyPackage
	}
	return p, nil
}

// maxFileSize bounds calibration files read from disk.
const maxFileSize = 1 << 20

// LoadFile reads a package written by SaveFile or a calibration tool.
func LoadFile(fsys fsutil.FileSystem, path string) (Package, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return Package{}, fmt.Errorf("calibration: stat %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return Package{}, fmt.Errorf("calibration: %s is too large (%d bytes)", path, info.Size())
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Package{}, fmt.Errorf("calibration: read %s: %w", path, err)
	}
	p, err := Decode(data)
	if err != nil {
		return Package{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// SaveFile writes p as indented JSON, replacing path atomically.
func SaveFile(fsys fsutil.FileSystem, path string, p Package) error {
	if p.IsEmpty() {
		return ErrEmptyPackage
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: encode package: %w", err)
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("calibration: write %s: %w", path, err)
	}
	return nil
}
