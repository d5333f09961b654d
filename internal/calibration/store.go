package calibration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cave.view/internal/db"
	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
)

// ErrNoSnapshot is returned when the store holds no matching snapshot.
var ErrNoSnapshot = errors.New("calibration: no snapshot")

// Snapshot describes one stored package.
type Snapshot struct {
	ID                    string                   `json:"id"`
	TakenAt               time.Time                `json:"taken_at"`
	Source                string                   `json:"source"`
	OutputTarget          environment.OutputTarget `json:"output_target"`
	HighestVirtualDisplay int                      `json:"highest_virtual_display"`
	CameraCount           int                      `json:"camera_count"`
}

func snapshotFromRow(r *db.CalibrationSnapshot) Snapshot {
	return Snapshot{
		ID:                    r.SnapshotID,
		TakenAt:               r.TakenAt(),
		Source:                r.Source,
		OutputTarget:          environment.OutputTarget(r.OutputTarget),
		HighestVirtualDisplay: r.HighestVirtualDisplay,
		CameraCount:           r.CameraCount,
	}
}

// Flags are the calibrator toggles that survive restarts.
type Flags struct {
	ShowHelpers       bool `json:"show_helpers"`
	LockCameras       bool `json:"lock_cameras"`
	OnlyCameraDisplay int  `json:"only_camera_display"`
}

// DefaultFlags renders every camera with helpers hidden.
func DefaultFlags() Flags { return Flags{OnlyCameraDisplay: -1} }

const (
	settingShowHelpers       = "show_helpers"
	settingLockCameras       = "lock_cameras"
	settingOnlyCameraDisplay = "only_camera_display"
)

// Store keeps every applied package as a uuid-keyed snapshot.
type Store struct {
	db    *db.DB
	clock timeutil.Clock
}

// NewStore wraps an already migrated database. A nil clock uses wall time.
func NewStore(database *db.DB, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{db: database, clock: clock}
}

// Save records p and returns its snapshot.
func (s *Store) Save(ctx context.Context, p Package, source string) (Snapshot, error) {
	payload, err := p.Encode()
	if err != nil {
		return Snapshot{}, err
	}
	row := &db.CalibrationSnapshot{
		SnapshotID:            uuid.NewString(),
		TakenUnixNanos:        s.clock.Now().UnixNano(),
		Source:                source,
		OutputTarget:          int(p.OutputTarget),
		HighestVirtualDisplay: p.HighestVirtualDisplay,
		CameraCount:           len(p.Calibrations),
		PayloadJSON:           string(payload),
	}
	if err := s.db.InsertCalibrationSnapshot(ctx, row); err != nil {
		return Snapshot{}, err
	}
	monitoring.Diagf("calibration: stored snapshot %s from %s (%d cameras)", row.SnapshotID, source, row.CameraCount)
	return snapshotFromRow(row), nil
}

func (s *Store) load(row *db.CalibrationSnapshot, err error) (Package, Snapshot, error) {
	if errors.Is(err, db.ErrNotFound) {
		return Package{}, Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Package{}, Snapshot{}, err
	}
	p, err := Decode([]byte(row.PayloadJSON))
	if err != nil {
		return Package{}, Snapshot{}, fmt.Errorf("snapshot %s: %w", row.SnapshotID, err)
	}
	return p, snapshotFromRow(row), nil
}

// Latest returns the most recent package.
func (s *Store) Latest(ctx context.Context) (Package, Snapshot, error) {
	return s.load(s.db.LatestCalibrationSnapshot(ctx))
}

// Get returns the package stored under id.
func (s *Store) Get(ctx context.Context, id string) (Package, Snapshot, error) {
	return s.load(s.db.GetCalibrationSnapshot(ctx, id))
}

// List returns up to limit snapshots, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.ListCalibrationSnapshots(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(rows))
	for i := range rows {
		out[i] = snapshotFromRow(&rows[i])
	}
	return out, nil
}

// Prune deletes snapshots older than maxAge.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.db.DeleteCalibrationSnapshotsBefore(ctx, s.clock.Now().Add(-maxAge))
}

// SaveFlags stores the calibrator toggles.
func (s *Store) SaveFlags(ctx context.Context, f Flags) error {
	for key, value := range map[string]string{
		settingShowHelpers:       strconv.FormatBool(f.ShowHelpers),
		settingLockCameras:       strconv.FormatBool(f.LockCameras),
		settingOnlyCameraDisplay: strconv.Itoa(f.OnlyCameraDisplay),
	} {
		if err := s.db.SetSetting(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadFlags returns the stored toggles. Missing or malformed settings keep
// their DefaultFlags value.
func (s *Store) LoadFlags(ctx context.Context) (Flags, error) {
	f := DefaultFlags()
	get := func(key string) (string, bool, error) {
		v, err := s.db.Setting(ctx, key)
		if errors.Is(err, db.ErrNotFound) {
			return "", false, nil
		}
		return v, err == nil, err
	}

	if v, ok, err := get(settingShowHelpers); err != nil {
		return f, err
	} else if ok {
		f.ShowHelpers, _ = strconv.ParseBool(v)
	}
	if v, ok, err := get(settingLockCameras); err != nil {
		return f, err
	} else if ok {
		f.LockCameras, _ = strconv.ParseBool(v)
	}
	if v, ok, err := get(settingOnlyCameraDisplay); err != nil {
		return f, err
	} else if ok {
		if n, err := strconv.Atoi(v); err == nil {
			f.OnlyCameraDisplay = clampDisplay(n)
		}
	}
	return f, nil
}

func clampDisplay(n int) int {
	if n < 0 {
		return -1
	}
	return n
}
