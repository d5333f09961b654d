package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a snapshot or setting does not exist.
var ErrNotFound = errors.New("db: not found")

// CalibrationSnapshot is one stored calibration package. PayloadJSON holds
// the package exactly as it was applied.
type CalibrationSnapshot struct {
	SnapshotID            string `json:"snapshot_id"`
	TakenUnixNanos        int64  `json:"taken_unix_nanos"`
	Source                string `json:"source"`
	OutputTarget          int    `json:"output_target"`
	HighestVirtualDisplay int    `json:"highest_virtual_display"`
	CameraCount           int    `json:"camera_count"`
	PayloadJSON           string `json:"-"`
}

// TakenAt returns the snapshot time.
func (s *CalibrationSnapshot) TakenAt() time.Time {
	return time.Unix(0, s.TakenUnixNanos).UTC()
}

// InsertCalibrationSnapshot stores s. SnapshotID must be set by the caller.
func (db *DB) InsertCalibrationSnapshot(ctx context.Context, s *CalibrationSnapshot) error {
	if s.SnapshotID == "" {
		return errors.New("db: snapshot id is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO calibration_snapshots (
			snapshot_id, taken_unix_nanos, source, output_target,
			highest_virtual_display, camera_count, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SnapshotID,
		s.TakenUnixNanos,
		s.Source,
		s.OutputTarget,
		s.HighestVirtualDisplay,
		s.CameraCount,
		s.PayloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert calibration snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `snapshot_id, taken_unix_nanos, source, output_target,
	highest_virtual_display, camera_count, payload_json`

func scanSnapshot(row interface{ Scan(...any) error }) (*CalibrationSnapshot, error) {
	var s CalibrationSnapshot
	err := row.Scan(
		&s.SnapshotID,
		&s.TakenUnixNanos,
		&s.Source,
		&s.OutputTarget,
		&s.HighestVirtualDisplay,
		&s.CameraCount,
		&s.PayloadJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetCalibrationSnapshot loads one snapshot by id.
func (db *DB) GetCalibrationSnapshot(ctx context.Context, id string) (*CalibrationSnapshot, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM calibration_snapshots WHERE snapshot_id = ?`, id)
	s, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("get calibration snapshot %s: %w", id, err)
	}
	return s, nil
}

// LatestCalibrationSnapshot returns the most recently taken snapshot.
func (db *DB) LatestCalibrationSnapshot(ctx context.Context) (*CalibrationSnapshot, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM calibration_snapshots
		ORDER BY taken_unix_nanos DESC, rowid DESC LIMIT 1`)
	s, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("latest calibration snapshot: %w", err)
	}
	return s, nil
}

// ListCalibrationSnapshots returns up to limit snapshots, newest first.
// Payloads are not loaded.
func (db *DB) ListCalibrationSnapshots(ctx context.Context, limit int) ([]CalibrationSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT snapshot_id, taken_unix_nanos, source, output_target,
			highest_virtual_display, camera_count, ''
		FROM calibration_snapshots
		ORDER BY taken_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration snapshots: %w", err)
	}
	defer rows.Close()

	var out []CalibrationSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteCalibrationSnapshotsBefore removes snapshots older than t and
// returns how many were deleted.
func (db *DB) DeleteCalibrationSnapshotsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM calibration_snapshots WHERE taken_unix_nanos < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune calibration snapshots: %w", err)
	}
	return res.RowsAffected()
}

// SetSetting upserts a calibrator setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO calibrator_settings (setting_key, setting_value, updated_unix_nanos)
		VALUES (?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			updated_unix_nanos = excluded.updated_unix_nanos`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

// Setting returns the stored value for key, or ErrNotFound.
func (db *DB) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := db.QueryRowContext(ctx,
		`SELECT setting_value FROM calibrator_settings WHERE setting_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load setting %s: %w", key, err)
	}
	return v, nil
}
