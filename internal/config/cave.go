package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/cave.defaults.json"

// FilterConfig holds one-euro filter parameters.
type FilterConfig struct {
	MinCutoff        *float64 `json:"min_cutoff,omitempty"`
	Beta             *float64 `json:"beta,omitempty"`
	DerivativeCutoff *float64 `json:"derivative_cutoff,omitempty"`
}

// CaveConfig is the root configuration of the cave runtime. Every field is
// optional; the Get* methods supply defaults for omitted values.
type CaveConfig struct {
	// Environment
	Dimensions      *[3]float64 `json:"dimensions,omitempty"` // meters, x y z
	Position        *[3]float64 `json:"position,omitempty"`
	YawDegrees      *float64    `json:"yaw_degrees,omitempty"`
	NearClipPlane   *float64    `json:"near_clip_plane,omitempty"`
	FarClipPlane    *float64    `json:"far_clip_plane,omitempty"`
	NearGuard       *float64    `json:"near_guard,omitempty"` // near distance when the eye is on a screen plane
	EyeSeparation   *float64    `json:"eye_separation,omitempty"`
	Stereo          *bool       `json:"stereo,omitempty"`
	OutputTarget    *string     `json:"output_target,omitempty"`  // display, split_horizontal, split_vertical
	FrameInterval   *string     `json:"frame_interval,omitempty"` // duration string like "16ms"
	HeatMapCellSize *float64    `json:"heatmap_cell_size,omitempty"`

	// Tracking
	SampleRateHz      *float64      `json:"sample_rate_hz,omitempty"`
	PositionFilter    *FilterConfig `json:"position_filter,omitempty"`
	RotationFilter    *FilterConfig `json:"rotation_filter,omitempty"`
	Construction      *string       `json:"construction,omitempty"` // basic or full
	SensorPosition    *[3]float64   `json:"sensor_position,omitempty"`
	SensorYawDegrees  *float64      `json:"sensor_yaw_degrees,omitempty"`
	SelectionPolicy   *string       `json:"selection_policy,omitempty"` // longest_inside, longest, closest_center
	StaleFrameTimeout *string       `json:"stale_frame_timeout,omitempty"`

	// Feed
	FeedKind    *string `json:"feed_kind,omitempty"` // serial, udp, pcap, synthetic
	FeedAddress *string `json:"feed_address,omitempty"`
	SerialPort  *string `json:"serial_port,omitempty"`
	SerialBaud  *int    `json:"serial_baud,omitempty"`
	PCAPFile    *string `json:"pcap_file,omitempty"`
	PCAPUDPPort *int    `json:"pcap_udp_port,omitempty"`

	// Services
	ListenAddress   *string `json:"listen_address,omitempty"`
	GRPCAddress     *string `json:"grpc_address,omitempty"`
	DatabasePath    *string `json:"database_path,omitempty"`
	CalibrationFile *string `json:"calibration_file,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCaveConfig returns a CaveConfig with all fields unset.
func EmptyCaveConfig() *CaveConfig {
	return &CaveConfig{}
}

// DefaultCaveConfig returns a CaveConfig with every field populated with its
// default value.
func DefaultCaveConfig() *CaveConfig {
	c := EmptyCaveConfig()
	dims := c.GetDimensions()
	pos := c.GetPosition()
	sensor := c.GetSensorPosition()
	pmc, pb, pdc := c.PositionFilter.Get()
	rmc, rb, rdc := c.RotationFilter.Get()
	return &CaveConfig{
		Dimensions:        &dims,
		Position:          &pos,
		YawDegrees:        ptrFloat64(c.GetYawDegrees()),
		NearClipPlane:     ptrFloat64(c.GetNearClipPlane()),
		FarClipPlane:      ptrFloat64(c.GetFarClipPlane()),
		NearGuard:         ptrFloat64(c.GetNearGuard()),
		EyeSeparation:     ptrFloat64(c.GetEyeSeparation()),
		Stereo:            ptrBool(c.GetStereo()),
		OutputTarget:      ptrString(c.GetOutputTarget()),
		FrameInterval:     ptrString(c.GetFrameInterval().String()),
		HeatMapCellSize:   ptrFloat64(c.GetHeatMapCellSize()),
		SampleRateHz:      ptrFloat64(c.GetSampleRateHz()),
		PositionFilter:    &FilterConfig{ptrFloat64(pmc), ptrFloat64(pb), ptrFloat64(pdc)},
		RotationFilter:    &FilterConfig{ptrFloat64(rmc), ptrFloat64(rb), ptrFloat64(rdc)},
		Construction:      ptrString(c.GetConstruction()),
		SensorPosition:    &sensor,
		SensorYawDegrees:  ptrFloat64(c.GetSensorYawDegrees()),
		SelectionPolicy:   ptrString(c.GetSelectionPolicy()),
		StaleFrameTimeout: ptrString(c.GetStaleFrameTimeout().String()),
		FeedKind:          ptrString(c.GetFeedKind()),
		FeedAddress:       ptrString(c.GetFeedAddress()),
		SerialPort:        ptrString(c.GetSerialPort()),
		SerialBaud:        ptrInt(c.GetSerialBaud()),
		PCAPFile:          ptrString(c.GetPCAPFile()),
		PCAPUDPPort:       ptrInt(c.GetPCAPUDPPort()),
		ListenAddress:     ptrString(c.GetListenAddress()),
		GRPCAddress:       ptrString(c.GetGRPCAddress()),
		DatabasePath:      ptrString(c.GetDatabasePath()),
		CalibrationFile:   ptrString(c.GetCalibrationFile()),
	}
}

// LoadCaveConfig loads a CaveConfig from a JSON file. The file must have a
// .json extension and be at most 1MB. Omitted fields keep their defaults.
func LoadCaveConfig(path string) (*CaveConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCaveConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for tests.
func MustLoadDefaultConfig() *CaveConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCaveConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var (
	validOutputTargets = map[string]bool{"display": true, "split_horizontal": true, "split_vertical": true}
	validFeedKinds     = map[string]bool{"serial": true, "udp": true, "pcap": true, "synthetic": true}
	validConstructions = map[string]bool{"basic": true, "full": true}
	validPolicies      = map[string]bool{"longest_inside": true, "longest": true, "closest_center": true}
)

// Validate checks that set values are usable.
func (c *CaveConfig) Validate() error {
	if c.Dimensions != nil {
		for i, v := range c.Dimensions {
			if v <= 0 {
				return fmt.Errorf("dimensions[%d] must be positive, got %f", i, v)
			}
		}
	}
	near, far := c.GetNearClipPlane(), c.GetFarClipPlane()
	if near <= 0 {
		return fmt.Errorf("near_clip_plane must be positive, got %f", near)
	}
	if far <= near {
		return fmt.Errorf("far_clip_plane (%f) must exceed near_clip_plane (%f)", far, near)
	}
	if g := c.GetNearGuard(); g <= 0 {
		return fmt.Errorf("near_guard must be positive, got %f", g)
	}
	if s := c.GetEyeSeparation(); s < 0 {
		return fmt.Errorf("eye_separation must be non-negative, got %f", s)
	}
	if r := c.GetSampleRateHz(); r <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", r)
	}
	if s := c.GetHeatMapCellSize(); s <= 0 {
		return fmt.Errorf("heatmap_cell_size must be positive, got %f", s)
	}
	for name, f := range map[string]*FilterConfig{"position_filter": c.PositionFilter, "rotation_filter": c.RotationFilter} {
		if err := f.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.OutputTarget != nil && !validOutputTargets[*c.OutputTarget] {
		return fmt.Errorf("unknown output_target %q", *c.OutputTarget)
	}
	if c.FeedKind != nil && !validFeedKinds[*c.FeedKind] {
		return fmt.Errorf("unknown feed_kind %q", *c.FeedKind)
	}
	if c.Construction != nil && !validConstructions[*c.Construction] {
		return fmt.Errorf("unknown construction %q", *c.Construction)
	}
	if c.SelectionPolicy != nil && !validPolicies[*c.SelectionPolicy] {
		return fmt.Errorf("unknown selection_policy %q", *c.SelectionPolicy)
	}
	for name, d := range map[string]*string{"frame_interval": c.FrameInterval, "stale_frame_timeout": c.StaleFrameTimeout} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}
	return nil
}

func (f *FilterConfig) validate() error {
	if f == nil {
		return nil
	}
	if f.MinCutoff != nil && *f.MinCutoff <= 0 {
		return fmt.Errorf("min_cutoff must be positive, got %f", *f.MinCutoff)
	}
	if f.Beta != nil && *f.Beta < 0 {
		return fmt.Errorf("beta must be non-negative, got %f", *f.Beta)
	}
	if f.DerivativeCutoff != nil && *f.DerivativeCutoff <= 0 {
		return fmt.Errorf("derivative_cutoff must be positive, got %f", *f.DerivativeCutoff)
	}
	return nil
}
