package config

import "time"

// Get returns the filter parameters, defaulting to min_cutoff 1, beta 0 and
// derivative_cutoff 1. A nil FilterConfig yields the defaults.
func (f *FilterConfig) Get() (minCutoff, beta, derivativeCutoff float64) {
	minCutoff, beta, derivativeCutoff = 1, 0, 1
	if f == nil {
		return
	}
	if f.MinCutoff != nil {
		minCutoff = *f.MinCutoff
	}
	if f.Beta != nil {
		beta = *f.Beta
	}
	if f.DerivativeCutoff != nil {
		derivativeCutoff = *f.DerivativeCutoff
	}
	return
}

// GetDimensions returns the environment size in meters.
func (c *CaveConfig) GetDimensions() [3]float64 {
	if c.Dimensions == nil {
		return [3]float64{3, 2.45, 3}
	}
	return *c.Dimensions
}

// GetPosition returns the environment origin in world space.
func (c *CaveConfig) GetPosition() [3]float64 {
	if c.Position == nil {
		return [3]float64{}
	}
	return *c.Position
}

// GetYawDegrees returns the environment yaw in degrees.
func (c *CaveConfig) GetYawDegrees() float64 {
	if c.YawDegrees == nil {
		return 0
	}
	return *c.YawDegrees
}

// GetNearClipPlane returns the near clip plane factor.
func (c *CaveConfig) GetNearClipPlane() float64 {
	if c.NearClipPlane == nil {
		return 0.1
	}
	return *c.NearClipPlane
}

// GetFarClipPlane returns the far clip plane distance.
func (c *CaveConfig) GetFarClipPlane() float64 {
	if c.FarClipPlane == nil {
		return 1000
	}
	return *c.FarClipPlane
}

// GetNearGuard returns the near distance used when the eye lies on a screen.
func (c *CaveConfig) GetNearGuard() float64 {
	if c.NearGuard == nil {
		return 0.01
	}
	return *c.NearGuard
}

// GetEyeSeparation returns the interpupillary distance in meters.
func (c *CaveConfig) GetEyeSeparation() float64 {
	if c.EyeSeparation == nil {
		return 0.06
	}
	return *c.EyeSeparation
}

// GetStereo reports whether one camera per eye is rendered.
func (c *CaveConfig) GetStereo() bool {
	if c.Stereo == nil {
		return false
	}
	return *c.Stereo
}

// GetOutputTarget returns the output routing mode.
func (c *CaveConfig) GetOutputTarget() string {
	if c.OutputTarget == nil || *c.OutputTarget == "" {
		return "display"
	}
	return *c.OutputTarget
}

// GetFrameInterval returns the render loop period.
func (c *CaveConfig) GetFrameInterval() time.Duration {
	const def = 16 * time.Millisecond
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return def
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return def
	}
	return d
}

// GetHeatMapCellSize returns the tracking heat map cell size in meters.
func (c *CaveConfig) GetHeatMapCellSize() float64 {
	if c.HeatMapCellSize == nil {
		return 0.25
	}
	return *c.HeatMapCellSize
}

// GetSampleRateHz returns the sensor sample rate used by the filters.
func (c *CaveConfig) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return 30
	}
	return *c.SampleRateHz
}

// GetPositionFilter returns the eye position filter config (may be nil).
func (c *CaveConfig) GetPositionFilter() *FilterConfig { return c.PositionFilter }

// GetRotationFilter returns the eye rotation filter config (may be nil).
func (c *CaveConfig) GetRotationFilter() *FilterConfig { return c.RotationFilter }

// GetConstruction returns the actor construction type.
func (c *CaveConfig) GetConstruction() string {
	if c.Construction == nil || *c.Construction == "" {
		return "basic"
	}
	return *c.Construction
}

// GetSensorPosition returns the sensor position in world space.
func (c *CaveConfig) GetSensorPosition() [3]float64 {
	if c.SensorPosition == nil {
		return [3]float64{}
	}
	return *c.SensorPosition
}

// GetSensorYawDegrees returns the sensor yaw in degrees.
func (c *CaveConfig) GetSensorYawDegrees() float64 {
	if c.SensorYawDegrees == nil {
		return 0
	}
	return *c.SensorYawDegrees
}

// GetSelectionPolicy returns the viewer selection policy.
func (c *CaveConfig) GetSelectionPolicy() string {
	if c.SelectionPolicy == nil || *c.SelectionPolicy == "" {
		return "longest_inside"
	}
	return *c.SelectionPolicy
}

// GetStaleFrameTimeout returns how long the feed may be silent before the
// health service reports NOT_SERVING.
func (c *CaveConfig) GetStaleFrameTimeout() time.Duration {
	const def = 2 * time.Second
	if c.StaleFrameTimeout == nil || *c.StaleFrameTimeout == "" {
		return def
	}
	d, err := time.ParseDuration(*c.StaleFrameTimeout)
	if err != nil {
		return def
	}
	return d
}

// GetFeedKind returns the detection feed source.
func (c *CaveConfig) GetFeedKind() string {
	if c.FeedKind == nil || *c.FeedKind == "" {
		return "synthetic"
	}
	return *c.FeedKind
}

// GetFeedAddress returns the UDP listen address of the detection feed.
func (c *CaveConfig) GetFeedAddress() string {
	if c.FeedAddress == nil || *c.FeedAddress == "" {
		return ":7070"
	}
	return *c.FeedAddress
}

// GetSerialPort returns the serial device of the detection feed.
func (c *CaveConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial baud rate.
func (c *CaveConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetPCAPFile returns the capture file replayed by the pcap feed.
func (c *CaveConfig) GetPCAPFile() string {
	if c.PCAPFile == nil {
		return ""
	}
	return *c.PCAPFile
}

// GetPCAPUDPPort returns the UDP port carrying detections in a capture.
func (c *CaveConfig) GetPCAPUDPPort() int {
	if c.PCAPUDPPort == nil {
		return 7070
	}
	return *c.PCAPUDPPort
}

// GetListenAddress returns the HTTP monitor address.
func (c *CaveConfig) GetListenAddress() string {
	if c.ListenAddress == nil || *c.ListenAddress == "" {
		return ":8080"
	}
	return *c.ListenAddress
}

// GetGRPCAddress returns the gRPC health service address.
func (c *CaveConfig) GetGRPCAddress() string {
	if c.GRPCAddress == nil || *c.GRPCAddress == "" {
		return ":50051"
	}
	return *c.GRPCAddress
}

// GetDatabasePath returns the calibration database path.
func (c *CaveConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "cave.db"
	}
	return *c.DatabasePath
}

// GetCalibrationFile returns the path of the calibration JSON file.
func (c *CaveConfig) GetCalibrationFile() string {
	if c.CalibrationFile == nil || *c.CalibrationFile == "" {
		return "cave.calibration.json"
	}
	return *c.CalibrationFile
}
