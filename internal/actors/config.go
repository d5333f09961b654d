package actors

import (
	"fmt"

	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// Construction selects which trackables a new actor carries.
type Construction int

const (
	// ConstructionBasic tracks the head and both hands.
	ConstructionBasic Construction = iota
	// ConstructionFull additionally tracks every other joint.
	ConstructionFull
)

func (c Construction) String() string {
	switch c {
	case ConstructionBasic:
		return "basic"
	case ConstructionFull:
		return "full"
	}
	return fmt.Sprintf("Construction(%d)", int(c))
}

// ParseConstruction parses "basic" or "full".
func ParseConstruction(s string) (Construction, error) {
	switch s {
	case "basic":
		return ConstructionBasic, nil
	case "full":
		return ConstructionFull, nil
	}
	return 0, fmt.Errorf("unknown construction %q", s)
}

// MatcherConfig holds configuration for the actor matcher.
type MatcherConfig struct {
	Construction Construction
	SensorPose   geom.Pose // sensor placement in world space
}

// DefaultMatcherConfig returns matcher configuration loaded from the
// canonical defaults file (config/cave.defaults.json). Panics if the file
// cannot be found.
func DefaultMatcherConfig() MatcherConfig {
	cfg := config.MustLoadDefaultConfig()
	return MatcherConfigFromCave(cfg)
}

// MatcherConfigFromCave builds a MatcherConfig from a loaded CaveConfig.
func MatcherConfigFromCave(cfg *config.CaveConfig) MatcherConfig {
	construction, err := ParseConstruction(cfg.GetConstruction())
	if err != nil {
		construction = ConstructionBasic
	}
	pos := cfg.GetSensorPosition()
	return MatcherConfig{
		Construction: construction,
		SensorPose: geom.Pose{
			Position: mgl64.Vec3{pos[0], pos[1], pos[2]},
			Rotation: geom.Euler(0, cfg.GetSensorYawDegrees(), 0),
		},
	}
}
