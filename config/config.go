// Package config loads the yaml-encoded tunables a swarm's gnomes run
// with, in the same version-stamped style the rest of this codebase's
// corpus uses for its node configs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gnomeswarm/swarm/gnome"
)

// CurrentConfigVersion is the latest configuration schema version.
const CurrentConfigVersion = 1

// SwarmConfig is the on-disk shape of a swarm's tunables.
type SwarmConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Round     RoundConfig     `yaml:"round"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Bandwidth BandwidthConfig `yaml:"bandwidth,omitempty"`
}

// RoundConfig tunes the round engine.
type RoundConfig struct {
	SwarmDiameter   uint8  `yaml:"swarm_diameter"`
	HeartbeatPeriod string `yaml:"heartbeat_period"`
}

// DiscoveryConfig tunes NeighborDiscovery's pacing.
type DiscoveryConfig struct {
	Threshold uint16 `yaml:"threshold"`
}

// BandwidthConfig tunes the BandwidthMonitor's sampling period.
type BandwidthConfig struct {
	PeriodLength string `yaml:"period_length,omitempty"`
}

// ErrVersionTooNew is returned when a config file declares a schema
// version newer than this build understands.
var ErrVersionTooNew = fmt.Errorf("config version is newer than supported version %d", CurrentConfigVersion)

// Load reads and validates a SwarmConfig from path, returning the
// gnome.Config it resolves to.
func Load(path string) (gnome.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gnome.Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw SwarmConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return gnome.Config{}, fmt.Errorf("parse config yaml: %w", err)
	}

	version := raw.Version
	if version == 0 {
		version = 1
	}
	if version > CurrentConfigVersion {
		return gnome.Config{}, fmt.Errorf("%w: got %d", ErrVersionTooNew, version)
	}

	cfg := gnome.DefaultConfig()
	if raw.Round.SwarmDiameter != 0 {
		cfg.SwarmDiameter = gnome.Neighborhood(raw.Round.SwarmDiameter)
	}
	if raw.Round.HeartbeatPeriod != "" {
		d, err := time.ParseDuration(raw.Round.HeartbeatPeriod)
		if err != nil {
			return gnome.Config{}, fmt.Errorf("invalid heartbeat_period: %w", err)
		}
		cfg.HeartbeatPeriod = d
	}
	if raw.Discovery.Threshold != 0 {
		cfg.DiscoveryThreshold = raw.Discovery.Threshold
	}
	if raw.Bandwidth.PeriodLength != "" {
		d, err := time.ParseDuration(raw.Bandwidth.PeriodLength)
		if err != nil {
			return gnome.Config{}, fmt.Errorf("invalid bandwidth period_length: %w", err)
		}
		cfg.BandwidthPeriod = d
	}

	return cfg, nil
}
