package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnomeswarm/swarm/gnome"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesOverridesOntoDefaults(t *testing.T) {
	path := writeTempConfig(t, `
round:
  swarm_diameter: 9
  heartbeat_period: 250ms
discovery:
  threshold: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SwarmDiameter != gnome.Neighborhood(9) {
		t.Errorf("expected swarm diameter 9, got %s", cfg.SwarmDiameter)
	}
	if cfg.DiscoveryThreshold != 500 {
		t.Errorf("expected discovery threshold 500, got %d", cfg.DiscoveryThreshold)
	}
	if cfg.BandwidthPeriod != gnome.DefaultBandwidthPeriod {
		t.Errorf("expected bandwidth period left at default, got %s", cfg.BandwidthPeriod)
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	path := writeTempConfig(t, "version: 99\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for a config version newer than supported")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
