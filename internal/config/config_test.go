package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/scaling"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "antscale.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, string(scaling.PresetBalanced), cfg.Scaler.InitialPreset)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesMergeWithDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:9000"
scaler:
  initial_preset: performance
  cooldown: 5s
tiers:
  full:
    max_entities: 250
  statistical:
    update_hz: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Equal(t, "performance", cfg.Scaler.InitialPreset)
	require.Equal(t, Duration(5*time.Second), cfg.Scaler.Cooldown)
	require.Equal(t, 30.0, cfg.Engine.TargetFPS, "untouched fields keep defaults")

	tiers, err := cfg.TierSet()
	require.NoError(t, err)
	require.Equal(t, 250, tiers.MustConfig(lod.TierFull).MaxEntities)
	require.Equal(t, 4.0, tiers.MustConfig(lod.TierStatistical).UpdateHz)
	// Unoverridden fields keep the stock values.
	require.Equal(t, 30.0, tiers.MustConfig(lod.TierFull).UpdateHz)
	require.Equal(t, 2000, tiers.MustConfig(lod.TierSimplified).MaxEntities)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "scaler: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target fps", func(c *Config) { c.Engine.TargetFPS = 0 }},
		{"zero min fps", func(c *Config) { c.Scaler.MinFPS = 0 }},
		{"threshold out of range", func(c *Config) { c.Scaler.TrendThreshold = 1.5 }},
		{"unknown preset", func(c *Config) { c.Scaler.InitialPreset = "potato" }},
		{"unknown tier name", func(c *Config) {
			c.Tiers = map[string]TierConfig{"imaginary": {}}
		}},
		{"negative tier capacity", func(c *Config) {
			c.Tiers = map[string]TierConfig{"full": {MaxEntities: -1}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestTierSet_UnknownTierName(t *testing.T) {
	cfg := Default()
	cfg.Tiers = map[string]TierConfig{"imaginary": {MaxEntities: 10}}
	_, err := cfg.TierSet()
	require.ErrorIs(t, err, lod.ErrUnknownTier)
}
