package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/scaling"
)

// Duration accepts human-readable YAML values like "250ms" or "5s" as
// well as plain integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config is the full daemon configuration. Every field has a working
// default; a config file only needs the overrides.
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Engine      EngineConfig          `yaml:"engine"`
	Scaler      ScalerConfig          `yaml:"scaler"`
	Coordinator CoordinatorConfig     `yaml:"coordinator"`
	Tiers       map[string]TierConfig `yaml:"tiers"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type EngineConfig struct {
	TargetFPS   float64 `yaml:"target_fps"`
	FrameWindow int     `yaml:"frame_window"`
}

type ScalerConfig struct {
	MinFPS         float64  `yaml:"min_fps"`
	TrendWindow    int      `yaml:"trend_window"`
	TrendThreshold float64  `yaml:"trend_threshold"`
	Cooldown       Duration `yaml:"cooldown"`
	Predictive     bool     `yaml:"predictive"`
	InitialPreset  string   `yaml:"initial_preset"`
}

type CoordinatorConfig struct {
	SizeThreshold int  `yaml:"size_threshold"`
	MaxConcurrent int  `yaml:"max_concurrent"`
	Accelerator   bool `yaml:"accelerator"`
	NativeModule  bool `yaml:"native_module"`
}

// TierConfig overrides the stock tier table; zero fields keep defaults.
type TierConfig struct {
	MaxEntities int     `yaml:"max_entities"`
	UpdateHz    float64 `yaml:"update_hz"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:8474"},
		Engine: EngineConfig{TargetFPS: 30, FrameWindow: 60},
		Scaler: ScalerConfig{
			MinFPS:         20,
			TrendWindow:    10,
			TrendThreshold: 0.15,
			Cooldown:       Duration(2 * time.Second),
			Predictive:     true,
			InitialPreset:  string(scaling.PresetBalanced),
		},
		Coordinator: CoordinatorConfig{SizeThreshold: 1000},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Engine.TargetFPS <= 0 {
		return fmt.Errorf("engine.target_fps must be positive, got %v", c.Engine.TargetFPS)
	}
	if c.Scaler.MinFPS <= 0 {
		return fmt.Errorf("scaler.min_fps must be positive, got %v", c.Scaler.MinFPS)
	}
	if c.Scaler.TrendThreshold <= 0 || c.Scaler.TrendThreshold >= 1 {
		return fmt.Errorf("scaler.trend_threshold must be in (0, 1), got %v", c.Scaler.TrendThreshold)
	}
	if _, ok := scaling.DefaultPresets()[scaling.PresetName(c.Scaler.InitialPreset)]; !ok {
		return fmt.Errorf("%w: %q", scaling.ErrUnknownPreset, c.Scaler.InitialPreset)
	}
	for name, tc := range c.Tiers {
		if _, err := lod.ParseTier(name); err != nil {
			return err
		}
		if tc.MaxEntities < 0 {
			return fmt.Errorf("tiers.%s.max_entities must not be negative", name)
		}
		if tc.UpdateHz < 0 {
			return fmt.Errorf("tiers.%s.update_hz must not be negative", name)
		}
	}
	return nil
}

// TierSet builds the tier table with this config's overrides applied.
func (c Config) TierSet() (*lod.TierSet, error) {
	configs := lod.DefaultTierConfigs()
	for name, override := range c.Tiers {
		tier, err := lod.ParseTier(name)
		if err != nil {
			return nil, err
		}
		tc := configs[tier]
		if override.MaxEntities > 0 {
			tc.MaxEntities = override.MaxEntities
		}
		if override.UpdateHz > 0 {
			tc.UpdateHz = override.UpdateHz
		}
		configs[tier] = tc
	}
	return lod.NewTierSet(configs)
}
