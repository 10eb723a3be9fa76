package scaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/observability/log"
)

// EngineControl is the slice of the assignment engine the scaler drives.
type EngineControl interface {
	SetPerformanceTargets(targetFPS, maxLoadFactor float64)
	SetCapacities(capacities map[lod.Tier]int)
}

// ComputeControl receives backend feature toggles on preset changes.
type ComputeControl interface {
	SetFeatures(computeEnabled, gpuEnabled bool)
}

// Action is one entry of the bounded scaling audit log.
type Action struct {
	ID     uuid.UUID  `json:"id"`
	Time   time.Time  `json:"time"`
	Action string     `json:"action"`
	Reason string     `json:"reason"`
	Preset PresetName `json:"preset"`
	Factor float64    `json:"factor"`
}

// Status is the externally visible scaler state.
type Status struct {
	Preset            PresetName          `json:"preset"`
	Factor            float64             `json:"factor"`
	Trend             string              `json:"trend"`
	AutoEnabled       bool                `json:"auto_enabled"`
	EffectiveCapacity int                 `json:"effective_capacity"`
	Snapshot          PerformanceSnapshot `json:"snapshot"`
}

// Config tunes the adaptive scaling controller.
type Config struct {
	// MinFPS is the hard floor below which scaling down is aggressive.
	MinFPS float64
	// TrendWindow is the sampling window size for trend classification.
	TrendWindow int
	// TrendThreshold is the relative FPS change that flips the trend.
	TrendThreshold float64
	// Cooldown is the hysteresis window between scaling actions.
	Cooldown time.Duration
	// Predictive enables the mild scale-down on a degrading trend.
	Predictive bool
	// FactorFloor is the complexity factor below which the preset is
	// stepped down instead.
	FactorFloor float64
	// HistoryCap bounds the snapshot history; AuditCap the action log.
	HistoryCap int
	AuditCap   int
}

func (c Config) withDefaults() Config {
	if c.MinFPS <= 0 {
		c.MinFPS = 20
	}
	if c.TrendWindow <= 0 {
		c.TrendWindow = 10
	}
	if c.TrendThreshold <= 0 {
		c.TrendThreshold = 0.15
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Second
	}
	if c.FactorFloor <= 0 {
		c.FactorFloor = 0.6
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 120
	}
	if c.AuditCap <= 0 {
		c.AuditCap = 64
	}
	return c
}

// Complexity factor bounds for smooth intra-preset scaling.
const (
	factorMin = 0.1
	factorMax = 1.0
)

// AutoScaler observes rolling performance metrics, classifies the trend
// and re-parameterizes the assignment engine and active quality preset.
type AutoScaler struct {
	mu      sync.Mutex
	cfg     Config
	presets map[PresetName]QualityPreset

	current PresetName
	factor  float64
	enabled bool

	history    *History
	actions    []Action
	lastAction time.Time

	engine  EngineControl
	compute ComputeControl
	sampler ResourceSampler
	lg      log.Log
	clock   func() time.Time
}

func NewAutoScaler(cfg Config, presets map[PresetName]QualityPreset, initial PresetName, engine EngineControl, compute ComputeControl, sampler ResourceSampler, lg log.Log) (*AutoScaler, error) {
	cfg = cfg.withDefaults()
	if presets == nil {
		presets = DefaultPresets()
	}
	if _, ok := presets[initial]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, initial)
	}
	if sampler == nil {
		sampler = NewRuntimeSampler(0)
	}
	s := &AutoScaler{
		cfg:     cfg,
		presets: presets,
		current: initial,
		factor:  factorMax,
		enabled: true,
		history: NewHistory(cfg.HistoryCap),
		engine:  engine,
		compute: compute,
		sampler: sampler,
		lg:      lg,
		clock:   time.Now,
	}
	s.applyLocked()
	return s, nil
}

// Observe appends a performance snapshot, filling in CPU and memory from
// the sampler when the caller did not measure them.
func (s *AutoScaler) Observe(snap PerformanceSnapshot) {
	if snap.Time.IsZero() {
		snap.Time = s.clock()
	}
	if snap.CPU == 0 {
		snap.CPU = s.sampler.CPU()
	}
	if snap.Memory == 0 {
		snap.Memory = s.sampler.Memory()
	}

	s.mu.Lock()
	s.history.Append(snap)
	s.mu.Unlock()
}

// Evaluate runs one scaling decision against the latest snapshot. It
// returns the action taken, or nil when nothing fired (automatic scaling
// disabled, no data, inside the cooldown window, or all rules quiet).
func (s *AutoScaler) Evaluate() *Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return nil
	}
	latest, ok := s.history.Latest()
	if !ok {
		return nil
	}
	now := s.clock()
	if !s.lastAction.IsZero() && now.Sub(s.lastAction) < s.cfg.Cooldown {
		return nil
	}

	trend := s.history.ClassifyTrend(s.cfg.TrendWindow, s.cfg.TrendThreshold)
	target := s.presets[s.current].TargetFPS
	fps, mem := latest.FPS, latest.Memory

	switch {
	case fps < s.cfg.MinFPS || mem > 0.95:
		return s.scaleDownLocked(now, 0.7,
			fmt.Sprintf("fps %.1f below floor %.1f or memory %.2f critical", fps, s.cfg.MinFPS, mem))
	case fps/target < 0.9 || mem > 0.8:
		return s.scaleDownLocked(now, 0.9,
			fmt.Sprintf("fps %.1f under target %.1f or memory %.2f high", fps, target, mem))
	case fps/target > 1.1 && mem < 0.6 && trend == TrendStable:
		return s.scaleUpLocked(now,
			fmt.Sprintf("fps %.1f over target %.1f with headroom", fps, target))
	case s.cfg.Predictive && trend == TrendDegrading:
		return s.scaleDownLocked(now, 0.9, "predictive: degrading trend")
	default:
		return nil
	}
}

// SetPreset switches to a named preset and resets the complexity factor.
func (s *AutoScaler) SetPreset(name PresetName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	s.current = name
	s.factor = factorMax
	s.applyLocked()
	s.audit(s.clock(), "preset-set", "manual preset selection")
	return nil
}

// Preset returns the active preset.
func (s *AutoScaler) Preset() QualityPreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presets[s.current]
}

// Nudge manually adjusts the complexity factor by direction*step.
func (s *AutoScaler) Nudge(direction int, step float64) {
	if step <= 0 {
		step = 0.1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factor = clampFactor(s.factor + float64(direction)*step)
	s.applyLocked()
	s.audit(s.clock(), "manual-nudge", fmt.Sprintf("direction %+d step %.2f", direction, step))
}

// SetAutoEnabled toggles automatic scaling; manual controls keep working.
func (s *AutoScaler) SetAutoEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Actions returns a copy of the recent scaling audit log, oldest first.
func (s *AutoScaler) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Status reports the scaler's externally visible state.
func (s *AutoScaler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, _ := s.history.Latest()
	preset := s.presets[s.current]
	return Status{
		Preset:            s.current,
		Factor:            s.factor,
		Trend:             s.history.ClassifyTrend(s.cfg.TrendWindow, s.cfg.TrendThreshold).String(),
		AutoEnabled:       s.enabled,
		EffectiveCapacity: preset.EffectiveCapacity(s.factor),
		Snapshot:          latest,
	}
}

func (s *AutoScaler) scaleDownLocked(now time.Time, mult float64, reason string) *Action {
	s.factor = clampFactor(s.factor * mult)
	kind := "scale-down"
	if s.factor < s.cfg.FactorFloor {
		// On the lowest preset the factor just keeps shrinking toward
		// its minimum; there is nothing left to step down to.
		if idx := presetIndex(s.current); idx >= 0 && idx < len(presetOrder)-1 {
			s.current = presetOrder[idx+1]
			s.factor = factorMax
			kind = "preset-downgrade"
		}
	}
	s.applyLocked()
	s.lastAction = now
	return s.audit(now, kind, reason)
}

func (s *AutoScaler) scaleUpLocked(now time.Time, reason string) *Action {
	if s.factor >= factorMax {
		idx := presetIndex(s.current)
		if idx <= 0 {
			// Highest preset at full factor; nothing to scale up to.
			return nil
		}
		s.current = presetOrder[idx-1]
		// Conservative restart point so the upgrade does not overshoot.
		s.factor = 0.8
		s.applyLocked()
		s.lastAction = now
		return s.audit(now, "preset-upgrade", reason)
	}
	s.factor = clampFactor(s.factor * 1.1)
	s.applyLocked()
	s.lastAction = now
	return s.audit(now, "scale-up", reason)
}

// applyLocked propagates the active preset and complexity factor to the
// assignment engine and the task coordinator.
func (s *AutoScaler) applyLocked() {
	preset := s.presets[s.current]
	if s.engine != nil {
		s.engine.SetPerformanceTargets(preset.TargetFPS, preset.MaxLoadFactor)
		s.engine.SetCapacities(preset.TierCapacities(s.factor))
	}
	if s.compute != nil {
		s.compute.SetFeatures(preset.ComputeEnabled, preset.GPUEnabled)
	}
}

func (s *AutoScaler) audit(now time.Time, kind, reason string) *Action {
	a := Action{
		ID:     uuid.New(),
		Time:   now,
		Action: kind,
		Reason: reason,
		Preset: s.current,
		Factor: s.factor,
	}
	s.actions = append(s.actions, a)
	if len(s.actions) > s.cfg.AuditCap {
		s.actions = s.actions[len(s.actions)-s.cfg.AuditCap:]
	}
	s.lg.Info("scaling action",
		log.String("action", kind),
		log.String("preset", string(s.current)),
		log.Float64("factor", s.factor),
		log.String("reason", reason))
	return &a
}

func clampFactor(f float64) float64 {
	if f < factorMin {
		return factorMin
	}
	if f > factorMax {
		return factorMax
	}
	return f
}
