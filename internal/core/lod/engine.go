package lod

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/pkg/generic"
)

// Composite score weights. The importance term is the raw 0-10 role weight
// scaled down by 10, so the weights sum to 1.0.
const (
	weightDistance   = 0.30
	weightActivity   = 0.20
	weightFocus      = 0.25
	weightImportance = 0.15
	weightHeadroom   = 0.10
)

// Tier entry thresholds over the clamped composite score.
const (
	thresholdFull        = 0.80
	thresholdSimplified  = 0.60
	thresholdStatistical = 0.30
)

// Hysteresis bonus by current tier. Staying in a higher tier is slightly
// rewarded, staying in the lowest slightly penalized, so entities near a
// threshold do not thrash between tiers.
var hysteresisBonus = [tierCount]float64{0.05, 0.03, 0.01, -0.05}

// Composite score plus hysteresis is clamped to this range before
// thresholding.
const (
	scoreFloor   = -0.1
	scoreCeiling = 1.1
)

// Assignment is the persistent per-entity record owned by the engine.
type Assignment struct {
	EntityID   EntityID
	Tier       Tier
	UpdatedAt  time.Time
	NextUpdate time.Time
	Score      float64
	Factors    PriorityFactors
}

// EngineConfig tunes the assignment engine.
type EngineConfig struct {
	// TargetFPS anchors the system-load computation. Default 30.
	TargetFPS float64
	// FrameWindow is the rolling frame-time buffer size. Default 60.
	FrameWindow int
	// MaxLoadFactor scales every non-aggregate tier capacity during
	// enforcement; the adaptive scaler lowers it under pressure. Default 1.
	MaxLoadFactor float64
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.TargetFPS <= 0 {
		c.TargetFPS = 30
	}
	if c.FrameWindow <= 0 {
		c.FrameWindow = 60
	}
	if c.MaxLoadFactor <= 0 {
		c.MaxLoadFactor = 1
	}
	return c
}

type scoredEntity struct {
	id      EntityID
	raw     float64
	scored  float64
	desired Tier
	factors PriorityFactors
}

// Engine computes composite priority scores and owns the assignment map.
// All mutation goes through its public operations.
type Engine struct {
	mu          sync.Mutex
	tiers       *TierSet
	cfg         EngineConfig
	capacity    [tierCount]int
	assignments map[EntityID]*Assignment

	frames   []time.Duration
	frameIdx int
	frameLen int

	scratch *generic.Pool[*[]scoredEntity]
	lg      log.Log
	clock   func() time.Time
}

func NewEngine(tiers *TierSet, cfg EngineConfig, lg log.Log) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		tiers:       tiers,
		cfg:         cfg,
		assignments: make(map[EntityID]*Assignment),
		frames:      make([]time.Duration, cfg.FrameWindow),
		lg:          lg,
		clock:       time.Now,
	}
	for _, t := range Tiers {
		e.capacity[t] = tiers.MustConfig(t).MaxEntities
	}
	e.scratch = generic.NewResetPool(
		func() *[]scoredEntity {
			s := make([]scoredEntity, 0, 1024)
			return &s
		},
		func(s *[]scoredEntity) *[]scoredEntity {
			*s = (*s)[:0]
			return s
		},
	)
	return e
}

// Assign scores a single entity and records its tier, respecting capacity.
func (e *Engine) Assign(id EntityID, factors PriorityFactors) Tier {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	raw := compositeScore(factors)
	scored := e.applyHysteresis(id, raw)
	desired := tierForScore(scored)

	counts := e.countsExcluding(map[EntityID]struct{}{id: {}})
	tier := e.admit(desired, counts)
	e.record(id, tier, scored, factors, now)
	return tier
}

// UpdateAssignments runs a full assignment pass over ids.
//
// System load is computed once from the rolling frame-time buffer so every
// entity in the pass observes the same value. Capacity is then enforced in
// descending raw score with ascending entity id as tie-break: the highest
// scorers are admitted first and overflow is pushed down the tier ladder
// until a tier with room is found. TierAggregate never rejects.
func (e *Engine) UpdateAssignments(ids []EntityID, provider FactorProvider, deltaTime time.Duration) (map[Tier][]EntityID, error) {
	if provider == nil {
		return nil, ErrNilFactors
	}
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.recordFrameLocked(deltaTime)
	load := e.systemLoadLocked()

	buf := e.scratch.Get()
	defer e.scratch.Put(buf)
	entries := *buf

	batch := make(map[EntityID]struct{}, len(ids))
	for _, id := range ids {
		factors, err := provider.FactorsFor(id)
		if err != nil {
			return nil, fmt.Errorf("factors for entity %d: %w", id, err)
		}
		factors.SystemLoad = load

		raw := compositeScore(factors)
		scored := e.applyHysteresis(id, raw)
		entries = append(entries, scoredEntity{
			id:      id,
			raw:     raw,
			scored:  scored,
			desired: tierForScore(scored),
			factors: factors,
		})
		batch[id] = struct{}{}
	}
	*buf = entries

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].raw != entries[j].raw {
			return entries[i].raw > entries[j].raw
		}
		return entries[i].id < entries[j].id
	})

	counts := e.countsExcluding(batch)
	result := make(map[Tier][]EntityID, tierCount)
	downgraded := 0
	for _, entry := range entries {
		tier := e.admit(entry.desired, counts)
		if tier != entry.desired {
			downgraded++
		}
		e.record(entry.id, tier, entry.scored, entry.factors, now)
		result[tier] = append(result[tier], entry.id)
	}
	if downgraded > 0 {
		e.lg.Debug("capacity enforcement downgraded entities",
			log.Int("count", downgraded),
			log.Int("batch", len(entries)),
			log.Float64("system_load", load))
	}
	return result, nil
}

// ShouldUpdate reports whether the entity is due for its next simulation
// update, or has never been assigned.
func (e *Engine) ShouldUpdate(id EntityID) bool {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.assignments[id]
	if !ok {
		return true
	}
	return !now.Before(a.NextUpdate)
}

// Remove drops the entity's assignment when it is destroyed or leaves
// tracking.
func (e *Engine) Remove(id EntityID) {
	e.mu.Lock()
	delete(e.assignments, id)
	e.mu.Unlock()
}

// AssignmentOf returns a copy of the entity's current assignment.
func (e *Engine) AssignmentOf(id EntityID) (Assignment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assignments[id]
	if !ok {
		return Assignment{}, false
	}
	return *a, true
}

// Distribution returns the current entity count per tier.
func (e *Engine) Distribution() map[Tier]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Tier]int, tierCount)
	for _, a := range e.assignments {
		out[a.Tier]++
	}
	return out
}

// TrackedCount returns the number of entities with an active assignment.
func (e *Engine) TrackedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.assignments)
}

// RecordFrameTime feeds an externally measured frame into the rolling
// buffer used for system-load computation.
func (e *Engine) RecordFrameTime(d time.Duration) {
	e.mu.Lock()
	e.recordFrameLocked(d)
	e.mu.Unlock()
}

// SystemLoad returns min(1, avgFrameTime/targetFrameTime) over the rolling
// buffer; zero until a frame has been recorded.
func (e *Engine) SystemLoad() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.systemLoadLocked()
}

// SetPerformanceTargets re-parameterizes the engine; called by the
// adaptive scaler when a preset or complexity factor changes.
func (e *Engine) SetPerformanceTargets(targetFPS, maxLoadFactor float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if targetFPS > 0 {
		e.cfg.TargetFPS = targetFPS
	}
	if maxLoadFactor > 0 {
		e.cfg.MaxLoadFactor = maxLoadFactor
	}
}

// SetCapacities overrides effective tier capacities. TierAggregate is
// unbounded regardless of what is passed.
func (e *Engine) SetCapacities(capacities map[Tier]int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for t, n := range capacities {
		if !t.Valid() || n < 0 {
			continue
		}
		e.capacity[t] = n
	}
}

// Capacities returns the effective capacity per tier after the load
// factor is applied.
func (e *Engine) Capacities() map[Tier]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Tier]int, tierCount)
	for _, t := range Tiers {
		out[t] = e.effectiveCapacityLocked(t)
	}
	return out
}

func compositeScore(f PriorityFactors) float64 {
	return weightDistance*f.Distance +
		weightActivity*f.Activity +
		weightFocus*f.Focus +
		weightImportance*(f.Importance/10) +
		weightHeadroom*(1-f.SystemLoad)
}

func tierForScore(score float64) Tier {
	switch {
	case score >= thresholdFull:
		return TierFull
	case score >= thresholdSimplified:
		return TierSimplified
	case score >= thresholdStatistical:
		return TierStatistical
	default:
		return TierAggregate
	}
}

func clampScore(s float64) float64 {
	if s < scoreFloor {
		return scoreFloor
	}
	if s > scoreCeiling {
		return scoreCeiling
	}
	return s
}

func (e *Engine) applyHysteresis(id EntityID, raw float64) float64 {
	if a, ok := e.assignments[id]; ok {
		return clampScore(raw + hysteresisBonus[a.Tier])
	}
	return clampScore(raw)
}

// countsExcluding tallies assignments of entities outside the current
// batch, so enforcement sees a consistent in-progress count.
func (e *Engine) countsExcluding(batch map[EntityID]struct{}) *[tierCount]int {
	var counts [tierCount]int
	for id, a := range e.assignments {
		if _, in := batch[id]; in {
			continue
		}
		counts[a.Tier]++
	}
	return &counts
}

func (e *Engine) effectiveCapacityLocked(t Tier) int {
	if t == TierAggregate {
		return e.capacity[t]
	}
	return int(float64(e.capacity[t]) * e.cfg.MaxLoadFactor)
}

// admit walks the downgrade ladder until a tier with spare capacity is
// found. Iterative and bounded by the tier count; TierAggregate always
// accepts.
func (e *Engine) admit(desired Tier, counts *[tierCount]int) Tier {
	tier := desired
	for tier != TierAggregate && counts[tier] >= e.effectiveCapacityLocked(tier) {
		tier, _ = tier.Lower()
	}
	counts[tier]++
	return tier
}

func (e *Engine) record(id EntityID, tier Tier, score float64, factors PriorityFactors, now time.Time) {
	next := now.Add(e.tiers.MustConfig(tier).UpdatePeriod())
	a, ok := e.assignments[id]
	if !ok {
		e.assignments[id] = &Assignment{
			EntityID:   id,
			Tier:       tier,
			UpdatedAt:  now,
			NextUpdate: next,
			Score:      score,
			Factors:    factors,
		}
		return
	}
	// nextUpdate never moves backwards across passes.
	if next.Before(a.NextUpdate) {
		next = a.NextUpdate
	}
	if now.After(a.UpdatedAt) {
		a.UpdatedAt = now
	}
	a.Tier = tier
	a.NextUpdate = next
	a.Score = score
	a.Factors = factors
}

func (e *Engine) recordFrameLocked(d time.Duration) {
	if d <= 0 {
		return
	}
	e.frames[e.frameIdx] = d
	e.frameIdx = (e.frameIdx + 1) % len(e.frames)
	if e.frameLen < len(e.frames) {
		e.frameLen++
	}
}

func (e *Engine) systemLoadLocked() float64 {
	if e.frameLen == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < e.frameLen; i++ {
		total += e.frames[i]
	}
	avg := float64(total) / float64(e.frameLen)
	target := float64(time.Second) / e.cfg.TargetFPS
	load := avg / target
	if load > 1 {
		return 1
	}
	return load
}
