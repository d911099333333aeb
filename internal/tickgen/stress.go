package tickgen

import (
	"math"

	"github.com/ndrandal/simbroker/internal/rng"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// StressPhase is the current intensity regime of a StressSource.
type StressPhase int

const (
	PhaseCalm StressPhase = iota
	PhaseActive
	PhaseBurst
)

func (p StressPhase) String() string {
	switch p {
	case PhaseCalm:
		return "calm"
	case PhaseActive:
		return "active"
	case PhaseBurst:
		return "burst"
	default:
		return "unknown"
	}
}

// StressConfig holds the per-phase tick-spacing bounds, in nanoseconds.
// This is the nanosecond-step analogue of the original's millisecond
// wall-clock intervals: the step between ticks shrinks as intensity
// rises within a phase, and each new phase is a weighted random pick
// among calm, active and burst, biased by the current intensity.
type StressConfig struct {
	CalmMinNs, CalmMaxNs     uint64
	ActiveMinNs, ActiveMaxNs uint64
	BurstMinNs, BurstMaxNs   uint64

	// Phase durations are expressed in ticks, not wall-clock time — the
	// core's determinism requirement forbids consulting the wall clock
	// inside anything that feeds the simulation loop.
	CalmTicks, ActiveTicks, BurstTicks int
}

// DefaultStressConfig mirrors the shape of the original millisecond
// defaults, rebased to nanoseconds and tick counts.
func DefaultStressConfig() StressConfig {
	return StressConfig{
		CalmMinNs: 10_000_000, CalmMaxNs: 50_000_000,
		ActiveMinNs: 2_000_000, ActiveMaxNs: 10_000_000,
		BurstMinNs: 1_000_000, BurstMaxNs: 2_000_000,
		CalmTicks: 600, ActiveTicks: 300, BurstTicks: 100,
	}
}

// StressSource wraps a GBM price path with a variable tick cadence: a
// sine wave blended with a mean-reverting random walk drives an
// intensity in [0,1], which selects both the current phase (calm/
// active/burst) and where in that phase's [min,max] step range the next
// tick lands.
type StressSource struct {
	price *GBMSource
	rng   *rng.RNG
	cfg   StressConfig

	phase        StressPhase
	ticksInPhase int
	intensity    float64

	t          float64
	randomWalk float64

	timestamp uint64
	emitted   int
	maxTicks  int
}

// NewStressSource creates a stress-phased tick source. seed drives both
// the underlying GBM path and the phase/intensity walk, via two RNGs
// seeded with seed and seed+1; both change together when seed changes.
func NewStressSource(seed int64, gbmCfg GBMConfig, stressCfg StressConfig) *StressSource {
	return &StressSource{
		price:    NewGBMSource(seed, gbmCfg),
		rng:      rng.New(seed + 1),
		cfg:      stressCfg,
		phase:    PhaseCalm,
		maxTicks: gbmCfg.MaxTicks,
	}
}

// Phase returns the current stress phase.
func (s *StressSource) Phase() StressPhase { return s.phase }

// Intensity returns the current intensity level in [0, 1].
func (s *StressSource) Intensity() float64 { return s.intensity }

// Next implements symbol.Source.
func (s *StressSource) Next() (symbol.Tick, bool) {
	if s.maxTicks > 0 && s.emitted >= s.maxTicks {
		return symbol.Tick{}, false
	}

	s.t += 0.01
	sine := (math.Sin(s.t) + 1) / 2

	s.randomWalk += s.rng.Gaussian() * 0.02
	s.randomWalk *= 0.98

	s.intensity = sine + s.randomWalk
	if s.rng.Float64() < 0.001 {
		s.intensity = 1.0
	}
	if s.intensity < 0 {
		s.intensity = 0
	}
	if s.intensity > 1 {
		s.intensity = 1
	}

	s.ticksInPhase++
	if s.ticksInPhase >= s.phaseLength() {
		s.ticksInPhase = 0
		s.updatePhase()
	}

	step := s.currentStepNs()
	s.timestamp += step

	priceTick, ok := s.price.Next()
	if !ok {
		return symbol.Tick{}, false
	}
	priceTick.Timestamp = s.timestamp

	s.emitted++
	return priceTick, true
}

// phaseLength picks this phase instance's duration in ticks, jittered
// ±20% around the configured base so successive calm/active/burst
// stretches aren't all identical lengths.
func (s *StressSource) phaseLength() int {
	var base int
	switch s.phase {
	case PhaseActive:
		base = s.cfg.ActiveTicks
	case PhaseBurst:
		base = s.cfg.BurstTicks
	default:
		base = s.cfg.CalmTicks
	}
	jitter := base / 5
	if jitter == 0 {
		return base
	}
	return s.rng.IntRange(base-jitter, base+jitter)
}

// phaseWeights returns the calm/active/burst selection weights for the
// current intensity tier: higher intensity biases the pick toward more
// volatile phases without making any given transition impossible. This
// is the same weighted-choice shape as internal/orderbook/simulator.go's
// action selection, applied to phase transitions instead of book events.
func (s *StressSource) phaseWeights() []float64 {
	switch {
	case s.intensity < 0.3:
		return []float64{0.85, 0.13, 0.02}
	case s.intensity < 0.7:
		return []float64{0.20, 0.65, 0.15}
	default:
		return []float64{0.05, 0.35, 0.60}
	}
}

func (s *StressSource) updatePhase() {
	switch s.rng.WeightedPick(s.phaseWeights()) {
	case 0:
		s.phase = PhaseCalm
	case 1:
		s.phase = PhaseActive
	default:
		s.phase = PhaseBurst
	}
}

func (s *StressSource) currentStepNs() uint64 {
	var lo, hi uint64
	switch s.phase {
	case PhaseActive:
		lo, hi = s.cfg.ActiveMinNs, s.cfg.ActiveMaxNs
	case PhaseBurst:
		lo, hi = s.cfg.BurstMinNs, s.cfg.BurstMaxNs
	default:
		lo, hi = s.cfg.CalmMinNs, s.cfg.CalmMaxNs
	}
	if hi <= lo {
		return lo
	}
	span := float64(hi - lo)
	step := float64(hi) - span*s.intensity
	return uint64(step)
}
