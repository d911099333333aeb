// Package tickgen provides deterministic synthetic tick generators that
// implement symbol.Source — the demo binary's replacement for a real
// historical-tick reader. Every generator here draws its randomness from
// a seeded internal/rng.RNG and advances simulated time by a computed
// step per tick (fixed for GBMSource, intensity-dependent for
// StressSource); none of them touch the wall clock, which is what lets a
// simulation seeded the same way reproduce bit-identical tick streams.
package tickgen

import (
	"math"

	"github.com/ndrandal/simbroker/internal/rng"
	"github.com/ndrandal/simbroker/internal/symbol"
)

const (
	baseDailyVol = 0.02
	ticksPerDay  = 86400
)

// GBMConfig parameterizes one geometric-Brownian-motion price path.
type GBMConfig struct {
	BasePrice            float64
	TickSize             float64
	VolatilityMultiplier float64
	SpreadPips           int64
	DecimalPrecision     uint8
	StepNs               uint64
	// MaxTicks bounds the stream length; zero means unbounded (the
	// generator never reports exhaustion on its own).
	MaxTicks int
}

// GBMSource is a symbol.Source driven by log-normal returns: each step
// multiplies the running price by exp(vol * Z) for a per-tick Z drawn
// from the seeded RNG's Gaussian generator, the same model
// internal/engine's market simulator used, generalized from a
// sector-correlated multi-symbol engine to one independent path per
// source instance.
type GBMSource struct {
	rng       *rng.RNG
	cfg       GBMConfig
	price     float64
	timestamp uint64
	emitted   int
}

// NewGBMSource creates a GBM tick source seeded independently of the
// broker's own PRNG — tick generation is a data source, not part of the
// core's identifier/ordering determinism surface, so it gets its own seed.
func NewGBMSource(seed int64, cfg GBMConfig) *GBMSource {
	return &GBMSource{
		rng:   rng.New(seed),
		cfg:   cfg,
		price: cfg.BasePrice,
	}
}

// Next implements symbol.Source.
func (g *GBMSource) Next() (symbol.Tick, bool) {
	if g.cfg.MaxTicks > 0 && g.emitted >= g.cfg.MaxTicks {
		return symbol.Tick{}, false
	}

	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * g.cfg.VolatilityMultiplier
	z := g.rng.Gaussian()
	g.price *= math.Exp(tickVol * z)

	if g.cfg.TickSize > 0 {
		g.price = math.Round(g.price/g.cfg.TickSize) * g.cfg.TickSize
		if g.price < g.cfg.TickSize {
			g.price = g.cfg.TickSize
		}
	}

	mid := toPips(g.price, g.cfg.DecimalPrecision)
	half := g.cfg.SpreadPips / 2
	tick := symbol.Tick{
		Timestamp: g.timestamp,
		Bid:       mid - half,
		Ask:       mid + (g.cfg.SpreadPips - half),
	}

	g.timestamp += g.cfg.StepNs
	g.emitted++
	return tick, true
}

func toPips(price float64, decimals uint8) int64 {
	scale := math.Pow(10, float64(decimals))
	return int64(math.Round(price * scale))
}
