package tickgen

import "testing"

func TestGBMSourceDeterministic(t *testing.T) {
	cfg := GBMConfig{
		BasePrice: 100, TickSize: 0.01, VolatilityMultiplier: 1,
		SpreadPips: 2, DecimalPrecision: 2, StepNs: 1000, MaxTicks: 20,
	}
	a := NewGBMSource(7, cfg)
	b := NewGBMSource(7, cfg)

	for i := 0; i < 20; i++ {
		ta, oka := a.Next()
		tb, okb := b.Next()
		if oka != okb || ta != tb {
			t.Fatalf("tick %d diverged: %+v (%v) vs %+v (%v)", i, ta, oka, tb, okb)
		}
	}
}

func TestGBMSourceExhausts(t *testing.T) {
	cfg := GBMConfig{BasePrice: 100, DecimalPrecision: 2, MaxTicks: 3}
	g := NewGBMSource(1, cfg)
	for i := 0; i < 3; i++ {
		if _, ok := g.Next(); !ok {
			t.Fatalf("tick %d: expected ok=true before MaxTicks", i)
		}
	}
	if _, ok := g.Next(); ok {
		t.Fatal("expected exhaustion after MaxTicks")
	}
}

func TestGBMSourceBidAskSpread(t *testing.T) {
	cfg := GBMConfig{BasePrice: 100, DecimalPrecision: 2, SpreadPips: 4, MaxTicks: 5}
	g := NewGBMSource(3, cfg)
	tick, ok := g.Next()
	if !ok {
		t.Fatal("expected a tick")
	}
	if tick.Ask-tick.Bid != 4 {
		t.Fatalf("spread = %d, want 4", tick.Ask-tick.Bid)
	}
}

func TestStressSourceTimestampsAscend(t *testing.T) {
	gbmCfg := GBMConfig{BasePrice: 50, DecimalPrecision: 2, MaxTicks: 200}
	s := NewStressSource(11, gbmCfg, DefaultStressConfig())

	var last uint64
	for i := 0; i < 200; i++ {
		tick, ok := s.Next()
		if !ok {
			t.Fatalf("tick %d: unexpected exhaustion", i)
		}
		if tick.Timestamp < last {
			t.Fatalf("tick %d: timestamp went backwards (%d < %d)", i, tick.Timestamp, last)
		}
		last = tick.Timestamp
	}
}

func TestStressSourceDeterministic(t *testing.T) {
	gbmCfg := GBMConfig{BasePrice: 50, DecimalPrecision: 2, MaxTicks: 50}
	a := NewStressSource(5, gbmCfg, DefaultStressConfig())
	b := NewStressSource(5, gbmCfg, DefaultStressConfig())

	for i := 0; i < 50; i++ {
		ta, oka := a.Next()
		tb, okb := b.Next()
		if oka != okb || ta != tb {
			t.Fatalf("tick %d diverged", i)
		}
	}
}
