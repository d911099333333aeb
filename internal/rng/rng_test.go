package rng

import (
	"math"
	"testing"
)

func TestDeterminism(t *testing.T) {
	r1 := New(42)
	r2 := New(42)
	for i := 0; i < 1000; i++ {
		if r1.Uint32() != r2.Uint32() {
			t.Fatalf("determinism broken at iteration %d", i)
		}
	}
}

func TestDifferentSeeds(t *testing.T) {
	r1 := New(42)
	r2 := New(43)
	same := 0
	for i := 0; i < 100; i++ {
		if r1.Uint32() == r2.Uint32() {
			same++
		}
	}
	if same > 5 {
		t.Fatalf("different seeds produced %d/100 identical values", same)
	}
}

func TestFloat64Bounds(t *testing.T) {
	r := New(42)
	for i := 0; i < 10000; i++ {
		v := r.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64() = %f, out of [0, 1)", v)
		}
	}
}

func TestIntnBounds(t *testing.T) {
	r := New(42)
	for i := 0; i < 10000; i++ {
		v := r.Intn(10)
		if v < 0 || v >= 10 {
			t.Fatalf("Intn(10) = %d, out of [0, 10)", v)
		}
	}
}

func TestIntnZero(t *testing.T) {
	r := New(42)
	if r.Intn(0) != 0 {
		t.Fatal("Intn(0) should return 0")
	}
}

func TestIntRangeEqual(t *testing.T) {
	r := New(42)
	for i := 0; i < 100; i++ {
		v := r.IntRange(7, 7)
		if v != 7 {
			t.Fatalf("IntRange(7,7) = %d, want 7", v)
		}
	}
}

func TestIntRangeReversed(t *testing.T) {
	r := New(42)
	v := r.IntRange(10, 5)
	if v != 10 {
		t.Fatalf("IntRange(10,5) = %d, want 10", v)
	}
}

func TestGaussianStats(t *testing.T) {
	r := New(42)
	n := 50000
	sum := 0.0
	sumSq := 0.0
	for i := 0; i < n; i++ {
		v := r.Gaussian()
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	if math.Abs(mean) > 0.05 {
		t.Errorf("Gaussian mean = %f, expected ~0", mean)
	}
	if math.Abs(variance-1.0) > 0.1 {
		t.Errorf("Gaussian variance = %f, expected ~1", variance)
	}
}

func TestWeightedPickDistribution(t *testing.T) {
	r := New(42)
	weights := []float64{0, 0, 1} // should always pick index 2
	for i := 0; i < 100; i++ {
		v := r.WeightedPick(weights)
		if v != 2 {
			t.Fatalf("WeightedPick with [0,0,1] returned %d, want 2", v)
		}
	}
}

func TestStateSaveRestore(t *testing.T) {
	r := New(42)
	for i := 0; i < 100; i++ {
		r.Uint32()
	}
	st, inc := r.State()
	expected := make([]uint32, 50)
	for i := range expected {
		expected[i] = r.Uint32()
	}
	r.RestoreState(st, inc)
	for i, want := range expected {
		got := r.Uint32()
		if got != want {
			t.Fatalf("mismatch at %d after restore: got %d, want %d", i, got, want)
		}
	}
}

func TestStateBytesRoundTrip(t *testing.T) {
	r := New(42)
	for i := 0; i < 100; i++ {
		r.Uint32()
	}
	buf := r.StateBytes()
	if len(buf) != 16 {
		t.Fatalf("StateBytes length = %d, want 16", len(buf))
	}
	expected := make([]uint32, 50)
	for i := range expected {
		expected[i] = r.Uint32()
	}
	r.RestoreStateBytes(buf)
	for i, want := range expected {
		got := r.Uint32()
		if got != want {
			t.Fatalf("mismatch at %d after RestoreStateBytes: got %d, want %d", i, got, want)
		}
	}
}

func TestNextIDDeterministic(t *testing.T) {
	r1 := New(7)
	r2 := New(7)
	for i := 0; i < 50; i++ {
		id1 := r1.NextID()
		id2 := r2.NextID()
		if id1 != id2 {
			t.Fatalf("NextID diverged at iteration %d: %s != %s", i, id1, id2)
		}
	}
}

func TestNextIDUnique(t *testing.T) {
	r := New(7)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := r.NextID().String()
		if seen[id] {
			t.Fatalf("duplicate id %s at iteration %d", id, i)
		}
		seen[id] = true
	}
}
