package symbol

import "testing"

// sliceSource replays a fixed slice of ticks, then reports exhaustion.
type sliceSource struct {
	ticks []Tick
	pos   int
}

func (s *sliceSource) Next() (Tick, bool) {
	if s.pos >= len(s.ticks) {
		return Tick{}, false
	}
	t := s.ticks[s.pos]
	s.pos++
	return t, true
}

func TestAddAndLookup(t *testing.T) {
	r := New()
	ix, err := r.Add("TEST", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 1, Bid: 100, Ask: 101}}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ix != 0 {
		t.Fatalf("first symbol index = %d, want 0", ix)
	}
	got, ok := r.IndexOf("TEST")
	if !ok || got != 0 {
		t.Fatalf("IndexOf(TEST) = (%d, %v), want (0, true)", got, ok)
	}
	if !r.Contains("TEST") {
		t.Fatal("Contains(TEST) = false")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	r := New()
	src := &sliceSource{ticks: []Tick{{Timestamp: 1}}}
	if _, err := r.Add("TEST", false, 2, src); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if _, err := r.Add("TEST", false, 2, &sliceSource{}); err != ErrDuplicateName {
		t.Fatalf("duplicate Add error = %v, want ErrDuplicateName", err)
	}
}

func TestAddRejectedAfterArm(t *testing.T) {
	r := New()
	r.Arm()
	if _, err := r.Add("TEST", false, 2, &sliceSource{}); err != ErrArmed {
		t.Fatalf("Add after Arm error = %v, want ErrArmed", err)
	}
}

func TestFXNameMustBeSixChars(t *testing.T) {
	r := New()
	if _, err := r.Add("EUR", true, 4, &sliceSource{}); err != ErrBadFXName {
		t.Fatalf("Add with short fx name error = %v, want ErrBadFXName", err)
	}
	if _, err := r.Add("EURUSD", true, 4, &sliceSource{ticks: []Tick{{Timestamp: 1}}}); err != nil {
		t.Fatalf("Add with valid fx name: %v", err)
	}
}

func TestNextTickOrderingAndTieBreak(t *testing.T) {
	r := New()
	r.Add("A", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 5}, {Timestamp: 10}}})
	r.Add("B", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 5}, {Timestamp: 6}}})

	ix, tick, ok := r.NextTick()
	if !ok {
		t.Fatal("NextTick() ok = false, want true")
	}
	// Both symbols primed with timestamp 5; lowest index (A=0) wins the tie.
	if ix != 0 || tick.Timestamp != 5 {
		t.Fatalf("NextTick() = (%d, %d), want (0, 5)", ix, tick.Timestamp)
	}

	ix, tick, ok = r.NextTick()
	if !ok || ix != 1 || tick.Timestamp != 5 {
		t.Fatalf("second NextTick() = (%d, %d, %v), want (1, 5, true)", ix, tick.Timestamp, ok)
	}
}

func TestNextTickExhaustion(t *testing.T) {
	r := New()
	r.Add("A", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 1}}})

	if _, _, ok := r.NextTick(); !ok {
		t.Fatal("first NextTick() ok = false")
	}
	if _, _, ok := r.NextTick(); ok {
		t.Fatal("NextTick() after exhaustion ok = true, want false")
	}
}

func TestPriceOutOfRange(t *testing.T) {
	r := New()
	r.Add("A", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 1}}})

	if _, ok := r.Price(0); !ok {
		t.Fatal("Price(0) ok = false, want true")
	}
	if _, ok := r.Price(1); ok {
		t.Fatal("Price(1) ok = true, want false (out of range)")
	}
	if _, ok := r.Price(-1); ok {
		t.Fatal("Price(-1) ok = true, want false")
	}
}

func TestSetPriceAndSendClient(t *testing.T) {
	r := New()
	r.Add("A", false, 2, &sliceSource{ticks: []Tick{{Timestamp: 1}}})
	r.SetPrice(0, 100, 101)

	got, ok := r.Price(0)
	if !ok || got.Bid != 100 || got.Ask != 101 {
		t.Fatalf("Price(0) = %+v, ok=%v", got, ok)
	}

	ch, ok := r.ClientChannel(0)
	if !ok {
		t.Fatal("ClientChannel(0) ok = false")
	}

	done := make(chan struct{})
	go func() {
		r.SendClient(0, Tick{Timestamp: 99, Bid: 1, Ask: 2})
		close(done)
	}()

	select {
	case tick := <-ch:
		if tick.Timestamp != 99 {
			t.Fatalf("received tick timestamp = %d, want 99", tick.Timestamp)
		}
	}
	<-done
}
