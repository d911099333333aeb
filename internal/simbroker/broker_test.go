package simbroker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// sliceSource replays a fixed tick list, then reports exhausted.
type sliceSource struct {
	ticks []symbol.Tick
	i     int
}

func (s *sliceSource) Next() (symbol.Tick, bool) {
	if s.i >= len(s.ticks) {
		return symbol.Tick{}, false
	}
	t := s.ticks[s.i]
	s.i++
	return t, true
}

func testSettings() Settings {
	s := DefaultSettings()
	s.StartingBalance = 1_000_000
	return s
}

func newTestBroker(t *testing.T, symName string, ticks []symbol.Tick, isFX bool, decimals uint8) (*SimBroker, int, uuid.UUID) {
	t.Helper()
	reg := symbol.New()
	ix, err := reg.Add(symName, isFX, decimals, &sliceSource{ticks: ticks})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	b := NewSimBroker(reg, testSettings(), 42, zerolog.Nop())
	acctID := uuid.New()
	b.accounts.CreateAccount(acctID, b.settings.StartingBalance)
	return b, ix, acctID
}

func TestPingRoundTrip(t *testing.T) {
	b, _, _ := newTestBroker(t, "TEST", nil, false, 0)
	res := b.execAction(Action{Kind: ActionPing})
	if res.Err != nil {
		t.Fatalf("Ping errored: %v", res.Err)
	}
	pong, ok := res.Message.(ledger.Pong)
	if !ok {
		t.Fatalf("expected Pong, got %T", res.Message)
	}
	if pong.TimeReceived != b.now {
		t.Fatalf("Pong.TimeReceived = %d, want %d", pong.TimeReceived, b.now)
	}
}

func TestMarketBuyThenStopLossTrigger(t *testing.T) {
	b, ix, acctID := newTestBroker(t, "TEST", nil, false, 0)
	b.registry.SetPrice(ix, 100, 101)

	stop := int64(96)
	res := b.execAction(Action{
		Kind: ActionMarketOrder, AcctID: acctID, SymbolIx: ix,
		Size: 10, Long: true, Stop: &stop,
	})
	if res.Err != nil {
		t.Fatalf("MarketOrder errored: %v", res.Err)
	}
	opened, ok := res.Message.(ledger.PositionOpened)
	if !ok {
		t.Fatalf("expected PositionOpened, got %T", res.Message)
	}
	if opened.Price != 101 {
		t.Fatalf("open price = %d, want 101", opened.Price)
	}

	notes := b.tickPositions(ix, 100, 101)
	if len(notes) != 0 {
		t.Fatalf("expected no closures at unchanged price, got %v", notes)
	}

	b.registry.SetPrice(ix, 95, 96)
	notes = b.tickPositions(ix, 95, 96)
	var closed *ledger.PositionClosed
	for i := range notes {
		if pc, ok := notes[i].(ledger.PositionClosed); ok {
			closed = &pc
		}
	}
	if closed == nil {
		t.Fatalf("expected PositionClosed among notes, got %v", notes)
	}
	if closed.Price != 95 || closed.Reason != ledger.ClosureStopLoss {
		t.Fatalf("closed = %+v, want price 95 reason StopLoss", closed)
	}
}

func TestLimitFillsAtLaterTick(t *testing.T) {
	b, ix, acctID := newTestBroker(t, "TEST", nil, false, 0)
	b.registry.SetPrice(ix, 100, 101)

	entry := int64(99)
	res := b.execAction(Action{
		Kind: ActionLimitOrder, AcctID: acctID, SymbolIx: ix,
		Size: 5, Long: true, EntryPrice: &entry,
	})
	if res.Err != nil {
		t.Fatalf("LimitOrder errored: %v", res.Err)
	}
	if _, ok := res.Message.(ledger.OrderPlaced); !ok {
		t.Fatalf("expected OrderPlaced, got %T", res.Message)
	}

	b.registry.SetPrice(ix, 98, 99)
	notes := b.tickPositions(ix, 98, 99)
	var opened *ledger.PositionOpened
	for i := range notes {
		if po, ok := notes[i].(ledger.PositionOpened); ok {
			opened = &po
		}
	}
	if opened == nil {
		t.Fatalf("expected PositionOpened among notes, got %v", notes)
	}
	if opened.Price != 99 {
		t.Fatalf("fill price = %d, want 99", opened.Price)
	}
}

func TestCancelBeforeFill(t *testing.T) {
	b, ix, acctID := newTestBroker(t, "TEST", nil, false, 0)
	b.registry.SetPrice(ix, 100, 101)

	startingBalance := b.accounts.mustGet(t, acctID).Ledger.BuyingPower

	entry := int64(90)
	res := b.execAction(Action{
		Kind: ActionLimitOrder, AcctID: acctID, SymbolIx: ix,
		Size: 5, Long: true, EntryPrice: &entry,
	})
	placed, ok := res.Message.(ledger.OrderPlaced)
	if !ok {
		t.Fatalf("expected OrderPlaced, got %T", res.Message)
	}

	res = b.execAction(Action{Kind: ActionCancelOrder, AcctID: acctID, PosID: placed.PosID})
	if res.Err != nil {
		t.Fatalf("CancelOrder errored: %v", res.Err)
	}
	if _, ok := res.Message.(ledger.OrderCancelled); !ok {
		t.Fatalf("expected OrderCancelled, got %T", res.Message)
	}

	acct, _ := b.accounts.Get(acctID)
	if acct.Ledger.BuyingPower != startingBalance {
		t.Fatalf("buying power = %d, want restored %d", acct.Ledger.BuyingPower, startingBalance)
	}
}

func TestFXValuation(t *testing.T) {
	reg := symbol.New()
	ix, err := reg.Add("EURUSD", true, 4, &sliceSource{})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	reg.SetPrice(ix, 106143, 106147)

	settings := testSettings()
	settings.FX = true
	settings.FXBaseCurrency = "USD"
	settings.FXLotSize = 1000
	settings.StartingBalance = 200_000_000

	b := NewSimBroker(reg, settings, 1, zerolog.Nop())
	acctID := uuid.New()
	b.accounts.CreateAccount(acctID, settings.StartingBalance)

	res := b.execAction(Action{
		Kind: ActionMarketOrder, AcctID: acctID, SymbolIx: ix,
		Size: 1, Long: true,
	})
	if res.Err != nil {
		t.Fatalf("MarketOrder errored: %v", res.Err)
	}

	acct, _ := b.accounts.Get(acctID)
	wantBalance := settings.StartingBalance - 106_147_000
	if acct.Ledger.BuyingPower != wantBalance {
		t.Fatalf("buying power = %d, want %d", acct.Ledger.BuyingPower, wantBalance)
	}
}

func TestResizeToZeroEqualsClose(t *testing.T) {
	b, ix, acctID := newTestBroker(t, "TEST", nil, false, 0)
	b.registry.SetPrice(ix, 100, 101)

	res := b.execAction(Action{
		Kind: ActionMarketOrder, AcctID: acctID, SymbolIx: ix,
		Size: 5, Long: true,
	})
	opened, ok := res.Message.(ledger.PositionOpened)
	if !ok {
		t.Fatalf("expected PositionOpened, got %T", res.Message)
	}

	res = b.execAction(Action{
		Kind: ActionMarketClose, AcctID: acctID, PosID: opened.PosID, Size: 5,
	})
	if res.Err != nil {
		t.Fatalf("MarketClose errored: %v", res.Err)
	}
	closed, ok := res.Message.(ledger.PositionClosed)
	if !ok {
		t.Fatalf("expected PositionClosed, got %T", res.Message)
	}
	if closed.Reason != ledger.ClosureMarketClose {
		t.Fatalf("reason = %v, want MarketClose", closed.Reason)
	}

	acct, _ := b.accounts.Get(acctID)
	if _, stillOpen := acct.Ledger.Open[opened.PosID]; stillOpen {
		t.Fatalf("position still open after full MarketClose")
	}
	if _, closedFound := acct.Ledger.Closed[opened.PosID]; !closedFound {
		t.Fatalf("position not found in closed map after full MarketClose")
	}
}

// mustGet is a test-only convenience wrapper around Accounts.Get.
func (a *Accounts) mustGet(t *testing.T, id ledger.AcctID) *ledger.Account {
	t.Helper()
	acct, ok := a.Get(id)
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	return acct
}
