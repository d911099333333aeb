package simbroker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ndrandal/simbroker/internal/ledger"
)

func TestAccountsSnapshotRoundTrip(t *testing.T) {
	a := NewAccounts(2)
	id := uuid.New()
	acct := a.CreateAccount(id, 500_000)

	posID := uuid.New()
	entry := int64(10_0000)
	pos := &ledger.Position{SymbolIx: 0, Size: 5, Long: true, Price: &entry}
	acct.Ledger.Pending[posID] = pos
	a.OrderPlaced(id, posID, 0, pos)

	snap := a.Snapshot()
	led, ok := snap[id]
	if !ok {
		t.Fatalf("snapshot missing account %s", id)
	}
	if led.BuyingPower != 500_000 {
		t.Errorf("BuyingPower = %d, want 500000", led.BuyingPower)
	}
	if _, ok := led.Pending[posID]; !ok {
		t.Fatalf("snapshot missing pending position %s", posID)
	}

	// mutating the snapshot must not affect the live ledger.
	led.BuyingPower = 0
	if liveLed, _ := a.Get(id); liveLed.Ledger.BuyingPower != 500_000 {
		t.Errorf("Snapshot is not a deep copy: live BuyingPower changed to %d", liveLed.Ledger.BuyingPower)
	}
}

func TestRestoreAccountRebuildsCache(t *testing.T) {
	a := NewAccounts(2)
	id := uuid.New()
	posID := uuid.New()
	entry := int64(10_0000)

	led := ledger.New(750_000)
	led.Open[posID] = &ledger.Position{SymbolIx: 1, Size: 3, Long: false, Price: &entry}

	a.RestoreAccount(id, led)

	acct, ok := a.Get(id)
	if !ok {
		t.Fatalf("restored account %s not found", id)
	}
	if acct.Ledger.BuyingPower != 750_000 {
		t.Errorf("BuyingPower = %d, want 750000", acct.Ledger.BuyingPower)
	}

	open := a.OpenSnapshot(1)
	if len(open) != 1 || open[0].PosID != posID {
		t.Fatalf("restored open cache = %+v, want one entry for %s", open, posID)
	}
}
