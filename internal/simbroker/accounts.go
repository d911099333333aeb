package simbroker

import (
	"sync"

	"github.com/ndrandal/simbroker/internal/ledger"
)

// CachedPosition mirrors one pending or open position alongside the
// identifiers needed to find it again in its owning ledger.
type CachedPosition struct {
	PosID  ledger.PosID
	AcctID ledger.AcctID
	Pos    *ledger.Position
}

// symbolPositions is the per-symbol cache slice pair the tick tracker
// scans every NewTick, instead of walking every ledger.
type symbolPositions struct {
	pending []CachedPosition
	open    []CachedPosition
}

// Accounts is the collection of ledgers keyed by account id, plus the
// position cache indexed by symbol. The cache is a derived view: every
// mutation goes through one of the helpers below, which updates both the
// owning ledger and the mirror in the same call — direct mutation of
// either side alone is a bug (§9, cyclic graph note).
type Accounts struct {
	mu        sync.Mutex
	data      map[ledger.AcctID]*ledger.Account
	positions []symbolPositions
}

// NewAccounts creates an empty accounts collection sized for numSymbols.
func NewAccounts(numSymbols int) *Accounts {
	return &Accounts{
		data:      make(map[ledger.AcctID]*ledger.Account),
		positions: make([]symbolPositions, numSymbols),
	}
}

// CreateAccount adds a new account with a fresh ledger at the given
// starting balance.
func (a *Accounts) CreateAccount(id ledger.AcctID, startingBalance uint64) *ledger.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct := &ledger.Account{ID: id, Ledger: ledger.New(startingBalance), Live: false}
	a.data[id] = acct
	return acct
}

// Get returns the account for id.
func (a *Accounts) Get(id ledger.AcctID) (*ledger.Account, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.data[id]
	return acct, ok
}

// List returns every account id, in no particular order.
func (a *Accounts) List() []ledger.AcctID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ledger.AcctID, 0, len(a.data))
	for id := range a.data {
		out = append(out, id)
	}
	return out
}

// OrderPlaced records a newly pending position in the per-symbol cache.
func (a *Accounts) OrderPlaced(acctID ledger.AcctID, posID ledger.PosID, symIx int, pos *ledger.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symIx].pending = append(a.positions[symIx].pending, CachedPosition{
		PosID: posID, AcctID: acctID, Pos: pos.Clone(),
	})
}

// OrderModified refreshes the cached mirror of a pending position after
// ModifyOrder mutated the ledger's copy.
func (a *Accounts) OrderModified(symIx int, posID ledger.PosID, pos *ledger.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.positions[symIx].pending {
		if a.positions[symIx].pending[i].PosID == posID {
			a.positions[symIx].pending[i].Pos = pos.Clone()
			return
		}
	}
}

// OrderCancelled removes a pending position from the cache.
func (a *Accounts) OrderCancelled(symIx int, posID ledger.PosID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	removeCached(&a.positions[symIx].pending, posID)
}

// PositionOpened moves a position from the pending cache to the open
// cache (or inserts directly into open, for MarketOrder fills that never
// went through PlaceOrder).
func (a *Accounts) PositionOpened(acctID ledger.AcctID, posID ledger.PosID, symIx int, pos *ledger.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	removeCached(&a.positions[symIx].pending, posID)
	a.positions[symIx].open = append(a.positions[symIx].open, CachedPosition{
		PosID: posID, AcctID: acctID, Pos: pos.Clone(),
	})
}

// PositionModified refreshes the cached mirror of an open position.
func (a *Accounts) PositionModified(symIx int, posID ledger.PosID, pos *ledger.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.positions[symIx].open {
		if a.positions[symIx].open[i].PosID == posID {
			a.positions[symIx].open[i].Pos = pos.Clone()
			return
		}
	}
}

// PositionClosed removes an open position from the cache.
func (a *Accounts) PositionClosed(symIx int, posID ledger.PosID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	removeCached(&a.positions[symIx].open, posID)
}

// PendingSnapshot returns a copy of the pending cache for a symbol, safe
// to iterate while the loop may concurrently mutate the live cache (it
// never does from another goroutine, but this keeps the tick-tracking
// loop's iteration independent of the helpers' locking).
func (a *Accounts) PendingSnapshot(symIx int) []CachedPosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CachedPosition, len(a.positions[symIx].pending))
	copy(out, a.positions[symIx].pending)
	return out
}

// Snapshot returns a deep copy of every account's ledger, keyed by
// account id, for persistence (§6.2). Like PendingSnapshot/OpenSnapshot,
// this is safe to call concurrently with the loop's own cache helpers,
// which all take the same lock.
func (a *Accounts) Snapshot() map[ledger.AcctID]*ledger.Ledger {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[ledger.AcctID]*ledger.Ledger, len(a.data))
	for id, acct := range a.data {
		out[id] = acct.Ledger.Clone()
	}
	return out
}

// RestoreAccount installs an already-populated ledger for id, rebuilding
// the derived position cache from its pending/open maps. Used only by
// persistence restore, before the registry is armed.
func (a *Accounts) RestoreAccount(id ledger.AcctID, led *ledger.Ledger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[id] = &ledger.Account{ID: id, Ledger: led}
	for posID, pos := range led.Pending {
		a.positions[pos.SymbolIx].pending = append(a.positions[pos.SymbolIx].pending, CachedPosition{
			PosID: posID, AcctID: id, Pos: pos.Clone(),
		})
	}
	for posID, pos := range led.Open {
		a.positions[pos.SymbolIx].open = append(a.positions[pos.SymbolIx].open, CachedPosition{
			PosID: posID, AcctID: id, Pos: pos.Clone(),
		})
	}
}

// OpenSnapshot returns a copy of the open cache for a symbol.
func (a *Accounts) OpenSnapshot(symIx int) []CachedPosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CachedPosition, len(a.positions[symIx].open))
	copy(out, a.positions[symIx].open)
	return out
}

func removeCached(slice *[]CachedPosition, posID ledger.PosID) {
	s := *slice
	for i := 0; i < len(s); i++ {
		if s[i].PosID == posID {
			s = append(s[:i], s[i+1:]...)
			*slice = s
			return
		}
	}
}
