// Package symbol implements the simulator's symbol registry: per-symbol
// metadata, the current best bid/ask, a lazily-pulled tick source, a
// one-tick lookahead used to drive deterministic event ordering, and the
// one-slot blocking channel that paces delivery to the client.
//
// This is the registry described in the core design: it holds no trading
// logic of its own, only the bookkeeping the simulation loop needs to pick
// "what's the next tick across every stream" deterministically.
package symbol

import (
	"errors"
	"sync"
)

// Tick is one (bid, ask) observation at a timestamp for a symbol. Prices
// are integer pips at the symbol's decimal precision; the registry never
// deals in floating point.
type Tick struct {
	Timestamp uint64
	Bid       int64
	Ask       int64
}

// Source is a lazy, possibly-infinite sequence of Ticks in ascending
// timestamp order. Any producer — a file reader, a database cursor, a
// network feed, or a synthetic generator — can implement it. A Source
// that yields out-of-order ticks violates the registry's contract; the
// registry does not re-sort.
type Source interface {
	// Next returns the next tick, or ok=false when the source is
	// exhausted. Exhaustion is permanent: Next must keep returning
	// ok=false once it has done so.
	Next() (Tick, bool)
}

var (
	// ErrDuplicateName is returned by Add when the name is already registered.
	ErrDuplicateName = errors.New("symbol: duplicate name")
	// ErrArmed is returned by Add once the registry has been armed.
	ErrArmed = errors.New("symbol: registry is armed, no further symbols may be added")
	// ErrBadFXName is returned by Add when is_fx is set but name isn't a 6-letter pair.
	ErrBadFXName = errors.New("symbol: fx symbol name must be 6 characters (two 3-letter currency codes)")
)

type entry struct {
	name             string
	isFX             bool
	decimalPrecision uint8

	mu       sync.Mutex
	bid, ask int64
	nextTick *Tick
	source   Source

	// clientCh has capacity 1. A blocking send here is the simulator's
	// sole pacing mechanism: the loop cannot get more than one tick
	// ahead of whatever is reading this channel.
	clientCh chan Tick
}

// Registry holds every symbol known to a simulation.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	index   map[string]int
	armed   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers a new symbol backed by source, eagerly pulling one tick
// to prime next_tick so the priority queue can be seeded before the loop
// starts. Returns the symbol's index. Rejected once the registry is armed.
func (r *Registry) Add(name string, isFX bool, decimalPrecision uint8, source Source) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armed {
		return 0, ErrArmed
	}
	if _, ok := r.index[name]; ok {
		return 0, ErrDuplicateName
	}
	if isFX && len(name) != 6 {
		return 0, ErrBadFXName
	}

	e := &entry{
		name:             name,
		isFX:             isFX,
		decimalPrecision: decimalPrecision,
		source:           source,
		clientCh:         make(chan Tick, 1),
	}
	if t, ok := source.Next(); ok {
		e.nextTick = &t
	}

	ix := len(r.entries)
	r.entries = append(r.entries, e)
	r.index[name] = ix
	return ix, nil
}

// Arm freezes the registry against further Add calls. Called once when
// the simulation loop takes ownership.
func (r *Registry) Arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
}

// IndexOf returns the index of name, if registered.
func (r *Registry) IndexOf(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ix, ok := r.index[name]
	return ix, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.IndexOf(name)
	return ok
}

// Len returns the number of registered symbols.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Name returns the symbol name at ix.
func (r *Registry) Name(ix int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix < 0 || ix >= len(r.entries) {
		return "", false
	}
	return r.entries[ix].name, true
}

// IsFX reports whether the symbol at ix is an FX pair.
func (r *Registry) IsFX(ix int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix < 0 || ix >= len(r.entries) {
		return false
	}
	return r.entries[ix].isFX
}

// DecimalPrecision returns the symbol's pip decimal precision.
func (r *Registry) DecimalPrecision(ix int) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix < 0 || ix >= len(r.entries) {
		return 0
	}
	return r.entries[ix].decimalPrecision
}

// NextTick scans every symbol with a primed next_tick and returns the one
// with the minimum timestamp, refilling that symbol's next_tick from its
// source. Ties are broken by lowest symbol index — arbitrary, but fixed,
// which is what determinism requires. Returns ok=false only when every
// source is exhausted.
func (r *Registry) NextTick() (ix int, tick Tick, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	for i, e := range r.entries {
		if e.nextTick == nil {
			continue
		}
		if best == -1 || e.nextTick.Timestamp < r.entries[best].nextTick.Timestamp {
			best = i
		}
	}
	if best == -1 {
		return 0, Tick{}, false
	}

	e := r.entries[best]
	tick = *e.nextTick
	if next, has := e.source.Next(); has {
		e.nextTick = &next
	} else {
		e.nextTick = nil
	}
	return best, tick, true
}

// Price returns the current (bid, ask) for symbol ix. This is the
// corrected form of the source's get_price: it returns ok=true iff ix is
// in range, never the inverted check the original carried.
func (r *Registry) Price(ix int) (Tick, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix < 0 || ix >= len(r.entries) {
		return Tick{}, false
	}
	e := r.entries[ix]
	e.mu.Lock()
	defer e.mu.Unlock()
	return Tick{Bid: e.bid, Ask: e.ask}, true
}

// SetPrice updates the symbol's best bid/ask. Called by the loop when a
// NewTick is dispatched, and by persistence when restoring a snapshot.
func (r *Registry) SetPrice(ix int, bid, ask int64) {
	r.mu.Lock()
	if ix < 0 || ix >= len(r.entries) {
		r.mu.Unlock()
		return
	}
	e := r.entries[ix]
	r.mu.Unlock()

	e.mu.Lock()
	e.bid, e.ask = bid, ask
	e.mu.Unlock()
}

// SendClient blocks until the client has consumed the previous tick on
// this symbol's one-slot channel, then delivers t. This is the only
// back-pressure mechanism in the simulator; it must never be replaced
// with a buffered send.
func (r *Registry) SendClient(ix int, t Tick) bool {
	r.mu.Lock()
	if ix < 0 || ix >= len(r.entries) {
		r.mu.Unlock()
		return false
	}
	ch := r.entries[ix].clientCh
	r.mu.Unlock()

	ch <- t
	return true
}

// ClientChannel returns the read side of symbol ix's one-slot tick
// channel, for a single subscriber to drain. At most one reader per
// symbol is meaningful; a second reader would race the first for ticks.
func (r *Registry) ClientChannel(ix int) (<-chan Tick, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix < 0 || ix >= len(r.entries) {
		return nil, false
	}
	return r.entries[ix].clientCh, true
}
