package ledger

import "github.com/google/uuid"

// PosID and AcctID are 128-bit identifiers. The core mints PosIDs from a
// seeded PRNG (internal/rng), never from a system entropy source — see
// the core's determinism requirement. AcctIDs are not minted by the core;
// whoever calls CreateAccount supplies them.
type PosID = uuid.UUID
type AcctID = uuid.UUID

// ClosureReason records why an open position was closed.
type ClosureReason int

const (
	ClosureStopLoss ClosureReason = iota
	ClosureTakeProfit
	ClosureMarketClose
)

func (r ClosureReason) String() string {
	switch r {
	case ClosureStopLoss:
		return "stop_loss"
	case ClosureTakeProfit:
		return "take_profit"
	case ClosureMarketClose:
		return "market_close"
	default:
		return "unknown"
	}
}

// Position is one trading position at any lifecycle phase (pending, open,
// or closed, determined by which Ledger map currently holds it — not by
// a field on the struct itself).
//
// Prices are integer pips; nil pointer fields mean "unset" (Rust's
// Option<T>, collapsed to *T since a plain Go zero value would be
// ambiguous with a real zero price).
type Position struct {
	CreationTime uint64
	SymbolIx     int
	Size         uint64
	Price        *int64 // entry/limit price
	Long         bool
	Stop         *int64
	TakeProfit   *int64

	ExecutionTime  *uint64
	ExecutionPrice *int64

	ExitTime  *uint64
	ExitPrice *int64
}

// Clone returns a deep copy, used whenever a Position crosses the
// cache/ledger boundary so neither side can mutate the other's copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.Price = clonePtr(p.Price)
	c.Stop = clonePtr(p.Stop)
	c.TakeProfit = clonePtr(p.TakeProfit)
	c.ExecutionTime = clonePtr(p.ExecutionTime)
	c.ExecutionPrice = clonePtr(p.ExecutionPrice)
	c.ExitTime = clonePtr(p.ExitTime)
	c.ExitPrice = clonePtr(p.ExitPrice)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ValidateSanity checks the creation-time invariants from the data model:
// stop/take-profit ordering relative to entry price, and that
// execution/exit fields come in the pairs the lifecycle requires.
func (p *Position) ValidateSanity() BrokerError {
	if p.Price != nil {
		price := *p.Price
		if p.Long {
			if p.Stop != nil && *p.Stop >= price {
				return &ErrInvalidStopValue{}
			}
			if p.TakeProfit != nil && *p.TakeProfit <= price {
				return &ErrInvalidTakeProfitValue{}
			}
		} else {
			if p.Stop != nil && *p.Stop <= price {
				return &ErrInvalidStopValue{}
			}
			if p.TakeProfit != nil && *p.TakeProfit >= price {
				return &ErrInvalidTakeProfitValue{}
			}
		}
	}

	execSet := p.ExecutionTime != nil || p.ExecutionPrice != nil
	execComplete := p.ExecutionTime != nil && p.ExecutionPrice != nil
	if execSet && !execComplete {
		return &ErrMissingExecutionData{}
	}

	exitSet := p.ExitTime != nil || p.ExitPrice != nil
	exitComplete := p.ExitTime != nil && p.ExitPrice != nil
	if exitSet && !exitComplete {
		return &ErrMissingExitData{}
	}
	if exitComplete && !execComplete {
		return &ErrExitWithoutEntry{}
	}

	if execComplete && *p.ExecutionTime < p.CreationTime {
		return &ErrInvalidExecutionTime{}
	}
	if exitComplete && *p.ExitTime < *p.ExecutionTime {
		return &ErrInvalidExitTime{}
	}

	return nil
}
