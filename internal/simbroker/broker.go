package simbroker

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/queue"
	"github.com/ndrandal/simbroker/internal/rng"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// SimBroker is the simulation core: the registry, the queue, the accounts
// collection, and everything exec_action/tick_positions need to run one
// loop iteration. It is owned by exactly one goroutine at a time — the
// client wrapper (internal/simbroker.Client) until InitSimLoop hands it
// to the loop goroutine (§5).
type SimBroker struct {
	registry *symbol.Registry
	queue    *queue.Queue
	accounts *Accounts
	settings Settings
	rng      *rng.RNG
	now      uint64

	log zerolog.Logger
}

// NewSimBroker constructs a broker over reg with the given settings and
// seed. The registry should already have every tickstream Added. The
// broker does not arm it; Client.InitSimLoop does that before the loop
// starts.
func NewSimBroker(reg *symbol.Registry, settings Settings, seed int64, log zerolog.Logger) *SimBroker {
	return &SimBroker{
		registry: reg,
		queue:    queue.New(),
		accounts: NewAccounts(reg.Len()),
		settings: settings,
		rng:      rng.New(seed),
		log:      log.With().Str("component", "simbroker").Logger(),
	}
}

// Now returns the loop's current simulated timestamp.
func (b *SimBroker) Now() uint64 { return b.now }

// seedInitialTicks implements §4.4's initialization step: immediately
// before the loop starts, NewTicks are enqueued from the registry's
// lookahead. It pops the registry's global minimum reg.Len() times, and
// each pop refills that symbol's lookahead from its source, so the queue
// receives the reg.Len() earliest pending ticks across all symbols. That
// is one first tick per symbol only when no symbol's second tick comes
// before another symbol's first; otherwise a symbol's first tick stays in
// the registry and is enqueued later by dispatchNewTick's PushNextTick.
// Called once, after the registry is armed and before Run starts.
func (b *SimBroker) seedInitialTicks() {
	for i := 0; i < b.registry.Len(); i++ {
		if !b.queue.PushNextTick(b.registry) {
			break
		}
	}
}

// tickPositions implements §4.6: scan the cached pending/open positions on
// symbolIx against the new (bid, ask), filling orders and triggering
// stop/take-profit closes. Returns the push messages produced, in order.
//
// Iteration ranges over copies of the pending and open caches
// (PendingSnapshot/OpenSnapshot), so positions removed from the live
// caches during the scan do not shift or skip the remaining entries.
func (b *SimBroker) tickPositions(symbolIx int, bid, ask int64) []ledger.BrokerMessage {
	var notes []ledger.BrokerMessage

	pending := b.accounts.PendingSnapshot(symbolIx)
	for _, cp := range pending {
		fillPrice, ok := ledger.IsOpenSatisfied(cp.Pos, bid, ask)
		if !ok {
			continue
		}
		acct, found := b.accounts.Get(cp.AcctID)
		if !found {
			b.log.Error().Stringer("acct", cp.AcctID).Msg("cached pending position references unknown account")
			continue
		}
		pos, found := acct.Ledger.Pending[cp.PosID]
		if !found {
			b.log.Error().Stringer("pos", cp.PosID).Msg("position cache out of sync: pending position missing from ledger")
			continue
		}
		now := b.now
		pos.ExecutionTime = &now
		pos.ExecutionPrice = &fillPrice
		delete(acct.Ledger.Pending, cp.PosID)
		msg, err := acct.Ledger.OpenPosition(cp.PosID, pos)
		if err != nil {
			b.log.Error().Err(err).Msg("open_position failed during tick_positions")
			continue
		}
		b.accounts.PositionOpened(cp.AcctID, cp.PosID, symbolIx, pos)
		notes = append(notes, msg)
	}

	open := b.accounts.OpenSnapshot(symbolIx)
	for _, cp := range open {
		closePrice, reason, ok := ledger.IsCloseSatisfied(cp.Pos, bid, ask)
		if !ok {
			continue
		}
		acct, found := b.accounts.Get(cp.AcctID)
		if !found {
			b.log.Error().Stringer("acct", cp.AcctID).Msg("cached open position references unknown account")
			continue
		}
		pos, found := acct.Ledger.Open[cp.PosID]
		if !found {
			b.log.Error().Stringer("pos", cp.PosID).Msg("position cache out of sync: open position missing from ledger")
			continue
		}
		value, verr := getPositionValue(b.registry, b.settings, symbolIx, pos)
		if verr != nil {
			b.log.Error().Err(verr).Msg("get_position_value failed during tick_positions")
			continue
		}
		now := b.now
		pos.ExitTime = &now
		pos.ExitPrice = &closePrice
		msg, err := acct.Ledger.ClosePosition(cp.PosID, value, b.now, reason)
		if err != nil {
			b.log.Error().Err(err).Msg("close_position failed during tick_positions")
			continue
		}
		b.accounts.PositionClosed(symbolIx, cp.PosID)
		notes = append(notes, ledger.LedgerBalanceChange{NewBuyingPower: acct.Ledger.BuyingPower})
		notes = append(notes, msg)
	}

	return notes
}

// execAction implements §4.7's dispatch table.
func (b *SimBroker) execAction(a Action) Result {
	switch a.Kind {
	case ActionPing:
		return Result{Message: ledger.Pong{TimeReceived: b.now}}

	case ActionListAccounts:
		return Result{Message: ledger.AccountListing{Accounts: b.accounts.List()}}

	case ActionGetLedger:
		acct, ok := b.accounts.Get(a.AcctID)
		if !ok {
			return Result{Err: &ledger.ErrNoSuchAccount{}}
		}
		c := acct.Ledger.Clone()
		return Result{Message: ledger.LedgerSnapshot{
			AcctID:      a.AcctID,
			BuyingPower: c.BuyingPower,
			Pending:     c.Pending,
			Open:        c.Open,
			Closed:      c.Closed,
		}}

	case ActionDisconnect:
		return Result{Message: ledger.Success{}}

	case ActionMarketOrder:
		return b.execMarketOrder(a)

	case ActionLimitOrder:
		return b.execLimitOrder(a)

	case ActionMarketClose:
		return b.execMarketClose(a)

	case ActionLimitClose:
		return b.execLimitClose(a)

	case ActionModifyOrder:
		return b.execModifyOrder(a)

	case ActionModifyPosition:
		return b.execModifyPosition(a)

	case ActionCancelOrder:
		return b.execCancelOrder(a)

	default:
		return Result{Err: &ledger.ErrUnimplemented{}}
	}
}

func (b *SimBroker) execMarketOrder(a Action) Result {
	acct, ok := b.accounts.Get(a.AcctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	tick, ok := b.registry.Price(a.SymbolIx)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchSymbol{}}
	}
	fill := tick.Ask
	if !a.Long {
		fill = tick.Bid
	}

	now := b.now
	pos := &ledger.Position{
		CreationTime:   b.now,
		SymbolIx:       a.SymbolIx,
		Size:           a.Size,
		Long:           a.Long,
		Stop:           a.Stop,
		TakeProfit:     a.TakeProfit,
		ExecutionTime:  &now,
		ExecutionPrice: &fill,
	}
	if serr := pos.ValidateSanity(); serr != nil {
		return Result{Err: serr}
	}

	value, verr := getPositionValue(b.registry, b.settings, a.SymbolIx, pos)
	if verr != nil {
		return Result{Err: verr}
	}
	if value > acct.Ledger.BuyingPower {
		return Result{Err: &ledger.ErrInsufficientBuyingPower{}}
	}
	acct.Ledger.BuyingPower -= value

	posID := b.rng.NextID()
	msg, oerr := acct.Ledger.OpenPosition(posID, pos)
	if oerr != nil {
		return Result{Err: oerr}
	}
	b.accounts.PositionOpened(a.AcctID, posID, a.SymbolIx, pos)

	return Result{Message: msg}
}

func (b *SimBroker) execLimitOrder(a Action) Result {
	acct, ok := b.accounts.Get(a.AcctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	tick, ok := b.registry.Price(a.SymbolIx)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchSymbol{}}
	}

	pos := &ledger.Position{
		CreationTime: b.now,
		SymbolIx:     a.SymbolIx,
		Size:         a.Size,
		Price:        a.EntryPrice,
		Long:         a.Long,
		Stop:         a.Stop,
		TakeProfit:   a.TakeProfit,
	}
	if serr := pos.ValidateSanity(); serr != nil {
		return Result{Err: serr}
	}

	if fill, ok := ledger.IsOpenSatisfied(pos, tick.Bid, tick.Ask); ok {
		_ = fill
		return b.execMarketOrder(a)
	}

	value, verr := getPositionValue(b.registry, b.settings, a.SymbolIx, pos)
	if verr != nil {
		return Result{Err: verr}
	}

	posID := b.rng.NextID()
	msg, perr := acct.Ledger.PlaceOrder(posID, pos, value)
	if perr != nil {
		return Result{Err: perr}
	}
	b.accounts.OrderPlaced(a.AcctID, posID, a.SymbolIx, pos)

	return Result{Message: msg}
}

// execMarketClose implements §4.7's MarketClose as a resize by -size, the
// same path a partial close takes: resize_position detects new_size==0
// and delegates to close_position internally (§4.2), so there is exactly
// one call into the ledger regardless of whether this is a partial or
// full close.
func (b *SimBroker) execMarketClose(a Action) Result {
	acct, ok := b.accounts.Get(a.AcctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	pos, ok := acct.Ledger.Open[a.PosID]
	if !ok {
		return Result{Err: &ledger.ErrNoSuchPosition{}}
	}
	if a.Size == 0 {
		b.log.Warn().Stringer("pos", a.PosID).Msg("market_close called with size=0")
	}

	tick, ok := b.registry.Price(pos.SymbolIx)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchSymbol{}}
	}
	closePrice := tick.Bid
	if !pos.Long {
		closePrice = tick.Ask
	}

	totalValue, verr := getPositionValue(b.registry, b.settings, pos.SymbolIx, pos)
	if verr != nil {
		return Result{Err: verr}
	}
	cost := totalValue
	if pos.Size > 0 && a.Size < pos.Size {
		cost = totalValue * a.Size / pos.Size
	}

	if a.Size >= pos.Size {
		now := b.now
		pos.ExitTime = &now
		pos.ExitPrice = &closePrice
	}

	msg, rerr := acct.Ledger.ResizePosition(a.PosID, -int64(a.Size), cost, b.now)
	if rerr != nil {
		return Result{Err: rerr}
	}

	if _, stillOpen := acct.Ledger.Open[a.PosID]; stillOpen {
		b.accounts.PositionModified(pos.SymbolIx, a.PosID, pos)
	} else {
		b.accounts.PositionClosed(pos.SymbolIx, a.PosID)
	}
	return Result{Message: msg}
}

// execLimitClose implements §4.7's LimitClose: modify_position with the
// take-profit field carrying the close threshold, stop left untouched.
func (b *SimBroker) execLimitClose(a Action) Result {
	return b.modifyPosition(a.AcctID, a.PosID, ledger.Keep[int64](), ledger.Set(*a.EntryPrice))
}

func (b *SimBroker) execModifyOrder(a Action) Result {
	acct, ok := b.accounts.Get(a.AcctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	pos, ok := acct.Ledger.Pending[a.PosID]
	if !ok {
		return Result{Err: &ledger.ErrNoSuchPosition{}}
	}

	entry := pos.Price
	if a.ModifyEntry != nil {
		entry = a.ModifyEntry
	}
	probe := *pos
	probe.Price = entry
	if a.ModifySize != nil {
		probe.Size = *a.ModifySize
	}
	if a.ModifyStop != nil {
		probe.Stop = a.ModifyStop
	}
	if a.ModifyTP != nil {
		probe.TakeProfit = a.ModifyTP
	}

	tick, ok := b.registry.Price(pos.SymbolIx)
	if ok {
		if fill, satisfied := ledger.IsOpenSatisfied(&probe, tick.Bid, tick.Ask); satisfied {
			delete(acct.Ledger.Pending, a.PosID)
			b.accounts.OrderCancelled(pos.SymbolIx, a.PosID)
			now := b.now
			probe.ExecutionTime = &now
			probe.ExecutionPrice = &fill
			if serr := probe.ValidateSanity(); serr != nil {
				return Result{Err: serr}
			}
			msg, oerr := acct.Ledger.OpenPosition(a.PosID, &probe)
			if oerr != nil {
				return Result{Err: oerr}
			}
			b.accounts.PositionOpened(a.AcctID, a.PosID, pos.SymbolIx, &probe)
			return Result{Message: msg}
		}
	}

	msg, merr := acct.Ledger.ModifyOrder(a.PosID, a.ModifySize, a.ModifyEntry, a.ModifyStop, a.ModifyTP, b.now)
	if merr != nil {
		return Result{Err: merr}
	}
	b.accounts.OrderModified(pos.SymbolIx, a.PosID, pos)
	return Result{Message: msg}
}

func (b *SimBroker) execModifyPosition(a Action) Result {
	return b.modifyPosition(a.AcctID, a.PosID, a.PosStop, a.PosTP)
}

func (b *SimBroker) modifyPosition(acctID uuid.UUID, posID uuid.UUID, sl, tp ledger.FieldUpdate[int64]) Result {
	acct, ok := b.accounts.Get(acctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	pos, ok := acct.Ledger.Open[posID]
	if !ok {
		return Result{Err: &ledger.ErrNoSuchPosition{}}
	}
	msg, merr := acct.Ledger.ModifyPosition(posID, sl, tp, b.now)
	if merr != nil {
		return Result{Err: merr}
	}
	b.accounts.PositionModified(pos.SymbolIx, posID, pos)
	return Result{Message: msg}
}

func (b *SimBroker) execCancelOrder(a Action) Result {
	acct, ok := b.accounts.Get(a.AcctID)
	if !ok {
		return Result{Err: &ledger.ErrNoSuchAccount{}}
	}
	pos, ok := acct.Ledger.Pending[a.PosID]
	if !ok {
		return Result{Err: &ledger.ErrNoSuchPosition{}}
	}
	msg, cerr := acct.Ledger.CancelOrder(a.PosID, b.now)
	if cerr != nil {
		return Result{Err: cerr}
	}
	b.accounts.OrderCancelled(pos.SymbolIx, a.PosID)
	return Result{Message: msg}
}
