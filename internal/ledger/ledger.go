package ledger

// FieldUpdate models Rust's Option<Option<T>> for ModifyPosition: Change
// says whether the field should be touched at all; when Change is true,
// Value == nil means "clear the field" and Value != nil means "set it to
// *Value". A bare *T cannot express both "leave alone" and "clear"
// simultaneously, which is why this wrapper exists (see design notes on
// double-Option semantics).
type FieldUpdate[T any] struct {
	Change bool
	Value  *T
}

// Keep leaves the field untouched.
func Keep[T any]() FieldUpdate[T] { return FieldUpdate[T]{} }

// Clear sets the field to "change to unset".
func Clear[T any]() FieldUpdate[T] { return FieldUpdate[T]{Change: true} }

// Set sets the field to the given value.
func Set[T any](v T) FieldUpdate[T] { return FieldUpdate[T]{Change: true, Value: &v} }

// Ledger holds one account's buying power and the three position maps.
// Every operation here is a total function: it mutates the ledger in
// place and returns either a BrokerMessage on success or a BrokerError
// on failure — there is no I/O and no partial mutation on the error
// path (operations validate before they touch any map).
type Ledger struct {
	BuyingPower uint64
	Pending     map[PosID]*Position
	Open        map[PosID]*Position
	Closed      map[PosID]*Position

	// reserved tracks the buying power originally debited per pending
	// position, so CancelOrder can refund exactly what PlaceOrder took
	// regardless of any later ModifyOrder. Not part of the data model's
	// public Position shape; purely ledger-internal bookkeeping.
	reserved map[PosID]uint64
}

// New creates a ledger with the given starting buying power.
func New(startingBalance uint64) *Ledger {
	return &Ledger{
		BuyingPower: startingBalance,
		Pending:     make(map[PosID]*Position),
		Open:        make(map[PosID]*Position),
		Closed:      make(map[PosID]*Position),
		reserved:    make(map[PosID]uint64),
	}
}

// PlaceOrder debits value from buying power and inserts pos into pending.
func (l *Ledger) PlaceOrder(posID PosID, pos *Position, value uint64) (BrokerMessage, BrokerError) {
	if value > l.BuyingPower {
		return nil, &ErrInsufficientBuyingPower{}
	}
	l.BuyingPower -= value
	l.Pending[posID] = pos
	l.reserved[posID] = value
	return OrderPlaced{PosID: posID}, nil
}

// ModifyOrder mutates a pending position's fields in place. A nil
// argument leaves that field untouched.
func (l *Ledger) ModifyOrder(posID PosID, size *uint64, entry, sl, tp *int64, ts uint64) (BrokerMessage, BrokerError) {
	pos, ok := l.Pending[posID]
	if !ok {
		return nil, &ErrNoSuchPosition{}
	}
	if size != nil {
		pos.Size = *size
	}
	if entry != nil {
		pos.Price = entry
	}
	if sl != nil {
		pos.Stop = sl
	}
	if tp != nil {
		pos.TakeProfit = tp
	}
	_ = ts
	return OrderModified{PosID: posID}, nil
}

// CancelOrder removes a pending position and refunds the buying power
// originally reserved for it by PlaceOrder.
func (l *Ledger) CancelOrder(posID PosID, ts uint64) (BrokerMessage, BrokerError) {
	if _, ok := l.Pending[posID]; !ok {
		return nil, &ErrNoSuchPosition{}
	}
	l.BuyingPower += l.reserved[posID]
	delete(l.reserved, posID)
	delete(l.Pending, posID)
	_ = ts
	return OrderCancelled{PosID: posID}, nil
}

// OpenPosition moves a position into open. The caller (tick_positions or
// exec_action) is responsible for having already set ExecutionTime/Price.
func (l *Ledger) OpenPosition(posID PosID, pos *Position) (BrokerMessage, BrokerError) {
	if pos.ExecutionTime == nil || pos.ExecutionPrice == nil {
		panic("ledger: OpenPosition called with unset execution fields — cache/ledger invariant violation")
	}
	l.Open[posID] = pos
	return PositionOpened{PosID: posID, Price: *pos.ExecutionPrice}, nil
}

// ClosePosition moves a position from open to closed and credits value
// to buying power.
func (l *Ledger) ClosePosition(posID PosID, value uint64, ts uint64, reason ClosureReason) (BrokerMessage, BrokerError) {
	pos, ok := l.Open[posID]
	if !ok {
		return nil, &ErrNoSuchPosition{}
	}
	delete(l.Open, posID)
	l.Closed[posID] = pos
	l.BuyingPower += value
	_ = ts
	price := int64(0)
	if pos.ExitPrice != nil {
		price = *pos.ExitPrice
	}
	return PositionClosed{PosID: posID, Price: price, Reason: reason}, nil
}

// ResizePosition changes an open position's size by delta units. A
// resize to exactly zero delegates to ClosePosition with reason
// MarketClose, matching the "zero-sized close" contract (§4.2, §8).
func (l *Ledger) ResizePosition(posID PosID, delta int64, cost uint64, ts uint64) (BrokerMessage, BrokerError) {
	pos, ok := l.Open[posID]
	if !ok {
		return nil, &ErrNoSuchPosition{}
	}
	newSize := int64(pos.Size) + delta
	if newSize < 0 {
		return nil, &ErrInvalidModificationAmount{}
	}
	if newSize == 0 {
		return l.ClosePosition(posID, cost, ts, ClosureMarketClose)
	}
	if cost > l.BuyingPower {
		return nil, &ErrInsufficientBuyingPower{}
	}
	l.BuyingPower -= cost
	pos.Size = uint64(newSize)
	return PositionModified{PosID: posID}, nil
}

// ModifyPosition applies double-Option updates to an open position's
// stop/take-profit. sl/tp with Change=false leave the field untouched;
// Change=true and Value==nil clears it; Change=true and Value!=nil sets it.
func (l *Ledger) ModifyPosition(posID PosID, sl, tp FieldUpdate[int64], ts uint64) (BrokerMessage, BrokerError) {
	pos, ok := l.Open[posID]
	if !ok {
		return nil, &ErrNoSuchPosition{}
	}
	if sl.Change {
		pos.Stop = sl.Value
	}
	if tp.Change {
		pos.TakeProfit = tp.Value
	}
	_ = ts
	return PositionModified{PosID: posID}, nil
}

// Clone returns a deep, read-only-safe copy of the ledger, used for
// GetLedger responses so the caller cannot mutate live state.
func (l *Ledger) Clone() *Ledger {
	c := New(l.BuyingPower)
	for id, p := range l.Pending {
		c.Pending[id] = p.Clone()
	}
	for id, p := range l.Open {
		c.Open[id] = p.Clone()
	}
	for id, p := range l.Closed {
		c.Closed[id] = p.Clone()
	}
	for id, v := range l.reserved {
		c.reserved[id] = v
	}
	return c
}

// Account is a ledger plus its identity. The simulator always reports
// Live=false: it never represents a real brokerage connection.
type Account struct {
	ID     AcctID
	Ledger *Ledger
	Live   bool
}
