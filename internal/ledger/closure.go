package ledger

// IsOpenSatisfied reports whether a pending position would fill at the
// given quote, per §4.3: long fills at ask when ask <= entry, short
// fills at bid when bid >= entry. This and IsCloseSatisfied are pure
// functions and the only place closure logic lives — the simulation
// loop calls them, never reimplements them.
func IsOpenSatisfied(pos *Position, bid, ask int64) (fillPrice int64, ok bool) {
	if pos.Price == nil {
		return 0, false
	}
	entry := *pos.Price
	if pos.Long {
		if ask <= entry {
			return ask, true
		}
		return 0, false
	}
	if bid >= entry {
		return bid, true
	}
	return 0, false
}

// IsCloseSatisfied reports whether an open position's stop or take-profit
// has been hit at the given quote.
func IsCloseSatisfied(pos *Position, bid, ask int64) (price int64, reason ClosureReason, ok bool) {
	if pos.Long {
		if pos.Stop != nil && bid <= *pos.Stop {
			return bid, ClosureStopLoss, true
		}
		if pos.TakeProfit != nil && ask >= *pos.TakeProfit {
			return ask, ClosureTakeProfit, true
		}
		return 0, 0, false
	}
	if pos.Stop != nil && ask >= *pos.Stop {
		return ask, ClosureStopLoss, true
	}
	if pos.TakeProfit != nil && bid <= *pos.TakeProfit {
		return bid, ClosureTakeProfit, true
	}
	return 0, 0, false
}
