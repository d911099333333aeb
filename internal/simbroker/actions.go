package simbroker

import "github.com/ndrandal/simbroker/internal/ledger"

// ActionKind tags which variant of Action is populated. Actions are a flat
// struct rather than separate types per kind (matching Rust's single enum
// with named fields) because the queue funnel and the loop's dispatch both
// want one concrete type to pass around without a type switch on pointer
// receivers for every request.
type ActionKind int

const (
	ActionPing ActionKind = iota
	ActionListAccounts
	ActionGetLedger
	ActionDisconnect
	ActionMarketOrder
	ActionMarketClose
	ActionLimitOrder
	ActionLimitClose
	ActionModifyOrder
	ActionModifyPosition
	ActionCancelOrder
)

func (k ActionKind) String() string {
	switch k {
	case ActionPing:
		return "Ping"
	case ActionListAccounts:
		return "ListAccounts"
	case ActionGetLedger:
		return "GetLedger"
	case ActionDisconnect:
		return "Disconnect"
	case ActionMarketOrder:
		return "MarketOrder"
	case ActionMarketClose:
		return "MarketClose"
	case ActionLimitOrder:
		return "LimitOrder"
	case ActionLimitClose:
		return "LimitClose"
	case ActionModifyOrder:
		return "ModifyOrder"
	case ActionModifyPosition:
		return "ModifyPosition"
	case ActionCancelOrder:
		return "CancelOrder"
	default:
		return "Unknown"
	}
}

// Action is one client request dispatched through the loop (§4.7). Only
// the fields relevant to Kind are populated; the zero value of an unused
// field is never read by execAction.
type Action struct {
	Kind ActionKind

	AcctID   ledger.AcctID
	PosID    ledger.PosID
	SymbolIx int

	Size uint64
	Long bool

	EntryPrice *int64
	Stop       *int64
	TakeProfit *int64

	ResizeDelta int64

	// ModifyOrder fields: a nil pointer leaves that field untouched.
	ModifySize  *uint64
	ModifyEntry *int64
	ModifyStop  *int64
	ModifyTP    *int64

	// ModifyPosition fields: double-Option semantics (§4.2).
	PosStop ledger.FieldUpdate[int64]
	PosTP   ledger.FieldUpdate[int64]
}

// Result is what execAction returns for one Action: exactly one of
// Message or Err is non-nil.
type Result struct {
	Message ledger.BrokerMessage
	Err     ledger.BrokerError
}
