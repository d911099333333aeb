package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/persist"
)

// handleAccounts returns every known account id and its buying power.
// Reads through AccountsSnapshot, which stays safe to call whether or
// not the simulation loop has been armed (§6.2's snapshot accessors).
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	type accountSummary struct {
		AcctID      string `json:"acctId"`
		BuyingPower uint64 `json:"buyingPower"`
	}

	snap := s.broker.AccountsSnapshot()
	out := make([]accountSummary, 0, len(snap))
	for id, led := range snap {
		out = append(out, accountSummary{AcctID: id.String(), BuyingPower: led.BuyingPower})
	}
	writeJSON(w, http.StatusOK, out)
}

type positionJSON struct {
	PosID      string  `json:"posId"`
	SymbolIx   int     `json:"symbolIx"`
	Size       uint64  `json:"size"`
	Long       bool    `json:"long"`
	EntryPrice *string `json:"entryPrice,omitempty"`
	Stop       *string `json:"stop,omitempty"`
	TakeProfit *string `json:"takeProfit,omitempty"`
}

func positionsJSON(positions map[ledger.PosID]*ledger.Position, decimals func(symbolIx int) uint8) []positionJSON {
	out := make([]positionJSON, 0, len(positions))
	for id, p := range positions {
		d := decimals(p.SymbolIx)
		out = append(out, positionJSON{
			PosID: id.String(), SymbolIx: p.SymbolIx, Size: p.Size, Long: p.Long,
			EntryPrice: pipsPtrToString(p.Price, d),
			Stop:       pipsPtrToString(p.Stop, d),
			TakeProfit: pipsPtrToString(p.TakeProfit, d),
		})
	}
	return out
}

func pipsPtrToString(v *int64, decimals uint8) *string {
	if v == nil {
		return nil
	}
	s := pipsToDecimal(*v, decimals).String()
	return &s
}

// pipsToDecimal renders an integer-pip price as a human-readable decimal
// at the edge only; the core itself never does this arithmetic in
// floating point.
func pipsToDecimal(pips int64, decimals uint8) decimal.Decimal {
	return decimal.New(pips, -int32(decimals))
}

// decimalsLookup builds a symbolIx → decimal precision function from the
// live registry, for rendering a ledger's prices correctly per symbol.
func (s *Server) decimalsLookup() func(symbolIx int) uint8 {
	byIx := make(map[int]uint8)
	for _, p := range s.broker.SymbolPrices() {
		byIx[p.Ix] = p.Decimals
	}
	return func(symbolIx int) uint8 { return byIx[symbolIx] }
}

type ledgerJSON struct {
	AcctID      string         `json:"acctId"`
	BuyingPower uint64         `json:"buyingPower"`
	Pending     []positionJSON `json:"pending"`
	Open        []positionJSON `json:"open"`
	Closed      []positionJSON `json:"closed"`
}

// handleLedger returns one account's full ledger snapshot.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	snap := s.broker.AccountsSnapshot()
	led, ok := snap[id]
	if !ok {
		writeError(w, http.StatusNotFound, "account not found: "+id.String())
		return
	}

	decimals := s.decimalsLookup()
	writeJSON(w, http.StatusOK, ledgerJSON{
		AcctID:      id.String(),
		BuyingPower: led.BuyingPower,
		Pending:     positionsJSON(led.Pending, decimals),
		Open:        positionsJSON(led.Open, decimals),
		Closed:      positionsJSON(led.Closed, decimals),
	})
}

type symbolJSON struct {
	Name     string `json:"name"`
	IsFX     bool   `json:"isFx"`
	Decimals uint8  `json:"decimals"`
	Bid      string `json:"bid"`
	Ask      string `json:"ask"`
}

// handleSymbols returns every registered symbol with its current quote.
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	prices := s.broker.SymbolPrices()
	out := make([]symbolJSON, len(prices))
	for i, p := range prices {
		out[i] = symbolJSON{
			Name: p.Name, IsFX: p.IsFX, Decimals: p.Decimals,
			Bid: pipsToDecimal(p.Bid, p.Decimals).String(),
			Ask: pipsToDecimal(p.Ask, p.Decimals).String(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAudit returns a paginated, time-filterable slice of an account's
// audit log.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	acctID, err := uuid.Parse(r.PathValue("acct"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := s.audit.QueryAudit(ctx, persist.AuditFilter{
		AcctID: acctID,
		Limit:  parseIntParam(r, "limit", 100),
		Offset: parseIntParam(r, "offset", 0),
		From:   parseTimeParam(r, "from"),
		To:     parseTimeParam(r, "to"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, records)
}

type statsResponse struct {
	Uptime   string `json:"uptime"`
	Accounts int    `json:"accounts"`
	Symbols  int    `json:"symbols"`
}

// handleStats returns coarse runtime statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:   time.Since(s.startAt).Truncate(time.Second).String(),
		Accounts: len(s.broker.AccountsSnapshot()),
		Symbols:  len(s.broker.SymbolPrices()),
	})
}
