package simbroker

import (
	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// pow10 returns 10^n for small non-negative n; decimal precisions here
// never exceed a handful of digits so this avoids pulling in math.Pow's
// float rounding for an integer operation.
func pow10(n uint8) int64 {
	v := int64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

// convertDecimals converts an integer pip price between two decimal
// precisions (§4.8). from > to truncates (integer division); from < to
// scales up. Equal precisions are the identity.
func convertDecimals(price int64, from, to uint8) int64 {
	switch {
	case from > to:
		return price / pow10(from-to)
	case from < to:
		return price * pow10(to-from)
	default:
		return price
	}
}

// getBaseRate resolves the quote used to convert a position's notional
// into the account base currency (§4.8): ccy+base first, then base+ccy,
// else NoDataAvailable.
func getBaseRate(reg *symbol.Registry, settings Settings, ccy string, desiredDecimals uint8) (int64, ledger.BrokerError) {
	if !settings.FX {
		return 0, &ledger.ErrMessage{Text: "Can only convert to base rate when in FX mode."}
	}

	if ix, ok := reg.IndexOf(ccy + settings.FXBaseCurrency); ok {
		tick, _ := reg.Price(ix)
		return convertDecimals(tick.Ask, reg.DecimalPrecision(ix), desiredDecimals), nil
	}
	if ix, ok := reg.IndexOf(settings.FXBaseCurrency + ccy); ok {
		tick, _ := reg.Price(ix)
		return convertDecimals(tick.Ask, reg.DecimalPrecision(ix), desiredDecimals), nil
	}
	return 0, &ledger.ErrNoDataAvailable{}
}

// getPositionValue returns a position's notional value in the account
// base currency: raw size for non-FX symbols, size * base rate * lot
// size for FX (§4.8).
func getPositionValue(reg *symbol.Registry, settings Settings, symIx int, pos *ledger.Position) (uint64, ledger.BrokerError) {
	if !reg.IsFX(symIx) {
		return pos.Size, nil
	}
	name, _ := reg.Name(symIx)
	ccy := name[0:3]
	rate, err := getBaseRate(reg, settings, ccy, reg.DecimalPrecision(symIx))
	if err != nil {
		return 0, err
	}
	return pos.Size * uint64(rate) * settings.FXLotSize, nil
}
