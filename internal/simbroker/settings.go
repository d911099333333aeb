package simbroker

import (
	"encoding/json"
	"fmt"
)

// TickstreamSpec names one entry of the settings' tickstreams list: a
// symbol name, which generator variant should back it, and its FX/decimal
// metadata. The generator variant is resolved by the caller (the demo
// binary wires it to internal/tickgen); the core only carries the name.
type TickstreamSpec struct {
	Name      string `json:"name"`
	Generator string `json:"generator"`
	IsFX      bool   `json:"is_fx"`
	Decimals  uint8  `json:"decimals"`
}

// Settings is SimBrokerSettings (§6, §9): every dynamic knob the core
// reads at construction time. All fields have defaults.
type Settings struct {
	StartingBalance uint64
	PingNs          uint64
	ExecutionDelayNs uint64
	Leverage        uint32

	FX                bool
	FXBaseCurrency    string
	FXLotSize         uint64
	FXAccuratePricing bool

	Tickstreams []TickstreamSpec
}

// DefaultSettings returns the settings the core uses when a key is
// absent — matching §6's "all have defaults" contract.
func DefaultSettings() Settings {
	return Settings{
		StartingBalance:   1_000_000,
		PingNs:            0,
		ExecutionDelayNs:  0,
		Leverage:          1,
		FX:                false,
		FXBaseCurrency:    "USD",
		FXLotSize:         1000,
		FXAccuratePricing: false,
	}
}

// knownKeys enumerates every key ParseSettings understands, for the
// strict-mode unknown-key check.
var knownKeys = map[string]bool{
	"starting_balance":    true,
	"ping_ns":             true,
	"execution_delay_ns":  true,
	"leverage":            true,
	"fx":                  true,
	"fx_base_currency":    true,
	"fx_lot_size":         true,
	"fx_accurate_pricing": true,
	"tickstreams":         true,
}

// ParseSettings builds Settings from a string-keyed map, the dynamic
// config format §6/§9 requires (e.g. a JSON object decoded into
// map[string]string by the caller, or literal key=value pairs). Missing
// keys fall back to DefaultSettings. In strict mode (the default this
// repository chooses — see SPEC_FULL.md design notes) an unrecognized
// key is an error; lenient mode ignores it.
func ParseSettings(m map[string]string, strict bool) (Settings, error) {
	s := DefaultSettings()

	if strict {
		for k := range m {
			if !knownKeys[k] {
				return Settings{}, fmt.Errorf("simbroker: unknown settings key %q", k)
			}
		}
	}

	if v, ok := m["starting_balance"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &s.StartingBalance); err != nil {
			return Settings{}, fmt.Errorf("simbroker: starting_balance: %w", err)
		}
	}
	if v, ok := m["ping_ns"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &s.PingNs); err != nil {
			return Settings{}, fmt.Errorf("simbroker: ping_ns: %w", err)
		}
	}
	if v, ok := m["execution_delay_ns"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &s.ExecutionDelayNs); err != nil {
			return Settings{}, fmt.Errorf("simbroker: execution_delay_ns: %w", err)
		}
	}
	if v, ok := m["leverage"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &s.Leverage); err != nil {
			return Settings{}, fmt.Errorf("simbroker: leverage: %w", err)
		}
	}
	if v, ok := m["fx"]; ok {
		s.FX = v == "true" || v == "1"
	}
	if v, ok := m["fx_base_currency"]; ok {
		if len(v) != 3 {
			return Settings{}, fmt.Errorf("simbroker: fx_base_currency must be a 3-letter code, got %q", v)
		}
		s.FXBaseCurrency = v
	}
	if v, ok := m["fx_lot_size"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &s.FXLotSize); err != nil {
			return Settings{}, fmt.Errorf("simbroker: fx_lot_size: %w", err)
		}
	}
	if v, ok := m["fx_accurate_pricing"]; ok {
		s.FXAccuratePricing = v == "true" || v == "1"
	}
	if v, ok := m["tickstreams"]; ok {
		var specs []TickstreamSpec
		if err := json.Unmarshal([]byte(v), &specs); err != nil {
			return Settings{}, fmt.Errorf("simbroker: tickstreams: %w", err)
		}
		s.Tickstreams = specs
	}

	return s, nil
}
