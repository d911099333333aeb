package simbroker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/rng"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// actionChannelCapacity bounds the client-to-loop action channel. The
// design calls for an unbounded channel (§5); Go's buffered channels
// aren't literally unbounded, but a buffer this size behaves as one for
// any realistic fuzzing/backtest action rate, and Step's non-blocking
// drain (select/default) is what actually gives us native MPSC receive
// without a separate funnel goroutine (§5's design note).
const actionChannelCapacity = 65536

// oneshotSource yields a single tick then reports exhausted, backing
// Client.OneshotPriceSet for symbols that only ever need a static quote
// (typically an FX cross rate) rather than a full tickstream.
type oneshotSource struct {
	tick symbol.Tick
	done bool
}

func (s *oneshotSource) Next() (symbol.Tick, bool) {
	if s.done {
		return symbol.Tick{}, false
	}
	s.done = true
	return s.tick, true
}

// Client is the SimBrokerClient of §4.9: it owns a SimBroker exclusively
// until InitSimLoop hands it to the loop goroutine, after which the calls
// that need the SimBroker itself (ListAccounts, GetLedger, CreateAccount,
// RegisterTickstream) return ErrMessage; the action channel, the tick/push
// streams and the symbol/snapshot accessors are not rejected.
type Client struct {
	mu sync.Mutex

	registry *symbol.Registry
	settings Settings

	broker *SimBroker // non-nil only before InitSimLoop
	armed  bool

	// accounts and prng mirror the fields of the same name inside broker.
	// They are kept here too, independent of broker's exclusive-ownership
	// lifecycle, because both types guard their own state with an
	// internal mutex and so remain safe to read for persistence snapshots
	// even after InitSimLoop hands broker to the loop goroutine.
	accounts *Accounts
	prng     *rng.RNG

	actionCh chan actionRequest
	pushCh   chan ledger.BrokerMessage
}

// NewClient creates an uninitialized client. Call Init before anything else.
func NewClient() *Client { return &Client{} }

// Init parses settings, constructs the SimBroker, and registers every
// tickstream named in settings.Tickstreams by resolving its generator
// variant through resolve (supplied by the caller, since the core has no
// knowledge of concrete tick generators — see internal/tickgen).
func (c *Client) Init(settings Settings, seed int64, log zerolog.Logger, resolve func(spec TickstreamSpec) (symbol.Source, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry != nil {
		return fmt.Errorf("simbroker: client already initialized")
	}

	reg := symbol.New()
	for _, spec := range settings.Tickstreams {
		src, err := resolve(spec)
		if err != nil {
			return fmt.Errorf("simbroker: resolving tickstream %q: %w", spec.Name, err)
		}
		if _, err := reg.Add(spec.Name, spec.IsFX, spec.Decimals, src); err != nil {
			return fmt.Errorf("simbroker: registering tickstream %q: %w", spec.Name, err)
		}
	}

	c.registry = reg
	c.settings = settings
	c.broker = NewSimBroker(reg, settings, seed, log)
	c.accounts = c.broker.accounts
	c.prng = c.broker.rng
	c.actionCh = make(chan actionRequest, actionChannelCapacity)
	c.pushCh = make(chan ledger.BrokerMessage, 1)
	return nil
}

// ListAccounts delegates to the still-owned SimBroker. Once armed it
// returns ErrMessage — use Execute(ActionListAccounts) instead, which
// works on both sides of arming.
func (c *Client) ListAccounts() (ledger.BrokerMessage, ledger.BrokerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broker == nil {
		return nil, &ledger.ErrMessage{Text: "simbroker: loop already armed"}
	}
	return ledger.AccountListing{Accounts: c.broker.accounts.List()}, nil
}

// GetLedger delegates to the still-owned SimBroker.
func (c *Client) GetLedger(acctID ledger.AcctID) (ledger.BrokerMessage, ledger.BrokerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broker == nil {
		return nil, &ledger.ErrMessage{Text: "simbroker: loop already armed"}
	}
	acct, ok := c.broker.accounts.Get(acctID)
	if !ok {
		return nil, &ledger.ErrNoSuchAccount{}
	}
	cl := acct.Ledger.Clone()
	return ledger.LedgerSnapshot{
		AcctID:      acctID,
		BuyingPower: cl.BuyingPower,
		Pending:     cl.Pending,
		Open:        cl.Open,
		Closed:      cl.Closed,
	}, nil
}

// CreateAccount delegates to the still-owned SimBroker's accounts
// collection. Not in the original client contract's short list, but
// needed by any caller before it can place actions against an account.
func (c *Client) CreateAccount(id ledger.AcctID) (*ledger.Account, ledger.BrokerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broker == nil {
		return nil, &ledger.ErrMessage{Text: "simbroker: loop already armed"}
	}
	return c.broker.accounts.CreateAccount(id, c.settings.StartingBalance), nil
}

// SubTicks returns the read side of a symbol's one-slot tick channel.
// Valid before and after arming: the channel is owned by the registry,
// not by the SimBroker's exclusive-ownership boundary.
func (c *Client) SubTicks(name string) (<-chan symbol.Tick, ledger.BrokerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return nil, &ledger.ErrMessage{Text: "simbroker: not initialized"}
	}
	ix, ok := c.registry.IndexOf(name)
	if !ok {
		return nil, &ledger.ErrNoSuchSymbol{}
	}
	ch, _ := c.registry.ClientChannel(ix)
	return ch, nil
}

// SymbolIndex resolves a registered symbol name to its registry index,
// for callers (like the transport gateway) that accept symbol names over
// the wire but need indices to build an Action.
func (c *Client) SymbolIndex(name string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return 0, false
	}
	return c.registry.IndexOf(name)
}

// AccountsSnapshot returns a deep copy of every account's ledger, for
// persistence (§6.2). Valid before and after InitSimLoop.
func (c *Client) AccountsSnapshot() map[ledger.AcctID]*ledger.Ledger {
	c.mu.Lock()
	accts := c.accounts
	c.mu.Unlock()
	if accts == nil {
		return nil
	}
	return accts.Snapshot()
}

// RestoreAccount installs a previously persisted ledger for id. Only
// meaningful before InitSimLoop — restoring into an already-armed loop
// would race the loop goroutine's own cache mutations.
func (c *Client) RestoreAccount(id ledger.AcctID, led *ledger.Ledger) {
	c.mu.Lock()
	accts := c.accounts
	c.mu.Unlock()
	if accts != nil {
		accts.RestoreAccount(id, led)
	}
}

// RNGStateBytes returns the PRNG's current 16-byte state, for
// persistence (§6.2, §9). Valid before and after InitSimLoop.
func (c *Client) RNGStateBytes() []byte {
	c.mu.Lock()
	r := c.prng
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.StateBytes()
}

// RestoreRNGState overwrites the PRNG's state from a persisted snapshot.
// Only meaningful before InitSimLoop.
func (c *Client) RestoreRNGState(b []byte) {
	c.mu.Lock()
	r := c.prng
	c.mu.Unlock()
	if r != nil {
		r.RestoreStateBytes(b)
	}
}

// SymbolPriceSnapshot is one registered symbol's current quote, for
// persistence (§6.2).
type SymbolPriceSnapshot struct {
	Ix       int
	Name     string
	IsFX     bool
	Decimals uint8
	Bid, Ask int64
}

// SymbolPrices returns the current quote for every registered symbol.
func (c *Client) SymbolPrices() []SymbolPriceSnapshot {
	c.mu.Lock()
	reg := c.registry
	c.mu.Unlock()
	if reg == nil {
		return nil
	}
	n := reg.Len()
	out := make([]SymbolPriceSnapshot, 0, n)
	for ix := 0; ix < n; ix++ {
		name, _ := reg.Name(ix)
		tick, _ := reg.Price(ix)
		out = append(out, SymbolPriceSnapshot{
			Ix: ix, Name: name, IsFX: reg.IsFX(ix), Decimals: reg.DecimalPrecision(ix),
			Bid: tick.Bid, Ask: tick.Ask,
		})
	}
	return out
}

// RestorePrice overwrites a registered symbol's current quote from a
// persisted snapshot. Only meaningful before InitSimLoop.
func (c *Client) RestorePrice(ix int, bid, ask int64) {
	c.mu.Lock()
	reg := c.registry
	c.mu.Unlock()
	if reg != nil {
		reg.SetPrice(ix, bid, ask)
	}
}

// GetStream returns the push stream: at most one subscriber, carrying
// both Notification and Response broadcasts (§6).
func (c *Client) GetStream() <-chan ledger.BrokerMessage {
	return c.pushCh
}

// Execute allocates a one-shot completion, enqueues (action, complete) on
// the action channel, and returns the completion channel. Valid both
// before and after arming — before arming, the send simply waits in the
// channel buffer until InitSimLoop starts the loop to drain it.
func (c *Client) Execute(action Action) <-chan Result {
	complete := make(chan Result, 1)
	c.actionCh <- actionRequest{action: action, complete: complete}
	return complete
}

// RegisterTickstream delegates to the still-owned registry. Rejected
// once the registry is armed (symbol.ErrArmed surfaces as ErrMessage).
func (c *Client) RegisterTickstream(name string, src symbol.Source, isFX bool, decimals uint8) ledger.BrokerError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return &ledger.ErrMessage{Text: "simbroker: not initialized"}
	}
	if _, err := c.registry.Add(name, isFX, decimals, src); err != nil {
		return &ledger.ErrMessage{Text: err.Error()}
	}
	return nil
}

// OneshotPriceSet seeds (or overwrites) a symbol's current quote without
// a full tickstream — useful for FX base-currency crosses that only need
// a static rate. If the symbol already exists its price is overwritten
// directly; otherwise it is registered with a single-tick source.
func (c *Client) OneshotPriceSet(name string, bid, ask int64, isFX bool, decimals uint8) ledger.BrokerError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return &ledger.ErrMessage{Text: "simbroker: not initialized"}
	}
	if ix, ok := c.registry.IndexOf(name); ok {
		c.registry.SetPrice(ix, bid, ask)
		return nil
	}
	src := &oneshotSource{tick: symbol.Tick{Bid: bid, Ask: ask}}
	ix, err := c.registry.Add(name, isFX, decimals, src)
	if err != nil {
		return &ledger.ErrMessage{Text: err.Error()}
	}
	c.registry.SetPrice(ix, bid, ask)
	return nil
}

// InitSimLoop extracts the SimBroker and spawns the goroutine that runs
// it to completion. After this call, ListAccounts/GetLedger/
// RegisterTickstream return ErrMessage; Execute/SubTicks/GetStream
// remain valid for the life of the run.
func (c *Client) InitSimLoop() ledger.BrokerError {
	c.mu.Lock()
	if c.broker == nil {
		c.mu.Unlock()
		return &ledger.ErrMessage{Text: "simbroker: loop already armed"}
	}
	b := c.broker
	c.broker = nil
	c.armed = true
	c.mu.Unlock()

	b.registry.Arm()
	b.seedInitialTicks()
	go b.Run(c.actionCh, c.pushCh)
	return nil
}
