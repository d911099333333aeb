package simbroker

import (
	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/queue"
)

// actionRequest couples a client action with the one-shot channel the
// loop fulfills once it has executed (§3's "req_id links the in-loop
// event back to a client-waiting one-shot completion" — here the channel
// itself is the link, no separate id needed).
type actionRequest struct {
	action   Action
	complete chan Result
}

// drainLimit bounds how many queued actions Step absorbs into the
// priority queue per call, per §4.5 step 1 ("up to a bound supplied by
// the caller"). Native Go channels already give us non-blocking MPSC
// receive via select/default, so no separate funnel goroutine is needed
// — the design notes in §5 call this case out explicitly.
const drainLimit = 256

// Step runs one iteration of the simulation loop (§4.5): drain pending
// actions non-blockingly, pop the minimum-timestamp work item, advance
// `now`, and dispatch by kind. Returns the number of client-visible
// events emitted this iteration (delivered ticks or push broadcasts) and
// whether the loop has more work to do.
func (b *SimBroker) Step(actionCh <-chan actionRequest, pushCh chan<- ledger.BrokerMessage) (emitted int, more bool) {
	b.drainActions(actionCh)

	item, ok := b.queue.Pop()
	if !ok {
		return 0, false
	}
	b.now = item.Timestamp

	switch item.Work.Kind {
	case queue.KindNewTick:
		return b.dispatchNewTick(item)
	case queue.KindClientTick:
		return b.dispatchClientTick(item)
	case queue.KindActionComplete:
		return b.dispatchActionComplete(item)
	case queue.KindResponse:
		return b.dispatchResponse(item, pushCh)
	case queue.KindNotification:
		return b.dispatchNotification(item, pushCh)
	default:
		return 0, true
	}
}

func (b *SimBroker) drainActions(actionCh <-chan actionRequest) {
	for i := 0; i < drainLimit; i++ {
		select {
		case req := <-actionCh:
			execTS := b.now + b.settings.ExecutionDelayNs
			b.queue.Push(execTS, queue.Work{
				Kind:     queue.KindActionComplete,
				Action:   req.action,
				Complete: req.complete,
			})
		default:
			return
		}
	}
}

func (b *SimBroker) dispatchNewTick(item queue.Item) (int, bool) {
	ix, tick := item.Work.SymbolIx, item.Work.Tick
	b.registry.SetPrice(ix, tick.Bid, tick.Ask)
	b.queue.Push(tick.Timestamp+b.settings.PingNs, queue.Work{
		Kind: queue.KindClientTick, SymbolIx: ix, Tick: tick,
	})

	notes := b.tickPositions(ix, tick.Bid, tick.Ask)
	for _, n := range notes {
		b.queue.Push(b.now+b.settings.PingNs, queue.Work{Kind: queue.KindNotification, Result: n})
	}

	if !b.queue.PushNextTick(b.registry) {
		b.log.Debug().Int("symbol", ix).Msg("tick source exhausted")
	}
	return 0, true
}

func (b *SimBroker) dispatchClientTick(item queue.Item) (int, bool) {
	ix, tick := item.Work.SymbolIx, item.Work.Tick
	b.registry.SendClient(ix, tick)
	return 1, true
}

func (b *SimBroker) dispatchActionComplete(item queue.Item) (int, bool) {
	action := item.Work.Action.(Action)
	res := b.execAction(action)
	if res.Err == nil {
		switch action.Kind {
		case ActionMarketOrder, ActionLimitOrder, ActionCancelOrder, ActionMarketClose:
			if acct, ok := b.accounts.Get(action.AcctID); ok {
				b.queue.Push(b.now+b.settings.PingNs, queue.Work{
					Kind:   queue.KindNotification,
					Result: ledger.LedgerBalanceChange{NewBuyingPower: acct.Ledger.BuyingPower},
				})
			}
		}
	}
	b.queue.Push(b.now+b.settings.PingNs, queue.Work{
		Kind: queue.KindResponse, Complete: item.Work.Complete, Result: res,
	})
	return 0, true
}

func (b *SimBroker) dispatchResponse(item queue.Item, pushCh chan<- ledger.BrokerMessage) (int, bool) {
	res := item.Work.Result.(Result)
	if complete, ok := item.Work.Complete.(chan Result); ok && complete != nil {
		complete <- res
	}
	if pushCh != nil {
		pushCh <- resultMessage(res)
	}
	return 1, true
}

func (b *SimBroker) dispatchNotification(item queue.Item, pushCh chan<- ledger.BrokerMessage) (int, bool) {
	msg := item.Work.Result.(ledger.BrokerMessage)
	if pushCh != nil {
		pushCh <- msg
	}
	return 1, true
}

// resultMessage flattens a Result onto the push stream's single
// BrokerMessage channel: a BrokerError becomes a Failure message, since
// the push stream only carries messages (the Response's completion
// channel above already delivered the raw error to the requester).
func resultMessage(res Result) ledger.BrokerMessage {
	if res.Err != nil {
		return ledger.Failure{Err: res.Err}
	}
	return res.Message
}

// Run drives Step to completion: the simulation thread's top-level entry
// point once InitSimLoop has armed the broker (§5). Returns when the
// queue is empty and no work remains in flight.
func (b *SimBroker) Run(actionCh <-chan actionRequest, pushCh chan<- ledger.BrokerMessage) {
	for {
		if _, more := b.Step(actionCh, pushCh); !more {
			return
		}
	}
}
