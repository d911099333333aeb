// Package queue implements the simulation loop's priority queue: a
// min-heap on (timestamp, insertion sequence) carrying the loop's work
// items. The secondary key exists purely for determinism — two items at
// the same timestamp must still pop in a fixed order across runs, and
// insertion sequence is the simplest deterministic tiebreak (§4.4, §9).
package queue

import (
	"container/heap"

	"github.com/ndrandal/simbroker/internal/symbol"
)

// Kind tags which variant of the work-item union an Item carries.
type Kind int

const (
	KindNewTick Kind = iota
	KindClientTick
	KindActionComplete
	KindResponse
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindNewTick:
		return "NewTick"
	case KindClientTick:
		return "ClientTick"
	case KindActionComplete:
		return "ActionComplete"
	case KindResponse:
		return "Response"
	case KindNotification:
		return "Notification"
	default:
		return "Unknown"
	}
}

// Work is the tagged-union payload of a queue Item. Only the fields
// relevant to Kind are populated; Action/Result are carried as `any`
// (simbroker's BrokerAction / BrokerMessage-or-BrokerError) so this
// package has no dependency on the core's action/message types and
// cannot form an import cycle with it.
type Work struct {
	Kind Kind

	SymbolIx int
	Tick     symbol.Tick

	ReqID  uint64
	Action any

	// Complete carries the one-shot completion channel (simbroker's
	// `chan Result`) from ActionComplete through to Response, as `any` so
	// this package stays independent of the core's result type.
	Complete any

	Result any
}

// Item is one scheduled unit of work: a timestamp, the tiebreak
// sequence it was pushed with, and its payload.
type Item struct {
	Timestamp uint64
	Seq       uint64
	Work      Work
}

// innerHeap implements container/heap.Interface as a min-heap on
// (Timestamp, Seq).
type innerHeap []*Item

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].Timestamp != h[j].Timestamp {
		return h[i].Timestamp < h[j].Timestamp
	}
	return h[i].Seq < h[j].Seq
}
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x any) {
	*h = append(*h, x.(*Item))
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the simulation loop's priority queue.
type Queue struct {
	heap innerHeap
	seq  uint64
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Push enqueues w at the given timestamp, stamping it with the next
// insertion sequence number for tiebreak purposes.
func (q *Queue) Push(timestamp uint64, w Work) {
	item := &Item{Timestamp: timestamp, Seq: q.seq, Work: w}
	q.seq++
	heap.Push(&q.heap, item)
}

// Pop removes and returns the minimum-(timestamp,seq) item. ok is false
// when the queue is empty.
func (q *Queue) Pop() (Item, bool) {
	if q.heap.Len() == 0 {
		return Item{}, false
	}
	item := heap.Pop(&q.heap).(*Item)
	return *item, true
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int { return q.heap.Len() }

// Seq returns the next insertion-sequence value Push will stamp an item
// with. Nothing in the repository persists it; snapshots carry RNG state
// but not this counter, so a restored run starts its tiebreak sequence
// from zero.
func (q *Queue) Seq() uint64 { return q.seq }

// RestoreSeq sets the next insertion-sequence value, for snapshot restore.
func (q *Queue) RestoreSeq(seq uint64) { q.seq = seq }

// PushNextTick pulls the next (ix, tick) from the registry's lookahead
// and enqueues it as a NewTick at tick.Timestamp. Returns false when the
// registry has no more ticks (every source exhausted).
func (q *Queue) PushNextTick(reg *symbol.Registry) bool {
	ix, tick, ok := reg.NextTick()
	if !ok {
		return false
	}
	q.Push(tick.Timestamp, Work{Kind: KindNewTick, SymbolIx: ix, Tick: tick})
	return true
}
