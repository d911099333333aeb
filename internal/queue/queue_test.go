package queue

import "testing"

func TestPopOrdersByTimestamp(t *testing.T) {
	q := New()
	q.Push(30, Work{Kind: KindNewTick})
	q.Push(10, Work{Kind: KindResponse})
	q.Push(20, Work{Kind: KindNotification})

	var order []uint64
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, item.Timestamp)
	}
	want := []uint64{10, 20, 30}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPopTiesBrokenByInsertionOrder(t *testing.T) {
	q := New()
	q.Push(5, Work{Kind: KindNewTick, SymbolIx: 1})
	q.Push(5, Work{Kind: KindNewTick, SymbolIx: 2})
	q.Push(5, Work{Kind: KindNewTick, SymbolIx: 3})

	var order []int
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, item.Work.SymbolIx)
	}
	want := []int{1, 2, 3}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("tie order = %v, want %v", order, want)
		}
	}
}

func TestPopEmptyQueue(t *testing.T) {
	q := New()
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue returned ok=true")
	}
}

func TestLen(t *testing.T) {
	q := New()
	q.Push(1, Work{})
	q.Push(2, Work{})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("Len() after Pop = %d, want 1", q.Len())
	}
}
