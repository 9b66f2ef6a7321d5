package anthocnet

import (
	"testing"
	"time"
)

func Test_IncomeQueue_rejectsWhenFullAndHeadLive(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	q := NewIncomeQueue(clock, 2, time.Second)

	if !q.Enqueue(&QueueEntry{Iface: 0}) {
		t.Fatal("Enqueue() 1st = false")
	}
	if !q.Enqueue(&QueueEntry{Iface: 1}) {
		t.Fatal("Enqueue() 2nd = false")
	}
	if q.Enqueue(&QueueEntry{Iface: 2}) {
		t.Error("Enqueue() on full queue with live head = true, want false")
	}
}

func Test_IncomeQueue_evictsExpiredHeadWhenFull(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	q := NewIncomeQueue(clock, 2, time.Second)

	q.Enqueue(&QueueEntry{Iface: 0})
	clock.Advance(2 * time.Second)
	q.Enqueue(&QueueEntry{Iface: 1})

	if !q.Enqueue(&QueueEntry{Iface: 2}) {
		t.Error("Enqueue() with expired head on full queue = false, want true (evict-then-accept)")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func Test_IncomeQueue_Dequeue_skipsExpired(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	q := NewIncomeQueue(clock, 5, time.Second)

	q.Enqueue(&QueueEntry{Iface: 0})
	clock.Advance(2 * time.Second)
	q.Enqueue(&QueueEntry{Iface: 1})

	e, ok := q.Dequeue()
	if !ok {
		t.Fatal("Dequeue() ok = false, want true")
	}
	if e.Iface != 1 {
		t.Errorf("Dequeue() = iface %d, want 1 (entry 0 should have been skipped as expired)", e.Iface)
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on now-empty queue ok = true, want false")
	}
}
