package anthocnet

import "time"

// QueueEntry is one inbound, not-yet-dispatched packet sitting in the
// income queue.
type QueueEntry struct {
	Iface      int
	Sender     Addr
	Payload    []byte
	ReceivedAt time.Time
	Timeout    time.Duration
}

func (e *QueueEntry) expired(now time.Time) bool {
	return now.Sub(e.ReceivedAt) >= e.Timeout
}

// IncomeQueue is the bounded FIFO of unprocessed inbound packets (C4),
// absorbing bursts of ants observed during route discovery while the
// engine handles one event at a time.
type IncomeQueue struct {
	clock          Clock
	maxLen         int
	defaultTimeout time.Duration
	entries        []*QueueEntry
}

// NewIncomeQueue constructs a queue holding at most maxLen entries, each
// defaulting to defaultTimeout unless QueueEntry.Timeout is set
// explicitly before Enqueue.
func NewIncomeQueue(clock Clock, maxLen int, defaultTimeout time.Duration) *IncomeQueue {
	return &IncomeQueue{clock: clock, maxLen: maxLen, defaultTimeout: defaultTimeout}
}

// Enqueue accepts e unless the queue is already at maxLen and its head
// entry is still live, in which case e is rejected (false). If the
// queue is full but the head has expired, the head is evicted and e is
// accepted.
func (q *IncomeQueue) Enqueue(e *QueueEntry) bool {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = q.clock.Now()
	}
	if e.Timeout == 0 {
		e.Timeout = q.defaultTimeout
	}
	if len(q.entries) >= q.maxLen {
		if q.entries[0].expired(q.clock.Now()) {
			q.entries = q.entries[1:]
		} else {
			return false
		}
	}
	q.entries = append(q.entries, e)
	return true
}

// Dequeue pops and returns the oldest live entry, skipping any expired
// entries encountered along the way. Returns ok=false once the queue is
// empty.
func (q *IncomeQueue) Dequeue() (*QueueEntry, bool) {
	now := q.clock.Now()
	for len(q.entries) > 0 {
		e := q.entries[0]
		q.entries = q.entries[1:]
		if !e.expired(now) {
			return e, true
		}
	}
	return nil, false
}

// Len reports the current queue depth, including any expired entries
// not yet skipped by Dequeue.
func (q *IncomeQueue) Len() int { return len(q.entries) }
