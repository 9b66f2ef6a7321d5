package anthocnet

import "time"

// CacheEntry is a user datagram held while a route is being discovered:
// its origin header, the opaque payload reference, and the upstream
// continuations that the cache — not the caller — must fire exactly
// once as the entry leaves the cache.
type CacheEntry struct {
	Iface      int
	Header     *AntHeader
	Payload    []byte
	ReceivedAt time.Time
	Budget     time.Duration

	// OnForward is invoked once a route materializes and the packet is
	// handed back to the engine for transmission.
	OnForward func(*CacheEntry)
	// OnError is invoked once the budget expires with no route, or the
	// destination is invalidated outright.
	OnError func(*CacheEntry, error)

	fired bool
}

// PendingCache is the per-destination FIFO of data awaiting a route
// (C3). A default budget is set at construction; individual inserts may
// override it via CacheEntry.Budget.
type PendingCache struct {
	clock         Clock
	defaultBudget time.Duration
	entries       map[Addr][]*CacheEntry
}

// NewPendingCache constructs a cache whose entries expire after
// defaultBudget unless the entry itself overrides it.
func NewPendingCache(clock Clock, defaultBudget time.Duration) *PendingCache {
	return &PendingCache{
		clock:         clock,
		defaultBudget: defaultBudget,
		entries:       make(map[Addr][]*CacheEntry),
	}
}

// Insert appends e to dst's queue, stamping ReceivedAt and the default
// budget if unset.
func (c *PendingCache) Insert(dst Addr, e *CacheEntry) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = c.clock.Now()
	}
	if e.Budget == 0 {
		e.Budget = c.defaultBudget
	}
	c.entries[dst] = append(c.entries[dst], e)
}

func (c *PendingCache) expired(e *CacheEntry) bool {
	return c.clock.Now().Sub(e.ReceivedAt) >= e.Budget
}

// fireForward and fireError enforce the exactly-once invariant (I4): an entry leaves the
// cache via exactly one of OnForward or OnError, never both, never
// neither.
func (e *CacheEntry) fireForward() {
	if e.fired {
		return
	}
	e.fired = true
	if e.OnForward != nil {
		e.OnForward(e)
	}
}

func (e *CacheEntry) fireError(err error) {
	if e.fired {
		return
	}
	e.fired = true
	if e.OnError != nil {
		e.OnError(e, err)
	}
}

// Drain dispatches every live entry cached for dst via OnForward, in
// insertion order, then clears dst's queue. Expired entries encountered
// along the way fire OnError instead and are likewise removed.
func (c *PendingCache) Drain(dst Addr) {
	entries := c.entries[dst]
	delete(c.entries, dst)
	for _, e := range entries {
		if c.expired(e) {
			e.fireError(ErrNoRouteNow)
			continue
		}
		e.fireForward()
	}
}

// ExpireSweep fires OnError for every entry across all destinations
// whose budget has elapsed, and compacts the surviving entries back
// into place. Call this from the same periodic sweep driving
// RoutingTable.Update.
func (c *PendingCache) ExpireSweep() {
	for dst, entries := range c.entries {
		live := entries[:0]
		for _, e := range entries {
			if c.expired(e) {
				e.fireError(ErrNoRouteNow)
				continue
			}
			live = append(live, e)
		}
		if len(live) == 0 {
			delete(c.entries, dst)
		} else {
			c.entries[dst] = live
		}
	}
}

// Invalidate fires OnError for every entry cached for dst (used when a
// neighbor dies or an error ant arrives) and clears the queue.
func (c *PendingCache) Invalidate(dst Addr, err error) {
	entries := c.entries[dst]
	delete(c.entries, dst)
	for _, e := range entries {
		e.fireError(err)
	}
}

// Destinations returns every destination with at least one cached entry,
// powering the post-discovery drain enumeration. Entries whose budget has
// elapsed but that ExpireSweep has not yet removed still count.
func (c *PendingCache) Destinations() []Addr {
	out := make([]Addr, 0, len(c.entries))
	for dst := range c.entries {
		out = append(out, dst)
	}
	return out
}
