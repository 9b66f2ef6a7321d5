package anthocnet

import "errors"

// Sentinel errors for the failure kinds the engine must distinguish.
// Counters and callback firing are driven off these, never off raw
// strings, so callers can errors.Is against them.
var (
	// ErrDecodeInvalid marks a header that failed structural validation.
	ErrDecodeInvalid = errors.New("anthocnet: invalid packet encoding")
	// ErrStaleAnt marks a backward ant whose stack top is not self, or
	// whose claimed link is impossible.
	ErrStaleAnt = errors.New("anthocnet: stale or impossible ant")
	// ErrNoRouteNow means no route exists yet; the packet was cached and
	// discovery started.
	ErrNoRouteNow = errors.New("anthocnet: no route, discovery queued")
	// ErrCacheFull names the cache-full failure kind. No code path
	// returns it: PendingCache.Insert never rejects an entry, and
	// IncomeQueue.Enqueue reports a full queue by returning false.
	ErrCacheFull = errors.New("anthocnet: pending cache full")
	// ErrNeighborDead marks a (destination, neighbor) cell invalidated by
	// neighbor expiry or an error ant.
	ErrNeighborDead = errors.New("anthocnet: neighbor no longer reachable")
	// ErrInterfaceDown marks packets that depended on a downed interface.
	ErrInterfaceDown = errors.New("anthocnet: interface down")
	// ErrDestinationsExhausted is returned by AddDestination when
	// MaxDestinations rows are already allocated.
	ErrDestinationsExhausted = errors.New("anthocnet: destination table full")
	// ErrNeighborsExhausted is returned by AddNeighbor when MaxNeighbors
	// columns are already allocated.
	ErrNeighborsExhausted = errors.New("anthocnet: neighbor table full")
)
