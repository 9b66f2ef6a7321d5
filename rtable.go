package anthocnet

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Dimensioning constants from the original routing table: sized for
// plausible MANET densities, not meant to scale with node count.
const (
	MaxDestinations = 1000
	MaxNeighbors    = 300
	MaxInterfaces   = 10
)

// Pheromone is a tagged Undefined|Defined(f64) cell value. It replaces
// the NaN-as-sentinel trick in the original table: undefined must never
// leak into downstream arithmetic, and an explicit tag makes that a
// compile-time-checked property instead of a NaN-comparison gotcha.
type Pheromone struct {
	ok    bool
	value float64
}

// Undefined returns the zero, not-yet-measured cell value.
func Undefined() Pheromone { return Pheromone{} }

// Defined wraps a measured value.
func Defined(v float64) Pheromone { return Pheromone{ok: true, value: v} }

func (p Pheromone) IsDefined() bool { return p.ok }

// Value returns the wrapped value and whether it was defined. Reading
// the value of an undefined cell without checking ok is a caller bug.
func (p Pheromone) Value() (float64, bool) { return p.value, p.ok }

// cell is one (destination, neighbor) entry of the pheromone matrix.
// VirtualPheromone, SendPheromone and RecvPheromone are reserved: the
// original declares them for proactive dissemination and load-aware
// routing but never drives them, and neither does this implementation
// (see the Open Questions on proactive/load-aware fields).
type cell struct {
	Pheromone        Pheromone
	AvgHops          Pheromone
	VirtualPheromone Pheromone
	SendPheromone    float64
	RecvPheromone    float64
}

// NeighborInfo is a (interface, neighbor) column of the matrix: it only
// exists for destinations that are themselves one-hop neighbors.
type NeighborInfo struct {
	Iface     int
	slot      int
	ExpiresIn time.Duration
}

// neighborKey identifies a column allocation: a neighbor may be heard on
// more than one interface, and each (iface, addr) pair gets its own
// slot since per-interface cost can differ.
type neighborKey struct {
	Iface int
	Addr  Addr
}

// destRow is one row of the matrix: a known destination, its TTL and
// broadcast-gate state, and — if this destination is a one-hop neighbor
// — the per-interface NeighborInfo entries for it.
type destRow struct {
	Addr             Addr
	slot             int
	ExpiresIn        time.Duration
	NoBroadcastUntil time.Duration
	Neighbors        map[int]*NeighborInfo // keyed by interface index
}

// RoutingTable is the pheromone matrix plus neighbor/destination
// lifecycle. It is not internally synchronized: the engine serializes
// every access to it, from its event loop and from RouteOutput/
// RouteInput callers alike, under Engine.mu.
type RoutingTable struct {
	cfg *Config

	dests    map[Addr]*destRow
	dstSlots [MaxDestinations]bool

	nbSlots    map[neighborKey]int
	nbSlotKey  [MaxNeighbors]neighborKey
	nbUsemap   [MaxNeighbors]bool
	cells map[int]map[int]*cell // [dstSlot][nbSlot]
}

// NewRoutingTable constructs an empty table governed by cfg's TTL and
// pheromone-smoothing knobs.
func NewRoutingTable(cfg *Config) *RoutingTable {
	return &RoutingTable{
		cfg:     cfg,
		dests:   make(map[Addr]*destRow),
		nbSlots: make(map[neighborKey]int),
		cells:   make(map[int]map[int]*cell),
	}
}

func (rt *RoutingTable) allocDstSlot() (int, bool) {
	for i := 0; i < MaxDestinations; i++ {
		if !rt.dstSlots[i] {
			rt.dstSlots[i] = true
			return i, true
		}
	}
	return 0, false
}

func (rt *RoutingTable) allocNbSlot() (int, bool) {
	for i := 0; i < MaxNeighbors; i++ {
		if !rt.nbUsemap[i] {
			rt.nbUsemap[i] = true
			return i, true
		}
	}
	return 0, false
}

// AddDestination allocates a row for addr if absent. Idempotent.
// Returns ErrDestinationsExhausted, never panics, when the table is
// full.
func (rt *RoutingTable) AddDestination(addr Addr) error {
	if _, ok := rt.dests[addr]; ok {
		return nil
	}
	slot, ok := rt.allocDstSlot()
	if !ok {
		return ErrDestinationsExhausted
	}
	rt.dests[addr] = &destRow{
		Addr:      addr,
		slot:      slot,
		ExpiresIn: rt.cfg.SessionExpire,
		Neighbors: make(map[int]*NeighborInfo),
	}
	rt.cells[slot] = make(map[int]*cell)
	return nil
}

// RemoveDestination frees addr's row, cascading removal of any neighbor
// entries that hung off it (a destination that was also a one-hop
// neighbor loses its columns too). Idempotent.
func (rt *RoutingTable) RemoveDestination(addr Addr) {
	row, ok := rt.dests[addr]
	if !ok {
		return
	}
	for iface := range row.Neighbors {
		rt.RemoveNeighbor(iface, addr)
	}
	delete(rt.cells, row.slot)
	rt.dstSlots[row.slot] = false
	delete(rt.dests, addr)
}

// AddNeighbor allocates a column for (iface, addr) if absent, and
// ensures a destination row exists for addr (a neighbor is always also
// a destination). Idempotent.
func (rt *RoutingTable) AddNeighbor(iface int, addr Addr) error {
	key := neighborKey{Iface: iface, Addr: addr}
	if _, ok := rt.nbSlots[key]; ok {
		return nil
	}
	slot, ok := rt.allocNbSlot()
	if !ok {
		return ErrNeighborsExhausted
	}
	if err := rt.AddDestination(addr); err != nil {
		rt.nbUsemap[slot] = false
		return err
	}
	rt.nbSlots[key] = slot
	rt.nbSlotKey[slot] = key
	row := rt.dests[addr]
	row.Neighbors[iface] = &NeighborInfo{Iface: iface, slot: slot, ExpiresIn: rt.cfg.NbExpire}
	if row.ExpiresIn < rt.cfg.NbExpire {
		row.ExpiresIn = rt.cfg.NbExpire
	}
	return nil
}

// RemoveNeighbor frees the (iface, addr) column and zeroes it out of
// every destination row. Idempotent.
func (rt *RoutingTable) RemoveNeighbor(iface int, addr Addr) {
	key := neighborKey{Iface: iface, Addr: addr}
	slot, ok := rt.nbSlots[key]
	if !ok {
		return
	}
	delete(rt.nbSlots, key)
	rt.nbUsemap[slot] = false
	for _, row := range rt.cells {
		delete(row, slot)
	}
	if row, ok := rt.dests[addr]; ok {
		delete(row.Neighbors, iface)
	}
}

// UpdateNeighbor is called on every hello from (iface, addr). It creates
// the neighbor if unknown, otherwise refreshes its TTL and raises the
// destination's TTL to at least the refreshed value (invariant I2: a
// destination's TTL never falls below its live neighbors').
func (rt *RoutingTable) UpdateNeighbor(iface int, addr Addr) error {
	key := neighborKey{Iface: iface, Addr: addr}
	if _, ok := rt.nbSlots[key]; !ok {
		return rt.AddNeighbor(iface, addr)
	}
	row := rt.dests[addr]
	ni := row.Neighbors[iface]
	ni.ExpiresIn = rt.cfg.NbExpire
	if row.ExpiresIn < rt.cfg.NbExpire {
		row.ExpiresIn = rt.cfg.NbExpire
	}
	return nil
}

// Update runs the periodic sweep: broadcast-gate decay, destination and
// neighbor TTL decrement and expiry, and the destination-TTL-floor
// reconciliation against its surviving neighbors.
func (rt *RoutingTable) Update(dt time.Duration) {
	for addr, row := range rt.dests {
		row.NoBroadcastUntil -= dt
		if row.NoBroadcastUntil < 0 {
			row.NoBroadcastUntil = 0
		}
		row.ExpiresIn -= dt
		if row.ExpiresIn <= 0 {
			rt.RemoveDestination(addr)
			continue
		}
		maxNb := time.Duration(0)
		for iface, ni := range row.Neighbors {
			ni.ExpiresIn -= dt
			if ni.ExpiresIn <= 0 {
				rt.RemoveNeighbor(iface, addr)
				continue
			}
			if ni.ExpiresIn > maxNb {
				maxNb = ni.ExpiresIn
			}
		}
		if len(row.Neighbors) > 0 && row.ExpiresIn < maxNb {
			row.ExpiresIn = maxNb
		}
	}
}

// ProcessBackwardAnt folds a backward ant's measured cost into the
// pheromone matrix. It fails (ant dropped) if the returning neighbor is
// not known on iface, matching the original's requirement that a
// backward ant must walk back over a link the table already believes
// in.
func (rt *RoutingTable) ProcessBackwardAnt(dst Addr, iface int, nbAddr Addr, Tsd float64, hops int) error {
	if err := rt.AddDestination(dst); err != nil {
		return err
	}
	key := neighborKey{Iface: iface, Addr: nbAddr}
	nbSlot, ok := rt.nbSlots[key]
	if !ok {
		return ErrNeighborDead
	}
	if err := rt.UpdateNeighbor(iface, nbAddr); err != nil {
		return err
	}
	dstRow := rt.dests[dst]
	dstRow.ExpiresIn = rt.cfg.SessionExpire

	Tid := 1.0 / ((Tsd + float64(hops)*rt.cfg.THop) / 2)

	c := rt.cellAt(dstRow.slot, nbSlot, true)
	if h, ok := c.AvgHops.Value(); ok {
		c.AvgHops = Defined(rt.cfg.Alpha*h + (1-rt.cfg.Alpha)*float64(hops))
	} else {
		c.AvgHops = Defined(float64(hops))
	}
	if p, ok := c.Pheromone.Value(); ok {
		c.Pheromone = Defined(rt.cfg.Gamma*p + (1-rt.cfg.Gamma)*Tid)
	} else {
		c.Pheromone = Defined(Tid)
	}
	return nil
}

func (rt *RoutingTable) cellAt(dstSlot, nbSlot int, create bool) *cell {
	row, ok := rt.cells[dstSlot]
	if !ok {
		if !create {
			return nil
		}
		row = make(map[int]*cell)
		rt.cells[dstSlot] = row
	}
	c, ok := row[nbSlot]
	if !ok {
		if !create {
			return nil
		}
		c = &cell{}
		row[nbSlot] = c
	}
	return c
}

// Route is a selected (interface, next-hop) pair.
type Route struct {
	Iface int
	NB    Addr
}

// orderedNeighbors returns a destination row's live neighbor entries
// ordered by interface index (they all share the row's address), so
// SelectRoute's destination-is-neighbor fast path always picks the same
// link.
func (rt *RoutingTable) orderedNeighbors(row *destRow) []*NeighborInfo {
	out := make([]*NeighborInfo, 0, len(row.Neighbors))
	for _, ni := range row.Neighbors {
		out = append(out, ni)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Iface < out[j].Iface })
	return out
}

// SelectRoute picks a next hop toward dst. If dst is itself a one-hop
// neighbor it is returned directly (invariant: destination-is-neighbor
// bypasses stochastic selection). Otherwise it draws from the roulette
// wheel of pheromone^beta over dst's row, skipping undefined cells.
// Reports ok=false ("no route") without dividing by zero when the row
// has no defined cell.
func (rt *RoutingTable) SelectRoute(dst Addr, beta float64, rng *rand.Rand) (Route, bool) {
	row, ok := rt.dests[dst]
	if !ok {
		return Route{}, false
	}
	if len(row.Neighbors) > 0 {
		nbs := rt.orderedNeighbors(row)
		return Route{Iface: nbs[0].Iface, NB: dst}, true
	}

	type weighted struct {
		key    neighborKey
		weight float64
	}
	var weights []weighted
	total := 0.0
	for nbSlot, c := range rt.cells[row.slot] {
		p, ok := c.Pheromone.Value()
		if !ok {
			continue
		}
		w := math.Pow(p, beta)
		total += w
		weights = append(weights, weighted{key: rt.nbSlotKey[nbSlot], weight: w})
	}
	if total <= 0 || len(weights) == 0 {
		return Route{}, false
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].key.Addr != weights[j].key.Addr {
			return bytesLess(weights[i].key.Addr, weights[j].key.Addr)
		}
		return weights[i].key.Iface < weights[j].key.Iface
	})

	u := rng.Float64()
	acc := 0.0
	for _, w := range weights {
		acc += w.weight / total
		if acc > u {
			return Route{Iface: w.key.Iface, NB: w.key.Addr}, true
		}
	}
	last := weights[len(weights)-1]
	return Route{Iface: last.key.Iface, NB: last.key.Addr}, true
}

func bytesLess(a, b Addr) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SelectRandomRoute picks uniformly over every known neighbor link,
// independent of any particular destination row; used by repair ants
// hunting for any live path out of the node.
func (rt *RoutingTable) SelectRandomRoute(rng *rand.Rand) (Route, bool) {
	if len(rt.nbSlots) == 0 {
		return Route{}, false
	}
	keys := make([]neighborKey, 0, len(rt.nbSlots))
	for k := range rt.nbSlots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Iface != keys[j].Iface {
			return keys[i].Iface < keys[j].Iface
		}
		return bytesLess(keys[i].Addr, keys[j].Addr)
	})
	pick := keys[rng.Intn(len(keys))]
	return Route{Iface: pick.Iface, NB: pick.Addr}, true
}

// IsBroadcastAllowed reports whether dst's broadcast gate has cooled
// down. An unknown destination has never been gated.
func (rt *RoutingTable) IsBroadcastAllowed(dst Addr) bool {
	row, ok := rt.dests[dst]
	if !ok {
		return true
	}
	return row.NoBroadcastUntil <= 0
}

// NoBroadcast arms the broadcast gate for dst for d, creating the
// destination row if needed.
func (rt *RoutingTable) NoBroadcast(dst Addr, d time.Duration) {
	if err := rt.AddDestination(dst); err != nil {
		return
	}
	rt.dests[dst].NoBroadcastUntil = d
}

// InvalidateNeighborCell removes the (dst, nb) cell on an error ant or a
// detected dead neighbor, without tearing down the neighbor entirely.
func (rt *RoutingTable) InvalidateNeighborCell(dst Addr, iface int, nbAddr Addr) {
	row, ok := rt.dests[dst]
	if !ok {
		return
	}
	key := neighborKey{Iface: iface, Addr: nbAddr}
	slot, ok := rt.nbSlots[key]
	if !ok {
		return
	}
	if r, ok := rt.cells[row.slot]; ok {
		delete(r, slot)
	}
}

// IsNeighbor reports whether dst is reachable as a one-hop neighbor.
func (rt *RoutingTable) IsNeighbor(dst Addr) bool {
	row, ok := rt.dests[dst]
	return ok && len(row.Neighbors) > 0
}
