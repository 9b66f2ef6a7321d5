package anthocnet

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kprusa/anthocnet/stats"
)

// Outcome is RouteOutput's synchronous result.
type Outcome int

const (
	OutcomeRouted Outcome = iota
	OutcomeQueued
	OutcomeNoRoute
)

// RouteResult is what RouteOutput/RouteInput hand back to the host IP
// layer: either an immediate route, or an indication that discovery was
// started and the packet is cached.
type RouteResult struct {
	Outcome Outcome
	Route   Route
}

// sessionInfo tracks recent outbound traffic to a destination so the
// proactive-ant timer knows which sessions are still active.
type sessionInfo struct {
	lastTx time.Time
}

// datagramTransport is everything the engine needs from the link layer:
// satisfied by the real *Transport (UDP sockets) and, in tests, by an
// in-memory fabric gating delivery on a scripted link trace instead of
// real sockets, the same way the teacher's Node took its input/output as
// plain channels rather than a concrete socket type.
type datagramTransport interface {
	Send(iface int, broadcast bool, dst *net.UDPAddr, buf []byte) error
	Inbound() <-chan Inbound
}

// Engine is the routing protocol engine (C6): it ties the packet codec,
// routing table, pending cache, income queue and statistics collector
// together behind timers and ant handlers, the same way the teacher's
// Node.Run ties its neighbor/topology tables and message handlers
// together behind one ticker-driven select loop.
type Engine struct {
	// mu serializes every state-touching entry point (timers, inbound
	// handling, and RouteOutput/RouteInput called by a host layer that
	// may live on its own goroutine), the "single mutex" option the
	// concurrency model calls for since this engine doesn't get to run
	// as the only thing on its OS thread.
	mu sync.Mutex

	cfg  *Config
	self Addr

	rt    *RoutingTable
	cache *PendingCache
	rq    *IncomeQueue

	traffic *stats.Collector
	tracker *stats.PacketTracker
	metrics *stats.Metrics

	clock     Clock
	rng       *rand.Rand
	linkCost  LinkCost
	exponents ExponentSource

	transport datagramTransport
	ifaceUp   map[int]bool

	sessions map[Addr]*sessionInfo

	blackholeArmedAt time.Time
	blackholeOn      bool

	log *log.Entry
}

// NewEngine wires up an Engine for node self, governed by cfg.
func NewEngine(self Addr, cfg *Config, transport datagramTransport, clock Clock, linkCost LinkCost, exponents ExponentSource, metrics *stats.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		self:      self,
		rt:        NewRoutingTable(cfg),
		cache:     NewPendingCache(clock, cfg.DcacheExpire),
		rq:        NewIncomeQueue(clock, 64, cfg.DcacheExpire),
		traffic:   stats.NewCollector(clock, 40*time.Second, 5*time.Second),
		tracker:   stats.NewPacketTracker(clock),
		metrics:   metrics,
		clock:     clock,
		rng:       rand.New(rand.NewSource(1)),
		linkCost:  linkCost,
		exponents: exponents,
		transport: transport,
		ifaceUp:   make(map[int]bool),
		sessions:  make(map[Addr]*sessionInfo),
		log:       log.WithField("node", self.String()),
	}
}

// NotifyInterfaceUp marks iface usable.
func (e *Engine) NotifyInterfaceUp(iface int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ifaceUp[iface] = true
}

// NotifyInterfaceDown purges every neighbor entry heard on iface, per
// the interface-down failure kind: packets depending on them surface
// errors.
func (e *Engine) NotifyInterfaceDown(iface int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ifaceUp[iface] = false
	for addr := range e.neighborsOnIface(iface) {
		e.rt.RemoveNeighbor(iface, addr)
		e.cache.Invalidate(addr, ErrInterfaceDown)
	}
}

func (e *Engine) neighborsOnIface(iface int) map[Addr]struct{} {
	out := make(map[Addr]struct{})
	for key := range e.rt.nbSlots {
		if key.Iface == iface {
			out[key.Addr] = struct{}{}
		}
	}
	return out
}

// Run drives the single event-loop goroutine: hello timer, routing
// table sweep timer, proactive-ant timer, and the transport's inbound
// channel, exactly as many suspension points as the concurrency model
// allows and no more — every branch below runs a handler to completion
// before the next select.
func (e *Engine) Run(ctx context.Context) {
	helloTicker := time.NewTicker(e.cfg.HelloInterval)
	sweepTicker := time.NewTicker(e.cfg.RtableUpdateInterval)
	prAntTicker := time.NewTicker(e.cfg.PrAntInterval)
	defer helloTicker.Stop()
	defer sweepTicker.Stop()
	defer prAntTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-helloTicker.C:
			e.mu.Lock()
			e.sendHelloAll()
			e.mu.Unlock()
		case <-sweepTicker.C:
			e.mu.Lock()
			e.rt.Update(e.cfg.RtableUpdateInterval)
			e.cache.ExpireSweep()
			e.mu.Unlock()
		case <-prAntTicker.C:
			e.mu.Lock()
			e.emitProactiveAnts()
			e.mu.Unlock()
		case ib := <-e.transport.Inbound():
			e.mu.Lock()
			e.handleInbound(ib)
			e.mu.Unlock()
		}
	}
}

func (e *Engine) sendHelloAll() {
	for iface, up := range e.ifaceUp {
		if !up {
			continue
		}
		h := &AntHeader{TTLOrMaxHops: 1, Hops: 0, Src: e.self, Dst: Broadcast}
		e.sendBroadcast(iface, MsgHello, h)
	}
}

func (e *Engine) emitProactiveAnts() {
	now := e.clock.Now()
	for dst, sess := range e.sessions {
		if now.Sub(sess.lastTx) > e.cfg.SessionExpire {
			delete(e.sessions, dst)
			continue
		}
		e.dispatchForwardAnt(dst, MsgProactiveForwardAnt, e.exponents.ProgExponent())
	}
}

func (e *Engine) sendBroadcast(iface int, kind MessageType, h *AntHeader) {
	buf := Encode(kind, h)
	if err := e.transport.Send(iface, true, nil, buf); err != nil {
		e.log.WithError(err).WithField("iface", iface).Warn("broadcast send failed")
	}
}

func (e *Engine) sendUnicast(iface int, nb Addr, kind MessageType, h *AntHeader) {
	addr := &net.UDPAddr{IP: net.IPv4(nb[0], nb[1], nb[2], nb[3]), Port: e.cfg.AntPort}
	buf := Encode(kind, h)
	if err := e.transport.Send(iface, false, addr, buf); err != nil {
		e.log.WithError(err).WithField("iface", iface).WithField("nb", nb).Warn("unicast send failed")
	}
}

// handleInbound decodes a datagram and hands data traffic to handleData;
// everything else (hello/ant/error control traffic) is enqueued on the
// income queue (C4), which is then drained within the same call. The
// queue therefore never holds more than the entry just added and does
// not absorb bursts: datagrams not yet handled wait in the transport's
// inbound channel.
func (e *Engine) handleInbound(ib Inbound) {
	kind, h, err := Decode(ib.Data)
	if err != nil {
		if e.metrics != nil {
			e.metrics.DecodeInvalid.WithLabelValues(kind.String()).Inc()
		}
		e.log.WithError(err).WithField("iface", ib.Iface).Debug("decode-invalid")
		return
	}
	if kind == MsgData {
		e.handleData(ib.Iface, h)
		return
	}
	if !e.rq.Enqueue(&QueueEntry{Iface: ib.Iface, Sender: ib.Sender, Payload: ib.Data}) {
		e.log.WithField("kind", kind.String()).Warn("income queue full, dropping")
		return
	}
	e.drainIncomeQueue()
}

// drainIncomeQueue dispatches every currently live entry sitting in the
// income queue; entries that expired while queued are dropped silently,
// same as a decode failure.
func (e *Engine) drainIncomeQueue() {
	for {
		entry, ok := e.rq.Dequeue()
		if !ok {
			return
		}
		kind, h, err := Decode(entry.Payload)
		if err != nil {
			if e.metrics != nil {
				e.metrics.DecodeInvalid.WithLabelValues(kind.String()).Inc()
			}
			continue
		}
		switch kind {
		case MsgHello:
			e.handleHello(entry.Iface, h)
		case MsgForwardAnt, MsgProactiveForwardAnt:
			e.handleForward(entry.Iface, kind, h)
		case MsgBackwardAnt:
			e.handleBackward(entry.Iface, entry.Sender, h)
		case MsgRepairAnt:
			e.handleForward(entry.Iface, kind, h)
		case MsgError:
			e.handleError(entry.Iface, h)
		}
	}
}

func (e *Engine) handleHello(iface int, h *AntHeader) {
	if err := e.rt.UpdateNeighbor(iface, h.Src); err != nil {
		e.log.WithError(err).Debug("UpdateNeighbor failed on hello")
	}
}

// dispatchForwardAnt starts (or re-starts) discovery for dst: unicast if
// a route already exists, otherwise broadcast subject to the gate.
func (e *Engine) dispatchForwardAnt(dst Addr, kind MessageType, beta float64) {
	h := &AntHeader{TTLOrMaxHops: e.cfg.InitialTTL, Hops: 0, Src: e.self, Dst: dst, Stack: []Addr{e.self}}
	if route, ok := e.rt.SelectRoute(dst, beta, e.rng); ok {
		e.sendUnicast(route.Iface, route.NB, kind, h)
		return
	}
	if e.rt.IsBroadcastAllowed(dst) {
		for iface, up := range e.ifaceUp {
			if up {
				e.sendBroadcast(iface, kind, h)
			}
		}
		e.rt.NoBroadcast(dst, e.cfg.NoBroadcast)
	}
}

// handleForward implements the forward-ant and repair-ant handler: if
// self is the destination, turn the ant around as a backward ant;
// otherwise push self on the stack, apply loop elision, decrement TTL,
// and continue toward dst.
func (e *Engine) handleForward(iface int, kind MessageType, h *AntHeader) {
	if h.Dst == e.self {
		e.sendBackwardAnt(iface, h)
		return
	}
	if h.TTLOrMaxHops == 0 {
		return
	}
	h.TTLOrMaxHops--
	h.Stack = append(h.Stack, e.self)
	h.Hops++
	applyLoopElision(h, e.self)

	beta := e.exponents.ConsExponent()
	if kind == MsgProactiveForwardAnt {
		beta = e.exponents.ProgExponent()
	}
	if route, ok := e.rt.SelectRoute(h.Dst, beta, e.rng); ok {
		e.sendUnicast(route.Iface, route.NB, kind, h)
		return
	}
	if e.rt.IsBroadcastAllowed(h.Dst) {
		for i, up := range e.ifaceUp {
			if up {
				e.sendBroadcast(i, kind, h)
			}
		}
		e.rt.NoBroadcast(h.Dst, e.cfg.NoBroadcast)
	}
}

// applyLoopElision truncates h's stack at self's first occurrence,
// using the corrected rule hops <- i (the source's
// "hops - (hops + i)" expression underflows for i >= 1; see the
// loop-elision open question).
func applyLoopElision(h *AntHeader, self Addr) {
	for i, addr := range h.Stack {
		if addr == self && i < len(h.Stack)-1 {
			h.Stack = h.Stack[:i+1]
			h.Hops = byte(i)
			return
		}
	}
}

// sendBackwardAnt turns an arriving forward ant around at the
// destination. The backward ant keeps the forward ant's stack and hops
// count as-is (Stack[Hops] is the last relay that delivered the
// forward ant, by the same "current node sits at the end" convention
// forward ants build); resetting T to zero and unicasting to that last
// relay, exactly the "previous node in the stack" the design calls for.
// Each subsequent hop re-derives the "previous hop" from the transport
// layer's sender address rather than from stack contents, since the
// destination is never itself written into the stack.
func (e *Engine) sendBackwardAnt(iface int, fwd *AntHeader) {
	if len(fwd.Stack) == 0 {
		return
	}
	bw := &AntHeader{
		TTLOrMaxHops: fwd.Hops,
		Hops:         fwd.Hops,
		Src:          e.self,
		Dst:          fwd.Src,
		T:            0,
		Stack:        append([]Addr(nil), fwd.Stack...),
	}
	prevHop := bw.Stack[bw.Hops]
	e.sendUnicast(iface, prevHop, MsgBackwardAnt, bw)
}

// handleBackward validates that self is the current stack top, folds
// the measured cost into the routing table, adds this link's T_ind,
// pops the stack tail and continues toward the originator. On arrival
// at the originator it drains the pending cache for that destination.
func (e *Engine) handleBackward(iface int, sender Addr, h *AntHeader) {
	if h.Stack[int(h.Hops)] != e.self {
		e.log.Warn("stale backward ant: stack top is not self")
		return
	}
	dst := h.Src // the node this ant is depositing pheromone toward

	if err := e.rt.ProcessBackwardAnt(dst, iface, sender, h.T, int(h.Hops)); err != nil {
		e.emitErrorAnt(iface, sender, dst)
		return
	}

	tInd := e.linkCost.Cost(iface, sender)
	h.T += tInd

	if h.Hops == 0 {
		// self is the original forward ant's source: arrived home, dst
		// is now routable.
		e.cache.Drain(dst)
		return
	}
	h.Stack = h.Stack[:h.Hops]
	h.Hops--
	h.TTLOrMaxHops--
	nextHop := h.Stack[h.Hops]
	e.sendUnicast(iface, nextHop, MsgBackwardAnt, h)
}

// emitErrorAnt reports an impossible backward ant back upstream (to
// whoever just sent it to us) and invalidates the advertised cell.
func (e *Engine) emitErrorAnt(iface int, deadNb, dst Addr) {
	e.rt.InvalidateNeighborCell(dst, iface, deadNb)
	e.cache.Invalidate(dst, ErrNeighborDead)
	h := &AntHeader{Src: e.self, Dst: dst, Stack: []Addr{deadNb}}
	e.sendUnicast(iface, deadNb, MsgError, h)
}

// handleError invalidates the advertised (dst, nb) cell and surfaces
// error callbacks for any cached data destined there.
func (e *Engine) handleError(iface int, h *AntHeader) {
	if len(h.Stack) == 0 {
		return
	}
	deadNb := h.Stack[0]
	e.rt.InvalidateNeighborCell(h.Dst, iface, deadNb)
	e.cache.Invalidate(h.Dst, ErrNeighborDead)
}

// dispatchRepairAnt is invoked when data cannot be routed at all: pick
// any live neighbor link at random and send a constrained forward ant
// down it hunting for a patch, grounded on the source's
// SelectRandomRoute used from the repair path.
func (e *Engine) dispatchRepairAnt(dst Addr) bool {
	route, ok := e.rt.SelectRandomRoute(e.rng)
	if !ok {
		return false
	}
	h := &AntHeader{TTLOrMaxHops: e.cfg.InitialTTL, Hops: 0, Src: e.self, Dst: dst, Stack: []Addr{e.self}}
	e.sendUnicast(route.Iface, route.NB, MsgRepairAnt, h)
	return true
}

// RouteOutput is the host IP layer's synchronous lookup for locally
// originated data: on hit, returns the route; on miss, caches the
// packet, starts discovery, and reports "queued". Each call creates a
// PacketTracker record and marks it in transmission, the same creation
// point the source's SimDatabase recorded packets at; the record is
// marked dropped if the cached packet errors out, and nothing in the
// engine marks it received.
func (e *Engine) RouteOutput(dst Addr, payload []byte, onForward func(Route), onError func(error)) RouteResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routeOutput(dst, payload, onForward, onError)
}

func (e *Engine) routeOutput(dst Addr, payload []byte, onForward func(Route), onError func(error)) RouteResult {
	e.markSession(dst)
	seq := e.tracker.Create(e.self, dst, len(payload))
	if route, ok := e.rt.SelectRoute(dst, e.exponents.ConsExponent(), e.rng); ok {
		e.traffic.RegisterTx(e.self, dst, route.NB)
		e.tracker.MarkInTransmission(seq)
		return RouteResult{Outcome: OutcomeRouted, Route: route}
	}
	e.tracker.MarkInTransmission(seq)
	e.cache.Insert(dst, &CacheEntry{
		Payload: payload,
		OnForward: func(entry *CacheEntry) {
			if route, ok := e.rt.SelectRoute(dst, e.exponents.ConsExponent(), e.rng); ok {
				onForward(route)
			}
		},
		OnError: func(entry *CacheEntry, err error) {
			e.tracker.MarkDropped(seq)
			onError(err)
		},
	})
	e.dispatchForwardAnt(dst, MsgForwardAnt, e.exponents.ConsExponent())
	return RouteResult{Outcome: OutcomeQueued}
}

// RouteInput is the lookup for transit data: self-destined packets are
// handed to localDeliver; a route miss on in-flight data first tries a
// repair ant down a random live link before falling back to full
// broadcast discovery, since re-running discovery from a relay in the
// middle of the path is wasteful when a neighbor might patch it.
func (e *Engine) RouteInput(iface int, dst Addr, payload []byte, localDeliver func([]byte), onForward func(Route), onError func(error)) RouteResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routeInput(iface, dst, payload, localDeliver, onForward, onError)
}

func (e *Engine) routeInput(iface int, dst Addr, payload []byte, localDeliver func([]byte), onForward func(Route), onError func(error)) RouteResult {
	if dst == e.self {
		localDeliver(payload)
		return RouteResult{Outcome: OutcomeRouted}
	}
	if e.isBlackholed() {
		if e.metrics != nil {
			e.metrics.PacketsDropped.Inc()
		}
		return RouteResult{Outcome: OutcomeNoRoute}
	}
	if route, ok := e.rt.SelectRoute(dst, e.exponents.ConsExponent(), e.rng); ok {
		e.traffic.RegisterTx(e.self, dst, route.NB)
		return RouteResult{Outcome: OutcomeRouted, Route: route}
	}
	e.cache.Insert(dst, &CacheEntry{
		Payload: payload,
		OnForward: func(entry *CacheEntry) {
			if route, ok := e.rt.SelectRoute(dst, e.exponents.ConsExponent(), e.rng); ok {
				onForward(route)
			}
		},
		OnError: func(entry *CacheEntry, err error) { onError(err) },
	})
	if !e.dispatchRepairAnt(dst) {
		e.dispatchForwardAnt(dst, MsgForwardAnt, e.exponents.ConsExponent())
	}
	return RouteResult{Outcome: OutcomeQueued}
}

func (e *Engine) markSession(dst Addr) {
	sess, ok := e.sessions[dst]
	if !ok {
		sess = &sessionInfo{}
		e.sessions[dst] = sess
	}
	sess.lastTx = e.clock.Now()
}

// isBlackholed reports whether this node should silently drop transit
// data right now, per Config.BlackholeMode/Activation/Amount. Control
// traffic (hello/ant handling) is never affected.
func (e *Engine) isBlackholed() bool {
	if !e.cfg.BlackholeMode {
		return false
	}
	if !e.blackholeOn {
		if e.clock.Now().Sub(e.blackholeArmedAt) < e.cfg.BlackholeActivation {
			return false
		}
		e.blackholeOn = true
	}
	return e.rng.Float64() < e.cfg.BlackholeAmount
}

// ArmBlackhole records the clock reading blackhole activation is
// measured from; call this once, at engine start.
func (e *Engine) ArmBlackhole() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blackholeArmedAt = e.clock.Now()
}

func (e *Engine) handleData(iface int, h *AntHeader) {
	// Data datagrams are the host's native payloads; the protocol only
	// supplies next-hop decisions, so a bare AntHeader-framed MsgData
	// arriving here is routed exactly like RouteInput's transit case.
	e.traffic.RegisterRx(h.Src)
	e.routeInput(iface, h.Dst, nil, func([]byte) {}, func(Route) {}, func(error) {})
}
