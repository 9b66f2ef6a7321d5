package anthocnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/kprusa/anthocnet"
	"github.com/kprusa/anthocnet/simnet"
)

func fastConfig() *anthocnet.Config {
	cfg := anthocnet.DefaultConfig()
	cfg.HelloInterval = 10 * time.Millisecond
	cfg.RtableUpdateInterval = 20 * time.Millisecond
	cfg.PrAntInterval = 200 * time.Millisecond
	cfg.NoBroadcast = 5 * time.Millisecond
	cfg.DcacheExpire = 2 * time.Second
	cfg.SessionExpire = 5 * time.Second
	cfg.NbExpire = time.Second
	return cfg
}

func newLineEngine(self Addr, fabric *simnet.Fabric, cfg *anthocnet.Config) *anthocnet.Engine {
	e := anthocnet.NewEngine(self, cfg, fabric.Register(self, 0), anthocnet.SystemClock{},
		anthocnet.NewMACCost(cfg.AlphaTMac), anthocnet.NewStaticExponents(cfg), nil)
	e.NotifyInterfaceUp(0)
	return e
}

// Addr is a local alias so the helpers above read naturally; the real
// type lives in the anthocnet package.
type Addr = anthocnet.Addr

// Test_ThreeNodeLine_discoversRoute exercises the canonical three-node
// line scenario: n0 has no direct link to n2 and must discover a route
// through n1 via forward/backward ant exchange before it can route data.
func Test_ThreeNodeLine_discoversRoute(t *testing.T) {
	n0, n1, n2 := Addr{10, 0, 0, 1}, Addr{10, 0, 0, 2}, Addr{10, 0, 0, 3}

	trace := simnet.NewTrace()
	trace.Add(simnet.LinkState{Tick: 0, Status: simnet.Up, From: n0, To: n1})
	trace.Add(simnet.LinkState{Tick: 0, Status: simnet.Up, From: n1, To: n2})
	fabric := simnet.NewFabric(trace, func() int { return 0 })

	cfg := fastConfig()
	e0 := newLineEngine(n0, fabric, cfg)
	e1 := newLineEngine(n1, fabric, cfg)
	e2 := newLineEngine(n2, fabric, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go e0.Run(ctx)
	go e1.Run(ctx)
	go e2.Run(ctx)

	// Let a couple of hello rounds populate the neighbor tables before
	// starting discovery.
	time.Sleep(100 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	var result anthocnet.RouteResult
	for time.Now().Before(deadline) {
		result = e0.RouteOutput(n2, []byte("payload"), func(anthocnet.Route) {}, func(error) {})
		if result.Outcome == anthocnet.OutcomeRouted {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	if result.Outcome != anthocnet.OutcomeRouted {
		t.Fatalf("n0 never discovered a route to n2, last outcome = %v", result.Outcome)
	}
	if result.Route.NB != n1 {
		t.Errorf("route next hop = %v, want %v (the only live relay)", result.Route.NB, n1)
	}
}

// Test_InterfaceDown_losesDirectRoute exercises the interface-down
// failure kind: a neighbor learned over an interface stops being
// directly routable once that interface is marked down.
func Test_InterfaceDown_losesDirectRoute(t *testing.T) {
	self, peer := Addr{10, 0, 0, 1}, Addr{10, 0, 0, 2}

	trace := simnet.NewTrace()
	trace.Add(simnet.LinkState{Tick: 0, Status: simnet.Up, From: self, To: peer})
	fabric := simnet.NewFabric(trace, func() int { return 0 })
	cfg := fastConfig()

	e := newLineEngine(self, fabric, cfg)
	p := newLineEngine(peer, fabric, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go e.Run(ctx)
	go p.Run(ctx)

	time.Sleep(150 * time.Millisecond) // let hellos settle

	before := e.RouteOutput(peer, []byte("x"), func(anthocnet.Route) {}, func(error) {})
	if before.Outcome != anthocnet.OutcomeRouted || before.Route.NB != peer {
		t.Fatalf("before down: outcome = %+v, want a direct route to peer", before)
	}

	e.NotifyInterfaceDown(0)

	after := e.RouteOutput(peer, []byte("x"), func(anthocnet.Route) {}, func(error) {})
	if after.Outcome == anthocnet.OutcomeRouted {
		t.Errorf("after down: outcome = %+v, want the direct route to be gone", after)
	}
}

// Test_Blackhole_dropsTransitData confirms blackhole mode silently
// drops transit data once armed and activated: RouteInput reports
// OutcomeNoRoute for a transit packet.
func Test_Blackhole_dropsTransitData(t *testing.T) {
	self := Addr{10, 0, 0, 1}
	dst := Addr{10, 0, 0, 9}

	trace := simnet.NewTrace()
	fabric := simnet.NewFabric(trace, func() int { return 0 })
	cfg := fastConfig()
	cfg.BlackholeMode = true
	cfg.BlackholeActivation = 0
	cfg.BlackholeAmount = 1.0

	e := anthocnet.NewEngine(self, cfg, fabric.Register(self, 0), anthocnet.SystemClock{},
		anthocnet.NewMACCost(cfg.AlphaTMac), anthocnet.NewStaticExponents(cfg), nil)
	e.NotifyInterfaceUp(0)
	e.ArmBlackhole()

	result := e.RouteInput(0, dst, []byte("transit"), func([]byte) {}, func(anthocnet.Route) {}, func(error) {})
	if result.Outcome != anthocnet.OutcomeNoRoute {
		t.Errorf("RouteInput() outcome = %v, want OutcomeNoRoute (blackholed)", result.Outcome)
	}
}
