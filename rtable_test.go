package anthocnet

import (
	"math/rand"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.NbExpire = 2500 * time.Millisecond
	cfg.SessionExpire = 10 * time.Second
	return cfg
}

func Test_AddRemoveNeighbor_idempotent(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	nb := Addr{10, 0, 0, 2}

	if err := rt.AddNeighbor(0, nb); err != nil {
		t.Fatalf("AddNeighbor() error = %v", err)
	}
	if err := rt.AddNeighbor(0, nb); err != nil {
		t.Fatalf("second AddNeighbor() error = %v", err)
	}
	if !rt.IsNeighbor(nb) {
		t.Fatal("IsNeighbor() = false after AddNeighbor")
	}

	rt.RemoveNeighbor(0, nb)
	rt.RemoveNeighbor(0, nb) // idempotent
	if rt.IsNeighbor(nb) {
		t.Error("IsNeighbor() = true after RemoveNeighbor")
	}
}

func Test_AddDestination_exhausted(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	for i := 0; i < MaxDestinations; i++ {
		addr := Addr{10, 0, byte(i >> 8), byte(i)}
		if err := rt.AddDestination(addr); err != nil {
			t.Fatalf("AddDestination(%d) error = %v", i, err)
		}
	}
	if err := rt.AddDestination(Addr{255, 255, 255, 255}); err != ErrDestinationsExhausted {
		t.Errorf("AddDestination() on full table error = %v, want ErrDestinationsExhausted", err)
	}
}

func Test_SelectRoute_emptyRow_noRoute(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	dst := Addr{10, 0, 0, 9}
	if err := rt.AddDestination(dst); err != nil {
		t.Fatal(err)
	}
	if _, ok := rt.SelectRoute(dst, 20, rand.New(rand.NewSource(1))); ok {
		t.Error("SelectRoute() ok = true for destination with no defined cell")
	}
}

func Test_SelectRoute_destinationIsNeighbor_fastPath(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	dst := Addr{10, 0, 0, 2}
	if err := rt.AddNeighbor(3, dst); err != nil {
		t.Fatal(err)
	}
	route, ok := rt.SelectRoute(dst, 20, rand.New(rand.NewSource(1)))
	if !ok {
		t.Fatal("SelectRoute() ok = false, want true for one-hop neighbor")
	}
	if route.Iface != 3 || route.NB != dst {
		t.Errorf("SelectRoute() = %+v, want {Iface:3 NB:%v}", route, dst)
	}
}

func Test_ProcessBackwardAnt_unknownNeighbor_fails(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	err := rt.ProcessBackwardAnt(Addr{1, 1, 1, 1}, 0, Addr{2, 2, 2, 2}, 1.0, 3)
	if err != ErrNeighborDead {
		t.Errorf("ProcessBackwardAnt() error = %v, want ErrNeighborDead", err)
	}
}

func Test_ProcessBackwardAnt_firstWriteIsRaw(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	nb := Addr{10, 0, 0, 2}
	dst := Addr{10, 0, 0, 3}
	if err := rt.AddNeighbor(0, nb); err != nil {
		t.Fatal(err)
	}
	if err := rt.ProcessBackwardAnt(dst, 0, nb, 1.0, 2); err != nil {
		t.Fatalf("ProcessBackwardAnt() error = %v", err)
	}

	route, ok := rt.SelectRoute(dst, 20, rand.New(rand.NewSource(1)))
	if !ok {
		t.Fatal("SelectRoute() ok = false after ProcessBackwardAnt")
	}
	if route.NB != nb {
		t.Errorf("SelectRoute() = %+v, want next hop %v", route, nb)
	}

	dstRow := rt.dests[dst]
	nbSlot := rt.nbSlots[neighborKey{Iface: 0, Addr: nb}]
	c := rt.cells[dstRow.slot][nbSlot]
	wantTid := 1.0 / ((1.0 + 2*rt.cfg.THop) / 2)
	if v, ok := c.Pheromone.Value(); !ok || v != wantTid {
		t.Errorf("Pheromone = %v (ok=%v), want %v (first write is raw, not averaged)", v, ok, wantTid)
	}
}

func Test_Update_expiresNeighborAfterNbExpire(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	nb := Addr{10, 0, 0, 2}
	if err := rt.AddNeighbor(0, nb); err != nil {
		t.Fatal(err)
	}
	rt.Update(rt.cfg.NbExpire)
	if rt.IsNeighbor(nb) {
		t.Error("IsNeighbor() = true after Update(dt >= NbExpire)")
	}
	if _, ok := rt.SelectRoute(nb, 20, rand.New(rand.NewSource(1))); ok {
		t.Error("SelectRoute() ok = true for expired neighbor")
	}
}

func Test_DestinationTTL_neverBelowNeighborTTL(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	nb := Addr{10, 0, 0, 2}
	if err := rt.AddNeighbor(0, nb); err != nil {
		t.Fatal(err)
	}
	row := rt.dests[nb]
	if row.ExpiresIn < row.Neighbors[0].ExpiresIn {
		t.Errorf("destination TTL %v < neighbor TTL %v", row.ExpiresIn, row.Neighbors[0].ExpiresIn)
	}
}

func Test_BroadcastGate(t *testing.T) {
	rt := NewRoutingTable(testConfig())
	dst := Addr{10, 0, 0, 9}
	if !rt.IsBroadcastAllowed(dst) {
		t.Fatal("IsBroadcastAllowed() = false for fresh destination")
	}
	rt.NoBroadcast(dst, rt.cfg.NoBroadcast)
	if rt.IsBroadcastAllowed(dst) {
		t.Error("IsBroadcastAllowed() = true immediately after NoBroadcast")
	}
	rt.Update(rt.cfg.NoBroadcast)
	if !rt.IsBroadcastAllowed(dst) {
		t.Error("IsBroadcastAllowed() = false after gate duration elapsed")
	}
}
