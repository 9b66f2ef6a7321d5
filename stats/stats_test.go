package stats

import (
	"testing"
	"time"

	"github.com/kprusa/anthocnet"
)

func Test_TrafficSymmetry_noData(t *testing.T) {
	c := NewCollector(anthocnet.NewManualClock(time.Unix(0, 0)), 40*time.Second, 5*time.Second)
	if got := c.TrafficSymmetry(); got != 1.0 {
		t.Errorf("TrafficSymmetry() = %v, want 1.0 with no traffic", got)
	}
}

func Test_TrafficSymmetry_perfectlyBalanced(t *testing.T) {
	clock := anthocnet.NewManualClock(time.Unix(0, 0))
	c := NewCollector(clock, 40*time.Second, 5*time.Second)
	a := anthocnet.Addr{10, 0, 0, 1}
	b := anthocnet.Addr{10, 0, 0, 2}

	c.RegisterTx(a, b, b)
	c.RegisterTx(b, a, a)

	if got := c.TrafficSymmetry(); got != 1.0 {
		t.Errorf("TrafficSymmetry() = %v, want 1.0 for balanced traffic", got)
	}
}

func Test_TrafficSymmetry_purgesOldSamples(t *testing.T) {
	clock := anthocnet.NewManualClock(time.Unix(0, 0))
	c := NewCollector(clock, 40*time.Second, 5*time.Second)
	a := anthocnet.Addr{10, 0, 0, 1}
	b := anthocnet.Addr{10, 0, 0, 2}

	c.RegisterTx(a, b, b)
	clock.Advance(41 * time.Second)

	if got := c.TrafficSymmetry(); got != 1.0 {
		t.Errorf("TrafficSymmetry() = %v, want 1.0 after window elapses", got)
	}
}

func Test_NbTrafficSymmetry_emptyIsHalf(t *testing.T) {
	c := NewCollector(anthocnet.NewManualClock(time.Unix(0, 0)), 40*time.Second, 5*time.Second)
	nb := anthocnet.Addr{10, 0, 0, 2}
	if got := c.NbTrafficSymmetry(nb); got != 0.5 {
		t.Errorf("NbTrafficSymmetry() = %v, want 0.5 with no traffic", got)
	}
}

func Test_NbTrafficSymmetry_allReceived(t *testing.T) {
	c := NewCollector(anthocnet.NewManualClock(time.Unix(0, 0)), 40*time.Second, 5*time.Second)
	nb := anthocnet.Addr{10, 0, 0, 2}
	c.RegisterRx(nb)
	c.RegisterRx(nb)
	if got := c.NbTrafficSymmetry(nb); got != 1.0 {
		t.Errorf("NbTrafficSymmetry() = %v, want 1.0 when all traffic is received", got)
	}
}
