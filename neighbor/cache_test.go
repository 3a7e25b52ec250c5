package neighbor

import (
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }

func TestUpdateUnsolicitedCreatesStale(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::1")
	ll := addr.EUI64{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

	if err := c.UpdateUnsolicited(a, ll); err != nil {
		t.Fatal(err)
	}
	e, ok := c.Lookup(a)
	if !ok {
		t.Fatal("entry not created")
	}
	if e.State != Stale {
		t.Errorf("state = %v, want STALE", e.State)
	}
	if !e.HaveLL || e.LLAddr != ll {
		t.Errorf("ll addr not recorded")
	}
}

func TestUpdateUnsolicitedDifferingLLMarksStale(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::1")
	ll1 := addr.EUI64{1}
	ll2 := addr.EUI64{2}
	c.UpdateUnsolicited(a, ll1)
	e, _ := c.Lookup(a)
	c.setReachable(e) // simulate having been REACHABLE

	c.UpdateUnsolicited(a, ll2)
	if e.State != Stale {
		t.Errorf("state = %v, want STALE after LL change", e.State)
	}
	if e.LLAddr != ll2 {
		t.Errorf("ll addr not updated")
	}
}

func TestUpdateFromNAIncompleteToReachable(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::2")
	e := &Entry{Addr: a, State: Incomplete}
	c.insert(e)

	ll := addr.EUI64{9}
	c.UpdateFromNA(e, NAFlags{Router: true, Solicited: true}, ll, true)

	if e.State != Reachable {
		t.Errorf("state = %v, want REACHABLE", e.State)
	}
	if !e.IsRouter {
		t.Error("IsRouter not set")
	}
}

func TestUpdateFromNAIncompleteUnsolicitedGoesStale(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::2")
	e := &Entry{Addr: a, State: Incomplete}
	c.insert(e)

	c.UpdateFromNA(e, NAFlags{}, addr.EUI64{}, false)
	if e.State != Stale {
		t.Errorf("state = %v, want STALE", e.State)
	}
}

func TestUpdateFromNAConflictingWithoutOverrideIgnored(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::3")
	ll1 := addr.EUI64{1}
	ll2 := addr.EUI64{2}
	e := &Entry{Addr: a, State: Reachable, LLAddr: ll1, HaveLL: true}
	c.insert(e)

	c.UpdateFromNA(e, NAFlags{Solicited: true, Override: false}, ll2, true)
	if e.LLAddr != ll1 {
		t.Errorf("ll addr changed without override: got %v", e.LLAddr)
	}
	if e.State != Reachable {
		t.Errorf("state changed unexpectedly: %v", e.State)
	}
}

func TestTickReachableToStale(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::4")
	e := &Entry{Addr: a, State: Incomplete}
	c.insert(e)
	c.setReachable(e)

	past := e.ReachableUntil.Add(time.Second)
	c.Tick(past)
	if e.State != Stale {
		t.Errorf("state = %v, want STALE after expiry", e.State)
	}
}

func TestTickDelayToProbeToUnreachable(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::5")
	e := &Entry{Addr: a, State: Stale}
	c.insert(e)

	now := mono.Now()
	c.MarkDelay(e)
	if e.State != Delay {
		t.Fatalf("state = %v, want DELAY", e.State)
	}

	c.Tick(now.Add(6 * time.Second))
	if e.State != Probe {
		t.Fatalf("state = %v, want PROBE", e.State)
	}

	probeExpiry := time.Duration(c.maxMulticastSolicit) * time.Duration(c.retransTimerMs) * time.Millisecond
	c.Tick(now.Add(6*time.Second + probeExpiry + time.Second))
	if e.State != Unreachable {
		t.Fatalf("state = %v, want UNREACHABLE", e.State)
	}
}

// TestReachableTimeReroll is scenario S6: 1000 rerolls with base
// 30000ms must all land in [15000, 45000] with mean within 5% of 30000.
func TestReachableTimeReroll(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	now := mono.Now()
	var sum int64
	const n = 1000
	for i := 0; i < n; i++ {
		now = now.Add(601 * time.Second)
		c.Tick(now)
		v := c.ReachableMs()
		if v < 15000 || v > 45000 {
			t.Fatalf("sample %d out of range: %d", i, v)
		}
		sum += v
	}
	mean := float64(sum) / n
	if math.Abs(mean-30000) > 30000*0.05 {
		t.Errorf("mean = %v, want within 5%% of 30000", mean)
	}
}

func TestNeighborTableFullEvictsOldestStale(t *testing.T) {
	c := NewCache(nil, 30000, 2)
	a1 := mustAddr("fe80::1")
	a2 := mustAddr("fe80::2")
	a3 := mustAddr("fe80::3")

	c.UpdateUnsolicited(a1, addr.EUI64{1}) // STALE
	c.UpdateUnsolicited(a2, addr.EUI64{2}) // STALE

	if err := c.UpdateUnsolicited(a3, addr.EUI64{3}); err != nil {
		t.Fatalf("insert with eviction should succeed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Lookup(a1); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Lookup(a3); !ok {
		t.Error("new entry should be present")
	}
}

// TestNeighborCacheKeyUniqueness is the §8 universal property: no two
// NCEs share an IPv6 address, by construction of the map key.
func TestNeighborCacheKeyUniqueness(t *testing.T) {
	c := NewCache(nil, 30000, 0)
	a := mustAddr("fe80::9")
	c.UpdateUnsolicited(a, addr.EUI64{1})
	c.UpdateUnsolicited(a, addr.EUI64{2})
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (same address must not duplicate)", c.Len())
	}
}
