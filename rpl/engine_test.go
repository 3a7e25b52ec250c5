package rpl

import (
	"testing"
	"time"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
)

func dodagID(b byte) [16]byte {
	var d [16]byte
	d[0] = 0x20
	d[1] = 0x01
	d[15] = b
	return d
}

// TestDIOInstallsPreferredParent is scenario S2.
func TestDIOInstallsPreferredParent(t *testing.T) {
	e := NewEngine(nil, addr.EUI64{0xee})
	var fired int
	var gotParent *Neighbor
	e.OnPreferredParentChange = func(n *Neighbor) {
		fired++
		gotParent = n
	}

	now := mono.Now()
	d := DIO{
		Base: DIOBase{
			InstanceID: 0x1e,
			DODAGID:    dodagID(1),
			Version:    1,
			Rank:       256,
			Grounded:   true,
		},
		Config: icmp6.RPLConfig{
			DIOIntervalMin:       15,
			DIOIntervalDoublings: 2,
			DIORedundancy:        0,
			DefaultLifetime:      60,
			LifetimeUnit:         60,
			MinHopRankIncrease:   128,
		},
		SrcEUI64: addr.EUI64{0xaa},
		ETX:      1.0,
	}
	e.HandleDIO(d, now)

	if fired != 1 {
		t.Fatalf("OnPreferredParentChange fired %d times, want 1", fired)
	}
	parent, ok := e.Table.PreferredParent()
	if !ok || parent.EUI64 != d.SrcEUI64 {
		t.Fatalf("preferred parent not set correctly: %+v", parent)
	}
	if gotParent != parent {
		t.Fatalf("callback received different neighbor than table")
	}
	if e.SelfRank() < 384 || e.SelfRank() > 768 {
		t.Fatalf("self rank = %d, want in [384,768]", e.SelfRank())
	}
	if e.SelfRank() <= parent.DIOBase.Rank {
		t.Fatalf("rank monotonicity violated: self=%d parent=%d", e.SelfRank(), parent.DIOBase.Rank)
	}
}

// TestSinglePreferredParentInvariant is the §8 universal property:
// at most one RN may have IsPreferredParent set, across a sequence of
// competing DIOs.
func TestSinglePreferredParentInvariant(t *testing.T) {
	e := NewEngine(nil, addr.EUI64{0xee})
	now := mono.Now()
	cfg := icmp6.RPLConfig{DIOIntervalMin: 15, DefaultLifetime: 60, LifetimeUnit: 60, MinHopRankIncrease: 128, MaxRankIncrease: 10000}

	for i, rank := range []uint16{500, 300, 700, 100} {
		d := DIO{
			Base:     DIOBase{Version: 1, Rank: rank, DODAGID: dodagID(1)},
			Config:   cfg,
			SrcEUI64: addr.EUI64{byte(i + 1)},
			ETX:      1.0,
		}
		e.HandleDIO(d, now)

		count := 0
		e.Table.All(func(n *Neighbor) bool {
			if n.IsPreferredParent {
				count++
			}
			return true
		})
		if count > 1 {
			t.Fatalf("after DIO %d: %d neighbors marked preferred, want <=1", i, count)
		}
	}
}

// TestParentLossClearsPreferredAndPoisons is scenario S4's core
// transition (timer-driven silence is exercised at the iface layer;
// this tests the trigger body itself).
func TestParentLossClearsPreferredAndPoisons(t *testing.T) {
	e := NewEngine(nil, addr.EUI64{0xee})
	now := mono.Now()
	cfg := icmp6.RPLConfig{DIOIntervalMin: 15, DefaultLifetime: 60, LifetimeUnit: 60, MinHopRankIncrease: 128}
	d := DIO{Base: DIOBase{Version: 1, Rank: 256, DODAGID: dodagID(1)}, Config: cfg, SrcEUI64: addr.EUI64{0xaa}, ETX: 1.0}
	e.HandleDIO(d, now)

	var poisoned, lost bool
	e.BroadcastInfiniteRankDIO = func() { poisoned = true }
	e.OnParentLost = func() { lost = true }

	e.OnParentUnreachable(addr.EUI64{0xaa}, now.Add(time.Minute))

	if !poisoned {
		t.Error("expected infinite-rank DIO broadcast on parent loss")
	}
	if !lost {
		t.Error("expected OnParentLost callback")
	}
	if _, ok := e.Table.PreferredParent(); ok {
		t.Error("preferred parent should be cleared")
	}
}

func TestInadmissibleInfiniteRankNeverSelected(t *testing.T) {
	e := NewEngine(nil, addr.EUI64{0xee})
	now := mono.Now()
	cfg := icmp6.RPLConfig{DIOIntervalMin: 15, DefaultLifetime: 60, LifetimeUnit: 60, MinHopRankIncrease: 128}
	d := DIO{Base: DIOBase{Version: 1, Rank: InfiniteRank, DODAGID: dodagID(1)}, Config: cfg, SrcEUI64: addr.EUI64{0xbb}, ETX: 1.0}
	e.HandleDIO(d, now)

	if _, ok := e.Table.PreferredParent(); ok {
		t.Error("an infinite-rank neighbor must never become preferred parent")
	}
}
