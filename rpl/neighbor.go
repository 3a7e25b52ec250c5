// Package rpl implements the RPL engine (spec §4.4): MOP 1
// (non-storing) parent selection, DAO emission, the Trickle timer
// (RFC 6206), and parent-loss handling, for a Wi-SUN FAN router node.
package rpl

import (
	"github.com/cenkalti/backoff/v5"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
)

// InfiniteRank is the RPL sentinel rank meaning "unreachable"
// (0xffff), RFC 6550 §6.7.6 / spec §4.4.1.
const InfiniteRank uint16 = 0xffff

// Handle is an opaque reference to a neighbor.Entry, so package rpl
// never imports package neighbor's Cache directly for the
// back-reference (spec §9's arena-and-handle strategy, mirrored from
// neighbor.Handle). Table does not mint one.
type Handle struct{ v *byte }

// IsZero reports whether h is unset.
func (h Handle) IsZero() bool { return h.v == nil }

// NewHandle mints a fresh, comparable Handle. Called only by package neighbor.
func NewHandle() Handle { return Handle{new(byte)} }

// DIOBase is the last DIO's core fields (spec §3).
type DIOBase struct {
	InstanceID uint8
	DODAGID    [16]byte
	Version    uint8
	Rank       uint16
	Grounded   bool
	MOP        uint8
	PRF        uint8
	DTSN       uint8
}

// Neighbor is a single RPL candidate/parent entry (spec §3's RN).
type Neighbor struct {
	EUI64      addr.EUI64
	LinkLocal  [16]byte
	DIOBase    DIOBase
	Config     icmp6.RPLConfig
	PathCost   uint16
	Candidate  mono.Time // monotonic time of first valid DIO
	DAOAckRecv bool

	IsPreferredParent bool

	// NCELink weakly references this neighbor's neighbor-cache entry.
	NCELink neighbor.Handle

	// daoTries counts consecutive unacknowledged DAO transmissions
	// to this neighbor (spec §4.4.3: abandon after 8).
	daoTries int
	// daoNextDeadline is when the next DAO retransmission is due.
	daoNextDeadline mono.Time
	// daoBackoff is this neighbor's exponential-backoff schedule for
	// DAO retransmission; created on first emission, discarded once
	// a DAO-ACK is received.
	daoBackoff *backoff.ExponentialBackOff
}

// Table is the RPL neighbor table: an insertion-ordered,
// EUI-64-keyed collection of Neighbors, at most one of which may have
// IsPreferredParent set (spec §3 invariant).
type Table struct {
	byEUI64 map[addr.EUI64]*Neighbor
	order   []addr.EUI64
}

// NewTable builds an empty RPL neighbor table.
func NewTable() *Table {
	return &Table{byEUI64: make(map[addr.EUI64]*Neighbor)}
}

// Lookup returns the neighbor keyed by eui64, if any.
func (t *Table) Lookup(eui64 addr.EUI64) (*Neighbor, bool) {
	n, ok := t.byEUI64[eui64]
	return n, ok
}

// Add inserts a brand-new neighbor.
func (t *Table) Add(n *Neighbor) {
	t.byEUI64[n.EUI64] = n
	t.order = append(t.order, n.EUI64)
}

// Remove deletes the neighbor keyed by eui64.
func (t *Table) Remove(eui64 addr.EUI64) {
	if _, ok := t.byEUI64[eui64]; !ok {
		return
	}
	delete(t.byEUI64, eui64)
	for i, e := range t.order {
		if e == eui64 {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of neighbors in the table.
func (t *Table) Len() int { return len(t.byEUI64) }

// All iterates all neighbors in insertion order.
func (t *Table) All(fn func(*Neighbor) bool) {
	for _, e := range t.order {
		n, ok := t.byEUI64[e]
		if !ok {
			continue
		}
		if !fn(n) {
			return
		}
	}
}

// PreferredParent returns the current preferred parent, if any,
// enforcing the "at most one" invariant by construction: callers only
// ever set the flag through Table.SetPreferredParent.
func (t *Table) PreferredParent() (*Neighbor, bool) {
	var found *Neighbor
	t.All(func(n *Neighbor) bool {
		if n.IsPreferredParent {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// SetPreferredParent clears the flag on the previous preferred parent
// (if any) and sets it on n, maintaining the §3/§8 "at most one"
// invariant. Passing nil clears the preferred parent entirely.
func (t *Table) SetPreferredParent(n *Neighbor) {
	if prev, ok := t.PreferredParent(); ok && prev != n {
		prev.IsPreferredParent = false
	}
	if n != nil {
		n.IsPreferredParent = true
	}
}
