// Package neighbor implements the neighbor cache (spec §4.2): the
// IPv6-address-keyed table of link-layer reachability state that the
// ICMPv6 engine maintains and the RPL engine reads through its weak
// rpl_link back-reference.
//
// Cyclic NCE↔RN references are modeled with opaque handles rather
// than pointers (spec §9), the same HandleSet shape
// tailscale.com/util/set uses for its peer tables.
package neighbor

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

// State is the RFC 4861 §7.3.2 neighbor reachability state.
type State int

const (
	Incomplete State = iota
	Reachable
	Stale
	Delay
	Probe
	Unreachable
)

func (s State) String() string {
	switch s {
	case Incomplete:
		return "INCOMPLETE"
	case Reachable:
		return "REACHABLE"
	case Stale:
		return "STALE"
	case Delay:
		return "DELAY"
	case Probe:
		return "PROBE"
	case Unreachable:
		return "UNREACHABLE"
	default:
		return "?"
	}
}

// Handle is an opaque reference to an rpl.Neighbor, minted by the RPL
// table and stored here so the neighbor cache never imports package
// rpl (spec §9's arena-and-handle strategy for the NCE↔RN cycle).
type Handle struct{ v *byte }

// IsZero reports whether h is the unset handle.
func (h Handle) IsZero() bool { return h.v == nil }

// NewHandle mints a fresh, comparable Handle. Called only by package rpl.
func NewHandle() Handle { return Handle{new(byte)} }

// Entry is a single neighbor cache entry (spec §3's NCE).
type Entry struct {
	Addr   netip.Addr
	LLAddr addr.EUI64
	HaveLL bool

	State State

	ReachableUntil mono.Time

	// RegistrationLifetime is in seconds; 0 means not registered.
	RegistrationLifetime uint16
	// RegistrationOwner is set when we registered this address with
	// an upstream router ourselves (ARO sent), as opposed to having
	// received an ARO registration from a downstream node.
	RegistrationOwner bool

	IsRouter bool

	// RPLLink weakly references this neighbor's RPL table entry, if
	// any; neither side owns the other (spec §3).
	RPLLink Handle

	probeCount int // number of unicast NS probes sent while in PROBE
}
