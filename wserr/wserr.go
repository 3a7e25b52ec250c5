// Package wserr defines the error taxonomy shared by the neighbor,
// icmpengine and rpl packages.
//
// Every failure the core can encounter collapses into one of a small,
// closed set of kinds (see spec §7). Callers distinguish them with
// errors.Is against the sentinel values below; none of them carry a
// message worth formatting because the taxonomy, not the string, is
// what recovery logic branches on.
package wserr

import "errors"

// Kind identifies which row of the error taxonomy a failure belongs to.
type Kind int

const (
	MalformedPacket Kind = iota
	ChecksumMismatch
	RateLimited
	NoRoute
	NoSourceAddress
	RcpDisconnected
	NeighborTableFull
	ParentLost
)

func (k Kind) String() string {
	switch k {
	case MalformedPacket:
		return "malformed_packet"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case RateLimited:
		return "rate_limited"
	case NoRoute:
		return "no_route"
	case NoSourceAddress:
		return "no_source_address"
	case RcpDisconnected:
		return "rcp_disconnected"
	case NeighborTableFull:
		return "neighbor_table_full"
	case ParentLost:
		return "parent_lost"
	default:
		return "unknown"
	}
}

// sentinel is a Kind wrapped as an error, so errors.Is(err, wserr.ErrMalformedPacket) works.
type sentinel Kind

func (s sentinel) Error() string { return "wserr: " + Kind(s).String() }

var (
	ErrMalformedPacket    error = sentinel(MalformedPacket)
	ErrChecksumMismatch   error = sentinel(ChecksumMismatch)
	ErrRateLimited        error = sentinel(RateLimited)
	ErrNoRoute            error = sentinel(NoRoute)
	ErrNoSourceAddress    error = sentinel(NoSourceAddress)
	ErrRcpDisconnected    error = sentinel(RcpDisconnected)
	ErrNeighborTableFull  error = sentinel(NeighborTableFull)
	ErrParentLost         error = sentinel(ParentLost)
)

// KindOf reports which Kind err carries, if any.
func KindOf(err error) (Kind, bool) {
	var s sentinel
	for _, cand := range []error{
		ErrMalformedPacket, ErrChecksumMismatch, ErrRateLimited, ErrNoRoute,
		ErrNoSourceAddress, ErrRcpDisconnected, ErrNeighborTableFull, ErrParentLost,
	} {
		if errors.Is(err, cand) {
			s = cand.(sentinel)
			return Kind(s), true
		}
	}
	return 0, false
}
