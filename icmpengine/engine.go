// Package icmpengine implements the ICMPv6 Neighbor Discovery state
// machine (spec §4.3): inbound NS/NA/RS/Redirect processing, NS/RA
// emission, and the rate-limited error responder, operating on
// wspkt.Buffer and wsnet/icmp6 wire types against the neighbor cache.
package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/types/logger"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// Iface is the glue surface icmpengine needs from the owning
// interface context (package iface), kept as a narrow interface so
// this package never imports iface directly (spec §9's layering).
type Iface interface {
	EUI64() addr.EUI64
	LinkLocalAddr() netip.Addr
	HasAddress(a netip.Addr) bool
	// SelectSource picks a source address for a packet to dst, per
	// RFC 4861 §7.2.2's rule-based selection (spec §4.3.6).
	SelectSource(dst netip.Addr) netip.Addr
	// AcceptsARO reports whether this interface is configured as a
	// FAN router that accepts address registrations (spec §4.3.2).
	AcceptsARO() bool
	// Send transmits a fully-built outbound buffer.
	Send(b *wspkt.Buffer) error
	// Prefix returns the on-link prefix to advertise in RAs, if any.
	Prefix() (icmp6.PrefixInfo, bool)
	CurHopLimit() uint8
}

// Disposition is the three-way registration outcome spec §4.3.2 names.
type Disposition int

const (
	ReplyWithoutEARO Disposition = iota
	ReplyWithEARO
	Defer
)

// Registrar resolves an EARO registration request (spec §4.3.2's
// "Wi-SUN EARO handling"): DEFER means the caller must query upstream
// before any reply is sent, so HandleNS silently drops the current NS
// in that case and a later call to the eventual out-of-band result
// (via AckIntent == AckNotifyAroResult on the matching NS's MAC ACK,
// or an explicit follow-up call) completes the exchange.
type Registrar interface {
	RegisterAddress(src netip.Addr, eui64 addr.EUI64, lifetime uint16) (Disposition, icmp6.EAROStatus)
}

// Engine is the ICMPv6 ND/error engine bound to one interface context.
type Engine struct {
	logf logger.Logf

	Iface      Iface
	NCE        *neighbor.Cache
	Registrar  Registrar

	// OnAROFailure fires when an inbound NA's EARO reports a non-
	// SUCCESS status (spec §4.3.3), with the EUI-64 the EARO carried.
	OnAROFailure func(eui64 addr.EUI64)
}

// NewEngine constructs an ICMPv6 engine bound to iface and the
// neighbor cache nce.
func NewEngine(logf logger.Logf, iface Iface, nce *neighbor.Cache) *Engine {
	if logf == nil {
		logf = logger.Discard
	}
	return &Engine{logf: logf, Iface: iface, NCE: nce}
}
