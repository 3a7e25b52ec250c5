// Package iface is the glue layer (spec §9's "single owned value, no
// package-level globals"): Context threads the neighbor cache, RPL
// engine, ICMPv6 engine and scheduler together and is the only place
// that implements icmpengine.Iface and wires RPL's callbacks to
// concrete network actions.
package iface

import (
	"context"
	"net/netip"

	"github.com/wisun-fan/wsrouterd/icmpengine"
	"github.com/wisun-fan/wsrouterd/mgmt"
	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/rcpbus"
	"github.com/wisun-fan/wsrouterd/rpl"
	"github.com/wisun-fan/wsrouterd/sched"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/types/logger"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// GakEvent carries a Group Authentication Key update from the
// authenticator collaborator (supplemental data named in SPEC_FULL
// §3, absent from the distilled spec).
type GakEvent struct {
	KeyIndex     uint8
	Gak          [16]byte
	FrameCounter uint32
}

// AddressSource is the TUN collaborator surface spec §9's Open
// Question resolves against: AddressAssigned delivers the globally
// routable address once DHCPv6/SLAAC completes, replacing the
// original's fixed sleep with an explicit confirmation.
type AddressSource interface {
	AddressAssigned() <-chan netip.Addr
}

// Context is the single owned interface-context value (spec §9): it
// holds every piece of per-interface state and is threaded explicitly
// into the collaborators that need it, never reached via a global.
type Context struct {
	logf logger.Logf

	selfEUI64   addr.EUI64
	PanID       uint16
	NetworkName string

	linkLocal netip.Addr
	addrs     map[netip.Addr]bool
	prefix    icmp6.PrefixInfo
	havePrefix bool
	acceptARO bool
	hopLimit  uint8

	NCE *neighbor.Cache
	RPL *rpl.Engine
	ICMP *icmpengine.Engine
	Loop *sched.Loop
	Bus  rcpbus.Bus

	Gaks map[uint8][16]byte

	// OnPrimaryParentChange projects rpl.Engine's callback onto the
	// D-Bus PrimaryParent signal (spec §6).
	OnPrimaryParentChange func(eui64 addr.EUI64)
}

// New builds a Context for the given identity. It wires the RPL
// engine's OnPreferredParentChange and OnParentLost callbacks to
// OnPrimaryParentChange and its TransmitDIS to sendDIS. The RPL
// engine's SendDAO and BroadcastInfiniteRankDIO are left unset, so no
// DAO or infinite-rank DIO is transmitted, and the ICMPv6 engine's
// OnAROFailure only logs the failing EUI-64.
func New(logf logger.Logf, eui64 addr.EUI64, nce *neighbor.Cache, rplEngine *rpl.Engine, bus rcpbus.Bus, loop *sched.Loop) *Context {
	if logf == nil {
		logf = logger.Discard
	}
	c := &Context{
		logf:      logf,
		selfEUI64: eui64,
		linkLocal: addr.LinkLocalFromEUI64(eui64),
		addrs:     map[netip.Addr]bool{},
		acceptARO: true,
		hopLimit:  64,
		NCE:       nce,
		RPL:       rplEngine,
		Loop:      loop,
		Bus:       bus,
		Gaks:      map[uint8][16]byte{},
	}
	c.addrs[c.linkLocal] = true
	c.ICMP = icmpengine.NewEngine(logf, c, nce)

	rplEngine.OnPreferredParentChange = func(n *rpl.Neighbor) {
		if c.OnPrimaryParentChange != nil {
			c.OnPrimaryParentChange(n.EUI64)
		}
	}
	rplEngine.OnParentLost = func() {
		if c.OnPrimaryParentChange != nil {
			c.OnPrimaryParentChange(addr.EUI64{})
		}
	}
	rplEngine.TransmitDIS = c.sendDIS

	c.ICMP.OnAROFailure = func(eui64 addr.EUI64) {
		c.logf("iface: ARO failure for %x", eui64)
	}

	return c
}

// --- icmpengine.Iface ---

func (c *Context) EUI64() addr.EUI64            { return c.selfEUI64 }
func (c *Context) LinkLocalAddr() netip.Addr    { return c.linkLocal }
func (c *Context) HasAddress(a netip.Addr) bool { return c.addrs[a] }
func (c *Context) AcceptsARO() bool             { return c.acceptARO }
func (c *Context) CurHopLimit() uint8           { return c.hopLimit }
func (c *Context) Prefix() (icmp6.PrefixInfo, bool) { return c.prefix, c.havePrefix }

// SelectSource implements RFC 4861 §7.2.2's rule-based source
// selection, simplified to Wi-SUN FAN's two-address model: prefer a
// global address sharing dst's scope, else the link-local address.
func (c *Context) SelectSource(dst netip.Addr) netip.Addr {
	if addr.IsLinkLocal(dst) || addr.IsMulticast(dst) {
		return c.linkLocal
	}
	for a := range c.addrs {
		if a != c.linkLocal && !addr.IsLinkLocal(a) {
			return a
		}
	}
	return c.linkLocal
}

// Send hands an outbound buffer to the RCP bus for transmission
// (icmpengine.Iface). The IPv6/802.15.4 framing below the ICMPv6
// message is out of this core's scope (spec §6's "802.15.4 frame"
// layer); here Send just forwards the built payload as the MAC data
// frame body.
func (c *Context) Send(b *wspkt.Buffer) error {
	if c.Bus == nil {
		return nil
	}
	return c.Bus.DataTX(context.Background(), rcpbus.DataTXRequest{
		Frame: append([]byte(nil), b.Bytes()...),
	})
}

// AddAddress registers a global address as assigned to this
// interface (e.g. after DHCPv6 completes) and advances the attach
// state machine (spec §9's Open Question resolution).
func (c *Context) AddAddress(a netip.Addr) {
	c.addrs[a] = true
	c.RPL.OnAddressAssigned(mono.Now())
}

// SetPrefix sets the on-link prefix advertised in RAs (SPEC_FULL
// §4.3's added RS/RA handling).
func (c *Context) SetPrefix(p icmp6.PrefixInfo) {
	c.prefix = p
	c.havePrefix = true
}

// ApplyGak installs a Group Authentication Key delivered by the
// authenticator collaborator.
func (c *Context) ApplyGak(ev GakEvent) {
	c.Gaks[ev.KeyIndex] = ev.Gak
}

// Properties projects the current state onto the read-only D-Bus
// surface (spec §6).
func (c *Context) Properties() mgmt.Properties {
	// Position i holds the key installed at index i; indices below the
	// highest installed one that hold no key are zero-filled.
	var gaks [][16]byte
	for idx, g := range c.Gaks {
		for len(gaks) <= int(idx) {
			gaks = append(gaks, [16]byte{})
		}
		gaks[idx] = g
	}
	return mgmt.Properties{
		HwAddress: c.selfEUI64,
		PanID:     c.PanID,
		Gaks:      gaks,
	}
}
