package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// HandleNA processes an inbound Neighbor Advertisement (spec §4.3.3).
func (e *Engine) HandleNA(b *wspkt.Buffer) error {
	if err := validate(b); err != nil {
		return err
	}
	msg := b.Bytes()
	if len(msg) < 4 {
		return ErrInvalid
	}
	na, rest, err := icmp6.ParseNABody(msg[4:])
	if err != nil {
		return ErrInvalid
	}
	opts, err := parseOptionsAfter(rest)
	if err != nil {
		return err
	}
	target := netip.AddrFrom16(na.Target)

	if addr.IsMulticast(target) {
		return nil // drop
	}
	if addr.IsMulticast(b.DstAddr) && na.Flags.Solicited {
		return nil // drop: RFC 4861 §7.2.5 "S must not be set for a multicast destination"
	}
	if e.Iface.HasAddress(target) {
		e.logf("icmpengine: DAD collision on %v from %v", target, b.SrcAddr)
		return nil
	}

	if earoOpt, haveEARO := findOption(opts, icmp6.OptEARO); haveEARO {
		ro, err := icmp6.ParseEARO(earoOpt.Value)
		if err == nil && ro.Status != icmp6.EAROSuccess {
			eui64 := addr.EUI64(ro.EUI64)
			e.logf("icmpengine: EARO failure status=%d for %x, blacklisting", ro.Status, eui64)
			if e.OnAROFailure != nil {
				e.OnAROFailure(eui64)
			}
		}
	}

	entry, ok := e.NCE.Lookup(target)
	if !ok {
		return nil // no matching NCE: nothing to update
	}

	var tllaoLL addr.EUI64
	var haveTLLAO bool
	if tllao, ok := findOption(opts, icmp6.OptTargetLLAddr); ok {
		ll, err := icmp6.ParseLLAddrOption(true, tllao.Value)
		if err != nil {
			return ErrInvalid
		}
		tllaoLL = addr.EUI64(ll.EUI64)
		haveTLLAO = true
	}

	e.NCE.UpdateFromNA(entry, neighbor.NAFlags{
		Router:    na.Flags.Router,
		Solicited: na.Flags.Solicited,
		Override:  na.Flags.Override,
	}, tllaoLL, haveTLLAO)

	return nil
}
