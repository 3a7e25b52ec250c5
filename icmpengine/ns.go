package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// HandleNS processes an inbound Neighbor Solicitation (spec §4.3.2).
// b.Bytes() must be positioned at the start of the ICMPv6 message
// (header + body + options); b.SrcAddr/DstAddr/HopLimit/ICMPCode must
// already be populated by the caller from the IPv6 header.
func (e *Engine) HandleNS(b *wspkt.Buffer) error {
	if err := validate(b); err != nil {
		return err
	}
	msg := b.Bytes()
	if len(msg) < 4 {
		return ErrInvalid
	}
	ns, rest, err := icmp6.ParseNSBody(msg[4:])
	if err != nil {
		return ErrInvalid
	}
	opts, err := parseOptionsAfter(rest)
	if err != nil {
		return err
	}
	target := netip.AddrFrom16(ns.Target)

	if addr.IsMulticast(target) {
		return ErrInvalid
	}

	sllao, haveSLLAO := findOption(opts, icmp6.OptSourceLLAddr)
	unspecified := addr.IsUnspecified(b.SrcAddr)

	if unspecified {
		if !addr.IsSolicitedNodeMulticast(b.DstAddr) || haveSLLAO {
			return ErrInvalid
		}
	}

	var srcLL addr.EUI64
	var haveLL bool
	if haveSLLAO {
		ll, err := icmp6.ParseLLAddrOption(false, sllao.Value)
		if err != nil {
			return ErrInvalid
		}
		srcLL = addr.EUI64(ll.EUI64)
		haveLL = true
		if !unspecified {
			e.NCE.UpdateUnsolicited(b.SrcAddr, srcLL)
		}
	}

	earoOpt, haveEARO := findOption(opts, icmp6.OptEARO)
	if haveEARO && e.Iface.AcceptsARO() {
		eaRO, err := icmp6.ParseEARO(earoOpt.Value)
		if err != nil {
			return ErrInvalid
		}
		if !haveLL {
			// Synthesize a dummy SLLAO from the EARO's EUI-64 (spec
			// §4.3.2: FAN assumes EUI-64 global uniqueness).
			srcLL = addr.EUI64(eaRO.EUI64)
			haveLL = true
		}
		return e.handleEARegistration(b, target, srcLL, eaRO)
	}

	return e.replyNA(b, target)
}

// handleEARegistration dispatches a Wi-SUN EARO registration to the
// Registrar (spec §4.3.2's DEFER/REPLY_WITH_EARO/REPLY_WITHOUT_EARO
// three-way).
func (e *Engine) handleEARegistration(b *wspkt.Buffer, target netip.Addr, ll addr.EUI64, ro icmp6.EARO) error {
	if e.Registrar == nil {
		return e.replyNAWithEARO(b, target, ll, icmp6.EAROSuccess, ro.Lifetime)
	}
	disp, status := e.Registrar.RegisterAddress(b.SrcAddr, ll, ro.Lifetime)
	switch disp {
	case Defer:
		return nil // drop the current NS; a later out-of-band call replies
	case ReplyWithEARO:
		if status == icmp6.EAROSuccess {
			if _, err := e.NCE.Register(target, ll, ro.Lifetime); err != nil {
				e.logf("icmpengine: registering %v failed: %v", target, err)
			}
		}
		return e.replyNAWithEARO(b, target, ll, status, ro.Lifetime)
	default: // ReplyWithoutEARO
		return e.replyNA(b, target)
	}
}

// replyNA builds and sends a plain NA (no EARO) in answer to an NS
// for target (spec §4.3.2's flag/address-selection rules).
func (e *Engine) replyNA(b *wspkt.Buffer, target netip.Addr) error {
	return e.sendNA(b, target, nil, icmp6.EAROSuccess, false)
}

func (e *Engine) replyNAWithEARO(b *wspkt.Buffer, target netip.Addr, eui64 addr.EUI64, status icmp6.EAROStatus, lifetime uint16) error {
	ro := &icmp6.EARO{Status: status, R: true, Lifetime: lifetime, EUI64: [8]byte(eui64)}
	return e.sendNA(b, target, ro, status, true)
}

// sendNA builds the reply NA per spec §4.3.2: R always set, S set
// unless this is a DAD reply (source unspecified), O set unless this
// is a proxy NA for a subordinate's address (not modeled in this
// core — always false). Destination is the NS source unless status !=
// SUCCESS, in which case it is the link-local address reconstructed
// from the EARO EUI-64, to guarantee delivery even to an address that
// is itself unusable.
func (e *Engine) sendNA(in *wspkt.Buffer, target netip.Addr, ro *icmp6.EARO, status icmp6.EAROStatus, withEARO bool) error {
	solicited := !addr.IsUnspecified(in.SrcAddr)

	dst := in.SrcAddr
	if withEARO && status != icmp6.EAROSuccess && ro != nil {
		dst = addr.LinkLocalFromEUI64(addr.EUI64(ro.EUI64))
	}

	src := target
	if !e.Iface.HasAddress(target) {
		src = e.Iface.SelectSource(dst)
	}

	out, err := wspkt.Alloc(256)
	if err != nil {
		return err
	}
	out.SrcAddr = src
	out.DstAddr = dst
	out.HopLimit = 255
	out.Direction = wspkt.Down

	var optBuf []byte
	tllao := icmp6.LLAddrOption{Target: true, EUI64: e.Iface.EUI64()}
	optBuf = tllao.Marshal(optBuf)
	if withEARO && ro != nil {
		optBuf = ro.Marshal(optBuf)
	}

	body := icmp6.NABody{
		Flags: icmp6.NAFlags{Router: true, Solicited: solicited, Override: true},
		Target: target.As16(),
	}
	var bodyBuf []byte
	bodyBuf = body.Marshal(bodyBuf)
	bodyBuf = append(bodyBuf, optBuf...)

	hdr, err := out.ReserveHeader(4 + len(bodyBuf))
	if err != nil {
		return err
	}
	hdr[0] = byte(icmp6.TypeNA)
	hdr[1] = 0
	copy(hdr[4:], bodyBuf)
	binaryPutChecksum(hdr, src, dst)

	return e.Iface.Send(out)
}

// binaryPutChecksum zeroes then fills the checksum field (octets 2:4)
// of an ICMPv6 message buffer hdr.
func binaryPutChecksum(hdr []byte, src, dst netip.Addr) {
	hdr[2], hdr[3] = 0, 0
	sum := icmp6.Checksum(src.As16(), dst.As16(), hdr)
	hdr[2] = byte(sum >> 8)
	hdr[3] = byte(sum)
}
