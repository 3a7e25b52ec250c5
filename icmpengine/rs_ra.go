package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// HandleRS answers an inbound Router Solicitation with a Router
// Advertisement carrying the interface's current Prefix Information
// and Source Link-Layer Address options, rate-limited by the same
// token bucket as the error responder (RFC 4861 §6.2.6 permits
// this). This is the ADDED RS/RA coverage SPEC_FULL §4.3 calls out.
func (e *Engine) HandleRS(b *wspkt.Buffer) error {
	if err := validate(b); err != nil {
		return err
	}
	msg := b.Bytes()
	if len(msg) < 4 {
		return ErrInvalid
	}
	rest, err := icmp6.ParseRSBody(msg[4:])
	if err != nil {
		return ErrInvalid
	}
	if _, err := parseOptionsAfter(rest); err != nil {
		return err
	}

	if !e.NCE.ICMPTokens.Allow() {
		return nil // token bucket empty: silently drop per RFC 4861 §6.2.6
	}

	dst := b.SrcAddr
	if addr.IsUnspecified(dst) {
		dst = netip.IPv6LinkLocalAllNodes()
	}
	return e.sendRA(dst)
}

// sendRA builds and transmits a Router Advertisement to dst.
func (e *Engine) sendRA(dst netip.Addr) error {
	src := e.Iface.LinkLocalAddr()

	out, err := wspkt.Alloc(256)
	if err != nil {
		return err
	}
	out.SrcAddr = src
	out.DstAddr = dst
	out.HopLimit = 255
	out.Direction = wspkt.Down

	var optBuf []byte
	sllao := icmp6.LLAddrOption{Target: false, EUI64: e.Iface.EUI64()}
	optBuf = sllao.Marshal(optBuf)
	if pfx, ok := e.Iface.Prefix(); ok {
		optBuf = pfx.Marshal(optBuf)
	}

	body := icmp6.RABody{
		CurHopLimit:    e.Iface.CurHopLimit(),
		RouterLifetime: 1800,
		ReachableMs:    uint32(e.NCE.ReachableMs()),
		RetransMs:      1000,
	}
	var bodyBuf []byte
	bodyBuf = body.Marshal(bodyBuf)
	bodyBuf = append(bodyBuf, optBuf...)

	hdr, err := out.ReserveHeader(4 + len(bodyBuf))
	if err != nil {
		return err
	}
	hdr[0] = byte(icmp6.TypeRA)
	hdr[1] = 0
	copy(hdr[4:], bodyBuf)
	binaryPutChecksum(hdr, src, dst)

	return e.Iface.Send(out)
}
