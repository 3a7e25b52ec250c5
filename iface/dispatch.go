package iface

import (
	"context"

	"github.com/wisun-fan/wsrouterd/rcpbus"
	"github.com/wisun-fan/wsrouterd/rpl"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// rplControlCode is the ICMPv6 code field of an RPL Control Message
// (type 155), identifying which RPL message it carries (RFC 6550
// §6).
type rplControlCode uint8

const (
	rplCodeDIS    rplControlCode = 0x00
	rplCodeDIO    rplControlCode = 0x01
	rplCodeDAO    rplControlCode = 0x02
	rplCodeDAOAck rplControlCode = 0x03
)

// DeliverFrame processes an inbound IPv6 datagram received from
// srcEUI64 (SPEC_FULL §6's collapse of 802.15.4/6LoWPAN framing to a
// single entry point): it parses the IPv6 header, dispatches to the
// matching ICMPv6 handler by message type, and feeds RPL Control
// Messages to the RPL engine.
func (c *Context) DeliverFrame(srcEUI64 addr.EUI64, payload []byte) error {
	b, err := wspkt.ParseIPv6(payload)
	if err != nil {
		return err
	}
	b.InterfaceRef = c

	if b.NextHeader != wspkt.NextHeaderICMPv6 {
		// Not an ICMPv6 message at all (e.g. a stray UDP datagram):
		// this core has nothing to forward it to, so it's erroneous
		// rather than merely unhandled (spec §4.3.5/RFC 4443 §3.1).
		return c.ICMP.SendError(b, icmp6.TypeParamProblem, uint8(icmp6.UnrecognizedNextHdr), 6)
	}

	switch icmp6.Type(b.ICMPType) {
	case icmp6.TypeNS:
		return c.ICMP.HandleNS(b)
	case icmp6.TypeNA:
		return c.ICMP.HandleNA(b)
	case icmp6.TypeRS:
		return c.ICMP.HandleRS(b)
	case icmp6.TypeRedirect:
		return c.ICMP.HandleRedirect(b)
	case icmp6.TypeRPLControl:
		return c.deliverRPLControl(b, srcEUI64)
	default:
		// Types this core doesn't process (RA, echo, etc.) are simply
		// not acted on; spec §4.3 names no handler for them.
		return nil
	}
}

func (c *Context) deliverRPLControl(b *wspkt.Buffer, srcEUI64 addr.EUI64) error {
	now := mono.Now()
	body := b.Bytes()
	if len(body) < 4 {
		return nil
	}
	msgBody := body[4:] // past type/code/checksum

	switch rplControlCode(b.ICMPCode) {
	case rplCodeDIO:
		srcLL := b.SrcAddr.As16()
		dio, err := rpl.DecodeDIO(msgBody, srcLL, srcEUI64, 1.0)
		if err != nil {
			return err
		}
		c.RPL.HandleDIO(dio, now)
		return nil
	case rplCodeDIS:
		c.RPL.HandleDIS(now)
		return nil
	default:
		// DAO/DAO-ACK at the router node flow toward the DODAG root
		// and aren't processed here; a future border-router variant
		// would add DAO-ACK handling (spec's border-router Non-goal).
		return nil
	}
}

// disIcmpHeaderLen is the 4-octet ICMPv6 type/code/checksum header; a
// DIS body is just 2 octets of flags/reserved with no options (RFC
// 6550 §6.2.1 — this core never solicits a specific DODAG/instance).
const disIcmpHeaderLen = 4
const disBodyLen = 2

// sendDIS builds and transmits a DIS Control Message to the
// All-RPL-Nodes multicast address, wired as rpl.Engine.TransmitDIS
// (SPEC_FULL §4.4's added DIS emission).
func (c *Context) sendDIS() error {
	out, err := wspkt.Alloc(disIcmpHeaderLen + disBodyLen)
	if err != nil {
		return err
	}
	out.SrcAddr = c.linkLocal
	out.DstAddr = addr.AllRPLNodes
	out.HopLimit = 255
	out.Direction = wspkt.Down

	hdr, err := out.ReserveHeader(disIcmpHeaderLen + disBodyLen)
	if err != nil {
		return err
	}
	hdr[0] = byte(icmp6.TypeRPLControl)
	hdr[1] = byte(rplCodeDIS)
	hdr[4], hdr[5] = 0, 0 // flags, reserved

	hdr[2], hdr[3] = 0, 0
	sum := icmp6.Checksum(out.SrcAddr.As16(), out.DstAddr.As16(), hdr)
	hdr[2] = byte(sum >> 8)
	hdr[3] = byte(sum)

	return c.Send(out)
}

// SendFrame hands an already-built IPv6 payload to the RCP bus
// addressed to dstEUI64, the outbound half of SPEC_FULL §6's
// DeliverFrame/SendFrame collapse. The destination EUI-64 addressing
// (802.15.4 MAC framing) is the RCP firmware's responsibility; this
// core only hands it the IP-layer payload.
func (c *Context) SendFrame(dstEUI64 addr.EUI64, payload []byte) error {
	if c.Bus == nil {
		return nil
	}
	return c.Bus.DataTX(context.Background(), rcpbus.DataTXRequest{
		Frame: append([]byte(nil), payload...),
	})
}
