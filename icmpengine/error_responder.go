package icmpengine

import (
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// minLinkMTU is IPv6's MIN_LINK_MTU (RFC 8200 §5), the cap spec
// §4.3.5 places on how much of the offending packet an ICMPv6 error
// may copy.
const minLinkMTU = 1280

// icmpHeaderLen is the 4-octet type/code/checksum ICMPv6 header plus
// the 4-octet message-specific field every error type carries.
const icmpHeaderLen = 8

// SendError builds and transmits an ICMPv6 error message in response
// to offending, enforcing RFC 4443 §2.4's rules e.1–e.6 exactly as
// spec §4.3.5 restates them: never reply to an ICMPv6 error or
// Redirect; never reply to a frame received as multicast/broadcast
// except Packet Too Big and Parameter Problem/Unrecognized-IPv6-
// Option; never reply when the offending source is unspecified or
// multicast. One token is consumed from the interface's rate limiter;
// if the bucket is empty the error is dropped.
func (e *Engine) SendError(offending *wspkt.Buffer, typ icmp6.Type, code uint8, pointer uint32) error {
	if offending.ICMPType != 0 && isICMPv6Error(icmp6.Type(offending.ICMPType)) {
		return nil // e.1: never reply to an error
	}
	if icmp6.Type(offending.ICMPType) == icmp6.TypeRedirect {
		return nil // e.1 extension: never reply to a Redirect
	}
	if addr.IsUnspecified(offending.SrcAddr) || addr.IsMulticast(offending.SrcAddr) {
		return nil // e.2
	}
	receivedMulticast := offending.LLMulticastRx || offending.LLBroadcastRx || addr.IsMulticast(offending.DstAddr)
	if receivedMulticast {
		allowedCode := typ == icmp6.TypeParamProblem &&
			icmp6.ParamProblemCode(code) == icmp6.UnrecognizedIPv6Opt
		isPacketTooBig := typ == 2 // Packet Too Big (RFC 4443 §3.2)
		if !allowedCode && !isPacketTooBig {
			return nil // e.3/e.4
		}
	}

	if !e.NCE.ICMPTokens.Allow() {
		return nil // e.6: bucket empty
	}

	budget := minLinkMTU - icmpHeaderLen
	payload := offending.Bytes()
	if len(payload) > budget {
		payload = payload[:budget]
	}

	out, err := wspkt.Alloc(icmpHeaderLen + len(payload) + 16)
	if err != nil {
		return err
	}
	out.SrcAddr = e.Iface.SelectSource(offending.SrcAddr)
	out.DstAddr = offending.SrcAddr
	out.HopLimit = 255
	out.Direction = wspkt.Down

	hdr, err := out.ReserveHeader(icmpHeaderLen + len(payload))
	if err != nil {
		return err
	}
	hdr[0] = byte(typ)
	hdr[1] = code
	putUint32(hdr[4:8], pointer)
	copy(hdr[8:], payload)
	binaryPutChecksum(hdr, out.SrcAddr, out.DstAddr)

	return e.Iface.Send(out)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func isICMPv6Error(t icmp6.Type) bool {
	switch t {
	case icmp6.TypeDestUnreachable, icmp6.TypeParamProblem, 2 /* PacketTooBig */, 3 /* TimeExceeded */ :
		return true
	default:
		return false
	}
}
