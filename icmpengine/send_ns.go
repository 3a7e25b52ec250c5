package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// SourceMode selects how SendNS picks the NS's source address, per
// spec §4.3.6's three rules.
type SourceMode int

const (
	// SourceUnspecified sends from :: (Duplicate Address Detection).
	SourceUnspecified SourceMode = iota
	// SourcePrompting uses promptingSrc if it is assigned to us (RFC
	// 4861 §7.2.2); falls back to SourceLinkLocal otherwise.
	SourcePrompting
	// SourceLinkLocal always uses our link-local address, avoiding the
	// asymmetric RPL/NUD interaction spec §4.3.6 calls out.
	SourceLinkLocal
)

// SendNS builds and transmits a Neighbor Solicitation for target
// (spec §4.3.6). withEARO, if non-nil, is attached as the Extended
// Address Registration Option (used when registering our own address
// with a parent). Unicast destination is dst if it is valid,
// otherwise target's solicited-node multicast address.
func (e *Engine) SendNS(target netip.Addr, dst netip.Addr, mode SourceMode, promptingSrc netip.Addr, withEARO *icmp6.EARO) error {
	var src netip.Addr
	switch mode {
	case SourceUnspecified:
		src = netip.IPv6Unspecified()
	case SourcePrompting:
		if promptingSrc.IsValid() && e.Iface.HasAddress(promptingSrc) {
			src = promptingSrc
		} else {
			src = e.Iface.LinkLocalAddr()
		}
	default:
		src = e.Iface.LinkLocalAddr()
	}

	if !dst.IsValid() {
		dst = addr.SolicitedNodeMulticast(target)
	}

	out, err := wspkt.Alloc(256)
	if err != nil {
		return err
	}
	out.SrcAddr = src
	out.DstAddr = dst
	out.HopLimit = 255
	out.Direction = wspkt.Down
	if withEARO != nil {
		out.AckIntent = wspkt.AckNotifyAroResult
		out.AckEUI64 = e.Iface.EUI64()
	}

	var optBuf []byte
	if mode != SourceUnspecified {
		sllao := icmp6.LLAddrOption{Target: false, EUI64: e.Iface.EUI64()}
		optBuf = sllao.Marshal(optBuf)
	}
	if withEARO != nil {
		optBuf = withEARO.Marshal(optBuf)
	}

	body := icmp6.NSBody{Target: target.As16()}
	var bodyBuf []byte
	bodyBuf = body.Marshal(bodyBuf)
	bodyBuf = append(bodyBuf, optBuf...)

	hdr, err := out.ReserveHeader(4 + len(bodyBuf))
	if err != nil {
		return err
	}
	hdr[0] = byte(icmp6.TypeNS)
	hdr[1] = 0
	copy(hdr[4:], bodyBuf)
	binaryPutChecksum(hdr, src, dst)

	e.NCE.EnsureIncomplete(target)

	return e.Iface.Send(out)
}
