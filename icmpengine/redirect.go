package icmpengine

import (
	"net/netip"

	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// HandleRedirect processes an inbound Redirect (spec §4.3.4): standard
// RFC 4861 §8 processing, gated on a link-local source and hop_limit
// 255. This core does not maintain a destination cache to redirect,
// so acceptance only updates the neighbor cache's link-layer mapping
// for the new target via any attached option; routing itself is left
// to RPL's non-storing next-hop selection.
func (e *Engine) HandleRedirect(b *wspkt.Buffer) error {
	if err := validate(b); err != nil {
		return err
	}
	if !addr.IsLinkLocal(b.SrcAddr) {
		return ErrInvalid
	}
	msg := b.Bytes()
	if len(msg) < 4+36 {
		return ErrInvalid
	}
	// Redirect body: 4 reserved + 16 target + 16 destination.
	target := netip.AddrFrom16([16]byte(msg[8:24]))
	rest := msg[4+36:]
	opts, err := parseOptionsAfter(rest)
	if err != nil {
		return err
	}
	if tllao, ok := findOption(opts, icmp6.OptTargetLLAddr); ok {
		if len(tllao.Value) >= 8 {
			var ll addr.EUI64
			copy(ll[:], tllao.Value[:8])
			e.NCE.UpdateUnsolicited(target, ll)
		}
	}
	return nil
}
