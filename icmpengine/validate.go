package icmpengine

import (
	"errors"

	"github.com/wisun-fan/wsrouterd/wserr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// ErrInvalid is returned by validate for any message failing spec
// §4.3.1's common checks; the caller's only valid response is to drop
// the buffer (no error reply is owed for a malformed ND message).
var ErrInvalid = errors.New("icmpengine: message fails common ND validation")

// validate applies spec §4.3.1's common checks. Hop limit 255 is
// required for every message type validate is called on: NS, NA, RS,
// RA, Redirect.
func validate(b *wspkt.Buffer) error {
	if b.HopLimit != 255 {
		return ErrInvalid
	}
	if b.ICMPCode != 0 {
		return ErrInvalid
	}
	// The checksum field is part of the message bytes as received, so
	// summing it back in along with the pseudo-header folds to zero
	// exactly when the sender's checksum was correct (RFC 4443/RFC
	// 2460 §8.1) — no need to zero it out and recompute first.
	if icmp6.Checksum(b.SrcAddr.As16(), b.DstAddr.As16(), b.Bytes()) != 0 {
		return wserr.ErrChecksumMismatch
	}
	return nil
}

// parseOptionsAfter parses the ICMPv6 option chain following a
// fixed-size message body, enforcing spec §4.3.1's "chain consumes
// exactly the remaining buffer" rule (ParseOptions already enforces
// the length>0 and unit-of-8 rules).
func parseOptionsAfter(rest []byte) ([]icmp6.RawOption, error) {
	opts, err := icmp6.ParseOptions(rest)
	if err != nil {
		return nil, ErrInvalid
	}
	return opts, nil
}

func findOption(opts []icmp6.RawOption, typ icmp6.OptionType) (icmp6.RawOption, bool) {
	for _, o := range opts {
		if o.Type == typ {
			return o, true
		}
	}
	return icmp6.RawOption{}, false
}
