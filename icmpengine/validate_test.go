package icmpengine

import (
	"errors"
	"testing"

	"github.com/wisun-fan/wsrouterd/wserr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

func TestValidateRejectsBadChecksum(t *testing.T) {
	b := buildNSWithEARO(t)
	msg := b.Bytes()
	msg[2] ^= 0xff // flip a bit in the checksum field

	if err := validate(b); !errors.Is(err, wserr.ErrChecksumMismatch) {
		t.Fatalf("validate = %v, want ErrChecksumMismatch", err)
	}
}

func TestValidateAcceptsGoodChecksum(t *testing.T) {
	b := buildNSWithEARO(t)
	if err := validate(b); err != nil {
		t.Fatalf("validate = %v, want nil", err)
	}
}

func TestValidateRejectsBadHopLimit(t *testing.T) {
	b, err := wspkt.Alloc(16)
	if err != nil {
		t.Fatal(err)
	}
	b.HopLimit = 1
	b.ICMPCode = 0
	hdr, err := b.ReserveHeader(4)
	if err != nil {
		t.Fatal(err)
	}
	hdr[0] = byte(icmp6.TypeNS)

	if err := validate(b); err != ErrInvalid {
		t.Fatalf("validate with bad hop limit = %v, want ErrInvalid", err)
	}
}
