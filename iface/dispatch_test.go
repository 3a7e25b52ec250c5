package iface

import (
	"testing"

	"github.com/wisun-fan/wsrouterd/rcpbus"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

func buildIPv6Frame(t *testing.T, src, dst string, icmpType, icmpCode uint8, msg []byte) []byte {
	t.Helper()
	b, err := wspkt.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := b.ReserveHeader(4 + len(msg))
	if err != nil {
		t.Fatal(err)
	}
	hdr[0] = icmpType
	hdr[1] = icmpCode
	copy(hdr[4:], msg)
	b.SrcAddr = mustTestAddr(src)
	b.DstAddr = mustTestAddr(dst)

	frame, err := b.EncodeIPv6(64)
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func buildDIOFrame(t *testing.T, src string) []byte {
	t.Helper()
	base := icmp6.DIOBase{InstanceID: 1, Version: 1, Rank: 256}
	cfg := icmp6.RPLConfig{DIOIntervalMin: 9, DIORedundancy: 10, MinHopRankIncrease: 128, DefaultLifetime: 60, LifetimeUnit: 60}
	body := base.Marshal(nil)
	body = cfg.Marshal(body)
	msg := body
	return buildIPv6Frame(t, src, "ff02::1a", 155, 0x01, msg)
}

func TestDeliverFrameRejectsMalformed(t *testing.T) {
	c, _ := newTestContext()
	if err := c.DeliverFrame(addr.EUI64{}, make([]byte, 4)); err != wspkt.ErrInvalid {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestDeliverFrameIgnoresUnhandledType(t *testing.T) {
	c, _ := newTestContext()
	frame := buildIPv6Frame(t, "fe80::1", "fe80::2", 128, 0, nil) // echo request
	if err := c.DeliverFrame(addr.EUI64{0x01}, frame); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

// buildNonICMPv6Frame builds a bare IPv6 header (next header = UDP)
// followed by garbage, the way a stray transport-layer datagram would
// arrive at this core — it has nothing to forward such a packet to.
func buildNonICMPv6Frame(t *testing.T, src, dst string) []byte {
	t.Helper()
	frame := make([]byte, 44)
	frame[0] = 0x60
	frame[6] = 17 // UDP
	frame[7] = 64
	srcAddr := mustTestAddr(src).As16()
	dstAddr := mustTestAddr(dst).As16()
	copy(frame[8:24], srcAddr[:])
	copy(frame[24:40], dstAddr[:])
	return frame
}

func TestDeliverFrameRejectsNonICMPv6NextHeaderWithParamProblem(t *testing.T) {
	c, _ := newTestContext()
	fake := c.Bus.(*rcpbus.Fake)

	frame := buildNonICMPv6Frame(t, "fe80::9", "fe80::2")
	if err := c.DeliverFrame(addr.EUI64{0x09}, frame); err != nil {
		t.Fatalf("DeliverFrame: %v", err)
	}

	sent := fake.Sent()
	if len(sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1 Parameter Problem reply", len(sent))
	}
	if icmp6.Type(sent[0].Frame[0]) != icmp6.TypeParamProblem {
		t.Fatalf("reply type = %d, want Parameter Problem", sent[0].Frame[0])
	}
}

func TestDeliverFrameDispatchesDIOToRPLEngine(t *testing.T) {
	c, rplEngine := newTestContext()
	var gotParent addr.EUI64
	fired := 0
	c.OnPrimaryParentChange = func(e addr.EUI64) { gotParent = e; fired++ }

	srcEUI64 := addr.EUI64{0xbb}
	frame := buildDIOFrame(t, "fe80::bb")

	if err := c.DeliverFrame(srcEUI64, frame); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if gotParent != srcEUI64 {
		t.Fatalf("gotParent = %x, want %x", gotParent, srcEUI64)
	}
	if _, ok := rplEngine.Table.Lookup(srcEUI64); !ok {
		t.Fatal("expected RPL neighbor table entry for DIO source")
	}
}

func TestDeliverFrameDropsMalformedDIO(t *testing.T) {
	c, _ := newTestContext()
	// A DIO base with no trailing RPL Configuration option.
	base := icmp6.DIOBase{InstanceID: 1, Version: 1, Rank: 256}
	msg := base.Marshal(nil)
	frame := buildIPv6Frame(t, "fe80::bb", "ff02::1a", 155, 0x01, msg)

	if err := c.DeliverFrame(addr.EUI64{0xbb}, frame); err == nil {
		t.Fatal("expected an error for a DIO missing its Configuration option")
	}
}

func TestSendFrameForwardsToBus(t *testing.T) {
	c, _ := newTestContext()
	fake := c.Bus.(*rcpbus.Fake)

	payload := []byte{0x60, 0, 0, 0}
	if err := c.SendFrame(addr.EUI64{0xcc}, payload); err != nil {
		t.Fatal(err)
	}

	sent := fake.Sent()
	if len(sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(sent))
	}
	if string(sent[0].Frame) != string(payload) {
		t.Fatalf("sent frame = %x, want %x", sent[0].Frame, payload)
	}
}
