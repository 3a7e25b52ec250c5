package icmpengine

import (
	"net/netip"
	"testing"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
	"github.com/wisun-fan/wsrouterd/wsnet/wspkt"
)

// fakeIface is a minimal in-memory Iface for testing, grounded on the
// same fake-collaborator style as a rcpbus test double would use.
type fakeIface struct {
	eui64     addr.EUI64
	ll        netip.Addr
	addrs     map[netip.Addr]bool
	acceptARO bool
	sent      []*wspkt.Buffer
	prefix    icmp6.PrefixInfo
	havePfx   bool
}

func newFakeIface() *fakeIface {
	return &fakeIface{
		eui64:     addr.EUI64{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77},
		ll:        mustAddr("fe80::2"),
		addrs:     map[netip.Addr]bool{mustAddr("fe80::2"): true},
		acceptARO: true,
	}
}

func (f *fakeIface) EUI64() addr.EUI64                 { return f.eui64 }
func (f *fakeIface) LinkLocalAddr() netip.Addr          { return f.ll }
func (f *fakeIface) HasAddress(a netip.Addr) bool       { return f.addrs[a] }
func (f *fakeIface) SelectSource(dst netip.Addr) netip.Addr { return f.ll }
func (f *fakeIface) AcceptsARO() bool                   { return f.acceptARO }
func (f *fakeIface) Send(b *wspkt.Buffer) error          { f.sent = append(f.sent, b); return nil }
func (f *fakeIface) Prefix() (icmp6.PrefixInfo, bool)   { return f.prefix, f.havePfx }
func (f *fakeIface) CurHopLimit() uint8                 { return 64 }

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func buildNSWithEARO(t *testing.T) *wspkt.Buffer {
	t.Helper()
	b, err := wspkt.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	b.SrcAddr = mustAddr("fe80::1")
	b.DstAddr = addr.SolicitedNodeMulticast(mustAddr("fe80::2"))
	b.HopLimit = 255

	ro := icmp6.EARO{Status: icmp6.EAROSuccess, R: true, Lifetime: 3600, EUI64: [8]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}}
	var opts []byte
	opts = ro.Marshal(opts)

	body := icmp6.NSBody{Target: mustAddr("fe80::2").As16()}
	var bodyBuf []byte
	bodyBuf = body.Marshal(bodyBuf)
	bodyBuf = append(bodyBuf, opts...)

	hdr, err := b.ReserveHeader(4 + len(bodyBuf))
	if err != nil {
		t.Fatal(err)
	}
	hdr[0] = byte(icmp6.TypeNS)
	copy(hdr[4:], bodyBuf)
	binaryPutChecksum(hdr, b.SrcAddr, b.DstAddr)
	return b
}

// TestHandleNSWithEAROSendsNAWithEARO is scenario S1.
func TestHandleNSWithEAROSendsNAWithEARO(t *testing.T) {
	iface := newFakeIface()
	nce := neighbor.NewCache(nil, 30000, 64)
	e := NewEngine(nil, iface, nce)

	b := buildNSWithEARO(t)
	if err := e.HandleNS(b); err != nil {
		t.Fatalf("HandleNS: %v", err)
	}
	if len(iface.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(iface.sent))
	}
	out := iface.sent[0]
	if out.DstAddr != mustAddr("fe80::1") {
		t.Errorf("NA dst = %v, want fe80::1", out.DstAddr)
	}
	if out.HopLimit != 255 {
		t.Errorf("NA hop_limit = %d, want 255", out.HopLimit)
	}

	msg := out.Bytes()
	if icmp6.Type(msg[0]) != icmp6.TypeNA {
		t.Fatalf("type = %d, want NA", msg[0])
	}
	na, rest, err := icmp6.ParseNABody(msg[4:])
	if err != nil {
		t.Fatalf("ParseNABody: %v", err)
	}
	if !na.Flags.Router || !na.Flags.Solicited || !na.Flags.Override {
		t.Errorf("flags = %+v, want R=1/S=1/O=1", na.Flags)
	}
	if netip.AddrFrom16(na.Target) != mustAddr("fe80::2") {
		t.Errorf("target = %v, want fe80::2", netip.AddrFrom16(na.Target))
	}
	opts, err := icmp6.ParseOptions(rest)
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	earoOpt, ok := findOption(opts, icmp6.OptEARO)
	if !ok {
		t.Fatal("no EARO in reply")
	}
	ro, err := icmp6.ParseEARO(earoOpt.Value)
	if err != nil {
		t.Fatalf("ParseEARO: %v", err)
	}
	if ro.Status != icmp6.EAROSuccess || ro.Lifetime != 3600 {
		t.Errorf("reply EARO = %+v, want status=0 lifetime=3600", ro)
	}
}

// TestSendErrorTokenBucketBound is scenario S3.
func TestSendErrorTokenBucketBound(t *testing.T) {
	iface := newFakeIface()
	nce := neighbor.NewCache(nil, 30000, 64)
	e := NewEngine(nil, iface, nce)

	offending, err := wspkt.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	offending.SrcAddr = mustAddr("fe80::9")
	offending.DstAddr = mustAddr("fe80::2")

	sent := 0
	for i := 0; i < 30; i++ {
		if err := e.SendError(offending, icmp6.TypeParamProblem, uint8(icmp6.ErroneousHeaderField), 0); err != nil {
			t.Fatalf("SendError: %v", err)
		}
	}
	sent = len(iface.sent)
	if sent != 10 {
		t.Fatalf("sent %d error replies for 30 inputs, want 10 (token bucket burst)", sent)
	}
}

// TestHandleNADropsMulticastSolicited is scenario S5.
func TestHandleNADropsMulticastSolicited(t *testing.T) {
	iface := newFakeIface()
	nce := neighbor.NewCache(nil, 30000, 64)
	target := mustAddr("fe80::9")
	nce.UpdateUnsolicited(target, addr.EUI64{0xaa})
	before, _ := nce.Lookup(target)
	beforeState := before.State

	e := NewEngine(nil, iface, nce)

	b, err := wspkt.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	b.SrcAddr = mustAddr("fe80::9")
	b.DstAddr = mustAddr("ff02::1")
	b.HopLimit = 255

	body := icmp6.NABody{Flags: icmp6.NAFlags{Solicited: true}, Target: target.As16()}
	var bodyBuf []byte
	bodyBuf = body.Marshal(bodyBuf)
	hdr, err := b.ReserveHeader(4 + len(bodyBuf))
	if err != nil {
		t.Fatal(err)
	}
	hdr[0] = byte(icmp6.TypeNA)
	copy(hdr[4:], bodyBuf)
	binaryPutChecksum(hdr, b.SrcAddr, b.DstAddr)

	if err := e.HandleNA(b); err != nil {
		t.Fatalf("HandleNA: %v", err)
	}
	if len(iface.sent) != 0 {
		t.Error("NA on multicast dest with S=1 must not produce any reply")
	}
	after, _ := nce.Lookup(target)
	if after.State != beforeState {
		t.Errorf("neighbor cache state changed: %v -> %v, want unchanged", beforeState, after.State)
	}
}

// TestHopLimitValidation is universal property 3.
func TestHopLimitValidation(t *testing.T) {
	iface := newFakeIface()
	nce := neighbor.NewCache(nil, 30000, 64)
	e := NewEngine(nil, iface, nce)

	b := buildNSWithEARO(t)
	b.HopLimit = 64 // not 255

	if err := e.HandleNS(b); err != ErrInvalid {
		t.Fatalf("HandleNS with hop_limit=64 = %v, want ErrInvalid", err)
	}
	if len(iface.sent) != 0 {
		t.Error("no reply should be sent for hop_limit != 255")
	}
}
