package icmp6

import "testing"

func TestDIOBaseRoundTrips(t *testing.T) {
	want := DIOBase{
		InstanceID: 1,
		Version:    3,
		Rank:       256,
		Grounded:   true,
		MOP:        1,
		PRF:        2,
		DTSN:       5,
		DODAGID:    [16]byte{0xfe, 0x80, 15: 0x01},
	}

	buf := want.Marshal(nil)
	if len(buf) != dioBaseWireLen {
		t.Fatalf("len(buf) = %d, want %d", len(buf), dioBaseWireLen)
	}

	got, rest, err := ParseDIOBase(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %d bytes, want 0", len(rest))
	}
	if got != want {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
}

func TestParseDIOBaseRejectsShort(t *testing.T) {
	if _, _, err := ParseDIOBase(make([]byte, dioBaseWireLen-1)); err != ErrShortMessage {
		t.Fatalf("err = %v, want ErrShortMessage", err)
	}
}

func TestRPLConfigRoundTrips(t *testing.T) {
	want := RPLConfig{
		DIOIntervalDoublings: 8,
		DIOIntervalMin:       9,
		DIORedundancy:        10,
		MaxRankIncrease:      2048,
		MinHopRankIncrease:   128,
		OCP:                  1,
		DefaultLifetime:      30,
		LifetimeUnit:         60,
	}

	opt := want.Marshal(nil)
	opts, err := ParseOptions(opt)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 || opts[0].Type != OptRPLConfig {
		t.Fatalf("opts = %+v, want one OptRPLConfig entry", opts)
	}

	got, err := ParseRPLConfig(opts[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
}

func TestDIOWithConfigOptionParses(t *testing.T) {
	base := DIOBase{InstanceID: 1, Version: 1, Rank: 512, DODAGID: [16]byte{0xfe, 0x80}}
	cfg := RPLConfig{DIOIntervalMin: 9, DIORedundancy: 10}

	body := base.Marshal(nil)
	body = cfg.Marshal(body)

	gotBase, rest, err := ParseDIOBase(body)
	if err != nil {
		t.Fatal(err)
	}
	if gotBase != base {
		t.Fatalf("gotBase = %+v, want %+v", gotBase, base)
	}

	opts, err := ParseOptions(rest)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 || opts[0].Type != OptRPLConfig {
		t.Fatalf("opts = %+v, want one OptRPLConfig entry", opts)
	}
	gotCfg, err := ParseRPLConfig(opts[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	if gotCfg != cfg {
		t.Fatalf("gotCfg = %+v, want %+v", gotCfg, cfg)
	}
}
