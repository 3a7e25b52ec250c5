// Package icmp6 implements bit-exact parsing and generation of the
// ICMPv6 messages and options spec §6 names: NS/NA/RS/RA/Redirect
// headers, the Source/Target Link-Layer Address options, the
// Extended Address Registration Option (RFC 8505), and the RPL
// Configuration and Prefix Information options (RFC 6550 §6.7.6,
// §6.7.10).
//
// Each message/option type is a fixed-shape Go struct with an
// append-style Marshal method and a Parse function operating on
// encoding/binary.BigEndian,
// the same style tailscale.com/net/packet uses for its IP/ICMP
// header types, generalized here to full messages since the engine
// builds and inspects whole ICMPv6 datagrams rather than filter-only
// 5-tuples.
package icmp6

import (
	"encoding/binary"
	"errors"
)

// Type is an ICMPv6 message type (RFC 4443 / RFC 4861 / RFC 6550).
type Type uint8

const (
	TypeDestUnreachable Type = 1
	TypeParamProblem    Type = 4
	TypeEchoRequest     Type = 128
	TypeEchoReply       Type = 129
	TypeRS              Type = 133
	TypeRA              Type = 134
	TypeNS              Type = 135
	TypeNA              Type = 136
	TypeRedirect        Type = 137
	TypeRPLControl      Type = 155
)

// Code is the ICMPv6 code field. Spec §4.3.1 requires code == 0 for
// NS/NA/RS/RA/Redirect.
type Code uint8

// ParamProblemCode enumerates RFC 4443 §3.4 codes for Parameter Problem.
type ParamProblemCode uint8

const (
	ErroneousHeaderField ParamProblemCode = 0
	UnrecognizedNextHdr  ParamProblemCode = 1
	UnrecognizedIPv6Opt  ParamProblemCode = 2
)

var (
	ErrShortMessage = errors.New("icmp6: message too short")
	ErrBadOptionLen = errors.New("icmp6: option length field is zero or overruns message")
)

// OptionType identifies an ICMPv6 Neighbor Discovery option (RFC 4861 §4.6).
type OptionType uint8

const (
	OptSourceLLAddr OptionType = 1
	OptTargetLLAddr OptionType = 2
	OptPrefixInfo   OptionType = 3
	OptRedirected   OptionType = 4
	OptMTU          OptionType = 5
	OptRPLConfig    OptionType = 4 // RPL DIO Configuration option (RFC 6550 §6.7.6); numerically aliases OptRedirected, but the two never appear in the same option chain since RPL Control Messages and ND messages use disjoint option sets
	OptRPLTarget    OptionType = 5
	OptRPLTransit   OptionType = 6
	OptEARO         OptionType = 33 // Extended Address Registration Option, RFC 8505 §4.1
)

// RawOption is one undecoded entry from an option chain: a type byte,
// a length-in-8-octet-units byte, and len*8-2 bytes of value.
type RawOption struct {
	Type  OptionType
	Value []byte // excludes the 2-byte type+length header
}

// Len8 returns the option's length field value (total option size / 8).
func (o RawOption) Len8() uint8 { return uint8((len(o.Value) + 2) / 8) }

// ParseOptions walks b as a chain of ICMPv6 options, per spec §4.3.1:
// each option's length must be > 0 and the chain must consume exactly
// the remaining buffer.
func ParseOptions(b []byte) ([]RawOption, error) {
	var opts []RawOption
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, ErrBadOptionLen
		}
		typ := OptionType(b[0])
		len8 := b[1]
		if len8 == 0 {
			return nil, ErrBadOptionLen
		}
		total := int(len8) * 8
		if total > len(b) {
			return nil, ErrBadOptionLen
		}
		opts = append(opts, RawOption{Type: typ, Value: b[2:total]})
		b = b[total:]
	}
	return opts, nil
}

// AppendOption serializes a raw option onto dst, padding Value's
// length up to a multiple of 8 octets (minus the 2-octet header) if
// needed. Callers that build fixed-size options (LLAddrOption, etc.)
// pre-pad Value themselves; this is the fallback path for RawOption
// values assembled by hand.
func AppendOption(dst []byte, typ OptionType, value []byte) []byte {
	total := ((len(value) + 2 + 7) / 8) * 8
	out := make([]byte, total)
	out[0] = byte(typ)
	out[1] = byte(total / 8)
	copy(out[2:], value)
	return append(dst, out...)
}

// LLAddrOption is the Source/Target Link-Layer Address option (type
// 1/2), carrying an 8-octet EUI-64 as used throughout Wi-SUN FAN
// (spec §6).
type LLAddrOption struct {
	Target bool // false = Source (type 1), true = Target (type 2)
	EUI64  [8]byte
}

func (o LLAddrOption) OptType() OptionType {
	if o.Target {
		return OptTargetLLAddr
	}
	return OptSourceLLAddr
}

// Marshal appends the 16-octet (2 header + 8 addr + 6 pad... actually
// 8 addr needs len=2 units = 16 bytes total: 2 header + 8 addr + 6 reserved)
// wire form to dst. Wi-SUN FAN carries only 64-bit addressing, so the
// option is always exactly 2*8=16 octets.
func (o LLAddrOption) Marshal(dst []byte) []byte {
	var buf [16]byte
	buf[0] = byte(o.OptType())
	buf[1] = 2
	copy(buf[2:10], o.EUI64[:])
	return append(dst, buf[:]...)
}

// ParseLLAddrOption decodes an option whose Value is at least 8 bytes,
// taking the EUI-64 from the first 8; Marshal's form carries 6 more
// reserved bytes, which are ignored.
func ParseLLAddrOption(target bool, value []byte) (LLAddrOption, error) {
	if len(value) < 8 {
		return LLAddrOption{}, ErrShortMessage
	}
	var o LLAddrOption
	o.Target = target
	copy(o.EUI64[:], value[:8])
	return o, nil
}

// EARO is the Extended Address Registration Option (type 33, RFC 8505
// §4.1): `type | len=2 | status | opaque | flags(IRT) | tid |
// lifetime(be16) | eui64(8)`.
type EARO struct {
	Status   EAROStatus
	Opaque   uint8
	I, R, T  bool // flag bits; only R (registration) is interpreted by this engine
	TID      uint8
	Lifetime uint16 // seconds
	EUI64    [8]byte
}

// EAROStatus is an RFC 8505 §4.1 registration status code.
type EAROStatus uint8

const (
	EAROSuccess           EAROStatus = 0
	EARODuplicate         EAROStatus = 1
	EAROMoved             EAROStatus = 3
	EARORemoved           EAROStatus = 4
	EAROValidationReq     EAROStatus = 5
	EARODuplicateSource   EAROStatus = 6
)

const earoWireLen = 16 // 2 header + 14 value

// Marshal appends the 16-octet EARO wire form to dst.
func (e EARO) Marshal(dst []byte) []byte {
	var buf [earoWireLen]byte
	buf[0] = byte(OptEARO)
	buf[1] = 2
	buf[2] = byte(e.Status)
	buf[3] = e.Opaque
	var flags uint8
	if e.I {
		flags |= 0x80
	}
	if e.R {
		flags |= 0x40
	}
	if e.T {
		flags |= 0x20
	}
	buf[4] = flags
	buf[5] = e.TID
	binary.BigEndian.PutUint16(buf[6:8], e.Lifetime)
	copy(buf[8:16], e.EUI64[:])
	return append(dst, buf[:]...)
}

// ParseEARO decodes an EARO option body (the 14 bytes following the
// type+length header). This is also the form spec §4.3.3 names for
// inbound NAs (`Length field == 2`, i.e. two 8-octet units); a value
// of any other size is rejected with ErrShortMessage.
func ParseEARO(value []byte) (EARO, error) {
	switch len(value) {
	case 14:
		var e EARO
		e.Status = EAROStatus(value[0])
		e.Opaque = value[1]
		flags := value[2]
		e.I = flags&0x80 != 0
		e.R = flags&0x40 != 0
		e.T = flags&0x20 != 0
		e.TID = value[3]
		e.Lifetime = binary.BigEndian.Uint16(value[4:6])
		copy(e.EUI64[:], value[6:14])
		return e, nil
	default:
		return EARO{}, ErrShortMessage
	}
}

// RPLConfig is the RPL DIO Configuration option (RFC 6550 §6.7.6).
type RPLConfig struct {
	DIOIntervalDoublings uint8
	DIOIntervalMin       uint8
	DIORedundancy        uint8
	MaxRankIncrease      uint16
	MinHopRankIncrease   uint16
	OCP                  uint16
	DefaultLifetime      uint8
	LifetimeUnit         uint16 // seconds
}

const rplConfigWireLen = 16

func (c RPLConfig) Marshal(dst []byte) []byte {
	var buf [rplConfigWireLen]byte
	buf[0] = byte(OptRPLConfig)
	buf[1] = 2
	buf[2] = c.DIOIntervalDoublings
	buf[3] = c.DIOIntervalMin
	buf[4] = c.DIORedundancy
	binary.BigEndian.PutUint16(buf[5:7], c.MaxRankIncrease)
	binary.BigEndian.PutUint16(buf[7:9], c.MinHopRankIncrease)
	binary.BigEndian.PutUint16(buf[9:11], c.OCP)
	buf[11] = 0 // reserved
	buf[12] = c.DefaultLifetime
	binary.BigEndian.PutUint16(buf[13:15], c.LifetimeUnit)
	return append(dst, buf[:]...)
}

func ParseRPLConfig(value []byte) (RPLConfig, error) {
	if len(value) < 14 {
		return RPLConfig{}, ErrShortMessage
	}
	var c RPLConfig
	c.DIOIntervalDoublings = value[0]
	c.DIOIntervalMin = value[1]
	c.DIORedundancy = value[2]
	c.MaxRankIncrease = binary.BigEndian.Uint16(value[3:5])
	c.MinHopRankIncrease = binary.BigEndian.Uint16(value[5:7])
	c.OCP = binary.BigEndian.Uint16(value[7:9])
	c.DefaultLifetime = value[10]
	c.LifetimeUnit = binary.BigEndian.Uint16(value[11:13])
	return c, nil
}

// DIOBase is the fixed-size body of a DODAG Information Object message
// (RFC 6550 §6.3.1), the RPL Control Message that carries a DODAGID,
// rank and mode-of-operation ahead of its option chain.
type DIOBase struct {
	InstanceID uint8
	Version    uint8
	Rank       uint16
	Grounded   bool
	MOP        uint8
	PRF        uint8
	DTSN       uint8
	DODAGID    [16]byte
}

const dioBaseWireLen = 24

// Marshal appends the 24-octet DIO base to dst and returns the
// extended slice; any options chain follows it.
func (d DIOBase) Marshal(dst []byte) []byte {
	var buf [dioBaseWireLen]byte
	buf[0] = d.InstanceID
	buf[1] = d.Version
	binary.BigEndian.PutUint16(buf[2:4], d.Rank)
	flags := (d.MOP & 0x7) << 3
	if d.Grounded {
		flags |= 0x80
	}
	flags |= d.PRF & 0x7
	buf[4] = flags
	buf[5] = d.DTSN
	copy(buf[8:24], d.DODAGID[:])
	return append(dst, buf[:]...)
}

// ParseDIOBase decodes a DIO message body's fixed fields, returning
// the remaining bytes (the option chain).
func ParseDIOBase(b []byte) (DIOBase, []byte, error) {
	if len(b) < dioBaseWireLen {
		return DIOBase{}, nil, ErrShortMessage
	}
	var d DIOBase
	d.InstanceID = b[0]
	d.Version = b[1]
	d.Rank = binary.BigEndian.Uint16(b[2:4])
	flags := b[4]
	d.Grounded = flags&0x80 != 0
	d.MOP = (flags >> 3) & 0x7
	d.PRF = flags & 0x7
	d.DTSN = b[5]
	copy(d.DODAGID[:], b[8:24])
	return d, b[dioBaseWireLen:], nil
}

// PrefixInfo is the RPL/ND Prefix Information option (RFC 4861 §4.6.2,
// RFC 6550 §6.7.10 reuses the same shape).
type PrefixInfo struct {
	PrefixLen         uint8
	OnLink            bool
	Autonomous        bool
	ValidLifetime     uint32
	PreferredLifetime uint32
	Prefix            [16]byte
}

const prefixInfoWireLen = 32

func (p PrefixInfo) Marshal(dst []byte) []byte {
	var buf [prefixInfoWireLen]byte
	buf[0] = byte(OptPrefixInfo)
	buf[1] = 4
	buf[2] = p.PrefixLen
	var flags uint8
	if p.OnLink {
		flags |= 0x80
	}
	if p.Autonomous {
		flags |= 0x40
	}
	buf[3] = flags
	binary.BigEndian.PutUint32(buf[4:8], p.ValidLifetime)
	binary.BigEndian.PutUint32(buf[8:12], p.PreferredLifetime)
	copy(buf[16:32], p.Prefix[:])
	return append(dst, buf[:]...)
}

func ParsePrefixInfo(value []byte) (PrefixInfo, error) {
	if len(value) < 30 {
		return PrefixInfo{}, ErrShortMessage
	}
	var p PrefixInfo
	p.PrefixLen = value[0]
	flags := value[1]
	p.OnLink = flags&0x80 != 0
	p.Autonomous = flags&0x40 != 0
	p.ValidLifetime = binary.BigEndian.Uint32(value[2:6])
	p.PreferredLifetime = binary.BigEndian.Uint32(value[6:10])
	copy(p.Prefix[:], value[14:30])
	return p, nil
}

// NSBody is the fixed 20-octet body of a Neighbor Solicitation
// message, following the 4-octet ICMPv6 header (type/code/checksum):
// 4 reserved octets then the 16-octet target address.
type NSBody struct {
	Target [16]byte
}

func (b NSBody) Marshal(dst []byte) []byte {
	var buf [20]byte
	copy(buf[4:20], b.Target[:])
	return append(dst, buf[:]...)
}

func ParseNSBody(b []byte) (NSBody, []byte, error) {
	if len(b) < 20 {
		return NSBody{}, nil, ErrShortMessage
	}
	var body NSBody
	copy(body.Target[:], b[4:20])
	return body, b[20:], nil
}

// NAFlags are the R(outer)/S(olicited)/O(verride) bits of a Neighbor
// Advertisement, packed into the top 3 bits of the 4-octet
// reserved/flags word (RFC 4861 §4.4).
type NAFlags struct {
	Router    bool
	Solicited bool
	Override  bool
}

// NABody is the fixed 20-octet body of a Neighbor Advertisement.
type NABody struct {
	Flags  NAFlags
	Target [16]byte
}

func (b NABody) Marshal(dst []byte) []byte {
	var buf [20]byte
	var flags uint8
	if b.Flags.Router {
		flags |= 0x80
	}
	if b.Flags.Solicited {
		flags |= 0x40
	}
	if b.Flags.Override {
		flags |= 0x20
	}
	buf[0] = flags
	copy(buf[4:20], b.Target[:])
	return append(dst, buf[:]...)
}

func ParseNABody(b []byte) (NABody, []byte, error) {
	if len(b) < 20 {
		return NABody{}, nil, ErrShortMessage
	}
	var body NABody
	flags := b[0]
	body.Flags.Router = flags&0x80 != 0
	body.Flags.Solicited = flags&0x40 != 0
	body.Flags.Override = flags&0x20 != 0
	copy(body.Target[:], b[4:20])
	return body, b[20:], nil
}

// RABody is the fixed 12-octet body of a Router Advertisement (RFC
// 4861 §4.2), excluding trailing options.
type RABody struct {
	CurHopLimit    uint8
	ManagedOnLink  bool
	OtherConfig    bool
	RouterLifetime uint16
	ReachableMs    uint32
	RetransMs      uint32
}

func (b RABody) Marshal(dst []byte) []byte {
	var buf [12]byte
	buf[0] = b.CurHopLimit
	var flags uint8
	if b.ManagedOnLink {
		flags |= 0x80
	}
	if b.OtherConfig {
		flags |= 0x40
	}
	buf[1] = flags
	binary.BigEndian.PutUint16(buf[2:4], b.RouterLifetime)
	binary.BigEndian.PutUint32(buf[4:8], b.ReachableMs)
	binary.BigEndian.PutUint32(buf[8:12], b.RetransMs)
	return append(dst, buf[:]...)
}

func ParseRABody(b []byte) (RABody, []byte, error) {
	if len(b) < 12 {
		return RABody{}, nil, ErrShortMessage
	}
	var body RABody
	body.CurHopLimit = b[0]
	flags := b[1]
	body.ManagedOnLink = flags&0x80 != 0
	body.OtherConfig = flags&0x40 != 0
	body.RouterLifetime = binary.BigEndian.Uint16(b[2:4])
	body.ReachableMs = binary.BigEndian.Uint32(b[4:8])
	body.RetransMs = binary.BigEndian.Uint32(b[8:12])
	return body, b[12:], nil
}

// RSBody is the fixed 4-octet reserved body of a Router Solicitation.
type RSBody struct{}

func (RSBody) Marshal(dst []byte) []byte {
	var buf [4]byte
	return append(dst, buf[:]...)
}

func ParseRSBody(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, ErrShortMessage
	}
	return b[4:], nil
}

// Checksum computes the ICMPv6 checksum over the IPv6 pseudo-header
// (src, dst, upper-layer length, next-header=58) followed by the
// ICMPv6 message, per RFC 4443 §2.3 / RFC 8200 §8.1. To compute the
// value to send, message's checksum field must be zero; over a
// received message with its checksum in place, the result is 0
// exactly when that checksum is valid (validate relies on this).
func Checksum(src, dst [16]byte, message []byte) uint16 {
	var sum uint32
	add := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}
	add(src[:])
	add(dst[:])
	var lenAndNH [8]byte
	binary.BigEndian.PutUint32(lenAndNH[0:4], uint32(len(message)))
	lenAndNH[7] = 58 // ICMPv6 next header
	add(lenAndNH[:])
	add(message)
	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
