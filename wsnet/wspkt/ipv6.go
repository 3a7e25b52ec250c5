package wspkt

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

// ipv6HeaderLen is the fixed IPv6 header size; SPEC_FULL §6's
// DeliverFrame/SendFrame collapse 6LoWPAN decompression to "out of
// scope", so frames reaching this codec already carry a full,
// uncompressed IPv6 header.
const ipv6HeaderLen = 40

// ParseIPv6 decodes frame's IPv6 header into a fresh Buffer whose
// payload is positioned exactly at the next-header's start (the
// ICMPv6 message, for every message this core handles), with
// SrcAddr/DstAddr/HopLimit/TrafficClass/ICMPType/ICMPCode populated
// from the header so validate and the handlers never re-parse it.
func ParseIPv6(frame []byte) (*Buffer, error) {
	if len(frame) < ipv6HeaderLen+4 {
		return nil, ErrInvalid
	}
	if frame[0]>>4 != 6 {
		return nil, ErrInvalid
	}

	b := &Buffer{data: frame, off: ipv6HeaderLen, end: len(frame)}
	b.TrafficClass = frame[0]<<4 | frame[1]>>4
	b.NextHeader = frame[6]
	b.HopLimit = frame[7]
	b.SrcAddr, _ = netip.AddrFromSlice(frame[8:24])
	b.DstAddr, _ = netip.AddrFromSlice(frame[24:40])
	b.SrcAddr = b.SrcAddr.Unmap()
	b.DstAddr = b.DstAddr.Unmap()
	b.ICMPType = frame[40]
	b.ICMPCode = frame[41]
	b.Direction = Up
	return b, nil
}

// EncodeIPv6 prepends a 40-octet IPv6 header in front of b's current
// payload (which must already hold the ICMPv6 message with its
// checksum filled in) and returns the complete on-wire frame. hopLimit
// is the value to place in the header; payloadLen is computed from
// b.Len() after the header is reserved.
func (b *Buffer) EncodeIPv6(hopLimit uint8) ([]byte, error) {
	payloadLen := b.Len()
	hdr, err := b.ReserveHeader(ipv6HeaderLen)
	if err != nil {
		return nil, err
	}
	hdr[0] = 0x60 // version 6, traffic class/flow label left zero
	hdr[1] = 0
	hdr[2] = 0
	hdr[3] = 0
	binary.BigEndian.PutUint16(hdr[4:6], uint16(payloadLen))
	hdr[6] = NextHeaderICMPv6
	hdr[7] = hopLimit
	src16 := b.SrcAddr.As16()
	dst16 := b.DstAddr.As16()
	copy(hdr[8:24], src16[:])
	copy(hdr[24:40], dst16[:])
	return b.Bytes(), nil
}

// NextHeaderICMPv6 is IPv6's next-header value for ICMPv6 (58).
const NextHeaderICMPv6 = 58

// ErrInvalid is returned by ParseIPv6 for a frame too short to hold a
// complete IPv6 header plus minimal ICMPv6 message.
var ErrInvalid = errors.New("wspkt: malformed IPv6 frame")
