// Package wspkt implements the packet buffer (spec §4.1): a
// contiguous octet region plus the per-packet metadata the ICMPv6 and
// RPL engines attach to it, grounded on the shape of
// tailscale.com/net/packet.Parsed but carrying the fuller metadata
// set spec §3 names and a headroom-reservation API, since unlike a
// filter's read-only Parsed view, these buffers are built up by the
// engine before transmission as well as parsed on reception.
package wspkt

import (
	"errors"
	"net/netip"
)

// ErrAlloc is returned by Alloc/Headroom/ReserveHeader when the
// requested capacity cannot be satisfied. The caller's only valid
// response is to drop the in-flight packet (spec §4.1, §7).
var ErrAlloc = errors.New("wspkt: allocation failure")

// Direction records which way a buffer is flowing through the engine.
type Direction int

const (
	Up   Direction = iota // received from the RCP, flowing toward higher layers
	Down                  // originated locally or forwarded, flowing toward the RCP
)

// AckIntent replaces a function-pointer completion callback (spec §9,
// "Callback-driven asynchrony") with a closed enum the scheduler's
// MAC-confirmation handler switches on.
type AckIntent int

const (
	AckNone AckIntent = iota
	AckUpdateNeighborReachable
	AckRemoveNeighbor
	AckNotifyAroResult
)

// Buffer is a single in-flight packet plus its metadata. Buffers flow
// exactly once through the engine: a drop releases the buffer and it
// is never reused (spec §3).
type Buffer struct {
	data []byte // the full backing array
	off  int    // start of valid payload within data
	end  int    // end of valid payload within data

	SrcAddr          netip.Addr
	DstAddr          netip.Addr
	HopLimit         uint8
	TrafficClass     uint8
	NextHeader       uint8 // IPv6 Next Header field (58 == ICMPv6)
	ICMPType         uint8
	ICMPCode         uint8
	LLSecurityBypass bool
	LLMulticastRx    bool
	LLBroadcastRx    bool
	Direction        Direction
	InterfaceRef     any // opaque back-reference to the owning interface context

	AckIntent  AckIntent
	AckEUI64   [8]byte // valid when AckIntent == AckNotifyAroResult
}

// Alloc returns a new Buffer with capacity bytes of backing storage
// and a zero-length payload positioned at the end of that storage, so
// that ReserveHeader can grow the payload backwards without copying
// in the common case of building a reply in place.
func Alloc(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity > maxBufferSize {
		return nil, ErrAlloc
	}
	b := &Buffer{data: make([]byte, capacity)}
	b.off = capacity
	b.end = capacity
	return b, nil
}

// maxBufferSize bounds a single packet buffer; well above the 1280
// byte IPv6 minimum MTU referenced in spec §4.3.5 to leave room for
// link-layer and ICMP header growth.
const maxBufferSize = 4096

// Len returns the current payload length.
func (b *Buffer) Len() int { return b.end - b.off }

// Bytes returns the current payload.
func (b *Buffer) Bytes() []byte { return b.data[b.off:b.end] }

// Headroom ensures n spare bytes are available before the payload
// pointer, reallocating and copying the existing payload forward if
// the backing array is too small (spec §4.1).
func (b *Buffer) Headroom(n int) error {
	if b.off >= n {
		return nil
	}
	payloadLen := b.Len()
	newCap := payloadLen + n
	if doubled := 2 * len(b.data); doubled > newCap {
		newCap = doubled // amortize repeated small grows
	}
	if newCap > maxBufferSize {
		newCap = maxBufferSize
	}
	if payloadLen+n > newCap {
		return ErrAlloc
	}
	grown := make([]byte, newCap)
	newOff := newCap - payloadLen
	copy(grown[newOff:], b.Bytes())
	b.data = grown
	b.off = newOff
	b.end = newOff + payloadLen
	return nil
}

// ReserveHeader ensures n bytes of headroom and returns a slice over
// that freshly reserved region, growing the payload to include it.
// The caller fills the returned slice with a header it is building
// outside-in (e.g. ICMPv6 then IPv6).
func (b *Buffer) ReserveHeader(n int) ([]byte, error) {
	if err := b.Headroom(n); err != nil {
		return nil, err
	}
	b.off -= n
	return b.data[b.off : b.off+n], nil
}

// StripHeader removes n bytes from the front of the payload, as when
// an inbound packet's IPv6 header has already been consumed and the
// ICMPv6 dispatcher should see only the ICMPv6 message.
func (b *Buffer) StripHeader(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	stripped := b.data[b.off : b.off+n]
	b.off += n
	return stripped
}

// Turnaround swaps src/dst, marks the buffer Down-bound, and clears
// the ack intent, for building a reply in place (e.g. NA in response
// to NS) without a fresh allocation.
func (b *Buffer) Turnaround() {
	b.SrcAddr, b.DstAddr = b.DstAddr, b.SrcAddr
	b.Direction = Down
	b.AckIntent = AckNone
}
