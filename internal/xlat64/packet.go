package xlat64

import (
	"encoding/binary"
	"net/netip"
)

// -------------------------------------------------------------------------
// Wire header constants
// -------------------------------------------------------------------------

const (
	// IPv4MinHeaderLen is the minimum IPv4 header length (no options).
	IPv4MinHeaderLen = 20
	// IPv6HeaderLen is the fixed IPv6 base header length (RFC 8200 §3).
	IPv6HeaderLen = 40
	// IPv6FragHeaderLen is the length of the IPv6 Fragment extension
	// header (RFC 8200 §4.5).
	IPv6FragHeaderLen = 8
	// ICMPHeaderLen is the fixed portion common to every ICMPv4/ICMPv6
	// message: type, code, checksum, and a 4-byte type-specific field.
	ICMPHeaderLen = 8

	protoICMPv4   = 1
	protoTCP      = 6
	protoUDP      = 17
	protoIPv6Frag = 44
	protoICMPv6   = 58
)

// -------------------------------------------------------------------------
// IPv4Header
// -------------------------------------------------------------------------

// IPv4Header is the parsed form of an IPv4 base header (RFC 791 §3.1).
type IPv4Header struct {
	IHL            uint8 // header length in 32-bit words, including options
	DSCP           uint8
	ECN            uint8
	TotalLength    uint16
	Identification uint16
	DontFragment   bool
	MoreFragments  bool
	FragmentOffset uint16 // in 8-byte units, per RFC 791 §3.1
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            netip.Addr
	Dst            netip.Addr
	Options        []byte
}

// HeaderLen returns the header length in bytes, including options.
func (h *IPv4Header) HeaderLen() int {
	return int(h.IHL) * 4
}

// Marshal writes the header (version nibble fixed to 4) into buf, which
// must be at least h.HeaderLen() bytes. The checksum field is written
// as-is; callers that have not yet computed it should set it to 0 first
// and call Sum16 over the result.
func (h *IPv4Header) Marshal(buf []byte) {
	buf[0] = 0x40 | (h.IHL & 0x0f)
	buf[1] = (h.DSCP << 2) | (h.ECN & 0x03)
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], h.Identification)

	flagsFrag := h.FragmentOffset & 0x1fff
	if h.DontFragment {
		flagsFrag |= 0x4000
	}
	if h.MoreFragments {
		flagsFrag |= 0x2000
	}
	binary.BigEndian.PutUint16(buf[6:8], flagsFrag)

	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], h.Checksum)

	src4 := h.Src.As4()
	dst4 := h.Dst.As4()
	copy(buf[12:16], src4[:])
	copy(buf[16:20], dst4[:])

	if len(h.Options) > 0 {
		copy(buf[20:], h.Options)
	}
}

// -------------------------------------------------------------------------
// IPv6Header
// -------------------------------------------------------------------------

// IPv6Header is the parsed form of the IPv6 base header (RFC 8200 §3).
type IPv6Header struct {
	TrafficClass  uint8
	FlowLabel     uint32 // 20 bits significant
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	Src           netip.Addr
	Dst           netip.Addr
}

// Marshal writes the 40-byte header (version nibble fixed to 6) into buf.
func (h *IPv6Header) Marshal(buf []byte) {
	word := uint32(6)<<28 | uint32(h.TrafficClass)<<20 | (h.FlowLabel & 0xfffff)
	binary.BigEndian.PutUint32(buf[0:4], word)
	binary.BigEndian.PutUint16(buf[4:6], h.PayloadLength)
	buf[6] = h.NextHeader
	buf[7] = h.HopLimit

	src16 := h.Src.As16()
	dst16 := h.Dst.As16()
	copy(buf[8:24], src16[:])
	copy(buf[24:40], dst16[:])
}

// -------------------------------------------------------------------------
// FragmentHeader — IPv6 Fragment extension header (RFC 8200 §4.5)
// -------------------------------------------------------------------------

// FragmentHeader is the parsed form of the IPv6 Fragment extension header.
type FragmentHeader struct {
	NextHeader     uint8
	FragmentOffset uint16 // in 8-byte units
	MoreFragments  bool
	Identification uint32
}

// Marshal writes the 8-byte fragment header into buf.
func (h *FragmentHeader) Marshal(buf []byte) {
	buf[0] = h.NextHeader
	buf[1] = 0

	offsetFlags := (h.FragmentOffset << 3) & 0xfff8
	if h.MoreFragments {
		offsetFlags |= 0x0001
	}
	binary.BigEndian.PutUint16(buf[2:4], offsetFlags)
	binary.BigEndian.PutUint32(buf[4:8], h.Identification)
}

// -------------------------------------------------------------------------
// ICMPHeader — common ICMPv4/ICMPv6 framing
// -------------------------------------------------------------------------

// ICMPHeader is the 8-byte prefix common to every ICMPv4 (RFC 792) and
// ICMPv6 (RFC 4443) message: Type, Code, Checksum, and a 4-byte field
// whose meaning is type-specific (echo identifier/sequence, unused,
// pointer, or next-hop MTU).
type ICMPHeader struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Rest     [4]byte
}

// Marshal writes the 8-byte header into buf.
func (h *ICMPHeader) Marshal(buf []byte) {
	buf[0] = h.Type
	buf[1] = h.Code
	binary.BigEndian.PutUint16(buf[2:4], h.Checksum)
	copy(buf[4:8], h.Rest[:])
}

// RestAsPointer interprets Rest as a Parameter Problem pointer (byte 0)
// plus 3 unused bytes.
func (h *ICMPHeader) RestAsPointer() uint8 { return h.Rest[0] }

// SetPointer sets Rest to a Parameter Problem pointer with the remaining
// bytes zeroed.
func (h *ICMPHeader) SetPointer(p uint8) { h.Rest = [4]byte{p, 0, 0, 0} }

// RestAsMTU interprets Rest as a 2-byte unused field followed by a 2-byte
// next-hop MTU (ICMPv4 Destination Unreachable code 4, and ICMPv6 Packet
// Too Big).
func (h *ICMPHeader) RestAsMTU() uint16 { return binary.BigEndian.Uint16(h.Rest[2:4]) }

// SetMTU sets Rest to an MTU field with the leading 2 bytes zeroed.
func (h *ICMPHeader) SetMTU(mtu uint16) {
	h.Rest[0], h.Rest[1] = 0, 0
	binary.BigEndian.PutUint16(h.Rest[2:4], mtu)
}

// RestAsIDSeq interprets Rest as Identifier/Sequence (ICMP Echo/Reply).
func (h *ICMPHeader) RestAsIDSeq() (id, seq uint16) {
	return binary.BigEndian.Uint16(h.Rest[0:2]), binary.BigEndian.Uint16(h.Rest[2:4])
}

// SetIDSeq sets Rest to an Identifier/Sequence pair.
func (h *ICMPHeader) SetIDSeq(id, seq uint16) {
	binary.BigEndian.PutUint16(h.Rest[0:2], id)
	binary.BigEndian.PutUint16(h.Rest[2:4], seq)
}

// -------------------------------------------------------------------------
// Packet — a parsed working record for one direction of translation
// -------------------------------------------------------------------------

// Packet holds the parsed headers for one packet as it moves through a
// translation pipeline. Exactly one of Header4/Header6 is non-nil,
// depending on which family was parsed. Frag6 is non-nil only when the
// IPv6 packet carried a Fragment extension header.
type Packet struct {
	Header4 *IPv4Header
	Header6 *IPv6Header
	Frag6   *FragmentHeader

	// Payload is the upper-layer payload: everything after the IPv4
	// header (including options) or after the IPv6 base header and any
	// extension headers.
	Payload []byte

	// upperProto6 caches the next-header value reached after walking the
	// IPv6 extension headers Parse6 recognizes (Hop-by-Hop, Routing,
	// Destination Options, Fragment). Unused for IPv4.
	upperProto6 uint8
}

// IsIPv4 reports whether the packet was parsed as IPv4.
func (p *Packet) IsIPv4() bool { return p.Header4 != nil }

// IsIPv6 reports whether the packet was parsed as IPv6.
func (p *Packet) IsIPv6() bool { return p.Header6 != nil }

// addrFrom4Bytes builds a netip.Addr from a 4-byte slice.
func addrFrom4Bytes(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte(b))
}

// addrFrom16Bytes builds a netip.Addr from a 16-byte slice.
func addrFrom16Bytes(b []byte) netip.Addr {
	return netip.AddrFrom16([16]byte(b))
}

// UpperProtocol returns the upper-layer protocol number: IPv4Header.Protocol
// or, for IPv6, the next header following the extension headers Parse6
// walked (Hop-by-Hop, Routing, Destination Options and Fragment).
func (p *Packet) UpperProtocol() uint8 {
	if p.Header4 != nil {
		return p.Header4.Protocol
	}
	return p.upperProto6
}
