package xlat64

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// extension header numbers this translator understands well enough to
// walk past (RFC 8200 §4.1).
const (
	extHopByHop    = 0
	extRouting     = 43
	extFragment    = 44
	extDestOptions = 60
)

// Parse6 parses an IPv6 packet from buf into a Packet, walking any
// Hop-by-Hop, Routing, Destination Options, and Fragment extension
// headers to reach the upper-layer payload. Extension headers this
// translator does not recognize are left unwalked: the packet is still
// parsed, but UpperProtocol will report the extension header's own
// number rather than the true upper-layer protocol, and callers should
// treat that as untranslatable.
func Parse6(buf []byte) (*Packet, error) {
	if len(buf) < IPv6HeaderLen {
		return nil, fmt.Errorf("ipv6 header: %w", ErrPacketTooShort)
	}

	word := binary.BigEndian.Uint32(buf[0:4])
	version := uint8(word >> 28)
	if version != 6 {
		return nil, fmt.Errorf("ipv6 version %d: %w", version, ErrUnsupportedVersion)
	}

	payloadLen := binary.BigEndian.Uint16(buf[4:6])
	if IPv6HeaderLen+int(payloadLen) > len(buf) {
		return nil, fmt.Errorf("ipv6 payload length %d exceeds buffer: %w",
			payloadLen, ErrHeaderLengthInvalid)
	}

	h := &IPv6Header{
		TrafficClass:  uint8(word >> 20),
		FlowLabel:     word & 0xfffff,
		PayloadLength: payloadLen,
		NextHeader:    buf[6],
		HopLimit:      buf[7],
		Src:           netip.AddrFrom16([16]byte(buf[8:24])),
		Dst:           netip.AddrFrom16([16]byte(buf[24:40])),
	}

	end := IPv6HeaderLen + int(payloadLen)
	cursor := IPv6HeaderLen
	nextHdr := h.NextHeader

	var frag *FragmentHeader

	for {
		switch nextHdr {
		case extFragment:
			if cursor+IPv6FragHeaderLen > end {
				return nil, fmt.Errorf("ipv6 fragment header: %w", ErrPacketTooShort)
			}
			offsetFlags := binary.BigEndian.Uint16(buf[cursor+2 : cursor+4])
			frag = &FragmentHeader{
				NextHeader:     buf[cursor],
				FragmentOffset: offsetFlags >> 3,
				MoreFragments:  offsetFlags&0x1 != 0,
				Identification: binary.BigEndian.Uint32(buf[cursor+4 : cursor+8]),
			}
			nextHdr = frag.NextHeader
			cursor += IPv6FragHeaderLen
			continue

		case extHopByHop, extRouting, extDestOptions:
			if cursor+2 > end {
				return nil, fmt.Errorf("ipv6 extension header: %w", ErrPacketTooShort)
			}
			extLen := (int(buf[cursor+1]) + 1) * 8
			if cursor+extLen > end {
				return nil, fmt.Errorf("ipv6 extension header length: %w", ErrHeaderLengthInvalid)
			}
			nextHdr = buf[cursor]
			cursor += extLen
			continue
		}
		break
	}

	return &Packet{
		Header6:     h,
		Frag6:       frag,
		Payload:     buf[cursor:end],
		upperProto6: nextHdr,
	}, nil
}
