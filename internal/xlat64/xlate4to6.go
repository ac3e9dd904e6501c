package xlat64

import (
	"errors"
	"fmt"
	"net/netip"
)

// UDPChecksumMode controls how a zero UDP checksum on the IPv4 side (legal
// under RFC 768) is handled when translating to IPv6, where RFC 8200 §8.1
// forbids a zero UDP checksum.
type UDPChecksumMode int

const (
	// UDPChecksumCalc computes a real checksum whenever the IPv4 side
	// carried none.
	UDPChecksumCalc UDPChecksumMode = iota
	// UDPChecksumDrop drops packets whose IPv4 UDP checksum was zero,
	// since forwarding them to IPv6 unchanged would violate RFC 8200.
	UDPChecksumDrop
	// UDPChecksumForward forwards the zero checksum unchanged, accepting
	// the protocol violation. Provided for compatibility with tayga's
	// UDP_CKSUM_FWD, not recommended for production use.
	UDPChecksumForward
)

// Xlate4to6Options carries the per-translator settings that affect the
// 4->6 direction (spec.md §9 "global mutable state" design note: these
// are read-only after startup, so they are passed by value rather than
// through a shared mutable config object).
type Xlate4to6Options struct {
	UDPChecksumMode UDPChecksumMode
	MTU             int // outgoing IPv6 path MTU, used for the MTU of a translated Packet Too Big
}

// Xlate4to6 translates an IPv4 packet into an IPv6 packet following
// RFC 7915 §4.1. It returns the marshaled IPv6 packet bytes, an Outcome,
// and an error explaining a non-forward Outcome.
//
// Both the source and destination addresses are mapped through table
// using the same direction function: tayga's map_ip4_to_ip6 is applied
// uniformly to whichever address appears in the field, whether the field
// is functioning as a traffic source or destination.
func Xlate4to6(pkt *Packet, table *MapTable, opts Xlate4to6Options) ([]byte, Outcome, error) {
	h4 := pkt.Header4

	if h4.TTL <= 1 {
		return nil, OutcomeReject, ErrHopLimitExceeded
	}

	newSrc, err := table.Translate4to6(h4.Src)
	if err != nil {
		outcome := OutcomeDrop
		if errors.Is(err, ErrNoDynamicPool) {
			outcome = OutcomeReject
		}
		return nil, outcome, fmt.Errorf("translate source %s: %w", h4.Src, err)
	}
	newDst, err := table.Translate4to6(h4.Dst)
	if err != nil {
		outcome := OutcomeDrop
		if errors.Is(err, ErrNoDynamicPool) {
			outcome = OutcomeReject
		}
		return nil, outcome, fmt.Errorf("translate destination %s: %w", h4.Dst, err)
	}

	nextHeader, payload, outcome, err := translatePayload4to6(pkt, newSrc, newDst, table, opts)
	if err != nil {
		return nil, outcome, err
	}

	h6 := &IPv6Header{
		TrafficClass: h4.DSCP<<2 | h4.ECN,
		HopLimit:     h4.TTL - 1,
		Src:          newSrc,
		Dst:          newDst,
	}

	fragmented := h4.MoreFragments || h4.FragmentOffset != 0

	var frag *FragmentHeader
	if fragmented {
		frag = &FragmentHeader{
			NextHeader:     nextHeader,
			FragmentOffset: h4.FragmentOffset,
			MoreFragments:  h4.MoreFragments,
			Identification: uint32(h4.Identification),
		}
		h6.NextHeader = protoIPv6Frag
	} else {
		h6.NextHeader = nextHeader
	}

	totalLen := len(payload)
	if frag != nil {
		totalLen += IPv6FragHeaderLen
	}
	if totalLen > 0xffff {
		return nil, OutcomeDrop, fmt.Errorf("translated payload %d bytes exceeds IPv6 payload length field", totalLen)
	}
	h6.PayloadLength = uint16(totalLen)

	out := make([]byte, IPv6HeaderLen+totalLen)
	h6.Marshal(out[:IPv6HeaderLen])
	cursor := IPv6HeaderLen
	if frag != nil {
		frag.Marshal(out[cursor : cursor+IPv6FragHeaderLen])
		cursor += IPv6FragHeaderLen
	}
	copy(out[cursor:], payload)

	return out, OutcomeForward, nil
}

// translatePayload4to6 dispatches to the correct upper-layer handler and
// returns the IPv6 next-header value and the (possibly checksum-fixed-up)
// payload bytes.
func translatePayload4to6(pkt *Packet, newSrc, newDst netip.Addr, table *MapTable, opts Xlate4to6Options) (uint8, []byte, Outcome, error) {
	h4 := pkt.Header4

	switch h4.Protocol {
	case protoICMPv4:
		out, outcome, err := icmp4to6(pkt.Payload, newSrc, newDst, table, opts.MTU)
		return protoICMPv6, out, outcome, err

	case protoTCP:
		out, err := fixUpperChecksum(pkt.Payload, tcpChecksumOffset, newSrc, newDst, protoTCP)
		if err != nil {
			return 0, nil, OutcomeDrop, err
		}
		return protoTCP, out, OutcomeForward, nil

	case protoUDP:
		out, outcome, err := fixUDPChecksum4to6(pkt.Payload, newSrc, newDst, opts.UDPChecksumMode)
		return protoUDP, out, outcome, err

	default:
		// Unknown upper-layer protocol: no checksum to fix (it does not
		// embed addresses), forward the payload unchanged.
		return h4.Protocol, pkt.Payload, OutcomeForward, nil
	}
}
