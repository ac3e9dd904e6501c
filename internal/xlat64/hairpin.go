package xlat64

import (
	"fmt"
	"net/netip"
)

// -------------------------------------------------------------------------
// Hairpin — RFC 7757 §4.2
// -------------------------------------------------------------------------
//
// A hairpin condition arises when a 6->4 translation produces an IPv4
// destination that the IPv4 network cannot actually deliver to, because
// that address is itself the v4 side of an EAM: the real destination is
// another client reachable only through this translator. Left alone, the
// packet would be forwarded onto the v4 side and silently vanish (or
// bounce off whatever actually holds that address on the real IPv4
// network). Instead the packet is turned back around: a new IPv6 packet
// is synthesized and re-injected onto the v6 side, addressed from the
// canonical RFC 6052 encoding of the translated source to the EAM's v6
// form of the translated destination.
//
// tayga's xlate_6to4_hairpin leaves the embedded packet's checksum fixup
// as a TODO; this implementation completes it by running the same
// upper-layer checksum recomputation used by the ordinary 4->6 path
// (translatePayload4to6), since the hairpin packet is, from that point
// on, an ordinary 4->6 translation of a packet that never actually
// touched the v4 wire.

// detectHairpin reports whether a 6->4 translation that produced dest4
// from an IPv6 destination resolved via dstType should hairpin, per
// §4.9: dstType must be MapRFC6052 (an EAM destination is already
// reachable directly and never hairpins) and dest4 must itself be
// covered by a Static or Dynamic entry on the IPv4 side.
func detectHairpin(table *MapTable, dest4 netip.Addr, dstType MapType) bool {
	if dstType != MapRFC6052 {
		return false
	}
	fwdType, ok := table.LookupType4(dest4)
	return ok && fwdType != MapRFC6052
}

// Hairpin takes the already-built IPv4 packet produced by Xlate6to4 (the
// one that must NOT be forwarded) and, if the hairpin condition applies,
// returns a freshly synthesized IPv6 packet to re-inject on the v6 side
// instead. The returned bool is false when no hairpin condition applies,
// in which case the caller should forward the original IPv4 packet as
// usual. Per §4.9, the re-injected packet is not itself checked for a
// further hairpin condition: it takes the ordinary first pass through
// translation when it re-enters the pipeline.
func Hairpin(v4Packet []byte, table *MapTable, dstType MapType) ([]byte, bool, error) {
	pkt, err := Parse4(v4Packet)
	if err != nil {
		return nil, false, fmt.Errorf("hairpin: reparse translated packet: %w", err)
	}
	h4 := pkt.Header4

	if !detectHairpin(table, h4.Dst, dstType) {
		return nil, false, nil
	}

	newDst6, err := table.Translate4to6(h4.Dst)
	if err != nil {
		return nil, false, fmt.Errorf("hairpin: resolve EAM destination: %w", err)
	}
	newSrc6, err := table.EncodeRFC6052(h4.Src)
	if err != nil {
		return nil, false, fmt.Errorf("hairpin: encode RFC 6052 source: %w", err)
	}

	nextHeader, payload, outcome, err := translatePayload4to6(pkt, newSrc6, newDst6, table, Xlate4to6Options{
		UDPChecksumMode: UDPChecksumCalc,
		MTU:             0xffff, // the packet already fits an IPv4 datagram; never re-fragment a hairpin
	})
	if err != nil || outcome != OutcomeForward {
		return nil, false, fmt.Errorf("hairpin: translate payload: %w", err)
	}

	h6 := &IPv6Header{
		TrafficClass: h4.DSCP<<2 | h4.ECN,
		HopLimit:     h4.TTL,
		NextHeader:   nextHeader,
		Src:          newSrc6,
		Dst:          newDst6,
	}

	var frag *FragmentHeader
	fragmented := h4.MoreFragments || h4.FragmentOffset != 0
	if fragmented {
		frag = &FragmentHeader{
			NextHeader:     nextHeader,
			FragmentOffset: h4.FragmentOffset,
			MoreFragments:  h4.MoreFragments,
			Identification: uint32(h4.Identification),
		}
		h6.NextHeader = protoIPv6Frag
	}

	totalLen := len(payload)
	if frag != nil {
		totalLen += IPv6FragHeaderLen
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

	return out, true, nil
}
