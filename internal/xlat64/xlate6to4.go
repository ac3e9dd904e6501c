package xlat64

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Xlate6to4Options carries the per-translator settings that affect the
// 6->4 direction.
type Xlate6to4Options struct {
	AllowIdentGen bool       // synthesize an IPv4 Identification when none exists (no IPv6 fragment header present)
	MTU           int        // outgoing IPv4 path MTU
	LocalAddr4    netip.Addr // substituted for an unmapped source address, see Xlate6to4
}

// Xlate6to4 translates an IPv6 packet into an IPv4 packet following
// RFC 7915 §5.1. Like Xlate4to6, both the source and destination
// addresses are mapped through the same direction function regardless of
// their role in the packet.
func Xlate6to4(pkt *Packet, table *MapTable, ident *IdentGenerator, opts Xlate6to4Options) ([]byte, Outcome, error) {
	h6 := pkt.Header6

	if h6.HopLimit <= 1 {
		return nil, OutcomeReject, ErrHopLimitExceeded
	}

	newSrc, err := table.Translate6to4(h6.Src)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoMapping), errors.Is(err, ErrNoDynamicPool):
			// Unmapped source (§7 "Unmapped address" is REJECT-class, not
			// DROP-class, spec.md §4.7 step 1): substitute local_addr4 and
			// keep going, so a re-injected hairpin or an ICMP error can
			// still reach the v4 origin of this datagram.
			newSrc = opts.LocalAddr4
		default:
			return nil, OutcomeDrop, fmt.Errorf("translate source %s: %w", h6.Src, err)
		}
	}
	newDst, dstType, err := table.Translate6to4Typed(h6.Dst)
	if err != nil {
		outcome := OutcomeDrop
		if errors.Is(err, ErrNoDynamicPool) {
			outcome = OutcomeReject
		}
		return nil, outcome, fmt.Errorf("translate destination %s: %w", h6.Dst, err)
	}

	nextProto, payload, outcome, err := translatePayload6to4(pkt, newSrc, newDst, table, opts.MTU)
	if err != nil {
		return nil, outcome, err
	}

	h4 := &IPv4Header{
		IHL:      IPv4MinHeaderLen / 4,
		DSCP:     h6.TrafficClass >> 2,
		ECN:      h6.TrafficClass & 0x03,
		TTL:      h6.HopLimit - 1,
		Protocol: nextProto,
		Src:      newSrc,
		Dst:      newDst,
	}

	if pkt.Frag6 != nil {
		h4.Identification = uint16(pkt.Frag6.Identification)
		h4.MoreFragments = pkt.Frag6.MoreFragments
		h4.FragmentOffset = pkt.Frag6.FragmentOffset
	} else if opts.AllowIdentGen && ident != nil {
		h4.Identification = ident.Next()
	} else {
		h4.DontFragment = true
	}

	totalLen := IPv4MinHeaderLen + len(payload)
	if totalLen > 0xffff {
		return nil, OutcomeDrop, fmt.Errorf("translated payload %d bytes exceeds IPv4 total length field", totalLen)
	}
	h4.TotalLength = uint16(totalLen)

	out := make([]byte, totalLen)
	h4.Marshal(out)
	copy(out[IPv4MinHeaderLen:], payload)

	hdrBuf := out[:IPv4MinHeaderLen]
	binary.BigEndian.PutUint16(hdrBuf[10:12], 0)
	checksum := Sum16(hdrBuf)
	binary.BigEndian.PutUint16(hdrBuf[10:12], checksum)

	if hairpinned, ok, hErr := Hairpin(out, table, dstType); hErr == nil && ok {
		return hairpinned, OutcomeHairpin, nil
	}

	return out, OutcomeForward, nil
}

// translatePayload6to4 dispatches to the correct upper-layer handler and
// returns the IPv4 protocol number and the (possibly checksum-fixed-up)
// payload bytes.
func translatePayload6to4(pkt *Packet, newSrc, newDst netip.Addr, table *MapTable, mtu4 int) (uint8, []byte, Outcome, error) {
	proto := pkt.UpperProtocol()

	switch proto {
	case protoICMPv6:
		out, outcome, err := icmp6to4(pkt.Payload, table, mtu4)
		return protoICMPv4, out, outcome, err

	case protoTCP:
		out, err := fixUpperChecksum(pkt.Payload, tcpChecksumOffset, newSrc, newDst, protoTCP)
		if err != nil {
			return 0, nil, OutcomeDrop, err
		}
		return protoTCP, out, OutcomeForward, nil

	case protoUDP:
		out, err := fixUpperChecksum(pkt.Payload, udpChecksumOffset, newSrc, newDst, protoUDP)
		if err != nil {
			return 0, nil, OutcomeDrop, err
		}
		return protoUDP, out, OutcomeForward, nil

	default:
		return proto, pkt.Payload, OutcomeForward, nil
	}
}
