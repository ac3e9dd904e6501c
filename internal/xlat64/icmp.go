package xlat64

import (
	"encoding/binary"
	"net/netip"
)

// -------------------------------------------------------------------------
// ICMP type/code translation tables (RFC 7915 §4.2, §5.2)
// -------------------------------------------------------------------------

const (
	icmp4EchoRequest   = 8
	icmp4EchoReply     = 0
	icmp4DestUnreach   = 3
	icmp4TimeExceeded  = 11
	icmp4ParamProblem  = 12

	icmp6EchoRequest  = 128
	icmp6EchoReply    = 129
	icmp6DestUnreach  = 1
	icmp6PacketTooBig = 2
	icmp6TimeExceeded = 3
	icmp6ParamProblem = 4
)

// icmp4UnreachTo6 maps ICMPv4 Destination Unreachable codes to an ICMPv6
// type/code pair, following RFC 7915 §4.2.
func icmp4UnreachTo6(code uint8) (t, c uint8, ok bool) {
	switch code {
	case 0, 1, 5, 6, 7, 8, 11, 12: // net/host/route/TOS unreachable, unknown net/host
		return icmp6DestUnreach, 0, true
	case 2: // protocol unreachable
		return icmp6ParamProblem, 1, true // pointer set by caller to next-header offset
	case 3: // port unreachable
		return icmp6DestUnreach, 4, true
	case 9, 10, 13: // admin prohibited
		return icmp6DestUnreach, 1, true
	case 4: // fragmentation needed — handled by caller as Packet Too Big
		return icmp6PacketTooBig, 0, true
	default:
		return 0, 0, false
	}
}

// icmp6UnreachTo4 maps ICMPv6 Destination Unreachable codes to an ICMPv4
// type/code pair, following RFC 7915 §5.2.
func icmp6UnreachTo4(code uint8) (t, c uint8, ok bool) {
	switch code {
	case 0, 2, 5, 6: // no route, beyond scope, reject route, failed policy
		return icmp4DestUnreach, 0, true
	case 1: // admin prohibited
		return icmp4DestUnreach, 13, true
	case 3: // address unreachable
		return icmp4DestUnreach, 1, true
	case 4: // port unreachable
		return icmp4DestUnreach, 3, true
	default:
		return 0, 0, false
	}
}

// ptr4to6 maps an IPv4 Parameter Problem pointer (byte offset into the
// IPv4 header) to the corresponding IPv6 byte offset, per RFC 7915 §4.2's
// pointer table. ok is false for IPv4 fields with no IPv6 equivalent
// (Identification, Flags/Fragment Offset, Header Checksum), in which case
// the packet is dropped rather than forwarded with a nonsensical pointer.
func ptr4to6(p uint8) (uint8, bool) {
	switch {
	case p == 0 || p == 1:
		return 0, true // Version/IHL, ToS -> Version/Traffic Class
	case p == 2 || p == 3:
		return 4, true // Total Length -> Payload Length
	case p == 8:
		return 7, true // TTL -> Hop Limit
	case p == 9:
		return 6, true // Protocol -> Next Header
	case p >= 12 && p <= 15:
		return 8 + (p - 12), true // Source Address
	case p >= 16 && p <= 19:
		return 24 + (p - 16), true // Destination Address
	default:
		return 0, false
	}
}

// ptr6to4 maps an IPv6 Parameter Problem pointer to an IPv4 byte offset,
// per RFC 7915 §5.2's pointer table. ok is false for IPv6 fields with no
// IPv4 equivalent (Flow Label).
func ptr6to4(p uint8) (uint8, bool) {
	switch {
	case p == 0:
		return 0, true
	case p == 4 || p == 5:
		return 2, true
	case p == 6:
		return 9, true
	case p == 7:
		return 8, true
	case p >= 8 && p <= 23:
		return 12 + (p - 8), true
	case p >= 24 && p <= 39:
		return 16 + (p - 24), true
	default:
		return 0, false
	}
}

// -------------------------------------------------------------------------
// est_mtu — RFC 1191 path MTU plateau table (tayga nat64.c)
// -------------------------------------------------------------------------

// mtuPlateaus lists the RFC 1191 Appendix B plateau values in descending
// order. estMTU rounds an arbitrary MTU down to the next plateau so that
// Path MTU Discovery converges even when an intermediate link's exact MTU
// is unknown to the sender.
var mtuPlateaus = []int{65535, 32000, 17914, 8166, 4352, 2002, 1492, 1006, 508, 296, 68}

// estMTU rounds mtu down to the next RFC 1191 plateau value at or below
// it, used when synthesizing a Packet Too Big / Fragmentation Needed MTU
// that is itself an estimate rather than an exact measurement.
func estMTU(mtu int) int {
	for _, plateau := range mtuPlateaus {
		if plateau <= mtu {
			return plateau
		}
	}
	return mtuPlateaus[len(mtuPlateaus)-1]
}

// -------------------------------------------------------------------------
// icmp4to6 — translate an ICMPv4 message into ICMPv6 (RFC 7915 §4.2)
// -------------------------------------------------------------------------

func icmp4to6(payload []byte, newSrc, newDst netip.Addr, table *MapTable, mtu6 int) ([]byte, Outcome, error) {
	if len(payload) < ICMPHeaderLen {
		return nil, OutcomeDrop, ErrPacketTooShort
	}

	var h ICMPHeader
	h.Type = payload[0]
	h.Code = payload[1]
	copy(h.Rest[:], payload[4:8])
	rest := payload[8:]

	switch h.Type {
	case icmp4EchoRequest:
		h.Type, h.Code = icmp6EchoRequest, 0
		return marshalICMP6(h, rest, newSrc, newDst)

	case icmp4EchoReply:
		h.Type, h.Code = icmp6EchoReply, 0
		return marshalICMP6(h, rest, newSrc, newDst)

	case icmp4DestUnreach:
		newType, newCode, ok := icmp4UnreachTo6(h.Code)
		if !ok {
			return nil, OutcomeDrop, ErrUntranslatableICMP
		}
		embedded, eOutcome, err := translateEmbedded4to6(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		h.Type, h.Code = newType, newCode
		if h.Code == 0 && newType == icmp6PacketTooBig {
			h.SetMTU(uint16(estMTU(mtu6)))
		} else if newType == icmp6ParamProblem {
			h.SetPointer(6) // Next Header offset: only code-2 (protocol unreachable) reaches here
		} else {
			h.Rest = [4]byte{}
		}
		return marshalICMP6(h, embedded, newSrc, newDst)

	case icmp4TimeExceeded:
		embedded, eOutcome, err := translateEmbedded4to6(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		h.Type, h.Rest = icmp6TimeExceeded, [4]byte{}
		return marshalICMP6(h, embedded, newSrc, newDst)

	case icmp4ParamProblem:
		embedded, eOutcome, err := translateEmbedded4to6(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		newPtr, ok := ptr4to6(h.RestAsPointer())
		if !ok {
			return nil, OutcomeDrop, ErrUntranslatableICMP
		}
		h.Type, h.Code = icmp6ParamProblem, 0
		h.SetPointer(newPtr)
		return marshalICMP6(h, embedded, newSrc, newDst)

	default:
		return nil, OutcomeDrop, ErrUntranslatableICMP
	}
}

// marshalICMP6 assembles an ICMPv6 message (header + body) and computes
// its checksum, which RFC 4443 §2.3 requires to cover the IPv6
// pseudo-header.
func marshalICMP6(h ICMPHeader, body []byte, src, dst netip.Addr) ([]byte, Outcome, error) {
	out := make([]byte, ICMPHeaderLen+len(body))
	h.Checksum = 0
	h.Marshal(out[:ICMPHeaderLen])
	copy(out[ICMPHeaderLen:], body)

	pseudo := IP6PseudoSum(src, dst, protoICMPv6, uint32(len(out)))
	cksum := ^OnesAdd(pseudo, partialSum16(out))
	binary.BigEndian.PutUint16(out[2:4], cksum)

	return out, OutcomeForward, nil
}

// -------------------------------------------------------------------------
// icmp6to4 — translate an ICMPv6 message into ICMPv4 (RFC 7915 §5.2)
// -------------------------------------------------------------------------

func icmp6to4(payload []byte, table *MapTable, mtu4 int) ([]byte, Outcome, error) {
	if len(payload) < ICMPHeaderLen {
		return nil, OutcomeDrop, ErrPacketTooShort
	}

	var h ICMPHeader
	h.Type = payload[0]
	h.Code = payload[1]
	copy(h.Rest[:], payload[4:8])
	rest := payload[8:]

	switch h.Type {
	case icmp6EchoRequest:
		h.Type, h.Code = icmp4EchoRequest, 0
		return marshalICMP4(h, rest)

	case icmp6EchoReply:
		h.Type, h.Code = icmp4EchoReply, 0
		return marshalICMP4(h, rest)

	case icmp6DestUnreach:
		newType, newCode, ok := icmp6UnreachTo4(h.Code)
		if !ok {
			return nil, OutcomeDrop, ErrUntranslatableICMP
		}
		embedded, eOutcome, err := translateEmbedded6to4(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		h.Type, h.Code, h.Rest = newType, newCode, [4]byte{}
		return marshalICMP4(h, embedded)

	case icmp6PacketTooBig:
		embedded, eOutcome, err := translateEmbedded6to4(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		h.Type, h.Code = icmp4DestUnreach, 4
		h.SetMTU(uint16(estMTU(mtu4)))
		return marshalICMP4(h, embedded)

	case icmp6TimeExceeded:
		embedded, eOutcome, err := translateEmbedded6to4(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		h.Type, h.Rest = icmp4TimeExceeded, [4]byte{}
		return marshalICMP4(h, embedded)

	case icmp6ParamProblem:
		if h.Code == 1 { // unrecognized Next Header -> protocol unreachable
			embedded, eOutcome, err := translateEmbedded6to4(rest, table)
			if err != nil {
				return nil, eOutcome, err
			}
			h.Type, h.Code, h.Rest = icmp4DestUnreach, 2, [4]byte{}
			return marshalICMP4(h, embedded)
		}
		if h.Code != 0 {
			return nil, OutcomeDrop, ErrUntranslatableICMP
		}
		embedded, eOutcome, err := translateEmbedded6to4(rest, table)
		if err != nil {
			return nil, eOutcome, err
		}
		newPtr, ok := ptr6to4(h.RestAsPointer())
		if !ok {
			return nil, OutcomeDrop, ErrUntranslatableICMP
		}
		h.Type, h.Code = icmp4ParamProblem, 0
		h.SetPointer(newPtr)
		return marshalICMP4(h, embedded)

	default:
		return nil, OutcomeDrop, ErrUntranslatableICMP
	}
}

// marshalICMP4 assembles an ICMPv4 message. ICMPv4 checksums (RFC 792)
// cover only the ICMP message itself, with no pseudo-header.
func marshalICMP4(h ICMPHeader, body []byte) ([]byte, Outcome, error) {
	out := make([]byte, ICMPHeaderLen+len(body))
	h.Checksum = 0
	h.Marshal(out[:ICMPHeaderLen])
	copy(out[ICMPHeaderLen:], body)

	cksum := Sum16(out)
	binary.BigEndian.PutUint16(out[2:4], cksum)

	return out, OutcomeForward, nil
}
