package xlat64

import "net/netip"

// -------------------------------------------------------------------------
// HostStack — §4.10
// -------------------------------------------------------------------------
//
// HostStack handles the two address families' traffic addressed to the
// translator itself: Echo Requests are answered directly rather than
// translated and forwarded, and ICMP errors generated on the translator's
// own behalf (as opposed to errors translated from the opposite family)
// are emitted from here. Per §4.10, an ICMP error is never generated in
// response to a non-echo ICMP message: answering an error with an error
// risks an unbounded loop between two translators, or between a
// translator and a misbehaving host.

const (
	// hostErrMaxLen4 caps an ICMPv4 error emitted by the host stack at
	// 576 bytes total (§4.10), the guaranteed-no-fragmentation minimum
	// of RFC 791 §3.2.
	hostErrMaxLen4 = 576
	// hostErrMaxLen6 caps an ICMPv6 error at 1280 bytes total (§4.10),
	// the IPv6 minimum MTU (RFC 8200 §5).
	hostErrMaxLen6 = 1280
)

// HostStack answers traffic addressed to the translator's own addresses.
type HostStack struct {
	local4 netip.Addr
	local6 netip.Addr
}

// NewHostStack returns a HostStack that recognizes local4 and local6 as
// the translator's own addresses.
func NewHostStack(local4, local6 netip.Addr) *HostStack {
	return &HostStack{local4: local4, local6: local6}
}

// IsLocal4 reports whether addr is the translator's own IPv4 address.
func (hs *HostStack) IsLocal4(addr netip.Addr) bool { return addr == hs.local4 }

// IsLocal6 reports whether addr is the translator's own IPv6 address.
func (hs *HostStack) IsLocal6(addr netip.Addr) bool { return addr == hs.local6 }

// HandleEcho4 answers an ICMPv4 Echo Request addressed to the
// translator, preserving the identifier, sequence, data, and (per
// §4.10) the original packet's TOS byte. payload is the ICMP message
// (type/code/checksum/rest/data), as produced by Parse4.
func (hs *HostStack) HandleEcho4(pkt *Packet) ([]byte, Outcome, error) {
	h4 := pkt.Header4
	if h4.Protocol != protoICMPv4 || len(pkt.Payload) < ICMPHeaderLen {
		return nil, OutcomeDrop, ErrUntranslatableICMP
	}
	if pkt.Payload[0] != icmp4EchoRequest {
		// §4.10: answer echo only; every other message addressed to the
		// host is silently dropped rather than answered or errored.
		return nil, OutcomeDrop, nil
	}

	var h ICMPHeader
	h.Type, h.Code = icmp4EchoReply, 0
	copy(h.Rest[:], pkt.Payload[4:8])
	body := pkt.Payload[ICMPHeaderLen:]

	reply, outcome, err := marshalICMP4(h, body)
	if err != nil {
		return nil, outcome, err
	}

	out4 := &IPv4Header{
		IHL:      IPv4MinHeaderLen / 4,
		DSCP:     h4.DSCP,
		ECN:      h4.ECN,
		TTL:      64,
		Protocol: protoICMPv4,
		Src:      hs.local4,
		Dst:      h4.Src,
	}
	return marshalIPv4(out4, reply), OutcomeForward, nil
}

// HandleEcho6 is HandleEcho4's IPv6 counterpart (RFC 4443 §4.1/4.2).
func (hs *HostStack) HandleEcho6(pkt *Packet) ([]byte, Outcome, error) {
	h6 := pkt.Header6
	if pkt.UpperProtocol() != protoICMPv6 || len(pkt.Payload) < ICMPHeaderLen {
		return nil, OutcomeDrop, ErrUntranslatableICMP
	}
	if pkt.Payload[0] != icmp6EchoRequest {
		return nil, OutcomeDrop, nil
	}

	var h ICMPHeader
	h.Type, h.Code = icmp6EchoReply, 0
	copy(h.Rest[:], pkt.Payload[4:8])
	body := pkt.Payload[ICMPHeaderLen:]

	reply, outcome, err := marshalICMP6(h, body, hs.local6, h6.Src)
	if err != nil {
		return nil, outcome, err
	}

	out6 := &IPv6Header{
		TrafficClass: h6.TrafficClass,
		HopLimit:     64,
		NextHeader:   protoICMPv6,
		Src:          hs.local6,
		Dst:          h6.Src,
	}
	return marshalIPv6(out6, reply), OutcomeForward, nil
}

// EmitICMP4Error builds an ICMPv4 error message from the translator's own
// address back to dst, embedding as much of origPacket as fits within
// the 576-byte cap (§4.10). It is the translator speaking as a host
// (e.g. "I could not translate your packet"), distinct from IcmpXlate's
// translation of an error that arrived from the opposite family.
func (hs *HostStack) EmitICMP4Error(dst netip.Addr, icmpType, code uint8, rest [4]byte, origPacket []byte) ([]byte, Outcome, error) {
	h := ICMPHeader{Type: icmpType, Code: code, Rest: rest}

	budget := hostErrMaxLen4 - IPv4MinHeaderLen - ICMPHeaderLen
	embedded := origPacket
	if len(embedded) > budget {
		embedded = embedded[:budget]
	}

	body, outcome, err := marshalICMP4(h, embedded)
	if err != nil {
		return nil, outcome, err
	}

	out4 := &IPv4Header{
		IHL:      IPv4MinHeaderLen / 4,
		TTL:      64,
		Protocol: protoICMPv4,
		Src:      hs.local4,
		Dst:      dst,
	}
	return marshalIPv4(out4, body), OutcomeForward, nil
}

// EmitICMP6Error is EmitICMP4Error's IPv6 counterpart, capped at 1280
// bytes total (§4.10).
func (hs *HostStack) EmitICMP6Error(dst netip.Addr, icmpType, code uint8, rest [4]byte, origPacket []byte) ([]byte, Outcome, error) {
	h := ICMPHeader{Type: icmpType, Code: code, Rest: rest}

	budget := hostErrMaxLen6 - IPv6HeaderLen - ICMPHeaderLen
	embedded := origPacket
	if len(embedded) > budget {
		embedded = embedded[:budget]
	}

	body, outcome, err := marshalICMP6(h, embedded, hs.local6, dst)
	if err != nil {
		return nil, outcome, err
	}

	out6 := &IPv6Header{
		HopLimit:   64,
		NextHeader: protoICMPv6,
		Src:        hs.local6,
		Dst:        dst,
	}
	return marshalIPv6(out6, body), OutcomeForward, nil
}

// marshalIPv4 assembles a full IPv4 datagram from a header and payload,
// filling in TotalLength and the header checksum.
func marshalIPv4(h *IPv4Header, payload []byte) []byte {
	h.TotalLength = uint16(IPv4MinHeaderLen + len(payload))
	out := make([]byte, h.TotalLength)
	h.Marshal(out)
	copy(out[IPv4MinHeaderLen:], payload)

	hdrBuf := out[:IPv4MinHeaderLen]
	binary16Clear(hdrBuf)
	cksum := Sum16(hdrBuf)
	binary16Set(hdrBuf, cksum)
	return out
}

// marshalIPv6 assembles a full IPv6 datagram from a header and payload,
// filling in PayloadLength.
func marshalIPv6(h *IPv6Header, payload []byte) []byte {
	h.PayloadLength = uint16(len(payload))
	out := make([]byte, IPv6HeaderLen+len(payload))
	h.Marshal(out[:IPv6HeaderLen])
	copy(out[IPv6HeaderLen:], payload)
	return out
}

// binary16Clear and binary16Set isolate the two-line checksum dance
// (zero, compute, write back) that IPv4Header.Marshal callers repeat
// throughout this package.
func binary16Clear(hdrBuf []byte) { hdrBuf[10], hdrBuf[11] = 0, 0 }
func binary16Set(hdrBuf []byte, v uint16) {
	hdrBuf[10] = byte(v >> 8)
	hdrBuf[11] = byte(v)
}
