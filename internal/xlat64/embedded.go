package xlat64

import "encoding/binary"

// -------------------------------------------------------------------------
// Embedded original-packet translation inside ICMP errors (RFC 7915 §4.2/§5.2)
// -------------------------------------------------------------------------

// translateEmbedded4to6 translates the IPv4 packet embedded in an ICMPv4
// error message into its IPv6 equivalent for re-embedding in the
// translated ICMPv6 error. The embedded copy is frequently truncated to
// only the header plus the first 8 bytes of the original payload (RFC 792
// "internet header plus the first 64 bits of the original datagram's
// data"); this parser tolerates that truncation where Parse4 would not,
// since it never checks the header's own Total Length field against the
// buffer.
func translateEmbedded4to6(buf []byte, table *MapTable) ([]byte, Outcome, error) {
	if len(buf) < IPv4MinHeaderLen {
		return nil, OutcomeDrop, ErrPacketTooShort
	}

	ihl := buf[0] & 0x0f
	hdrLen := int(ihl) * 4
	if hdrLen < IPv4MinHeaderLen || hdrLen > len(buf) {
		return nil, OutcomeDrop, ErrHeaderLengthInvalid
	}

	src := addrFrom4Bytes(buf[12:16])
	dst := addrFrom4Bytes(buf[16:20])

	newSrc, err := table.Translate4to6(src)
	if err != nil {
		return nil, OutcomeDrop, err
	}
	newDst, err := table.Translate4to6(dst)
	if err != nil {
		return nil, OutcomeDrop, err
	}

	protocol := buf[9]
	nextHeader := protocol
	if protocol == protoICMPv4 {
		nextHeader = protoICMPv6
	}

	flagsFrag := binary.BigEndian.Uint16(buf[6:8])
	payload := buf[hdrLen:]

	if protocol == protoUDP && len(payload) >= udpChecksumOffset+2 {
		if fixed, err := fixUpperChecksum(payload, udpChecksumOffset, newSrc, newDst, protoUDP); err == nil {
			payload = fixed
		}
	}

	h6 := &IPv6Header{
		TrafficClass: buf[1],
		HopLimit:     buf[8],
		Src:          newSrc,
		Dst:          newDst,
	}

	var frag *FragmentHeader
	if flagsFrag&0x2000 != 0 || flagsFrag&0x1fff != 0 {
		frag = &FragmentHeader{
			NextHeader:     nextHeader,
			FragmentOffset: flagsFrag & 0x1fff,
			MoreFragments:  flagsFrag&0x2000 != 0,
			Identification: uint32(binary.BigEndian.Uint16(buf[4:6])),
		}
		h6.NextHeader = protoIPv6Frag
	} else {
		h6.NextHeader = nextHeader
	}

	size := len(payload)
	if frag != nil {
		size += IPv6FragHeaderLen
	}
	h6.PayloadLength = uint16(size)

	out := make([]byte, IPv6HeaderLen+size)
	h6.Marshal(out[:IPv6HeaderLen])
	cursor := IPv6HeaderLen
	if frag != nil {
		frag.Marshal(out[cursor : cursor+IPv6FragHeaderLen])
		cursor += IPv6FragHeaderLen
	}
	copy(out[cursor:], payload)

	return out, OutcomeForward, nil
}

// translateEmbedded6to4 translates the IPv6 packet embedded in an ICMPv6
// error message into its IPv4 equivalent. It understands at most one
// Fragment extension header; any other extension header on an embedded
// packet is left untranslated in place (rare in practice, since routers
// generating ICMPv6 errors see the outermost headers first).
func translateEmbedded6to4(buf []byte, table *MapTable) ([]byte, Outcome, error) {
	if len(buf) < IPv6HeaderLen {
		return nil, OutcomeDrop, ErrPacketTooShort
	}

	src := addrFrom16Bytes(buf[8:24])
	dst := addrFrom16Bytes(buf[24:40])

	newSrc, err := table.Translate6to4(src)
	if err != nil {
		return nil, OutcomeDrop, err
	}
	newDst, err := table.Translate6to4(dst)
	if err != nil {
		return nil, OutcomeDrop, err
	}

	nextHeader := buf[6]
	hopLimit := buf[7]
	cursor := IPv6HeaderLen

	var (
		fragID     uint32
		fragOffset uint16
		moreFrag   bool
		fragmented bool
	)

	if nextHeader == extFragment && cursor+IPv6FragHeaderLen <= len(buf) {
		offsetFlags := binary.BigEndian.Uint16(buf[cursor+2 : cursor+4])
		fragOffset = offsetFlags >> 3
		moreFrag = offsetFlags&0x1 != 0
		fragID = binary.BigEndian.Uint32(buf[cursor+4 : cursor+8])
		nextHeader = buf[cursor]
		cursor += IPv6FragHeaderLen
		fragmented = true
	}

	payload := buf[cursor:]
	protocol := nextHeader
	if protocol == protoICMPv6 {
		protocol = protoICMPv4
	}

	if protocol == protoUDP && len(payload) >= udpChecksumOffset+2 {
		if fixed, err := fixUpperChecksum(payload, udpChecksumOffset, newSrc, newDst, protoUDP); err == nil {
			payload = fixed
		}
	}

	h4 := &IPv4Header{
		IHL:      IPv4MinHeaderLen / 4,
		TTL:      hopLimit,
		Protocol: protocol,
		Src:      newSrc,
		Dst:      newDst,
	}

	if fragmented {
		h4.Identification = uint16(fragID)
		h4.MoreFragments = moreFrag
		h4.FragmentOffset = fragOffset
	} else {
		h4.DontFragment = true
	}

	totalLen := IPv4MinHeaderLen + len(payload)
	h4.TotalLength = uint16(totalLen)

	out := make([]byte, totalLen)
	h4.Marshal(out)
	copy(out[IPv4MinHeaderLen:], payload)

	hdrBuf := out[:IPv4MinHeaderLen]
	binary.BigEndian.PutUint16(hdrBuf[10:12], 0)
	binary.BigEndian.PutUint16(hdrBuf[10:12], Sum16(hdrBuf))

	return out, OutcomeForward, nil
}
