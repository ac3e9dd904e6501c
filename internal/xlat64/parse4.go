package xlat64

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// -------------------------------------------------------------------------
// Parse4 — IPv4 header parsing (RFC 791 §3.1)
// -------------------------------------------------------------------------

// Parse4 parses an IPv4 packet from buf into a Packet. It validates the
// version nibble, the header length, and that the total length field does
// not exceed the buffer. It does not validate the header checksum: the
// translator recomputes checksums for every packet it forwards, so a
// corrupt checksum on an otherwise well-formed packet is not itself a
// reason to drop.
func Parse4(buf []byte) (*Packet, error) {
	if len(buf) < IPv4MinHeaderLen {
		return nil, fmt.Errorf("ipv4 header: %w", ErrPacketTooShort)
	}

	version := buf[0] >> 4
	if version != 4 {
		return nil, fmt.Errorf("ipv4 version %d: %w", version, ErrUnsupportedVersion)
	}

	ihl := buf[0] & 0x0f
	hdrLen := int(ihl) * 4
	if hdrLen < IPv4MinHeaderLen || hdrLen > len(buf) {
		return nil, fmt.Errorf("ipv4 IHL %d: %w", ihl, ErrHeaderLengthInvalid)
	}

	totalLen := binary.BigEndian.Uint16(buf[2:4])
	if int(totalLen) > len(buf) {
		return nil, fmt.Errorf("ipv4 total length %d exceeds buffer %d: %w",
			totalLen, len(buf), ErrHeaderLengthInvalid)
	}

	flagsFrag := binary.BigEndian.Uint16(buf[6:8])

	h := &IPv4Header{
		IHL:            ihl,
		DSCP:           buf[1] >> 2,
		ECN:            buf[1] & 0x03,
		TotalLength:    totalLen,
		Identification: binary.BigEndian.Uint16(buf[4:6]),
		DontFragment:   flagsFrag&0x4000 != 0,
		MoreFragments:  flagsFrag&0x2000 != 0,
		FragmentOffset: flagsFrag & 0x1fff,
		TTL:            buf[8],
		Protocol:       buf[9],
		Checksum:       binary.BigEndian.Uint16(buf[10:12]),
		Src:            netip.AddrFrom4([4]byte(buf[12:16])),
		Dst:            netip.AddrFrom4([4]byte(buf[16:20])),
	}

	if hdrLen > IPv4MinHeaderLen {
		h.Options = append([]byte(nil), buf[IPv4MinHeaderLen:hdrLen]...)
	}

	return &Packet{
		Header4: h,
		Payload: buf[hdrLen:totalLen],
	}, nil
}
