package xlat64

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// -------------------------------------------------------------------------
// TCP/UDP checksum fixup shared by both translation directions
// -------------------------------------------------------------------------

const (
	tcpChecksumOffset = 16
	udpChecksumOffset = 6
)

// fixUpperChecksum returns a copy of payload with its checksum field (at
// cksumOffset) recomputed against newSrc/newDst's pseudo-header. Address
// translation always changes the pseudo-header, so TCP and UDP segments
// must have their checksum recomputed on every translated packet; this is
// simpler and no less correct than tayga's incremental convert_cksum for
// a single-pass, whole-packet-in-memory translator like this one.
func fixUpperChecksum(payload []byte, cksumOffset int, newSrc, newDst netip.Addr, protocol uint8) ([]byte, error) {
	if cksumOffset+2 > len(payload) {
		return nil, fmt.Errorf("upper-layer checksum at offset %d: %w", cksumOffset, ErrPacketTooShort)
	}

	out := append([]byte(nil), payload...)
	out[cksumOffset], out[cksumOffset+1] = 0, 0

	var pseudo uint16
	if newDst.Is4() {
		pseudo = IP4PseudoSum(newSrc, newDst, protocol, uint16(len(out)))
	} else {
		pseudo = IP6PseudoSum(newSrc, newDst, protocol, uint32(len(out)))
	}

	final := ^OnesAdd(pseudo, partialSum16(out))
	binary.BigEndian.PutUint16(out[cksumOffset:cksumOffset+2], final)

	return out, nil
}

// fixUDPChecksum4to6 handles the one case unique to UDP: RFC 768 allows a
// zero IPv4 UDP checksum (meaning "none"), but RFC 8200 §8.1 forbids a
// zero checksum on IPv6. mode decides what happens when the incoming
// datagram used that shortcut.
func fixUDPChecksum4to6(payload []byte, newSrc, newDst netip.Addr, mode UDPChecksumMode) ([]byte, Outcome, error) {
	if len(payload) < udpChecksumOffset+2 {
		return nil, OutcomeDrop, fmt.Errorf("udp header: %w", ErrPacketTooShort)
	}

	zero := payload[udpChecksumOffset] == 0 && payload[udpChecksumOffset+1] == 0
	if zero {
		switch mode {
		case UDPChecksumDrop:
			return nil, OutcomeDrop, ErrZeroUDPChecksum
		case UDPChecksumForward:
			return payload, OutcomeForward, nil
		}
	}

	out, err := fixUpperChecksum(payload, udpChecksumOffset, newSrc, newDst, protoUDP)
	if err != nil {
		return nil, OutcomeDrop, err
	}
	return out, OutcomeForward, nil
}
