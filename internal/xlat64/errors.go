package xlat64

import "errors"

// -------------------------------------------------------------------------
// Outcome — three-way packet disposition
// -------------------------------------------------------------------------

// Outcome classifies what a translation operation decided to do with a
// packet. Every exported translation function returns an Outcome alongside
// a conventional error: the error explains why, the Outcome says what the
// caller must do next.
type Outcome int

const (
	// OutcomeForward means the packet was translated successfully and
	// should be written to the opposite-family interface.
	OutcomeForward Outcome = iota

	// OutcomeDrop means the packet must be silently discarded: no ICMP
	// error is generated. This is the required disposition for malformed
	// input, martian addresses, and packets with no applicable mapping.
	OutcomeDrop

	// OutcomeReject means the packet could not be translated but the
	// condition is one a sender can act on: an ICMP error should be
	// generated and sent back toward the original source.
	OutcomeReject

	// OutcomeHairpin is the fourth pseudo-outcome from spec.md §7: the
	// original packet is dropped (it was addressed to a host that the
	// far network cannot actually reach), and a re-injected packet on
	// the opposite interface carries the traffic instead (§4.9).
	OutcomeHairpin
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeForward:
		return "forward"
	case OutcomeDrop:
		return "drop"
	case OutcomeReject:
		return "reject"
	case OutcomeHairpin:
		return "hairpin"
	default:
		return "unknown"
	}
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrPacketTooShort indicates a buffer shorter than the minimum header
	// size for its claimed protocol.
	ErrPacketTooShort = errors.New("packet shorter than minimum header length")

	// ErrUnsupportedVersion indicates the IP version field did not match
	// the family the caller expected to parse.
	ErrUnsupportedVersion = errors.New("unsupported IP version")

	// ErrHeaderLengthInvalid indicates an IHL or length field referring
	// outside the bounds of the buffer.
	ErrHeaderLengthInvalid = errors.New("invalid header length field")

	// ErrNoMapping indicates the MapTable has no entry covering the
	// address being translated.
	ErrNoMapping = errors.New("no address mapping available")

	// ErrMartianAddress indicates a source or destination address that
	// must never be translated (loopback, link-local, multicast, etc).
	ErrMartianAddress = errors.New("martian address")

	// ErrWellKnownPrefixViolation indicates the well-known prefix
	// (64:ff9b::/96) was used with an IPv4 address this implementation
	// requires to be rejected under strict WKPF policy (RFC 6052 §3.1).
	ErrWellKnownPrefixViolation = errors.New("well-known prefix used with disallowed address")

	// ErrUnsupportedPrefixLength indicates a prefix length other than the
	// six RFC 6052 §2.2 lengths (32, 40, 48, 56, 64, 96).
	ErrUnsupportedPrefixLength = errors.New("unsupported NAT64 prefix length")

	// ErrBadPrefixReserved indicates an IPv4-embedded IPv6 address whose
	// reserved bits (the "u" octet and any unused alignment bits around
	// the embedded address, RFC 6052 §2.2 Figure 1) were not all zero on
	// decode.
	ErrBadPrefixReserved = errors.New("reserved bits of IPv4-embedded IPv6 address are not zero")

	// ErrFragmentationRequired indicates an IPv4 packet carries the
	// Don't-Fragment bit but exceeds the outgoing path MTU, and the
	// caller must emit ICMP Destination Unreachable (Fragmentation
	// Needed).
	ErrFragmentationRequired = errors.New("fragmentation required but DF set")

	// ErrHopLimitExceeded indicates TTL/Hop Limit reached zero during
	// translation and an ICMP Time Exceeded must be generated.
	ErrHopLimitExceeded = errors.New("hop limit exceeded")

	// ErrUntranslatableICMP indicates an ICMP type/code with no mapping
	// in either direction's translation table (§4.8); the packet is
	// dropped, not rejected, since there is no ICMP error to carry a
	// second error about an ICMP error.
	ErrUntranslatableICMP = errors.New("ICMP type/code has no translation")

	// ErrNoDynamicPool indicates a DYNAMIC map entry was matched but no
	// address pool is configured to allocate from. Stateless dynamic
	// pool allocation is out of scope for this translator; such entries
	// always fail closed.
	ErrNoDynamicPool = errors.New("dynamic pool allocation not supported")

	// ErrIdentifierExhausted indicates the atomic IPv4 identifier
	// generator could not be consulted because identifier generation is
	// disabled in configuration.
	ErrIdentifierExhausted = errors.New("identifier generation disabled")

	// ErrZeroUDPChecksum indicates a UDP datagram arrived from IPv4 with
	// no checksum (legal under RFC 768) and the configured
	// UDPChecksumMode is UDPChecksumDrop, under which such datagrams
	// cannot be forwarded to IPv6 (RFC 8200 §8.1 forbids a zero UDP
	// checksum).
	ErrZeroUDPChecksum = errors.New("zero UDP checksum not permitted on IPv6 side")
)
