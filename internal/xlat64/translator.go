package xlat64

import (
	"errors"
	"fmt"
	"net/netip"
)

// -------------------------------------------------------------------------
// Translator — orchestrates one packet through the pipeline in §3
// -------------------------------------------------------------------------
//
// Data flow (spec.md §3): TUN read -> Parse -> (optionally HostStack) ->
// MapTable lookup for src and dest -> Xlate -> write to TUN. ICMP errors
// loop: outer Xlate triggers inner IcmpXlate before emission. Translator
// is the component that owns this sequencing; everything it calls
// (Parse4/Parse6, MapTable, Xlate4to6/Xlate6to4, HostStack, Hairpin) is
// a pure function or a read-only structure, so Translator itself holds
// only the mutable bits that must be shared across workers: the
// IdentGenerator and the Stats counters, both already safe for
// concurrent use via sync/atomic.

// TranslatorOption configures optional Translator parameters.
type TranslatorOption func(*Translator)

// WithMetrics sets the MetricsReporter the Translator notifies of every
// packet disposition. If mr is nil, a no-op reporter is used.
func WithMetrics(mr MetricsReporter) TranslatorOption {
	return func(t *Translator) {
		if mr != nil {
			t.metrics = mr
		}
	}
}

// MetricsReporter receives a callback for every translated packet.
// Implemented by internal/metrics.Collector; a no-op default is used
// when no reporter is configured, mirroring the teacher's
// bfd.MetricsReporter / noopMetrics pattern.
type MetricsReporter interface {
	RecordOutcome(fromV6 bool, outcome Outcome)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(bool, Outcome) {}

// Translator is the stateless-per-packet NAT64 engine: it owns the
// long-lived, read-only MapTable and HostStack, plus the two pieces of
// state that genuinely mutate while serving concurrent workers (the
// IPv4 Identification generator and the outcome counters).
type Translator struct {
	table  *MapTable
	host   *HostStack
	ident  *IdentGenerator
	stats  *Stats
	cfg    TranslatorConfig
	local4 netip.Addr

	metrics MetricsReporter
}

// NewTranslator builds a Translator over an already-populated MapTable.
// cfg is copied by value and never mutated afterward (§9: all
// translation settings are read-only after startup).
func NewTranslator(table *MapTable, local4, local6 netip.Addr, cfg TranslatorConfig, opts ...TranslatorOption) *Translator {
	t := &Translator{
		table:   table,
		host:    NewHostStack(local4, local6),
		ident:   NewIdentGenerator(),
		stats:   &Stats{},
		cfg:     cfg,
		local4:  local4,
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns the translator's running outcome counters.
func (t *Translator) Stats() *Stats { return t.stats }

// TranslateFromV4 runs one IPv4 packet read from the TUN device through
// the pipeline. On OutcomeForward the returned bytes are the translated
// IPv6 packet, or an ICMPv4 Echo Reply when the packet was addressed to
// the translator itself. On OutcomeReject they are an ICMPv4 error
// addressed back to the original IPv4 sender, since only that sender can
// act on it. On OutcomeDrop they are nil.
func (t *Translator) TranslateFromV4(buf []byte) ([]byte, Outcome, error) {
	pkt, err := Parse4(buf)
	if err != nil {
		t.record(false, OutcomeDrop)
		return nil, OutcomeDrop, err
	}

	if t.host.IsLocal4(pkt.Header4.Dst) {
		out, outcome, err := t.host.HandleEcho4(pkt)
		t.record(false, outcome)
		return out, outcome, err
	}

	// A non-echo ICMP message that cannot be forwarded is dropped rather
	// than answered with an ICMP error of its own.
	nonEchoICMP := pkt.Header4.Protocol == protoICMPv4 && len(pkt.Payload) > 0 &&
		pkt.Payload[0] != icmp4EchoRequest && pkt.Payload[0] != icmp4EchoReply

	if pkt.Header4.DontFragment && oversizeForV6(len(buf), t.cfg.MTU6) {
		if nonEchoICMP {
			t.record(false, OutcomeDrop)
			return nil, OutcomeDrop, fmt.Errorf("4->6: %w", ErrFragmentationRequired)
		}
		out, _, herr := t.host.EmitICMP4Error(pkt.Header4.Src, icmp4DestUnreach, 4,
			mtuRest(uint16(mtuHeadroom(t.cfg.MTU6))), buf)
		t.record(false, OutcomeReject)
		if herr != nil {
			return nil, OutcomeDrop, herr
		}
		return out, OutcomeReject, fmt.Errorf("4->6: %w", ErrFragmentationRequired)
	}

	out, outcome, err := Xlate4to6(pkt, t.table, Xlate4to6Options{
		UDPChecksumMode: t.cfg.UDPChecksumMode,
		MTU:             t.cfg.MTU6,
	})
	switch outcome {
	case OutcomeForward:
		t.record(false, outcome)
		return out, outcome, nil

	case OutcomeReject:
		if nonEchoICMP {
			t.record(false, OutcomeDrop)
			return nil, OutcomeDrop, err
		}
		icmpType, code, rest := icmp4ErrorFor(err)
		icmpOut, _, herr := t.host.EmitICMP4Error(pkt.Header4.Src, icmpType, code, rest, buf)
		t.record(false, OutcomeReject)
		if herr != nil {
			return nil, OutcomeDrop, herr
		}
		return icmpOut, OutcomeReject, err

	default:
		t.record(false, OutcomeDrop)
		return nil, OutcomeDrop, err
	}
}

// TranslateFromV6 is TranslateFromV4's mirror for packets read from the
// IPv6 side, including the hairpin re-injection of §4.9: when Xlate6to4
// reports OutcomeHairpin, the bytes returned are an IPv6 packet meant to
// be written back onto the v6 queue, not the v4 one.
func (t *Translator) TranslateFromV6(buf []byte) ([]byte, Outcome, error) {
	pkt, err := Parse6(buf)
	if err != nil {
		t.record(true, OutcomeDrop)
		return nil, OutcomeDrop, err
	}

	if t.host.IsLocal6(pkt.Header6.Dst) {
		out, outcome, err := t.host.HandleEcho6(pkt)
		t.record(true, outcome)
		return out, outcome, err
	}

	// A non-echo ICMPv6 message that cannot be forwarded is dropped rather
	// than answered with an ICMPv6 error of its own.
	nonEchoICMP := pkt.UpperProtocol() == protoICMPv6 && len(pkt.Payload) > 0 &&
		pkt.Payload[0] != icmp6EchoRequest && pkt.Payload[0] != icmp6EchoReply

	if oversizeForV4(len(buf), t.cfg.MTU4) {
		if nonEchoICMP {
			t.record(true, OutcomeDrop)
			return nil, OutcomeDrop, fmt.Errorf("6->4: %w", ErrFragmentationRequired)
		}
		out, _, herr := t.host.EmitICMP6Error(pkt.Header6.Src, icmp6PacketTooBig, 0,
			mtuRest(uint16(mtuHeadroom(t.cfg.MTU4))), buf)
		t.record(true, OutcomeReject)
		if herr != nil {
			return nil, OutcomeDrop, herr
		}
		return out, OutcomeReject, fmt.Errorf("6->4: %w", ErrFragmentationRequired)
	}

	out, outcome, err := Xlate6to4(pkt, t.table, t.ident, Xlate6to4Options{
		AllowIdentGen: t.cfg.AllowIdentGen,
		MTU:           t.cfg.MTU4,
		LocalAddr4:    t.local4,
	})
	switch outcome {
	case OutcomeForward, OutcomeHairpin:
		t.record(true, outcome)
		return out, outcome, nil

	case OutcomeReject:
		if nonEchoICMP {
			t.record(true, OutcomeDrop)
			return nil, OutcomeDrop, err
		}
		icmpType, code, rest := icmp6ErrorFor(err)
		icmpOut, _, herr := t.host.EmitICMP6Error(pkt.Header6.Src, icmpType, code, rest, buf)
		t.record(true, OutcomeReject)
		if herr != nil {
			return nil, OutcomeDrop, herr
		}
		return icmpOut, OutcomeReject, err

	default:
		t.record(true, OutcomeDrop)
		return nil, OutcomeDrop, err
	}
}

func (t *Translator) record(fromV6 bool, outcome Outcome) {
	t.stats.Record(fromV6, outcome)
	t.metrics.RecordOutcome(fromV6, outcome)
}

// -------------------------------------------------------------------------
// Reject-outcome -> ICMP type/code mapping (§7 taxonomy)
// -------------------------------------------------------------------------

// icmp4ErrorFor maps a translation error to the ICMPv4 message the host
// stack should emit back to the original IPv4 sender.
func icmp4ErrorFor(err error) (icmpType, code uint8, rest [4]byte) {
	switch {
	case errors.Is(err, ErrHopLimitExceeded):
		return icmp4TimeExceeded, 0, [4]byte{}
	case errors.Is(err, ErrNoMapping), errors.Is(err, ErrNoDynamicPool):
		return icmp4DestUnreach, 1, [4]byte{} // host unreachable
	default:
		return icmp4DestUnreach, 0, [4]byte{} // net unreachable: generic fallback
	}
}

// icmp6ErrorFor is icmp4ErrorFor's IPv6 counterpart.
func icmp6ErrorFor(err error) (icmpType, code uint8, rest [4]byte) {
	switch {
	case errors.Is(err, ErrHopLimitExceeded):
		return icmp6TimeExceeded, 0, [4]byte{}
	case errors.Is(err, ErrNoMapping), errors.Is(err, ErrNoDynamicPool):
		return icmp6DestUnreach, 3, [4]byte{} // address unreachable
	default:
		return icmp6DestUnreach, 0, [4]byte{} // no route: generic fallback
	}
}

// mtuRest packs mtu into the 2-byte MTU field of an ICMPHeader.Rest.
func mtuRest(mtu uint16) [4]byte {
	var h ICMPHeader
	h.SetMTU(mtu)
	return h.Rest
}

// oversizeForV6 reports whether an IPv4 packet of length v4Len, after
// translation (which adds an IPv6 base header in place of the IPv4
// header, a net +20 bytes in the common no-options case), would exceed
// the configured outgoing IPv6 MTU.
func oversizeForV6(v4Len, mtu6 int) bool {
	return mtu6 > 0 && v4Len-IPv4MinHeaderLen+IPv6HeaderLen > mtu6
}

// oversizeForV4 reports whether an IPv6 packet of length v6Len, after
// translation to IPv4, would exceed the configured outgoing IPv4 MTU.
func oversizeForV4(v6Len, mtu4 int) bool {
	return mtu4 > 0 && v6Len-IPv6HeaderLen+IPv4MinHeaderLen > mtu4
}

// mtuHeadroom returns the MTU value to advertise in a Fragmentation
// Needed / Packet Too Big message: the configured MTU rounded down to
// the nearest RFC 1191 plateau, matching IcmpXlate's own est_mtu use so
// a sender that hits either path converges on the same PMTU estimate.
func mtuHeadroom(mtu int) int {
	if mtu <= 0 {
		return mtuPlateaus[len(mtuPlateaus)-1]
	}
	return estMTU(mtu)
}
