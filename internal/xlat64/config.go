package xlat64

import "sync/atomic"

// -------------------------------------------------------------------------
// TranslatorConfig — immutable per-translator settings
// -------------------------------------------------------------------------

// TranslatorConfig bundles the knobs that affect translation behavior.
// It is built once at startup from internal/config.Config and never
// mutated afterward (spec.md §9 "global mutable state" design note),
// so it can be read by every worker goroutine without synchronization.
type TranslatorConfig struct {
	// WKPFStrict records whether RFC 6052 §3.1's "SHOULD NOT" is treated
	// as a hard MUST (refuse to combine the well-known prefix with a
	// private IPv4 address). The Translator does not read this field; the
	// check is made by the MapTable, which takes the flag in NewMapTable.
	WKPFStrict bool

	// AllowIdentGen enables synthesizing an IPv4 Identification field
	// for 6->4 packets that carried no IPv6 Fragment header (tayga's
	// CONFIG_ALLOW_IDENT_GEN).
	AllowIdentGen bool

	// LazyFragHdr, when true, omits the IPv6 Fragment extension header
	// for 4->6 packets that are not themselves fragmented, even when
	// AllowIdentGen would otherwise justify adding one proactively. This
	// translator's Xlate4to6 already behaves this way unconditionally;
	// the field exists so configuration round-trips the option tayga
	// exposes even though this implementation has only the lazy mode.
	LazyFragHdr bool

	UDPChecksumMode UDPChecksumMode

	MTU4 int // outgoing IPv4 path MTU
	MTU6 int // outgoing IPv6 path MTU
}

// -------------------------------------------------------------------------
// IdentGenerator — atomic fetch-and-add IPv4 Identification counter
// -------------------------------------------------------------------------

// IdentGenerator hands out IPv4 Identification field values for 6->4
// packets that arrived with no IPv6 Fragment header to borrow an
// identifier from. A single shared, monotonically increasing counter
// (rather than per-flow state) keeps the translator stateless: values
// may collide across unrelated flows under reassembly, which is the
// accepted tradeoff tayga itself documents for CONFIG_ALLOW_IDENT_GEN.
type IdentGenerator struct {
	counter atomic.Uint32
}

// NewIdentGenerator returns an IdentGenerator starting from 0.
func NewIdentGenerator() *IdentGenerator {
	return &IdentGenerator{}
}

// Next returns the next Identification value. Safe for concurrent use by
// every worker goroutine.
func (g *IdentGenerator) Next() uint16 {
	return uint16(g.counter.Add(1))
}

// -------------------------------------------------------------------------
// Stats — atomic translation counters
// -------------------------------------------------------------------------

// Stats holds atomic counters updated by every worker goroutine on every
// packet processed. A single shared Stats is safe for concurrent use
// without a lock; internal/server reads it to answer GET /stats.
type Stats struct {
	Forwarded4to6 atomic.Uint64
	Forwarded6to4 atomic.Uint64
	Dropped       atomic.Uint64
	Rejected      atomic.Uint64
	Hairpinned    atomic.Uint64
	ICMPErrorsOut atomic.Uint64
}

// Record updates the appropriate counter for the given direction and
// outcome.
func (s *Stats) Record(fromV6 bool, outcome Outcome) {
	switch outcome {
	case OutcomeForward:
		if fromV6 {
			s.Forwarded6to4.Add(1)
		} else {
			s.Forwarded4to6.Add(1)
		}
	case OutcomeDrop:
		s.Dropped.Add(1)
	case OutcomeReject:
		s.Rejected.Add(1)
	case OutcomeHairpin:
		s.Hairpinned.Add(1)
	}
}
