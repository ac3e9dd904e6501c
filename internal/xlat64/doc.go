// Package xlat64 implements stateless IP/ICMP translation between IPv4 and
// IPv6 (RFC 6145/7915), IPv4-embedded IPv6 addressing (RFC 6052), and
// explicit address mapping with hairpinning (RFC 7757).
//
// This includes the address validator, prefix codec, longest-prefix-match
// mapping table, checksum primitives, header parsers, the 4->6 and 6->4
// translation state machines, ICMP error translation, and the translator
// orchestrator that ties them together.
package xlat64
