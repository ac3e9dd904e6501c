package xlat64_test

import (
	"net/netip"
	"testing"

	"github.com/apalrd/gonat64/internal/xlat64"
)

// buildIPv4 assembles a minimal IPv4/UDP datagram for Parse4 tests.
func buildIPv4(t *testing.T, ttl, proto uint8, payload []byte) []byte {
	t.Helper()

	h := &xlat64.IPv4Header{
		IHL:      xlat64.IPv4MinHeaderLen / 4,
		TTL:      ttl,
		Protocol: proto,
		Src:      netip.MustParseAddr("192.0.2.1"),
		Dst:      netip.MustParseAddr("192.0.2.2"),
	}
	h.TotalLength = uint16(xlat64.IPv4MinHeaderLen + len(payload))

	buf := make([]byte, h.TotalLength)
	h.Marshal(buf)
	copy(buf[xlat64.IPv4MinHeaderLen:], payload)
	return buf
}

func TestParse4Basic(t *testing.T) {
	t.Parallel()

	payload := []byte{1, 2, 3, 4}
	buf := buildIPv4(t, 64, 17, payload)

	pkt, err := xlat64.Parse4(buf)
	if err != nil {
		t.Fatalf("Parse4: %v", err)
	}
	if !pkt.IsIPv4() || pkt.IsIPv6() {
		t.Fatal("Parse4 result does not report IsIPv4")
	}
	if pkt.UpperProtocol() != 17 {
		t.Errorf("UpperProtocol() = %d, want 17", pkt.UpperProtocol())
	}
	if got := pkt.Header4.Src.String(); got != "192.0.2.1" {
		t.Errorf("Src = %s, want 192.0.2.1", got)
	}
	if string(pkt.Payload) != string(payload) {
		t.Errorf("Payload = %v, want %v", pkt.Payload, payload)
	}
}

func TestParse4RejectsWrongVersion(t *testing.T) {
	t.Parallel()

	buf := buildIPv4(t, 64, 17, nil)
	buf[0] = 0x60 // version 6 in an IPv4 parse

	if _, err := xlat64.Parse4(buf); err == nil {
		t.Fatal("Parse4 accepted a version-6 buffer")
	}
}

func TestParse4RejectsTruncated(t *testing.T) {
	t.Parallel()

	if _, err := xlat64.Parse4([]byte{0x45, 0x00}); err == nil {
		t.Fatal("Parse4 accepted a buffer shorter than the minimum header")
	}
}

// buildIPv6 assembles a minimal IPv6 datagram with no extension headers.
func buildIPv6(t *testing.T, hopLimit, nextHeader uint8, payload []byte) []byte {
	t.Helper()

	h := &xlat64.IPv6Header{
		HopLimit:      hopLimit,
		NextHeader:    nextHeader,
		PayloadLength: uint16(len(payload)),
		Src:           netip.MustParseAddr("2001:db8::1"),
		Dst:           netip.MustParseAddr("2001:db8::2"),
	}

	buf := make([]byte, xlat64.IPv6HeaderLen+len(payload))
	h.Marshal(buf[:xlat64.IPv6HeaderLen])
	copy(buf[xlat64.IPv6HeaderLen:], payload)
	return buf
}

func TestParse6Basic(t *testing.T) {
	t.Parallel()

	payload := []byte{5, 6, 7, 8}
	buf := buildIPv6(t, 64, 58, payload)

	pkt, err := xlat64.Parse6(buf)
	if err != nil {
		t.Fatalf("Parse6: %v", err)
	}
	if !pkt.IsIPv6() || pkt.IsIPv4() {
		t.Fatal("Parse6 result does not report IsIPv6")
	}
	if pkt.UpperProtocol() != 58 {
		t.Errorf("UpperProtocol() = %d, want 58", pkt.UpperProtocol())
	}
	if pkt.Frag6 != nil {
		t.Error("Frag6 should be nil for a packet with no fragment header")
	}
}

func TestParse6WalksFragmentHeader(t *testing.T) {
	t.Parallel()

	frag := &xlat64.FragmentHeader{
		NextHeader:     17,
		FragmentOffset: 0,
		MoreFragments:  true,
		Identification: 0xdeadbeef,
	}
	payload := []byte{9, 9, 9, 9}

	h := &xlat64.IPv6Header{
		HopLimit:      64,
		NextHeader:    44, // Fragment
		PayloadLength: uint16(xlat64.IPv6FragHeaderLen + len(payload)),
		Src:           netip.MustParseAddr("2001:db8::1"),
		Dst:           netip.MustParseAddr("2001:db8::2"),
	}

	buf := make([]byte, xlat64.IPv6HeaderLen+xlat64.IPv6FragHeaderLen+len(payload))
	h.Marshal(buf[:xlat64.IPv6HeaderLen])
	frag.Marshal(buf[xlat64.IPv6HeaderLen : xlat64.IPv6HeaderLen+xlat64.IPv6FragHeaderLen])
	copy(buf[xlat64.IPv6HeaderLen+xlat64.IPv6FragHeaderLen:], payload)

	pkt, err := xlat64.Parse6(buf)
	if err != nil {
		t.Fatalf("Parse6: %v", err)
	}
	if pkt.Frag6 == nil {
		t.Fatal("Frag6 is nil, want populated fragment header")
	}
	if pkt.UpperProtocol() != 17 {
		t.Errorf("UpperProtocol() = %d, want 17 (the fragment header's own next-header)", pkt.UpperProtocol())
	}
	if !pkt.Frag6.MoreFragments {
		t.Error("MoreFragments = false, want true")
	}
	if string(pkt.Payload) != string(payload) {
		t.Errorf("Payload = %v, want %v", pkt.Payload, payload)
	}
}

func TestICMPHeaderRestAccessors(t *testing.T) {
	t.Parallel()

	var h xlat64.ICMPHeader

	h.SetIDSeq(0x1234, 0x5678)
	id, seq := h.RestAsIDSeq()
	if id != 0x1234 || seq != 0x5678 {
		t.Errorf("RestAsIDSeq() = (%#04x, %#04x), want (0x1234, 0x5678)", id, seq)
	}

	h.SetPointer(6)
	if h.RestAsPointer() != 6 {
		t.Errorf("RestAsPointer() = %d, want 6", h.RestAsPointer())
	}

	h.SetMTU(1280)
	if h.RestAsMTU() != 1280 {
		t.Errorf("RestAsMTU() = %d, want 1280", h.RestAsMTU())
	}
}
