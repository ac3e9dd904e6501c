package xlat64_test

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/apalrd/gonat64/internal/xlat64"
)

// udpDatagram builds a minimal UDP datagram with a correct checksum
// against the given (v4) pseudo-header addresses.
func udpDatagram(t *testing.T, src, dst netip.Addr, srcPort, dstPort uint16, data []byte) []byte {
	t.Helper()

	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(buf)))
	copy(buf[8:], data)

	pseudo := xlat64.IP4PseudoSum(src, dst, 17, uint16(len(buf)))
	cksum := ^xlat64.OnesAdd(pseudo, partialSum16ForTest(buf))
	binary.BigEndian.PutUint16(buf[6:8], cksum)
	return buf
}

// partialSum16ForTest recomputes a folded (uncomplemented) checksum over
// buf using only exported primitives, since partialSum16 itself is
// package-private.
func partialSum16ForTest(buf []byte) uint16 {
	return ^xlat64.Sum16(buf)
}

func TestXlate4to6ForwardsUDP(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)

	src := netip.MustParseAddr("192.0.2.1")
	dst := netip.MustParseAddr("203.0.113.5")
	udp := udpDatagram(t, src, dst, 1234, 53, []byte("hello"))

	buf := buildIPv4WithAddrs(t, src, dst, 64, 17, udp)

	pkt, err := xlat64.Parse4(buf)
	if err != nil {
		t.Fatalf("Parse4: %v", err)
	}

	out, outcome, err := xlat64.Xlate4to6(pkt, table, xlat64.Xlate4to6Options{
		UDPChecksumMode: xlat64.UDPChecksumCalc,
		MTU:             1500,
	})
	if err != nil {
		t.Fatalf("Xlate4to6: %v", err)
	}
	if outcome != xlat64.OutcomeForward {
		t.Fatalf("outcome = %v, want forward", outcome)
	}

	outPkt, err := xlat64.Parse6(out)
	if err != nil {
		t.Fatalf("Parse6 of translated packet: %v", err)
	}
	if outPkt.Header6.HopLimit != 63 {
		t.Errorf("HopLimit = %d, want 63", outPkt.Header6.HopLimit)
	}
	if outPkt.UpperProtocol() != 17 {
		t.Errorf("UpperProtocol() = %d, want 17", outPkt.UpperProtocol())
	}
}

func TestXlate4to6RejectsExpiredTTL(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	buf := buildIPv4(t, 1, 17, []byte{0, 0, 0, 0, 0, 8, 0, 0})

	pkt, err := xlat64.Parse4(buf)
	if err != nil {
		t.Fatalf("Parse4: %v", err)
	}

	_, outcome, err := xlat64.Xlate4to6(pkt, table, xlat64.Xlate4to6Options{MTU: 1500})
	if outcome != xlat64.OutcomeReject {
		t.Errorf("outcome = %v, want reject", outcome)
	}
	if err == nil {
		t.Error("expected an error explaining the reject")
	}
}

func TestXlate4to6DropsOnUnmappedDestination(t *testing.T) {
	t.Parallel()

	// An empty table has no RFC6052 default, so every address misses.
	table := xlat64.NewMapTable(false)
	buf := buildIPv4(t, 64, 17, []byte{0, 0, 0, 0, 0, 8, 0, 0})

	pkt, err := xlat64.Parse4(buf)
	if err != nil {
		t.Fatalf("Parse4: %v", err)
	}

	_, outcome, err := xlat64.Xlate4to6(pkt, table, xlat64.Xlate4to6Options{MTU: 1500})
	if outcome != xlat64.OutcomeDrop {
		t.Errorf("outcome = %v, want drop", outcome)
	}
	if err == nil {
		t.Error("expected an error explaining the drop")
	}
}

// buildIPv4WithAddrs is buildIPv4 with caller-specified addresses.
func buildIPv4WithAddrs(t *testing.T, src, dst netip.Addr, ttl, proto uint8, payload []byte) []byte {
	t.Helper()

	h := &xlat64.IPv4Header{
		IHL:      xlat64.IPv4MinHeaderLen / 4,
		TTL:      ttl,
		Protocol: proto,
		Src:      src,
		Dst:      dst,
	}
	h.TotalLength = uint16(xlat64.IPv4MinHeaderLen + len(payload))

	buf := make([]byte, h.TotalLength)
	h.Marshal(buf)
	copy(buf[xlat64.IPv4MinHeaderLen:], payload)
	return buf
}
