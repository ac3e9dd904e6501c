package xlat64_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apalrd/gonat64/internal/xlat64"
)

func newRFC6052Table(t *testing.T) *xlat64.MapTable {
	t.Helper()
	table := xlat64.NewMapTable(false)
	err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapRFC6052,
		Prefix4: netip.MustParsePrefix("0.0.0.0/0"),
		Prefix6: xlat64.WellKnownPrefix,
	})
	if err != nil {
		t.Fatalf("Insert rfc6052: %v", err)
	}
	return table
}

func TestMapTableRFC6052RoundTrip(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)

	v4 := netip.MustParseAddr("203.0.113.5")
	v6, err := table.Translate4to6(v4)
	if err != nil {
		t.Fatalf("Translate4to6: %v", err)
	}

	back, err := table.Translate6to4(v6)
	if err != nil {
		t.Fatalf("Translate6to4: %v", err)
	}
	if back != v4 {
		t.Errorf("round trip: got %s, want %s", back, v4)
	}
}

func TestMapTableStaticOverridesDefault(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapStatic,
		Prefix4: netip.MustParsePrefix("192.0.2.0/24"),
		Prefix6: netip.MustParsePrefix("2001:db8:1::/120"),
	})
	if err != nil {
		t.Fatalf("Insert static: %v", err)
	}

	// An address inside the static entry's range must resolve through
	// it (longest-prefix match), not the RFC6052 default.
	v4 := netip.MustParseAddr("192.0.2.42")
	v6, err := table.Translate4to6(v4)
	if err != nil {
		t.Fatalf("Translate4to6: %v", err)
	}
	want := netip.MustParseAddr("2001:db8:1::2a")
	if v6 != want {
		t.Errorf("Translate4to6(%s) = %s, want %s (static entry)", v4, v6, want)
	}

	typ, ok := table.LookupType4(v4)
	if !ok || typ != xlat64.MapStatic {
		t.Errorf("LookupType4(%s) = (%v, %v), want (MapStatic, true)", v4, typ, ok)
	}

	// An address outside the static entry's range still falls through
	// to the RFC6052 default.
	other := netip.MustParseAddr("198.51.100.7")
	typ, ok = table.LookupType4(other)
	if !ok || typ != xlat64.MapRFC6052 {
		t.Errorf("LookupType4(%s) = (%v, %v), want (MapRFC6052, true)", other, typ, ok)
	}
}

func TestMapTableStaticHostWidthMismatchRejected(t *testing.T) {
	t.Parallel()

	table := xlat64.NewMapTable(false)
	err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapStatic,
		Prefix4: netip.MustParsePrefix("192.0.2.0/24"),      // 8 host bits
		Prefix6: netip.MustParsePrefix("2001:db8:1::/112"), // 16 host bits
	})
	if err == nil {
		t.Fatal("Insert accepted mismatched host widths, want error")
	}
}

func TestMapTableNoMappingMiss(t *testing.T) {
	t.Parallel()

	table := xlat64.NewMapTable(false)
	_, err := table.Translate4to6(netip.MustParseAddr("203.0.113.1"))
	if !errors.Is(err, xlat64.ErrNoMapping) {
		t.Errorf("Translate4to6 on empty table: err = %v, want ErrNoMapping", err)
	}
}

func TestMapTableDynamicFailsClosed(t *testing.T) {
	t.Parallel()

	table := xlat64.NewMapTable(false)
	err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapDynamic,
		Prefix4: netip.MustParsePrefix("203.0.113.0/24"),
		Prefix6: netip.MustParsePrefix("2001:db8:2::/120"),
	})
	if err != nil {
		t.Fatalf("Insert dynamic: %v", err)
	}

	_, err = table.Translate4to6(netip.MustParseAddr("203.0.113.9"))
	if !errors.Is(err, xlat64.ErrNoDynamicPool) {
		t.Errorf("Translate4to6 against dynamic entry: err = %v, want ErrNoDynamicPool", err)
	}
}

func TestMapTableLen(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	if got := table.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapStatic,
		Prefix4: netip.MustParsePrefix("192.0.2.0/24"),
		Prefix6: netip.MustParsePrefix("2001:db8:1::/120"),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := table.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestMapTableEntriesSnapshot(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	staticEntry := xlat64.MapEntry{
		Type:    xlat64.MapStatic,
		Prefix4: netip.MustParsePrefix("192.0.2.0/24"),
		Prefix6: netip.MustParsePrefix("2001:db8:1::/120"),
	}
	if err := table.Insert(staticEntry); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	entries := table.Entries()
	want := []xlat64.MapEntry{
		{
			Type:    xlat64.MapRFC6052,
			Prefix4: netip.MustParsePrefix("0.0.0.0/0"),
			Prefix6: xlat64.WellKnownPrefix,
		},
		staticEntry,
	}

	prefixCmp := cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })
	if diff := cmp.Diff(want, entries, prefixCmp); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}

	entries[0].Type = xlat64.MapDynamic
	if table.Entries()[0].Type != xlat64.MapRFC6052 {
		t.Error("mutating the returned snapshot must not affect the table")
	}
}

func TestMapTableEncodeRFC6052IgnoresMoreSpecificStatic(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	if err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapStatic,
		Prefix4: netip.MustParsePrefix("192.0.2.0/24"),
		Prefix6: netip.MustParsePrefix("2001:db8:1::/120"),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v4 := netip.MustParseAddr("192.0.2.42")

	// Translate4to6 picks the more specific static entry...
	viaLookup, err := table.Translate4to6(v4)
	if err != nil {
		t.Fatalf("Translate4to6: %v", err)
	}

	// ...but EncodeRFC6052 always uses the RFC 6052 default regardless.
	viaEncode, err := table.EncodeRFC6052(v4)
	if err != nil {
		t.Fatalf("EncodeRFC6052: %v", err)
	}

	if viaLookup == viaEncode {
		t.Error("EncodeRFC6052 returned the same address as the static-entry lookup")
	}

	want, err := xlat64.NewPrefixCodec().Embed(xlat64.WellKnownPrefix, v4, false, xlat64.NewAddrValidator())
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if viaEncode != want {
		t.Errorf("EncodeRFC6052(%s) = %s, want %s", v4, viaEncode, want)
	}
}

func TestMapTableTranslate6to4Typed(t *testing.T) {
	t.Parallel()

	table := newRFC6052Table(t)
	v6 := netip.MustParseAddr("64:ff9b::cb00:7105") // 203.0.113.5

	_, typ, err := table.Translate6to4Typed(v6)
	if err != nil {
		t.Fatalf("Translate6to4Typed: %v", err)
	}
	if typ != xlat64.MapRFC6052 {
		t.Errorf("Translate6to4Typed type = %v, want MapRFC6052", typ)
	}
}
