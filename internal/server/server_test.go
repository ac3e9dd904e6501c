package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/apalrd/gonat64/internal/server"
	"github.com/apalrd/gonat64/internal/xlat64"
)

// stubTranslator satisfies server.Translator with a fixed Stats value,
// avoiding the need to construct a real xlat64.Translator (MapTable,
// HostStack, IdentGenerator) just to exercise the HTTP surface.
type stubTranslator struct {
	stats *xlat64.Stats
}

func (s stubTranslator) Stats() *xlat64.Stats { return s.stats }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	stats := &xlat64.Stats{}
	stats.Record(false, xlat64.OutcomeForward)
	stats.Record(true, xlat64.OutcomeHairpin)
	stats.Record(false, xlat64.OutcomeDrop)

	table := xlat64.NewMapTable(false)
	if err := table.Insert(xlat64.MapEntry{
		Type:    xlat64.MapRFC6052,
		Prefix4: netip.MustParsePrefix("0.0.0.0/0"),
		Prefix6: xlat64.WellKnownPrefix,
	}); err != nil {
		t.Fatalf("insert rfc6052 entry: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	handler := server.New(stubTranslator{stats: stats}, table, logger)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // G107: url is a fixed httptest.Server URL in tests.
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp
}

func TestHealthzReturnsOK(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	var body struct {
		Status string `json:"status"`
	}
	resp := getJSON(t, srv.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q, want %q", body.Status, "ok")
	}
}

func TestStatsReturnsCounters(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	var body struct {
		Forwarded4to6 uint64 `json:"forwarded_4to6"`
		Hairpinned    uint64 `json:"hairpinned"`
		Dropped       uint64 `json:"dropped"`
	}
	getJSON(t, srv.URL+"/stats", &body)

	if body.Forwarded4to6 != 1 {
		t.Errorf("forwarded_4to6 = %d, want 1", body.Forwarded4to6)
	}
	if body.Hairpinned != 1 {
		t.Errorf("hairpinned = %d, want 1", body.Hairpinned)
	}
	if body.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", body.Dropped)
	}
}

func TestMapTableReturnsEntries(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	var entries []struct {
		Type    string `json:"type"`
		Prefix4 string `json:"prefix4"`
		Prefix6 string `json:"prefix6"`
	}
	getJSON(t, srv.URL+"/maptable", &entries)

	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Type != "rfc6052" {
		t.Errorf("entries[0].Type = %q, want rfc6052", entries[0].Type)
	}
	if entries[0].Prefix6 != xlat64.WellKnownPrefix.String() {
		t.Errorf("entries[0].Prefix6 = %q, want %q", entries[0].Prefix6, xlat64.WellKnownPrefix.String())
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nonexistent") //nolint:gosec // G107: fixed test server URL.
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
