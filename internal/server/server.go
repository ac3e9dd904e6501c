// Package server implements the read-only admin/introspection HTTP
// surface for nat64d: health, running counters, and the address-mapping
// table currently loaded.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/apalrd/gonat64/internal/xlat64"
)

// -------------------------------------------------------------------------
// Server
// -------------------------------------------------------------------------

// Translator is satisfied by *xlat64.Translator; declared as an
// interface here so tests can stub it without constructing a real
// MapTable/HostStack.
type Translator interface {
	Stats() *xlat64.Stats
}

// Server serves the admin surface. Each handler delegates to the
// translator and map table for live state; the server itself holds no
// mutable state of its own.
//
// Mirrors the teacher's BFDServer shape (a thin adapter over the
// session Manager), but over plain net/http instead of a generated
// ConnectRPC service, and read-only: there is no AddSession-equivalent
// RPC because the mapping table is loaded once at startup (spec.md §6)
// and never mutated at runtime.
type Server struct {
	xlat   Translator
	table  *xlat64.MapTable
	logger *slog.Logger
}

// New creates a Server and returns its http.Handler, wrapped in h2c so
// clients can speak HTTP/2 to it over plain TCP without TLS; HTTP/1.1
// clients, such as nat64ctl's default http.Client, are served as usual.
func New(xlat Translator, table *xlat64.MapTable, logger *slog.Logger) http.Handler {
	s := &Server{
		xlat:   xlat,
		table:  table,
		logger: logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /maptable", s.handleMapTable)

	handler := RecoveryMiddleware(s.logger, LoggingMiddleware(s.logger, mux))

	return h2c.NewHandler(handler, &http2.Server{})
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, healthResponse{Status: "ok"})
}

// statsResponse mirrors xlat64.Stats, read via its atomic counters.
type statsResponse struct {
	Forwarded4to6 uint64 `json:"forwarded_4to6"`
	Forwarded6to4 uint64 `json:"forwarded_6to4"`
	Dropped       uint64 `json:"dropped"`
	Rejected      uint64 `json:"rejected"`
	Hairpinned    uint64 `json:"hairpinned"`
	ICMPErrorsOut uint64 `json:"icmp_errors_out"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.xlat.Stats()
	resp := statsResponse{
		Forwarded4to6: st.Forwarded4to6.Load(),
		Forwarded6to4: st.Forwarded6to4.Load(),
		Dropped:       st.Dropped.Load(),
		Rejected:      st.Rejected.Load(),
		Hairpinned:    st.Hairpinned.Load(),
		ICMPErrorsOut: st.ICMPErrorsOut.Load(),
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

// mapEntryResponse mirrors one xlat64.MapEntry for JSON display.
type mapEntryResponse struct {
	Type    string `json:"type"`
	Prefix4 string `json:"prefix4"`
	Prefix6 string `json:"prefix6"`
}

func (s *Server) handleMapTable(w http.ResponseWriter, r *http.Request) {
	entries := s.table.Entries()
	resp := make([]mapEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = mapEntryResponse{
			Type:    e.Type.String(),
			Prefix4: e.Prefix4.String(),
			Prefix6: e.Prefix6.String(),
		}
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

// -------------------------------------------------------------------------
// Response helpers
// -------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encode response", slog.String("error", err.Error()))
	}
}

