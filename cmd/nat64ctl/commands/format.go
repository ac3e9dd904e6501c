package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatHealth renders a healthResponse in the requested format.
func formatHealth(h *healthResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal health to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		return fmt.Sprintf("status: %s\n", h.Status), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatStats renders a statsResponse in the requested format.
func formatStats(s *statsResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal stats to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		return formatStatsTable(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatsTable(s *statsResponse) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FORWARDED-4TO6\tFORWARDED-6TO4\tDROPPED\tREJECTED\tHAIRPINNED\tICMP-ERRORS-OUT\n")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n",
		s.Forwarded4to6, s.Forwarded6to4, s.Dropped, s.Rejected, s.Hairpinned, s.ICMPErrorsOut)
	_ = w.Flush()
	return buf.String()
}

// formatMapTable renders a slice of mapEntryResponse in the requested format.
func formatMapTable(entries []mapEntryResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal map table to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		return formatMapTableTable(entries), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatMapTableTable(entries []mapEntryResponse) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPREFIX4\tPREFIX6")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Type, e.Prefix4, e.Prefix6)
	}

	_ = w.Flush()
	return buf.String()
}
