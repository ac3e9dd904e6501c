package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/apalrd/gonat64/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":8053" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8053")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Xlat.MTU != 1500 {
		t.Errorf("Xlat.MTU = %d, want %d", cfg.Xlat.MTU, 1500)
	}

	if !cfg.Xlat.WKPFStrict {
		t.Error("Xlat.WKPFStrict = false, want true")
	}

	if len(cfg.Map) != 1 || cfg.Map[0].Type != "rfc6052" {
		t.Errorf("Map = %+v, want a single rfc6052 default entry", cfg.Map)
	}

	// Defaults lack local addresses, so they do NOT pass validation on
	// their own; a real deployment must supply xlat.local_addr4/6.
	cfg.Xlat.LocalAddr4 = "192.0.2.254"
	cfg.Xlat.LocalAddr6 = "2001:db8::254"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() with local addrs set failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
xlat:
  local_addr4: "192.0.2.254"
  local_addr6: "2001:db8::254"
  mtu: 1400
  wkpf_strict: false
map:
  - addr6: "64:ff9b::"
    prefix_len6: 96
    type: rfc6052
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Xlat.MTU != 1400 {
		t.Errorf("Xlat.MTU = %d, want %d", cfg.Xlat.MTU, 1400)
	}

	if cfg.Xlat.WKPFStrict {
		t.Error("Xlat.WKPFStrict = true, want false (overridden)")
	}

	if len(cfg.Map) != 1 {
		t.Fatalf("Map count = %d, want 1", len(cfg.Map))
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override admin.addr and log.level, plus the
	// local addresses validation requires.
	yamlContent := `
admin:
  addr: ":55555"
log:
  level: "warn"
xlat:
  local_addr4: "192.0.2.254"
  local_addr6: "2001:db8::254"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":55555" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Xlat.MTU != 1500 {
		t.Errorf("Xlat.MTU = %d, want default %d", cfg.Xlat.MTU, 1500)
	}

	if cfg.Xlat.UDPChecksumMode != "calc" {
		t.Errorf("Xlat.UDPChecksumMode = %q, want default %q", cfg.Xlat.UDPChecksumMode, "calc")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	validLocal := func(cfg *config.Config) {
		cfg.Xlat.LocalAddr4 = "192.0.2.254"
		cfg.Xlat.LocalAddr6 = "2001:db8::254"
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "zero mtu",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Xlat.MTU = 0
			},
			wantErr: config.ErrInvalidMTU,
		},
		{
			name: "negative mtu",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Xlat.MTU = -1
			},
			wantErr: config.ErrInvalidMTU,
		},
		{
			name: "zero workers",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Xlat.Workers = 0
			},
			wantErr: config.ErrInvalidWorkerCount,
		},
		{
			name:    "missing local_addr4",
			modify:  func(cfg *config.Config) { cfg.Xlat.LocalAddr6 = "2001:db8::254" },
			wantErr: config.ErrNoLocalAddr4,
		},
		{
			name: "invalid local_addr6",
			modify: func(cfg *config.Config) {
				cfg.Xlat.LocalAddr4 = "192.0.2.254"
				cfg.Xlat.LocalAddr6 = "not-an-ip"
			},
			wantErr: config.ErrNoLocalAddr6,
		},
		{
			name: "invalid udp checksum mode",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Xlat.UDPChecksumMode = "bogus"
			},
			wantErr: config.ErrInvalidUDPChecksumMode,
		},
		{
			name: "invalid map entry type",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Map = []config.MapEntry{{Addr6: "2001:db8::", PrefixLen6: 96, Type: "bogus"}}
			},
			wantErr: config.ErrInvalidMapEntryType,
		},
		{
			name: "static entry missing addr4",
			modify: func(cfg *config.Config) {
				validLocal(cfg)
				cfg.Map = []config.MapEntry{{Addr6: "2001:db8::1", PrefixLen6: 128, Type: "static"}}
			},
			wantErr: config.ErrInvalidMapEntryPrefix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsStaticAndDynamicEntries(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Xlat.LocalAddr4 = "192.0.2.254"
	cfg.Xlat.LocalAddr6 = "2001:db8::254"
	cfg.Map = append(cfg.Map,
		config.MapEntry{Addr4: "192.0.2.0", PrefixLen4: 24, Addr6: "2001:db8:1::", PrefixLen6: 120, Type: "static"},
		config.MapEntry{Addr4: "203.0.113.0", PrefixLen4: 24, Addr6: "2001:db8:2::", PrefixLen6: 120, Type: "dynamic"},
	)

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() returned error: %v", err)
	}
}

func TestMapEntryPrefix4AndPrefix6(t *testing.T) {
	t.Parallel()

	e := config.MapEntry{Addr4: "192.0.2.0", PrefixLen4: 24, Addr6: "2001:db8:1::", PrefixLen6: 120, Type: "static"}

	p4, err := e.Prefix4()
	if err != nil {
		t.Fatalf("Prefix4: %v", err)
	}
	if p4.String() != "192.0.2.0/24" {
		t.Errorf("Prefix4() = %s, want 192.0.2.0/24", p4)
	}

	p6, err := e.Prefix6()
	if err != nil {
		t.Fatalf("Prefix6: %v", err)
	}
	if p6.String() != "2001:db8:1::/120" {
		t.Errorf("Prefix6() = %s, want 2001:db8:1::/120", p6)
	}
}

func TestMapEntryPrefix4DefaultRoute(t *testing.T) {
	t.Parallel()

	e := config.MapEntry{Addr6: "64:ff9b::", PrefixLen6: 96, Type: "rfc6052"}
	p4, err := e.Prefix4()
	if err != nil {
		t.Fatalf("Prefix4: %v", err)
	}
	if p4.Bits() != 0 {
		t.Errorf("Prefix4().Bits() = %d, want 0 (unconstrained default route)", p4.Bits())
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
xlat:
  local_addr4: "192.0.2.254"
  local_addr6: "2001:db8::254"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GONAT64_ADMIN_ADDR", ":60000")
	t.Setenv("GONAT64_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q (from env)", cfg.Admin.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
xlat:
  local_addr4: "192.0.2.254"
  local_addr6: "2001:db8::254"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GONAT64_METRICS_ADDR", ":9200")
	t.Setenv("GONAT64_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

func TestLoadEnvOverridesXlatMTU(t *testing.T) {
	yamlContent := `
xlat:
  local_addr4: "192.0.2.254"
  local_addr6: "2001:db8::254"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GONAT64_XLAT_MTU", "9000")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Xlat.MTU != 9000 {
		t.Errorf("Xlat.MTU = %d, want 9000 (from env)", cfg.Xlat.MTU)
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gonat64.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
