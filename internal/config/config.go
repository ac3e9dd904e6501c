// Package config manages gonat64 daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gonat64 configuration (spec.md §6 "external
// interfaces" configuration surface).
type Config struct {
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Xlat    XlatConfig    `koanf:"xlat"`
	Map     []MapEntry    `koanf:"map"`
}

// AdminConfig holds the admin/introspection HTTP surface configuration.
type AdminConfig struct {
	// Addr is the admin HTTP listen address (e.g., ":8053").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// XlatConfig holds the translation core's configuration, mirroring
// xlat64.TranslatorConfig plus the device/address settings spec.md §6
// lists alongside it.
type XlatConfig struct {
	// Device is the TUN device name; cmd/nat64d opens (or creates) the
	// TUN device under this name.
	Device string `koanf:"device"`

	// LocalAddr4 and LocalAddr6 are the translator's own addresses,
	// answered by internal/xlat64.HostStack (§4.10).
	LocalAddr4 string `koanf:"local_addr4"`
	LocalAddr6 string `koanf:"local_addr6"`

	// MTU is the TUN interface MTU: internal/netio sets it on the
	// interface at startup, and the translator uses it as the outgoing
	// IPv4 MTU (TranslatorConfig.MTU4).
	MTU int `koanf:"mtu"`

	// IPv6OfflinkMTU is the outgoing IPv6-side path MTU used for 4->6
	// oversize checks when the next hop on the v6 side has a smaller
	// MTU than the TUN interface itself.
	IPv6OfflinkMTU int `koanf:"ipv6_offlink_mtu"`

	// WKPFStrict enforces RFC 6052 §3.1 as a hard MUST (no private
	// IPv4 address behind the well-known prefix).
	WKPFStrict bool `koanf:"wkpf_strict"`

	// AllowIdentGen enables synthesizing an IPv4 Identification for
	// 6->4 packets with no IPv6 Fragment header.
	AllowIdentGen bool `koanf:"allow_ident_gen"`

	// LazyFragHdr omits the IPv6 Fragment header for 4->6 packets that
	// are not themselves fragmented.
	LazyFragHdr bool `koanf:"lazy_frag_hdr"`

	// UDPChecksumMode is one of "calc", "zero", or "off" (koanf string
	// form of xlat64.UDPChecksumMode).
	UDPChecksumMode string `koanf:"udp_cksum_mode"`

	// Workers is the number of parallel translation worker goroutines
	// (spec.md §5 "parallel threads" model).
	Workers int `koanf:"workers"`
}

// MapEntry is the koanf-decodable form of a mapping-table entry (spec.md
// §6: "a list of map entries: {addr4, prefix_len4, addr6, prefix_len6,
// type, line}"). Line is not decoded from the file (koanf:"-") and is not
// set by Load; validation errors identify an entry by its list index.
type MapEntry struct {
	Addr4      string `koanf:"addr4"`
	PrefixLen4 int    `koanf:"prefix_len4"`
	Addr6      string `koanf:"addr6"`
	PrefixLen6 int    `koanf:"prefix_len6"`
	// Type is one of "static", "rfc6052", "dynamic".
	Type string `koanf:"type"`
	Line int    `koanf:"-"`
}

// Prefix4 parses Addr4/PrefixLen4 as a netip.Prefix.
func (m MapEntry) Prefix4() (netip.Prefix, error) {
	if m.Addr4 == "" {
		return netip.PrefixFrom(netip.IPv4Unspecified(), 0), nil
	}
	addr, err := netip.ParseAddr(m.Addr4)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("map entry addr4 %q: %w", m.Addr4, err)
	}
	return netip.PrefixFrom(addr, m.PrefixLen4), nil
}

// Prefix6 parses Addr6/PrefixLen6 as a netip.Prefix.
func (m MapEntry) Prefix6() (netip.Prefix, error) {
	addr, err := netip.ParseAddr(m.Addr6)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("map entry addr6 %q: %w", m.Addr6, err)
	}
	return netip.PrefixFrom(addr, m.PrefixLen6), nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// WellKnownPrefixStr is RFC 6052's well-known prefix in CIDR form.
const WellKnownPrefixStr = "64:ff9b::/96"

// DefaultConfig returns a Config populated with sensible defaults: the
// admin/metrics surfaces bound to conventional ports, info/json logging,
// and a single RFC 6052 well-known-prefix mapping entry so a fresh
// install translates immediately.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8053",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Xlat: XlatConfig{
			Device:          "nat64",
			MTU:             1500,
			IPv6OfflinkMTU:  1500,
			WKPFStrict:      true,
			AllowIdentGen:   true,
			LazyFragHdr:     true,
			UDPChecksumMode: "calc",
			Workers:         4,
		},
		Map: []MapEntry{
			{Addr6: "64:ff9b::", PrefixLen6: 96, Type: "rfc6052"},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gonat64 configuration.
// Variables are named GONAT64_<section>_<key>, e.g., GONAT64_XLAT_MTU.
const envPrefix = "GONAT64_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GONAT64_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GONAT64_ADMIN_ADDR       -> admin.addr
//	GONAT64_METRICS_ADDR     -> metrics.addr
//	GONAT64_METRICS_PATH     -> metrics.path
//	GONAT64_LOG_LEVEL        -> log.level
//	GONAT64_LOG_FORMAT       -> log.format
//	GONAT64_XLAT_MTU         -> xlat.mtu
//	GONAT64_XLAT_WKPF_STRICT -> xlat.wkpf_strict
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if !k.Exists("map") {
		cfg.Map = defaults.Map
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GONAT64_XLAT_MTU -> xlat.mtu.
// Strips the GONAT64_ prefix, lowercases, and replaces the first _ with .
// (section names contain no underscore, so GONAT64_XLAT_WKPF_STRICT ->
// xlat.wkpf_strict).
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":            defaults.Admin.Addr,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"xlat.device":           defaults.Xlat.Device,
		"xlat.mtu":              defaults.Xlat.MTU,
		"xlat.ipv6_offlink_mtu": defaults.Xlat.IPv6OfflinkMTU,
		"xlat.wkpf_strict":      defaults.Xlat.WKPFStrict,
		"xlat.allow_ident_gen":  defaults.Xlat.AllowIdentGen,
		"xlat.lazy_frag_hdr":    defaults.Xlat.LazyFragHdr,
		"xlat.udp_cksum_mode":   defaults.Xlat.UDPChecksumMode,
		"xlat.workers":          defaults.Xlat.Workers,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrInvalidMTU indicates a configured MTU is not positive.
	ErrInvalidMTU = errors.New("xlat.mtu must be > 0")

	// ErrNoLocalAddr4 indicates xlat.local_addr4 is missing or invalid.
	ErrNoLocalAddr4 = errors.New("xlat.local_addr4 is required and must be a valid IPv4 address")

	// ErrNoLocalAddr6 indicates xlat.local_addr6 is missing or invalid.
	ErrNoLocalAddr6 = errors.New("xlat.local_addr6 is required and must be a valid IPv6 address")

	// ErrInvalidUDPChecksumMode indicates xlat.udp_cksum_mode is not one
	// of the recognized values.
	ErrInvalidUDPChecksumMode = errors.New("xlat.udp_cksum_mode must be calc, zero, or off")

	// ErrInvalidMapEntryType indicates a map entry's type field is not
	// one of static, rfc6052, dynamic.
	ErrInvalidMapEntryType = errors.New("map entry type must be static, rfc6052, or dynamic")

	// ErrInvalidMapEntryPrefix indicates a map entry's addr4/addr6
	// fields failed to parse.
	ErrInvalidMapEntryPrefix = errors.New("map entry has an invalid address or prefix length")

	// ErrInvalidWorkerCount indicates xlat.workers is not positive.
	ErrInvalidWorkerCount = errors.New("xlat.workers must be > 0")
)

// ValidMapEntryTypes lists the recognized map entry type strings.
var ValidMapEntryTypes = map[string]bool{
	"static":  true,
	"rfc6052": true,
	"dynamic": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Xlat.MTU <= 0 {
		return ErrInvalidMTU
	}

	if cfg.Xlat.Workers <= 0 {
		return ErrInvalidWorkerCount
	}

	if a, err := netip.ParseAddr(cfg.Xlat.LocalAddr4); err != nil {
		return fmt.Errorf("%w: %w", ErrNoLocalAddr4, err)
	} else if !a.Is4() {
		return ErrNoLocalAddr4
	}
	if a, err := netip.ParseAddr(cfg.Xlat.LocalAddr6); err != nil {
		return fmt.Errorf("%w: %w", ErrNoLocalAddr6, err)
	} else if !a.Is6() {
		return ErrNoLocalAddr6
	}

	switch cfg.Xlat.UDPChecksumMode {
	case "calc", "zero", "off":
	default:
		return ErrInvalidUDPChecksumMode
	}

	if err := validateMapEntries(cfg.Map); err != nil {
		return err
	}

	return nil
}

// validateMapEntries checks each declarative map entry for correctness.
func validateMapEntries(entries []MapEntry) error {
	for i, e := range entries {
		if !ValidMapEntryTypes[e.Type] {
			return fmt.Errorf("map[%d] type %q: %w", i, e.Type, ErrInvalidMapEntryType)
		}
		if _, err := e.Prefix6(); err != nil {
			return fmt.Errorf("map[%d]: %w: %w", i, ErrInvalidMapEntryPrefix, err)
		}
		if e.Type != "rfc6052" {
			if _, err := e.Prefix4(); err != nil || e.Addr4 == "" {
				return fmt.Errorf("map[%d]: %w", i, ErrInvalidMapEntryPrefix)
			}
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
