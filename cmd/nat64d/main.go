// nat64d -- stateless NAT64 translator (RFC 6052/6145/7915/7757).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/apalrd/gonat64/internal/config"
	"github.com/apalrd/gonat64/internal/metrics"
	"github.com/apalrd/gonat64/internal/netio"
	"github.com/apalrd/gonat64/internal/server"
	appversion "github.com/apalrd/gonat64/internal/version"
	"github.com/apalrd/gonat64/internal/xlat64"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging translation
// failures.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// errInvalidMapEntryType indicates a map entry's type did not match any
// xlat64.MapType recognized by the translator.
var errInvalidMapEntryType = errors.New("unrecognized map entry type")

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("nat64d starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("device", cfg.Xlat.Device),
	)

	// 4. Start flight recorder for post-mortem debugging of translation
	// failures.
	fr := startFlightRecorder(logger)

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 6. Build the map table and translator from config.
	table, err := buildMapTable(cfg)
	if err != nil {
		logger.Error("failed to build map table", slog.String("error", err.Error()))
		return 1
	}
	collector.SetMapEntries(len(table.Entries()))

	xlat, err := buildTranslator(cfg, table, collector)
	if err != nil {
		logger.Error("failed to build translator", slog.String("error", err.Error()))
		return 1
	}

	// 7. Open and configure the TUN device.
	dev, err := netio.NewTUNDevice(cfg.Xlat.Device)
	if err != nil {
		logger.Error("failed to open tun device", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			logger.Warn("failed to close tun device", slog.String("error", cerr.Error()))
		}
	}()

	if err := configureDevice(dev, cfg, logger); err != nil {
		logger.Error("failed to configure tun device", slog.String("error", err.Error()))
		return 1
	}

	// 8. Run servers and the packet dispatcher.
	if err := runServers(cfg, xlat, table, dev, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("nat64d exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("nat64d stopped")
	return 0
}

// runServers sets up and runs the admin/metrics HTTP servers and the TUN
// packet dispatcher using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	xlat *xlat64.Translator,
	table *xlat64.MapTable,
	dev *netio.LinuxTUNDevice,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	adminSrv := newAdminServer(cfg.Admin, xlat, table, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	// errgroup with signal-aware context.
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Packet dispatcher: reads the TUN device, translates, writes back.
	// cfg.Xlat.Workers goroutines run the same Dispatcher concurrently
	// (spec.md §5 "parallel threads" model): concurrent Read/Write calls
	// on the same *os.File are safe, and the Translator's own shared state
	// (IdentGenerator, Stats) is already synchronized via sync/atomic.
	dispatcher := netio.NewDispatcher(dev, xlat, logger)
	for range cfg.Xlat.Workers {
		g.Go(func() error {
			return dispatcher.Run(gCtx)
		})
	}

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)
	startInterfaceMonitor(gCtx, g, dev.Name(), logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation. Closing dev here
	// (rather than only in main's deferred cleanup) is what actually
	// unblocks the dispatcher's blocking ReadPacket so g.Wait() below can
	// return.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, dev, logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the admin and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// startInterfaceMonitor watches the TUN device's link state via rtnetlink
// and logs transitions. Unlike a BFD session, a lost TUN interface has no
// peer to notify -- this is purely an operational signal.
func startInterfaceMonitor(ctx context.Context, g *errgroup.Group, devName string, logger *slog.Logger) {
	mon := netio.NewNetlinkInterfaceMonitor(logger)

	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		for ev := range mon.Events() {
			if ev.IfName != devName {
				continue
			}
			logger.Info("tun interface state changed",
				slog.String("interface", ev.IfName),
				slog.Bool("up", ev.Up),
			)
		}
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd documentation.
// If watchdog is not configured, the goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	// Send keepalive at half the watchdog interval.
	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, only the log level is updated dynamically via the shared
// LevelVar: the map table and translator settings are loaded once at
// startup and never mutated at runtime (spec.md §9), so there is nothing
// else here to reconcile.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path and updates
// the dynamic log level. Errors during reload are logged but do not stop
// the daemon -- the previous configuration remains in effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, closes
// the TUN device (unblocking the dispatcher's blocking ReadPacket), stops
// the flight recorder, then shuts down the HTTP servers.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for server drain.
func gracefulShutdown(
	ctx context.Context,
	dev *netio.LinuxTUNDevice,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if err := dev.Close(); err != nil {
		logger.Warn("failed to close tun device", slog.String("error", err.Error()))
	}

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	// context.WithoutCancel detaches from the parent's cancellation so we
	// can enforce our own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder
// for post-mortem debugging of translation failures. The recorder
// maintains a rolling window of execution trace data that can be dumped
// on demand.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAdminServer creates an HTTP server for the read-only admin surface
// (internal/server): health, stats, and the loaded map table.
func newAdminServer(cfg config.AdminConfig, xlat *xlat64.Translator, table *xlat64.MapTable, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(xlat, table, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Map Table / Translator Construction
// -------------------------------------------------------------------------

// buildMapTable constructs and populates a MapTable from the configured
// static/RFC6052/dynamic entries (spec.md §6).
func buildMapTable(cfg *config.Config) (*xlat64.MapTable, error) {
	table := xlat64.NewMapTable(cfg.Xlat.WKPFStrict)

	for i, me := range cfg.Map {
		entry, err := mapEntryToXlat(me)
		if err != nil {
			return nil, fmt.Errorf("map[%d]: %w", i, err)
		}
		if err := table.Insert(entry); err != nil {
			return nil, fmt.Errorf("insert map[%d]: %w", i, err)
		}
	}

	return table, nil
}

// mapEntryToXlat converts a config.MapEntry to an xlat64.MapEntry.
func mapEntryToXlat(me config.MapEntry) (xlat64.MapEntry, error) {
	prefix4, err := me.Prefix4()
	if err != nil {
		return xlat64.MapEntry{}, fmt.Errorf("prefix4: %w", err)
	}
	prefix6, err := me.Prefix6()
	if err != nil {
		return xlat64.MapEntry{}, fmt.Errorf("prefix6: %w", err)
	}

	var mapType xlat64.MapType
	switch me.Type {
	case "rfc6052":
		mapType = xlat64.MapRFC6052
	case "static":
		mapType = xlat64.MapStatic
	case "dynamic":
		mapType = xlat64.MapDynamic
	default:
		return xlat64.MapEntry{}, fmt.Errorf("%w: %q", errInvalidMapEntryType, me.Type)
	}

	return xlat64.MapEntry{
		Type:    mapType,
		Prefix4: prefix4,
		Prefix6: prefix6,
	}, nil
}

// buildTranslator constructs the Translator from config, wiring the
// metrics collector in as the MetricsReporter.
func buildTranslator(cfg *config.Config, table *xlat64.MapTable, collector *metrics.Collector) (*xlat64.Translator, error) {
	local4, err := netip.ParseAddr(cfg.Xlat.LocalAddr4)
	if err != nil {
		return nil, fmt.Errorf("parse xlat.local_addr4: %w", err)
	}
	local6, err := netip.ParseAddr(cfg.Xlat.LocalAddr6)
	if err != nil {
		return nil, fmt.Errorf("parse xlat.local_addr6: %w", err)
	}

	var udpMode xlat64.UDPChecksumMode
	switch cfg.Xlat.UDPChecksumMode {
	case "zero":
		udpMode = xlat64.UDPChecksumForward
	case "off":
		udpMode = xlat64.UDPChecksumDrop
	default:
		udpMode = xlat64.UDPChecksumCalc
	}

	tcfg := xlat64.TranslatorConfig{
		WKPFStrict:      cfg.Xlat.WKPFStrict,
		AllowIdentGen:   cfg.Xlat.AllowIdentGen,
		LazyFragHdr:     cfg.Xlat.LazyFragHdr,
		UDPChecksumMode: udpMode,
		MTU4:            cfg.Xlat.MTU,
		MTU6:            cfg.Xlat.IPv6OfflinkMTU,
	}

	return xlat64.NewTranslator(table, local4, local6, tcfg, xlat64.WithMetrics(collector)), nil
}

// configureDevice brings the TUN interface up with its configured
// addresses and MTU.
func configureDevice(dev *netio.LinuxTUNDevice, cfg *config.Config, logger *slog.Logger) error {
	local4, err := netip.ParseAddr(cfg.Xlat.LocalAddr4)
	if err != nil {
		return fmt.Errorf("parse xlat.local_addr4: %w", err)
	}
	local6, err := netip.ParseAddr(cfg.Xlat.LocalAddr6)
	if err != nil {
		return fmt.Errorf("parse xlat.local_addr6: %w", err)
	}

	addr4 := netip.PrefixFrom(local4, local4.BitLen())
	addr6 := netip.PrefixFrom(local6, local6.BitLen())

	if err := dev.Configure(addr4, addr6, cfg.Xlat.MTU); err != nil {
		return fmt.Errorf("configure %s: %w", dev.Name(), err)
	}

	logger.Info("tun device configured",
		slog.String("interface", dev.Name()),
		slog.String("addr4", addr4.String()),
		slog.String("addr6", addr6.String()),
		slog.Int("mtu", cfg.Xlat.MTU),
	)

	return nil
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
