// Package app wires the SFP Collector pipeline stages together and manages
// their lifecycle.
//
// Poll path:
//
//	Scheduler → WorkerPool → [rawCh] → Decoder → [reportCh] →
//	Detector + Store + Formatter → [formattedCh] → Transport
//
// Module events detected between consecutive cycles are formatted onto the
// same formattedCh so that a single transport goroutine writes all output.
// When a database path is configured, reports and events are also persisted
// and optionally served over the REST API.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	jsonformat "github.com/vpbank/sfp_collector/format/json"
	"github.com/vpbank/sfp_collector/models"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/config"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/events"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/poller"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/scheduler"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/server"
	sqlitestore "github.com/vpbank/sfp_collector/pkg/sfpcollector/store/sqlite"
	"github.com/vpbank/sfp_collector/sfp/decoder"
	filetransport "github.com/vpbank/sfp_collector/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings for the collector application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths are the directories for YAML configuration files.
	// Use config.PathsFromEnv() to populate from environment variables.
	ConfigPaths config.Paths

	// CollectorID identifies this collector instance in output metadata.
	// Typically the hostname or pod name.
	CollectorID string

	// PollerWorkers is the number of concurrent poller goroutines.
	// Default: 100.
	PollerWorkers int

	// BufferSize is the capacity of each inter-stage channel.
	// Default: 10000.
	BufferSize int

	// PoolOptions configures the SNMP connection pool.
	PoolOptions poller.PoolOptions

	// DatabasePath enables SQLite persistence when non-empty.
	DatabasePath string

	// HTTPEnabled controls whether the REST API starts.
	// Requires DatabasePath.
	HTTPEnabled bool

	// HTTPListenAddr is the listen address for the REST API.
	// Default: "0.0.0.0:8080".
	HTTPListenAddr string

	// PrettyPrint enables indented JSON output.
	PrettyPrint bool

	// ReportWriter is the io.Writer for report output. nil = os.Stdout.
	// Ignored when SplitFile is set.
	ReportWriter io.Writer

	// EventWriter is the io.Writer for module event output. nil = os.Stderr.
	// Ignored when SplitFile is set.
	EventWriter io.Writer

	// SplitFile writes reports and events to rotating files instead of the
	// writers above.
	SplitFile bool

	// ReportFilePath is the report output file when SplitFile is set.
	ReportFilePath string

	// EventFilePath is the module event output file when SplitFile is set.
	EventFilePath string

	// FileMaxBytes triggers rotation of the output files. 0 disables rotation.
	FileMaxBytes int64

	// FileMaxBackups is the number of rotated files to keep. 0 keeps all.
	FileMaxBackups int
}

func (c *Config) withDefaults() {
	if c.CollectorID == "" {
		name, _ := os.Hostname()
		if name == "" {
			name = "sfpcollector"
		}
		c.CollectorID = name
	}
	if c.PollerWorkers <= 0 {
		c.PollerWorkers = 100
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 10_000
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = "0.0.0.0:8080"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App orchestrates the full SFP collector pipeline. Create one with New,
// start it with Start, and stop it with Stop (or cancel the context).
type App struct {
	cfg    Config
	logger *slog.Logger

	// Loaded configuration (populated in Start).
	loadedCfg *config.LoadedConfig

	// Pipeline components.
	connPool   *poller.ConnectionPool
	sfpPoller  *poller.SNMPPoller
	workerPool *poller.WorkerPool
	sched      *scheduler.Scheduler
	dec        *decoder.SFPDecoder
	detector   *events.Detector
	formatter  *jsonformat.JSONFormatter
	transport  filetransport.Transport
	store      *sqlitestore.SqliteStore
	httpSrv    *server.Server

	// Inter-stage channels.
	rawCh       chan decoder.RawPollResult
	reportCh    chan models.SFPReport
	formattedCh chan []byte

	// Lifecycle.
	cancel   context.CancelFunc
	wg       sync.WaitGroup // tracks pipeline goroutines
	formatWg sync.WaitGroup // tracks formatters feeding formattedCh
}

// New constructs an App. It does not start anything — call Start for that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Start loads configuration, constructs all pipeline stages, and launches the
// goroutines that connect them. It returns an error if configuration loading,
// database opening, or HTTP listener startup fails.
//
// The caller must eventually call Stop (or cancel the passed-in context's
// parent) to release resources.
func (a *App) Start(ctx context.Context) error {
	// ── 1. Load configuration ───────────────────────────────────────────
	a.logger.Info("app: loading configuration")
	loadedCfg, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.loadedCfg = loadedCfg
	a.logger.Info("app: configuration loaded",
		"devices", len(loadedCfg.Devices),
	)

	// ── 2. Open the store when persistence is configured ────────────────
	if a.cfg.DatabasePath != "" {
		store, _, err := sqlitestore.New(a.cfg.DatabasePath, a.logger)
		if err != nil {
			return fmt.Errorf("app: open store: %w", err)
		}
		a.store = store
	}

	// ── 3. Create inter-stage channels ──────────────────────────────────
	a.rawCh = make(chan decoder.RawPollResult, a.cfg.BufferSize)
	a.reportCh = make(chan models.SFPReport, a.cfg.BufferSize)
	a.formattedCh = make(chan []byte, a.cfg.BufferSize)

	// ── 4. Build pipeline components (reverse order: transport → decoder) ──
	reportW := a.cfg.ReportWriter
	eventW := a.cfg.EventWriter
	if a.cfg.SplitFile {
		rw, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
			FilePath:   a.cfg.ReportFilePath,
			MaxBytes:   a.cfg.FileMaxBytes,
			MaxBackups: a.cfg.FileMaxBackups,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("app: open report file: %w", err)
		}
		ew, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
			FilePath:   a.cfg.EventFilePath,
			MaxBytes:   a.cfg.FileMaxBytes,
			MaxBackups: a.cfg.FileMaxBackups,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("app: open event file: %w", err)
		}
		reportW, eventW = rw, ew
	}
	a.transport = filetransport.NewSplit(filetransport.SplitConfig{
		ReportWriter: reportW,
		EventWriter:  eventW,
	}, a.logger)

	a.formatter = jsonformat.New(jsonformat.Config{
		PrettyPrint: a.cfg.PrettyPrint,
	}, a.logger)

	a.detector = events.New(a.logger)
	a.dec = decoder.New(a.logger)

	a.connPool = poller.NewConnectionPool(a.cfg.PoolOptions, a.logger)
	a.sfpPoller = poller.NewSNMPPoller(a.connPool, a.logger)
	a.workerPool = poller.NewWorkerPool(a.cfg.PollerWorkers, a.sfpPoller, a.rawCh, a.logger)

	a.sched = scheduler.New(loadedCfg, a.workerPool, a.logger)

	// ── 5. Create a cancellable context for all goroutines ──────────────
	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// ── 6. Pre-count formatter goroutines BEFORE starting the transport ──
	// formatWg gates the close of formattedCh. All Add() calls must happen
	// before the transport stage launches its formatWg.Wait() goroutine,
	// otherwise Wait() can return while the count is still 0 and close
	// formattedCh before the formatters have started.
	a.formatWg.Add(1)

	// ── 7. Start pipeline goroutines (transport first, sources last) ─────
	a.startTransportStage(pipeCtx)
	a.startFormatStage(pipeCtx)
	a.startDecodeStage(pipeCtx)

	// ── 8. Start REST API ───────────────────────────────────────────────
	if a.cfg.HTTPEnabled {
		if a.store == nil {
			a.logger.Warn("app: http enabled without a database path — skipping REST API")
		} else {
			a.httpSrv = server.New(server.Config{
				HTTPListenAddr: a.cfg.HTTPListenAddr,
				DB:             a.store,
				Logger:         a.logger,
			})
			if err := a.httpSrv.Start(); err != nil {
				return fmt.Errorf("app: start http server: %w", err)
			}
			a.logger.Info("app: REST API started", "addr", a.cfg.HTTPListenAddr)
		}
	}

	// ── 9. Start poller path ────────────────────────────────────────────
	a.workerPool.Start(pipeCtx)

	// Scheduler blocks in its own goroutine.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(pipeCtx)
	}()
	a.logger.Info("app: scheduler started", "entries", a.sched.Entries())

	a.logger.Info("app: pipeline running",
		"poller_workers", a.cfg.PollerWorkers,
		"buffer_size", a.cfg.BufferSize,
		"persistence", a.store != nil,
	)
	return nil
}

// Stop performs a graceful shutdown.
//
// Shutdown order:
//  1. Cancel the pipeline context (stops scheduler + worker pool producers).
//  2. Wait for the scheduler goroutine to exit.
//  3. Drain the worker pool (waits for in-flight polls to complete).
//  4. Close rawCh → decoder drains → closes reportCh → formatter drains.
//  5. Close formattedCh → transport goroutine drains → exits.
//  6. Shut down the REST API, close transport, store, and connection pool.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	// 1. Signal all goroutines to stop.
	if a.cancel != nil {
		a.cancel()
	}

	// 2. Wait for the scheduler to return.
	if a.sched != nil {
		a.sched.Stop()
	}

	// 3. Drain the worker pool (waits for in-flight polls).
	if a.workerPool != nil {
		a.workerPool.Stop()
	}

	// 4. Close rawCh to cascade channel closes through the pipeline.
	if a.rawCh != nil {
		close(a.rawCh)
	}

	// 5. Wait for all pipeline goroutines to drain.
	a.wg.Wait()

	// 6. Release resources.
	if a.httpSrv != nil {
		a.httpSrv.Shutdown()
	}
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("app: transport close error", "error", err.Error())
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("app: store close error", "error", err.Error())
		}
	}
	if a.connPool != nil {
		a.connPool.Close()
	}

	a.logger.Info("app: shutdown complete")
}

// Reload atomically replaces the running configuration. New devices are polled
// immediately; removed devices stop; changed intervals take effect on the next
// cycle. Returns an error if the new configuration fails to load.
func (a *App) Reload() error {
	a.logger.Info("app: reloading configuration")
	newCfg, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}

	// Drop detector baselines for devices that disappeared so that a
	// re-added device starts with a clean seed instead of stale state.
	for hostname := range a.loadedCfg.Devices {
		if _, ok := newCfg.Devices[hostname]; !ok {
			a.detector.Forget(hostname)
		}
	}

	a.sched.Reload(newCfg)
	a.loadedCfg = newCfg

	a.logger.Info("app: configuration reloaded",
		"devices", len(newCfg.Devices),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline stage goroutines
// ─────────────────────────────────────────────────────────────────────────────

// startDecodeStage reads RawPollResult from rawCh, decodes each into an
// SFPReport, stamps the collector identity, and sends it to reportCh. When
// rawCh is closed (shutdown) it closes reportCh to cascade the shutdown
// downstream.
func (a *App) startDecodeStage(_ context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.reportCh)

		for raw := range a.rawCh {
			report := a.dec.Decode(raw)
			report.Metadata.CollectorID = a.cfg.CollectorID
			a.reportCh <- report
		}
	}()
}

// startFormatStage reads SFPReport from reportCh, runs change detection and
// persistence, formats report and events to JSON, and sends everything to
// formattedCh. formatWg must already be incremented by the caller before this
// is called.
func (a *App) startFormatStage(_ context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.formatWg.Done()

		for report := range a.reportCh {
			evs := a.detector.Observe(report)

			if a.store != nil {
				if err := a.store.AddReport(report); err != nil {
					a.logger.Error("app: store report error",
						"device", report.Device.Hostname,
						"error", err.Error(),
					)
				}
				for _, ev := range evs {
					if err := a.store.AddEvent(ev); err != nil {
						a.logger.Error("app: store event error",
							"device", ev.Device.Hostname,
							"error", err.Error(),
						)
					}
				}
			}

			data, err := a.formatter.Format(&report)
			if err != nil {
				a.logger.Warn("app: format error",
					"device", report.Device.Hostname,
					"error", err.Error(),
				)
			} else {
				a.formattedCh <- data
			}

			for i := range evs {
				data, err := a.formatter.FormatEvent(&evs[i])
				if err != nil {
					a.logger.Warn("app: event format error",
						"device", evs[i].Device.Hostname,
						"error", err.Error(),
					)
					continue
				}
				a.formattedCh <- data
			}
		}
	}()
}

// startTransportStage reads formatted bytes from formattedCh and writes them
// via the transport. It also owns the goroutine that closes formattedCh after
// all formatter goroutines finish.
func (a *App) startTransportStage(_ context.Context) {
	// Close formattedCh once all formatters are done.
	go func() {
		a.formatWg.Wait()
		close(a.formattedCh)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		for data := range a.formattedCh {
			if err := a.transport.Send(data); err != nil {
				a.logger.Error("app: transport send error",
					"error", err.Error(),
					"bytes", len(data),
				)
			}
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
