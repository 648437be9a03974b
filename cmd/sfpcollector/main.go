// Command sfpcollector is the main SFP Collector binary.
//
// It loads YAML configuration from directories specified by environment
// variables (or command-line flags), builds the full pipeline, and runs until
// interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	sfpcollector [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/vpbank/sfp_collector/pkg/sfpcollector/app"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/config"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/poller"
)

var opt struct {
	LogLevel    string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level: debug, info, warn, error"`
	LogFmt      string `long:"log-fmt" env:"LOG_FMT" default:"json" description:"log format: json, text"`
	CollectorID string `long:"collector-id" env:"COLLECTOR_ID" description:"collector instance ID (default: hostname)"`
	Pretty      bool   `long:"pretty" description:"pretty-print JSON output"`
	Workers     int    `long:"poller-workers" default:"100" description:"number of concurrent poller workers"`
	BufSize     int    `long:"buffer-size" default:"10000" description:"inter-stage channel buffer size"`

	PoolMaxIdle int `long:"pool-max-idle" default:"2" description:"max idle SNMP connections per device"`
	PoolIdleSec int `long:"pool-idle-timeout" default:"30" description:"idle connection timeout in seconds"`

	SqliteFile string `long:"sqlite-file" env:"SQLITE_FILE" description:"sqlite database file (empty disables persistence)"`
	HTTPOn     bool   `long:"http" description:"serve the REST API (requires --sqlite-file)"`
	HTTPAddr   string `long:"http-addr" env:"HTTP_ADDR" default:"0.0.0.0:8080" description:"REST API listen address"`

	SplitFile      bool   `long:"file-split" description:"write reports and events to separate rotating files"`
	ReportFile     string `long:"file-reports" default:"sfp_reports.json" description:"output file for collection reports"`
	EventFile      string `long:"file-events" default:"sfp_events.json" description:"output file for module events"`
	FileMaxBytes   int64  `long:"file-max-bytes" default:"0" description:"max file size in bytes before rotation (0=disabled)"`
	FileMaxBackups int    `long:"file-max-backups" default:"5" description:"max rotated backup files to keep (0=unlimited)"`

	CfgDevices  string `long:"config-devices" description:"override INPUT_SFP_DEVICE_DEFINITIONS_DIRECTORY_PATH"`
	CfgDefaults string `long:"config-defaults" description:"override INPUT_SFP_DEFAULTS_DIRECTORY_PATH"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sfpcollector: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	if _, err := flags.ParseArgs(&opt, os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(opt.LogLevel, opt.LogFmt)
	if err != nil {
		return err
	}

	// ── Config paths ─────────────────────────────────────────────────────
	paths := config.PathsFromEnv()
	if opt.CfgDevices != "" {
		paths.Devices = opt.CfgDevices
	}
	if opt.CfgDefaults != "" {
		paths.Defaults = opt.CfgDefaults
	}

	// ── Build App ────────────────────────────────────────────────────────
	cfg := app.Config{
		ConfigPaths:    paths,
		CollectorID:    opt.CollectorID,
		PollerWorkers:  opt.Workers,
		BufferSize:     opt.BufSize,
		DatabasePath:   opt.SqliteFile,
		HTTPEnabled:    opt.HTTPOn,
		HTTPListenAddr: opt.HTTPAddr,
		PrettyPrint:    opt.Pretty,
		SplitFile:      opt.SplitFile,
		ReportFilePath: opt.ReportFile,
		EventFilePath:  opt.EventFile,
		FileMaxBytes:   opt.FileMaxBytes,
		FileMaxBackups: opt.FileMaxBackups,
		PoolOptions: poller.PoolOptions{
			MaxIdlePerDevice: opt.PoolMaxIdle,
			IdleTimeout:      time.Duration(opt.PoolIdleSec) * time.Second,
		},
	}

	application := app.New(cfg, logger)

	// ── Start ────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("sfpcollector: running — press Ctrl-C to stop")

	// Block until signal.
	<-ctx.Done()
	logger.Info("sfpcollector: received shutdown signal")

	application.Stop()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
