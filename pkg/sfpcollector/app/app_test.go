package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vpbank/sfp_collector/models"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/config"
	"github.com/vpbank/sfp_collector/sfp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helper: minimal YAML config tree that produces at least one PollJob
// ─────────────────────────────────────────────────────────────────────────────

func writeTestConfig(t *testing.T) config.Paths {
	t.Helper()
	base := t.TempDir()

	for _, d := range []string{"devices", "defaults"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	// One device with all fields specified (no defaults file).
	writeYAML(t, filepath.Join(base, "devices", "dev1.yml"), `
testdevice:
  ip: 127.0.0.250
  port: 161
  poll_interval: 1
  timeout: 500
  retries: 0
  version: "2c"
  communities: ["public"]
  sfp_ports: [25, 26]
  max_concurrent_polls: 2
`)

	return config.Paths{
		Devices:  filepath.Join(base, "devices"),
		Defaults: filepath.Join(base, "defaults"),
	}
}

func writeYAML(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_defaults(t *testing.T) {
	a := New(Config{}, nil)

	if a.cfg.PollerWorkers != 100 {
		t.Errorf("PollerWorkers = %d, want 100", a.cfg.PollerWorkers)
	}
	if a.cfg.BufferSize != 10_000 {
		t.Errorf("BufferSize = %d, want 10000", a.cfg.BufferSize)
	}
	if a.cfg.HTTPListenAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPListenAddr = %q, want 0.0.0.0:8080", a.cfg.HTTPListenAddr)
	}
	if a.cfg.CollectorID == "" {
		t.Error("CollectorID should default to hostname, got empty")
	}
	if a.logger == nil {
		t.Error("logger should never be nil")
	}
}

func TestStartStop_emptyConfig(t *testing.T) {
	// The config loader silently skips nonexistent directories. An empty
	// config is valid — the scheduler simply has zero entries.
	a := New(Config{
		ConfigPaths:   config.Paths{}, // all defaults → nonexistent dirs → empty
		PollerWorkers: 1,
		BufferSize:    10,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := a.Start(ctx)
	if err != nil {
		cancel()
		t.Fatalf("Start with empty config: %v", err)
	}

	cancel()
	a.Stop()
}

func TestStartStop_lifecycle(t *testing.T) {
	paths := writeTestConfig(t)

	var buf safeBuffer
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(Config{
		ConfigPaths:   paths,
		PollerWorkers: 2,
		BufferSize:    100,
		PrettyPrint:   false,
		ReportWriter:  &buf,
		EventWriter:   &buf,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	err := a.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The device (127.0.0.250) will fail to connect — that's fine.
	// We're testing that the pipeline starts and stops cleanly.
	// Give it a moment to attempt at least one poll cycle.
	time.Sleep(500 * time.Millisecond)

	cancel()
	a.Stop()

	// If we get here without hanging, the lifecycle is correct.
}

func TestStartStop_withPersistence(t *testing.T) {
	paths := writeTestConfig(t)
	dbPath := filepath.Join(t.TempDir(), "collector.db")

	a := New(Config{
		ConfigPaths:   paths,
		PollerWorkers: 1,
		BufferSize:    10,
		DatabasePath:  dbPath,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := a.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancel()
	a.Stop()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file should have been created: %v", err)
	}
}

func TestReload(t *testing.T) {
	paths := writeTestConfig(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	a := New(Config{
		ConfigPaths:   paths,
		PollerWorkers: 2,
		BufferSize:    10,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	// Reload with same config — should succeed.
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
}

func TestPipelineIntegration_reportsFlowToTransport(t *testing.T) {
	// This test bypasses the poller entirely and injects raw data directly
	// into the pipeline channels to verify decode → format → transport.

	paths := writeTestConfig(t)
	var reportBuf, eventBuf safeBuffer
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(Config{
		ConfigPaths:   paths,
		PollerWorkers: 1,
		BufferSize:    100,
		CollectorID:   "test",
		ReportWriter:  &reportBuf,
		EventWriter:   &eventBuf,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	err := a.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Inject a synthetic poll result directly into rawCh.
	// This tests decoder → formatter → transport.
	img := make([]byte, 128)
	img[0] = 0x03
	img[2] = 0x07
	copy(img[20:], "ACME OPTICS     ")
	started := time.Date(2026, 2, 26, 10, 30, 0, 0, time.UTC)
	a.rawCh <- decoder.RawPollResult{
		Device: models.Device{
			Hostname:    "testdevice",
			IPAddress:   "127.0.0.250",
			SNMPVersion: "2c",
		},
		Ports: []decoder.RawPortRead{
			{PortIndex: 25, Identity: img},
			{PortIndex: 26},
		},
		PollStartedAt: started,
		CollectedAt:   started.Add(5 * time.Millisecond),
	}

	// Give pipeline time to process.
	time.Sleep(200 * time.Millisecond)

	cancel()
	a.Stop()

	// Verify output.
	output := reportBuf.String()
	if output == "" {
		t.Fatal("expected transport output, got empty")
	}

	// Parse the JSON to ensure it's valid.
	var result models.SFPReport
	if err := json.Unmarshal([]byte(firstLine(output)), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, output)
	}
	if result.Device.Hostname != "testdevice" {
		t.Errorf("hostname = %q, want testdevice", result.Device.Hostname)
	}
	if len(result.Ports) != 2 {
		t.Errorf("port count = %d, want 2", len(result.Ports))
	}
	if result.Ports[0].VendorInfo == nil || *result.Ports[0].VendorInfo.Vendor != "ACME OPTICS" {
		t.Errorf("vendor info = %+v", result.Ports[0].VendorInfo)
	}
	if result.Ports[1].VendorInfo != nil {
		t.Errorf("empty cage should have nil vendor info")
	}
	if result.Metadata.CollectorID != "test" {
		t.Errorf("collector_id = %q, want test", result.Metadata.CollectorID)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

// safeBuffer is a concurrency-safe bytes.Buffer for use as a transport writer.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// firstLine returns the first line from s.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
