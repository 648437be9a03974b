// Package json implements the JSON output formatter for the SFP Collector
// pipeline. It is the primary (and currently only) serialisation format.
//
// Pipeline position:
//
//	sfp/decoder [Stage 4] → format/json [Stage 5] → transport/file [Stage 6]
//
// The formatter converts a models.SFPReport (or a models.ModuleEvent) into a
// JSON byte slice. All json struct tags are already declared on the model
// types themselves, so serialisation is a single json.Marshal call with
// optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/sfp_collector/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises reports and module events into byte slices.
// Alternative formatters (protobuf, line protocol …) can be added by
// implementing this interface without touching any other package.
type Formatter interface {
	Format(report *models.SFPReport) ([]byte, error)
	FormatEvent(event *models.ModuleEvent) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Use false (default) in production to minimise byte count on the wire.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json from the standard
// library. It is safe for concurrent use by multiple goroutines; all fields
// are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted so the formatter never panics on a nil receiver.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises report to JSON. It returns a non-nil error only when
// json.Marshal itself fails (e.g. an un-serialisable value type entered the
// pipeline upstream). The returned byte slice is always non-nil on success.
//
// The JSON schema:
//
//	{
//	  "timestamp": "2026-02-26T10:30:00.123Z",
//	  "device": { … },
//	  "ports": [ { "port_index": …, "vendor_info": …, "diagnostics": … } ],
//	  "metadata": { "collector_id": …, "poll_duration_ms": …, "poll_status": … }
//	}
func (f *JSONFormatter) Format(report *models.SFPReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("format/json: report must not be nil")
	}

	data, err := f.marshal(report)
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"collector_id", report.Metadata.CollectorID,
			"hostname", report.Device.Hostname,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted report",
		"collector_id", report.Metadata.CollectorID,
		"hostname", report.Device.Hostname,
		"port_count", len(report.Ports),
		"bytes", len(data),
	)

	return data, nil
}

// FormatEvent serialises a module event to JSON. The "event_info" key in the
// output is what the split file transport uses to route events away from
// regular reports.
func (f *JSONFormatter) FormatEvent(event *models.ModuleEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("format/json: event must not be nil")
	}

	data, err := f.marshal(event)
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"hostname", event.Device.Hostname,
			"kind", event.EventInfo.Kind,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"hostname", event.Device.Hostname,
		"port_index", event.EventInfo.PortIndex,
		"kind", event.EventInfo.Kind,
		"bytes", len(data),
	)

	return data, nil
}

func (f *JSONFormatter) marshal(v any) ([]byte, error) {
	if f.cfg.PrettyPrint {
		return json.MarshalIndent(v, "", f.cfg.Indent)
	}
	return json.Marshal(v)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
