// Package file — split.go provides a Transport that writes collection reports
// and module events to separate destinations (files).
//
// Pipeline position:
//
//	format/json [Stage 5] → transport/file/split [Stage 6]
//
// Routing logic:
//   - JSON payloads containing an "event_info" key → event writer
//   - Everything else (collection reports) → report writer
//
// Both writers can be plain io.Writers (os.Stdout, *os.File) or RotatingFile
// instances for automatic size-based rotation.
package file

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitConfig
// ─────────────────────────────────────────────────────────────────────────────

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// ReportWriter receives collection report payloads.
	// nil defaults to os.Stdout.
	ReportWriter io.Writer

	// EventWriter receives module event payloads.
	// nil defaults to os.Stderr.
	EventWriter io.Writer

	// Newline appended after each message.  Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// SplitWriterTransport implements Transport by routing each JSON message to one
// of two io.Writers based on its content type.  It is safe for concurrent use.
//
// Detection: a fast bytes.Contains check for the `"event_info"` key is used
// instead of full JSON unmarshalling to keep the hot path allocation-free.
type SplitWriterTransport struct {
	reportMu sync.Mutex
	eventMu  sync.Mutex
	reportW  io.Writer
	eventW   io.Writer
	nl       []byte
	closers  []io.Closer
	logger   *slog.Logger
}

// eventMarker is the byte sequence used to identify event payloads.
// Every ModuleEvent JSON object contains this key.
var eventMarker = []byte(`"event_info"`)

// NewSplit constructs a SplitWriterTransport.
//
//   - cfg.ReportWriter defaults to os.Stdout when nil.
//   - cfg.EventWriter defaults to os.Stderr when nil.
//   - cfg.Newline defaults to "\n" when empty.
//   - logger defaults to a no-op logger when nil.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	rw := cfg.ReportWriter
	if rw == nil {
		rw = os.Stdout
	}
	ew := cfg.EventWriter
	if ew == nil {
		ew = os.Stderr
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}

	st := &SplitWriterTransport{
		reportW: rw,
		eventW:  ew,
		nl:      []byte(nl),
		logger:  logger,
	}

	// Track io.Closers so Close() can clean up RotatingFile instances.
	if c, ok := rw.(io.Closer); ok && rw != os.Stdout && rw != os.Stderr {
		st.closers = append(st.closers, c)
	}
	if c, ok := ew.(io.Closer); ok && ew != os.Stdout && ew != os.Stderr {
		st.closers = append(st.closers, c)
	}

	return st
}

// Send inspects data for the event marker and routes to the appropriate writer.
func (st *SplitWriterTransport) Send(data []byte) error {
	if bytes.Contains(data, eventMarker) {
		return st.writeEvent(data)
	}
	return st.writeReport(data)
}

// Close flushes and closes any io.Closer writers (e.g. RotatingFile).
// Plain os.Stdout / os.Stderr are never closed.
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, c := range st.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (st *SplitWriterTransport) writeReport(data []byte) error {
	st.reportMu.Lock()
	defer st.reportMu.Unlock()

	if _, err := st.reportW.Write(data); err != nil {
		st.logger.Error("transport/file: report write failed",
			"error", err.Error(), "bytes", len(data),
		)
		return fmt.Errorf("transport/file: report write: %w", err)
	}
	if _, err := st.reportW.Write(st.nl); err != nil {
		st.logger.Error("transport/file: report newline write failed",
			"error", err.Error(),
		)
		return fmt.Errorf("transport/file: report write newline: %w", err)
	}

	st.logger.Debug("transport/file: sent report message", "bytes", len(data))
	return nil
}

func (st *SplitWriterTransport) writeEvent(data []byte) error {
	st.eventMu.Lock()
	defer st.eventMu.Unlock()

	if _, err := st.eventW.Write(data); err != nil {
		st.logger.Error("transport/file: event write failed",
			"error", err.Error(), "bytes", len(data),
		)
		return fmt.Errorf("transport/file: event write: %w", err)
	}
	if _, err := st.eventW.Write(st.nl); err != nil {
		st.logger.Error("transport/file: event newline write failed",
			"error", err.Error(),
		)
		return fmt.Errorf("transport/file: event write newline: %w", err)
	}

	st.logger.Debug("transport/file: sent event message", "bytes", len(data))
	return nil
}
