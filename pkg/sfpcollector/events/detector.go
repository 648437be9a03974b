// Package events watches the stream of decoded reports and raises a
// ModuleEvent whenever a port's state changes between sweeps: a transceiver
// inserted or removed, or a previously healthy module losing its diagnostics.
// Event detection is purely differential; the first report for a device only
// seeds the baseline and never fires.
package events

import (
	"log/slog"
	"sync"

	"github.com/vpbank/sfp_collector/models"
)

// portKey identifies one physical cage across the whole fleet.
type portKey struct {
	hostname string
	port     int
}

// portState is the remembered per-port snapshot from the previous sweep.
type portState struct {
	present bool
	hasDDM  bool
	vendor  *models.VendorInfo
	serial  string
}

// Detector compares successive reports and emits change events. It is safe
// for concurrent use; in practice one goroutine feeds it from the report
// channel.
type Detector struct {
	logger *slog.Logger

	mu    sync.Mutex
	state map[portKey]portState
}

// New constructs a Detector. Pass nil for a no-op logger.
func New(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Detector{
		logger: logger,
		state:  make(map[portKey]portState),
	}
}

// Observe folds one report into the detector's state and returns the events
// it triggered, in port order. A module swap (different serial in the same
// cage without an observed empty sweep) reports as a removal followed by an
// insertion. Ports flagged as failed reads are skipped entirely, so a
// partial sweep never masquerades as a removal.
func (d *Detector) Observe(report models.SFPReport) []models.ModuleEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.ModuleEvent
	for _, rec := range report.Ports {
		// A failed read says nothing about the cage; keep the previous
		// snapshot so the next good sweep diffs against real state.
		if rec.ReadFailed {
			continue
		}
		key := portKey{hostname: report.Device.Hostname, port: rec.PortIndex}
		next := snapshot(rec)

		prev, seen := d.state[key]
		d.state[key] = next
		if !seen {
			continue
		}

		for _, ev := range diff(prev, next, rec) {
			ev.Timestamp = report.Timestamp
			ev.Device = report.Device
			ev.EventInfo.PortIndex = rec.PortIndex
			out = append(out, ev)
			d.logger.Info("module event",
				"device", report.Device.Hostname,
				"port", rec.PortIndex,
				"kind", ev.EventInfo.Kind,
			)
		}
	}
	return out
}

// Forget drops all remembered state for a device, so its next report seeds a
// fresh baseline. Used when a device is removed from the configuration.
func (d *Detector) Forget(hostname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.state {
		if key.hostname == hostname {
			delete(d.state, key)
		}
	}
}

func snapshot(rec models.PortRecord) portState {
	s := portState{
		present: rec.VendorInfo != nil,
		hasDDM:  rec.Diagnostics != nil,
		vendor:  rec.VendorInfo,
	}
	if rec.VendorInfo != nil && rec.VendorInfo.Serial != nil {
		s.serial = *rec.VendorInfo.Serial
	}
	return s
}

func diff(prev, next portState, rec models.PortRecord) []models.ModuleEvent {
	switch {
	case !prev.present && next.present:
		return []models.ModuleEvent{{
			EventInfo: models.EventInfo{Kind: models.EventInserted},
			Vendor:    rec.VendorInfo,
		}}

	case prev.present && !next.present:
		return []models.ModuleEvent{{
			EventInfo: models.EventInfo{Kind: models.EventRemoved},
			Vendor:    prev.vendor,
		}}

	case prev.present && next.present && prev.serial != next.serial && next.serial != "":
		// Hot swap between sweeps.
		return []models.ModuleEvent{
			{
				EventInfo: models.EventInfo{Kind: models.EventRemoved, Previous: prev.serial},
				Vendor:    prev.vendor,
			},
			{
				EventInfo: models.EventInfo{Kind: models.EventInserted},
				Vendor:    rec.VendorInfo,
			},
		}
	}

	// Same module still seated; watch the diagnostics channel.
	if prev.present && next.present {
		if prev.hasDDM && !next.hasDDM {
			return []models.ModuleEvent{{
				EventInfo: models.EventInfo{Kind: models.EventDDMLost},
				Vendor:    rec.VendorInfo,
			}}
		}
		if !prev.hasDDM && next.hasDDM {
			return []models.ModuleEvent{{
				EventInfo: models.EventInfo{Kind: models.EventDDMGained},
				Vendor:    rec.VendorInfo,
			}}
		}
	}
	return nil
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
