package decoder

import (
	"log/slog"
	"time"

	"github.com/vpbank/sfp_collector/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Channel message types
// ─────────────────────────────────────────────────────────────────────────────

// RawPortRead holds the two EEPROM pages read from one port. Either page is
// nil when the switch answered noSuchInstance for it: a nil identity page
// means no module is seated, a nil diagnostics page means the module (or the
// switch firmware) does not expose the A2h page.
//
// ReadFailed is set instead when a page was never answered at all — the sweep
// aborted before reaching this port. A failed read is not an empty cage, so
// the two cases must stay distinguishable downstream.
type RawPortRead struct {
	PortIndex   int
	Identity    []byte
	Diagnostics []byte
	ReadFailed  bool
}

// RawPollResult is the message placed on the raw-data channel by the Poller
// after a device sweep. It is the sole input type consumed by the decode
// stage.
type RawPollResult struct {
	// Device carries identifying context about the polled switch.
	Device models.Device

	// Ports holds one entry per configured SFP cage, in configuration order.
	Ports []RawPortRead

	// CollectedAt is the wall-clock time at which the last page was received.
	CollectedAt time.Time

	// PollStartedAt is the wall-clock time at which the sweep began. Together
	// with CollectedAt it yields the round-trip poll duration.
	PollStartedAt time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Decode — RawPollResult → models.SFPReport
// ─────────────────────────────────────────────────────────────────────────────

// Decode assembles a full per-device report from one raw sweep. Pages are
// stitched into flat module images before port decoding; a port whose
// diagnostics page is missing decodes from the identity page alone. Ports the
// sweep never reached degrade to all-missing records and demote the poll
// status to "partial" ("error" when no port was read at all). Decode is safe
// for concurrent use.
func (d *SFPDecoder) Decode(raw RawPollResult) models.SFPReport {
	if len(raw.Ports) == 0 {
		d.logger.Warn("decode: empty port sweep", "device", raw.Device.Hostname)
	}

	failed := 0
	images := make([]PortImage, 0, len(raw.Ports))
	for _, pr := range raw.Ports {
		if pr.ReadFailed {
			failed++
		}
		images = append(images, PortImage{
			PortIndex:  pr.PortIndex,
			Image:      stitchPages(pr),
			ReadFailed: pr.ReadFailed,
		})
	}

	status := "success"
	switch {
	case failed > 0 && failed == len(raw.Ports):
		status = "error"
	case failed > 0:
		status = "partial"
	}

	report := models.SFPReport{
		Timestamp: raw.CollectedAt,
		Device:    raw.Device,
		Ports:     d.DecodePorts(images),
		Metadata: models.ReportMetadata{
			PollDurationMs: raw.CollectedAt.Sub(raw.PollStartedAt).Milliseconds(),
			PollStatus:     status,
		},
	}

	d.logger.Debug("decode: completed",
		slog.String("device", raw.Device.Hostname),
		slog.Int("port_count", len(report.Ports)),
		slog.Int64("poll_duration_ms", report.Metadata.PollDurationMs),
	)
	return report
}

// stitchPages concatenates the identity and diagnostics pages into the flat
// image layout the port decoder expects. A missing identity page means the
// port is empty regardless of what the diagnostics read returned.
func stitchPages(pr RawPortRead) []byte {
	if len(pr.Identity) == 0 {
		return nil
	}
	if len(pr.Diagnostics) == 0 {
		return pr.Identity
	}
	img := make([]byte, 0, len(pr.Identity)+len(pr.Diagnostics))
	img = append(img, pr.Identity...)
	if pad := IdentityBlockSize - len(pr.Identity); pad > 0 {
		img = append(img, make([]byte, pad)...)
	}
	img = append(img, pr.Diagnostics...)
	return img
}
