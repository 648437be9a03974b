// Package decoder turns raw SFF-8472 EEPROM images into per-port transceiver
// records. The input is one flat 256-byte image per port (identity page A0h
// followed by diagnostics page A2h); the output carries the vendor identity
// strings and the five live diagnostic channels in engineering units.
//
// The decoder is deliberately forgiving: a field that is blank, unprogrammed
// or unreachable in a truncated image goes missing on its own, never taking
// the rest of the port record with it. Only a port with no image at all
// (nothing seated, or the read failed outright) produces an empty record.
package decoder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vpbank/sfp_collector/models"
)

// PortImage pairs a physical port index with the module image read from it.
// Image is nil (or empty) when no module is seated in the port. ReadFailed
// marks a port whose pages were never read; its record stays all-missing
// without claiming the cage is empty.
type PortImage struct {
	PortIndex  int
	Image      []byte
	ReadFailed bool
}

// SFPDecoder decodes module images port by port. It holds no per-port state,
// so one instance can serve every device the collector polls.
type SFPDecoder struct {
	logger *slog.Logger
}

// New constructs an SFPDecoder. Pass nil for a no-op logger.
func New(logger *slog.Logger) *SFPDecoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SFPDecoder{logger: logger.With(slog.String("component", "sfp_decoder"))}
}

// DecodePorts decodes one record per input port, preserving input order.
// The result always has exactly len(ports) entries; decode problems on one
// port never disturb its neighbours.
func (d *SFPDecoder) DecodePorts(ports []PortImage) []models.PortRecord {
	records := make([]models.PortRecord, 0, len(ports))
	for _, p := range ports {
		records = append(records, d.decodePort(p))
	}
	return records
}

// DecodePorts decodes with a package-default decoder and no logging.
func DecodePorts(ports []PortImage) []models.PortRecord {
	return New(nil).DecodePorts(ports)
}

func (d *SFPDecoder) decodePort(p PortImage) models.PortRecord {
	rec := models.PortRecord{PortIndex: p.PortIndex}

	if p.ReadFailed {
		rec.ReadFailed = true
		return rec
	}

	class := classifyImage(p.Image)
	if class.Presence == models.PresenceAbsent {
		return rec
	}
	// An identity-only image is normal for modules without a diagnostics
	// page; anything else truncated is worth a warning.
	if len(p.Image) != ImageSize && len(p.Image) != IdentityBlockSize {
		d.logger.Warn("unexpected module image length",
			slog.Int("port", p.PortIndex),
			slog.Int("length", len(p.Image)))
	}

	rec.VendorInfo = d.decodeVendor(p.Image, class)
	rec.Diagnostics = decodeDiagnostics(p.Image, class)
	return rec
}

// decodeVendor assembles the identity half of the record. The type label is
// synthesised from the connector and transmission bytes, so a seated module
// always carries at least that even when every vendor string is blank.
func (d *SFPDecoder) decodeVendor(img []byte, class Classification) *models.VendorInfo {
	label := typeLabel(img, class)
	return &models.VendorInfo{
		Vendor:     extractText(img, vendorNameField),
		PartNumber: extractText(img, partNumberField),
		Revision:   extractText(img, revisionField),
		Serial:     extractText(img, serialField),
		Date:       extractText(img, dateField),
		Type:       &label,
	}
}

// typeLabel builds a human-readable module description, for example
// "optical LC 10300MBd 1310nm" or "copper RJ45 1300MBd".
func typeLabel(img []byte, class Classification) string {
	parts := make([]string, 0, 4)

	if class.Type != models.TypeUnknown {
		parts = append(parts, class.Type.String())
	}
	if name, ok := connectorNames[class.ConnectorCode]; ok {
		parts = append(parts, name)
	} else if class.Type == models.TypeUnknown {
		parts = append(parts, fmt.Sprintf("connector 0x%02X", class.ConnectorCode))
	}

	if br, ok := readByte(img, bitRateByte); ok && br > 0 && br != 0xFF {
		parts = append(parts, fmt.Sprintf("%dMBd", int(br)*100))
	}
	if class.Type == models.TypeOptical {
		if wl, ok := readU16(img, wavelengthField); ok && wl > 0 && wl != 0xFFFF {
			parts = append(parts, fmt.Sprintf("%dnm", wl))
		}
	}
	return strings.Join(parts, " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
