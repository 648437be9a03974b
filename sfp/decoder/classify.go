package decoder

import (
	"encoding/binary"
	"math"

	"github.com/vpbank/sfp_collector/models"
)

// LinearCoeff is one slope/offset pair applied to a raw diagnostic register
// before the unit conversion. The zero value is not usable; callers get
// coefficients from parseCalibration, which substitutes the identity pair
// (slope 1.0, offset 0) for unprogrammed constant blocks.
type LinearCoeff struct {
	Slope  float64
	Offset float64
}

func (c LinearCoeff) apply(raw float64) float64 { return c.Slope*raw + c.Offset }

var identityCoeff = LinearCoeff{Slope: 1.0}

// CalibrationModel captures how a module's raw diagnostic registers map to
// engineering units. Internally calibrated modules report directly in the
// SFF-8472 units and External is false; externally calibrated modules carry
// per-channel constants in the diagnostics page.
type CalibrationModel struct {
	External bool
	Voltage  LinearCoeff
	TxBias   LinearCoeff
	TxPower  LinearCoeff
	RxPower  LinearCoeff
}

// Classification is the per-port verdict the rest of the decoder branches on.
type Classification struct {
	Presence      models.ModulePresence
	Type          models.ModuleType
	ConnectorCode byte
	DDMSupported  bool
	Calibration   CalibrationModel
}

// connectorNames maps SFF-8472 connector codes to their short labels.
var connectorNames = map[byte]string{
	0x01: "SC",
	0x02: "FC style 1",
	0x03: "FC style 2",
	0x04: "BNC/TNC",
	0x05: "FC coax",
	0x06: "Fiber Jack",
	0x07: "LC",
	0x08: "MT-RJ",
	0x09: "MU",
	0x0A: "SG",
	0x0B: "optical pigtail",
	0x0C: "MPO 1x12",
	0x0D: "MPO 2x16",
	0x20: "HSSDC II",
	0x21: "copper pigtail",
	0x22: "RJ45",
	0x23: "no separable connector",
	0x24: "MXC 2x16",
}

// connectorMedia splits the connector codes into electrical and optical
// families. Codes outside both sets classify as unknown and keep their
// diagnostics, since vendors ship compliant DDM behind exotic connectors.
func connectorMedia(code byte) models.ModuleType {
	switch code {
	case 0x04, 0x05, 0x20, 0x21, 0x22, 0x23:
		return models.TypeCopper
	case 0x01, 0x02, 0x03, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x24:
		return models.TypeOptical
	default:
		return models.TypeUnknown
	}
}

// classifyImage inspects the identity page and decides presence, media type,
// DDM support and the calibration model. A nil or empty image means no module
// is seated. A truncated image degrades gracefully: whatever bytes are
// missing simply report their most conservative value.
func classifyImage(img []byte) Classification {
	if len(img) == 0 {
		return Classification{Presence: models.PresenceAbsent}
	}

	c := Classification{
		Presence:    models.PresencePresent,
		Calibration: CalibrationModel{},
	}
	if code, ok := readByte(img, connectorTypeByte); ok {
		c.ConnectorCode = code
		c.Type = connectorMedia(code)
	}

	dmt, ok := readByte(img, monitoringTypeByte)
	if !ok {
		return c
	}
	c.DDMSupported = dmt&dmtDDMImplemented != 0
	if !c.DDMSupported {
		return c
	}

	// A module claiming both calibration modes at once is out of spec;
	// internal wins because it needs nothing further from the image.
	if dmt&dmtExternalCal != 0 && dmt&dmtInternalCal == 0 {
		c.Calibration = parseCalibration(img)
	}
	return c
}

// parseCalibration reads the external calibration constant block. Slope words
// are unsigned 8.8 fixed point and offsets are signed 16-bit integers; the
// received-power channel carries IEEE-754 floats instead. An unprogrammed
// pair (both words zero) falls back to the identity coefficients so a blank
// constant block behaves like an internally calibrated module.
func parseCalibration(img []byte) CalibrationModel {
	return CalibrationModel{
		External: true,
		Voltage:  wordCoeff(img, voltageSlopeWord, voltageOffsetWord),
		TxBias:   wordCoeff(img, txBiasSlopeWord, txBiasOffsetWord),
		TxPower:  wordCoeff(img, txPowerSlopeWord, txPowerOffsetWord),
		RxPower:  floatCoeff(img, rxPowerSlopeFloat, rxPowerOffsetFloat),
	}
}

func wordCoeff(img []byte, slopeR, offsetR fieldRange) LinearCoeff {
	slopeRaw, ok1 := readU16(img, slopeR)
	offsetRaw, ok2 := readS16(img, offsetR)
	if !ok1 || !ok2 || (slopeRaw == 0 && offsetRaw == 0) {
		return identityCoeff
	}
	slope := float64(slopeRaw) / 256.0
	if slope == 0 {
		slope = 1.0
	}
	return LinearCoeff{Slope: slope, Offset: float64(offsetRaw)}
}

func floatCoeff(img []byte, slopeR, offsetR fieldRange) LinearCoeff {
	if slopeR.end() > len(img) || offsetR.end() > len(img) {
		return identityCoeff
	}
	slope := float64(math.Float32frombits(binary.BigEndian.Uint32(img[slopeR.Offset:slopeR.end()])))
	offset := float64(math.Float32frombits(binary.BigEndian.Uint32(img[offsetR.Offset:offsetR.end()])))
	if slope == 0 && offset == 0 {
		return identityCoeff
	}
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		slope = 1.0
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		offset = 0
	}
	return LinearCoeff{Slope: slope, Offset: offset}
}
