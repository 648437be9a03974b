package decoder

// SFF-8472 image geometry. The collector hands the decoder one flat image per
// port: the A0h identity page at offsets 0–127 followed by the A2h diagnostics
// page at offsets 128–255.
const (
	ImageSize         = 256
	IdentityBlockSize = 128
	diagBlockBase     = 128
)

// fieldRange names a fixed-offset byte range inside the module image.
type fieldRange struct {
	Offset int
	Length int
}

func (r fieldRange) end() int { return r.Offset + r.Length }

// A0h identity page fields.
var (
	identifierByte    = fieldRange{0, 1}
	connectorTypeByte = fieldRange{2, 1}
	bitRateByte       = fieldRange{12, 1}

	vendorNameField = fieldRange{20, 16}
	partNumberField = fieldRange{40, 16}
	revisionField   = fieldRange{56, 4}
	wavelengthField = fieldRange{60, 2}
	serialField     = fieldRange{68, 16}
	dateField       = fieldRange{84, 8}

	monitoringTypeByte = fieldRange{92, 1}
)

// A2h live diagnostic registers, at absolute offsets within the flat image.
// All five are 16-bit big-endian.
var (
	temperatureReg = fieldRange{diagBlockBase + 96, 2}
	voltageReg     = fieldRange{diagBlockBase + 98, 2}
	txBiasReg      = fieldRange{diagBlockBase + 100, 2}
	txPowerReg     = fieldRange{diagBlockBase + 102, 2}
	rxPowerReg     = fieldRange{diagBlockBase + 104, 2}
)

// A2h external calibration constants (bytes 56–95 of the diagnostics page).
// Slope words are unsigned 8.8 fixed point, offsets are two's-complement.
// The received-power channel instead carries five IEEE-754 floats RX_PWR(4)
// down to RX_PWR(0); the decoder uses the linear pair RX_PWR(1)/RX_PWR(0).
var (
	rxPowerSlopeFloat  = fieldRange{diagBlockBase + 68, 4} // RX_PWR(1)
	rxPowerOffsetFloat = fieldRange{diagBlockBase + 72, 4} // RX_PWR(0)
	txBiasSlopeWord    = fieldRange{diagBlockBase + 76, 2}
	txBiasOffsetWord   = fieldRange{diagBlockBase + 78, 2}
	txPowerSlopeWord   = fieldRange{diagBlockBase + 80, 2}
	txPowerOffsetWord  = fieldRange{diagBlockBase + 82, 2}
	voltageSlopeWord   = fieldRange{diagBlockBase + 88, 2}
	voltageOffsetWord  = fieldRange{diagBlockBase + 90, 2}
)

// Diagnostic monitoring type bits (A0h byte 92).
const (
	dmtDDMImplemented = 0x40
	dmtInternalCal    = 0x20
	dmtExternalCal    = 0x10
)

// readU16 returns the big-endian unsigned register at r, or false when the
// image is too short to contain it.
func readU16(img []byte, r fieldRange) (uint16, bool) {
	if r.end() > len(img) {
		return 0, false
	}
	return uint16(img[r.Offset])<<8 | uint16(img[r.Offset+1]), true
}

// readS16 returns the big-endian two's-complement register at r.
func readS16(img []byte, r fieldRange) (int16, bool) {
	u, ok := readU16(img, r)
	return int16(u), ok
}

// readByte returns the single byte at r.
func readByte(img []byte, r fieldRange) (byte, bool) {
	if r.end() > len(img) {
		return 0, false
	}
	return img[r.Offset], true
}
