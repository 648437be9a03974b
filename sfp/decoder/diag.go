package decoder

import (
	"math"

	"github.com/vpbank/sfp_collector/models"
)

// Raw register unit conversions, per SFF-8472 table 9-2:
// temperature is 1/256 °C per LSB, supply voltage 100 µV, laser bias 2 µA,
// and both optical powers 0.1 µW.

// decodeDiagnostics converts the five live registers into engineering units.
// It returns nil when the module does not implement digital monitoring or
// the diagnostics page is entirely out of reach; individual channels whose
// bytes are unreadable come back as nil fields instead of failing the block.
func decodeDiagnostics(img []byte, c Classification) *models.DiagnosticsReading {
	if !c.DDMSupported {
		return nil
	}

	d := &models.DiagnosticsReading{}
	any := false

	if raw, ok := readS16(img, temperatureReg); ok {
		// Temperature is never externally calibrated in the field;
		// modules report it directly in 1/256 °C.
		v := round3(float64(raw) / 256.0)
		d.Temperature = &v
		any = true
	}
	if raw, ok := readU16(img, voltageReg); ok {
		v := round3(calibrate(float64(raw), c.Calibration.Voltage, c) / 10000.0)
		d.Voltage = &v
		any = true
	}
	if raw, ok := readU16(img, txBiasReg); ok {
		v := round3(calibrate(float64(raw), c.Calibration.TxBias, c) * 2.0 / 1000.0)
		d.TxBias = &v
		any = true
	}
	if raw, ok := readU16(img, txPowerReg); ok {
		v := powerDBm(raw, c.Calibration.TxPower, c)
		d.TxPower = &v
		any = true
	}
	if raw, ok := readU16(img, rxPowerReg); ok {
		v := powerDBm(raw, c.Calibration.RxPower, c)
		d.RxPower = &v
		any = true
	}

	if !any {
		return nil
	}
	return d
}

func calibrate(raw float64, coeff LinearCoeff, c Classification) float64 {
	if !c.Calibration.External {
		return raw
	}
	return coeff.apply(raw)
}

// powerDBm converts a raw optical power register to dBm. A raw value of zero
// means no light, which would be negative infinity on the log scale; it is
// reported as 0.0 dBm instead, matching what the switch firmware shows for a
// dark or unconnected port. Calibration happens in the linear µW domain
// before the log conversion, and a calibrated value that lands at or below
// zero collapses to the same dark-port reading.
func powerDBm(raw uint16, coeff LinearCoeff, c Classification) float64 {
	if raw == 0 {
		return 0.0
	}
	mw := calibrate(float64(raw), coeff, c) * 0.0001
	if mw <= 0 {
		return 0.0
	}
	return round3(10.0 * math.Log10(mw))
}

func round3(v float64) float64 {
	return math.Round(v*1000.0) / 1000.0
}
