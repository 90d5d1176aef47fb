package broodminder

// Documented operating envelope for the temperature sensors. Codes that
// calibrate outside this window are treated as suspect and not forwarded.
const (
	MinTempCelsius = -40.0
	MaxTempCelsius = 85.0
)

const tempInvalidSentinel = 0xFFFF

// weightSentinels are raw codes the vendor firmware emits when a load cell
// has no valid sample.
var weightSentinels = map[uint16]bool{
	0x7FFF: true,
	0x8005: true,
	0xFFFF: true,
}

// TemperatureCelsius converts a raw 16-bit temperature code into degrees
// Celsius per the vendor formula for the given model. Legacy models (T, TH,
// W) use the SHT-style mapping (raw/2^16)*165 - 40; all later models use the
// centigrade encoding (raw - 5000)/100.
//
// ok is false for the invalid sentinel 0xFFFF and for results outside the
// documented operating envelope.
func TemperatureCelsius(model Model, raw uint16) (celsius float64, ok bool) {
	if raw == tempInvalidSentinel {
		return 0, false
	}
	var c float64
	if layouts[model].legacyTemp {
		c = (float64(raw)/65536.0)*165.0 - 40.0
	} else {
		c = (float64(raw) - 5000.0) / 100.0
	}
	if c < MinTempCelsius || c > MaxTempCelsius {
		return c, false
	}
	return c, true
}

// BatteryPercent converts the raw battery byte into a percentage. The wire
// value is already a percent; firmware occasionally reports slightly above
// 100 while charging, so the value is clamped.
func BatteryPercent(raw byte) float64 {
	if raw > 100 {
		return 100
	}
	return float64(raw)
}

// HumidityPercent converts the raw humidity byte into relative humidity.
// ok is false for values outside 0-100, which the firmware uses to signal
// "no reading".
func HumidityPercent(raw byte) (pct float64, ok bool) {
	if raw > 100 {
		return 0, false
	}
	return float64(raw), true
}

// WeightKilograms converts a raw load cell code into kilograms using the
// vendor offset encoding (raw - 32767)/100. ok is false for sentinel codes.
func WeightKilograms(raw uint16) (kg float64, ok bool) {
	if weightSentinels[raw] {
		return 0, false
	}
	return (float64(raw) - 32767.0) / 100.0, true
}
