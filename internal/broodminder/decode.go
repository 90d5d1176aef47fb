package broodminder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// minPayloadLen covers everything through the humidity byte. Devices with
// older firmware may truncate the extended weight fields but always send at
// least this much.
const minPayloadLen = 15

// Decode error taxonomy. Callers distinguish these with errors.Is; all of
// them mean "not a reading", never a crash.
var (
	ErrTooShort         = errors.New("payload too short")
	ErrUnknownVendor    = errors.New("not a broodminder advertisement")
	ErrUnsupportedModel = errors.New("unsupported device model")
)

// Frame is the decoded structural view of one advertisement payload. Fields
// hold raw wire values; calibration to physical units happens separately.
type Frame struct {
	Model         Model
	FirmwareMinor byte
	FirmwareMajor byte

	Sequence   uint16 // sample counter, bytes 5-6
	TempRaw    uint16 // smoothed temperature code, bytes 7-8
	BatteryRaw byte   // battery percent, byte 4

	// Realtime temperature code, bytes 3 and 9 (models 47+). Zero when the
	// model does not report it.
	RealtimeTempRaw uint16
	HasRealtime     bool

	HumidityRaw byte // byte 14
	HasHumidity bool

	WeightLeftRaw  uint16 // bytes 10-11
	WeightRightRaw uint16 // bytes 12-13
	HasWeight      bool

	WeightLeft2Raw  uint16 // bytes 15-16 (4-cell models)
	WeightRight2Raw uint16 // bytes 17-18
	Has4Cell        bool

	RealtimeWeightRaw uint16 // bytes 19-20, realtime total weight
	HasRealtimeWeight bool
}

// Firmware returns the firmware version as printed by the vendor tools,
// e.g. "2.05".
func (f Frame) Firmware() string {
	return fmt.Sprintf("%d.%02d", f.FirmwareMajor, f.FirmwareMinor)
}

// Decode parses the manufacturer-specific data section of one BroodMinder
// advertisement. companyID is the manufacturer identifier delivered by the
// BLE stack alongside the payload; data starts at the model byte.
//
// Decoding is pure: it either returns a fully populated Frame or an error
// wrapping one of ErrTooShort, ErrUnknownVendor, ErrUnsupportedModel. It
// never indexes past the buffer.
func Decode(companyID uint16, data []byte) (Frame, error) {
	if companyID != ManufacturerID {
		return Frame{}, fmt.Errorf("%w: company 0x%04X", ErrUnknownVendor, companyID)
	}
	if len(data) < minPayloadLen {
		return Frame{}, fmt.Errorf("%w: %d bytes, need %d", ErrTooShort, len(data), minPayloadLen)
	}

	model := Model(data[0])
	lay, ok := layouts[model]
	if !ok {
		return Frame{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}

	f := Frame{
		Model:         model,
		FirmwareMinor: data[1],
		FirmwareMajor: data[2],
		BatteryRaw:    data[4],
		Sequence:      binary.LittleEndian.Uint16(data[5:7]),
		TempRaw:       binary.LittleEndian.Uint16(data[7:9]),
	}

	if lay.realtime {
		f.RealtimeTempRaw = uint16(data[3]) | uint16(data[9])<<8
		f.HasRealtime = true
	}
	if lay.humidity {
		f.HumidityRaw = data[14]
		f.HasHumidity = true
	}
	if lay.weight {
		f.WeightLeftRaw = binary.LittleEndian.Uint16(data[10:12])
		f.WeightRightRaw = binary.LittleEndian.Uint16(data[12:14])
		f.HasWeight = true
	}
	if lay.fourCell && len(data) >= 19 {
		f.WeightLeft2Raw = binary.LittleEndian.Uint16(data[15:17])
		f.WeightRight2Raw = binary.LittleEndian.Uint16(data[17:19])
		f.Has4Cell = true
	}
	if lay.weight && lay.realtime && len(data) >= 21 {
		f.RealtimeWeightRaw = binary.LittleEndian.Uint16(data[19:21])
		f.HasRealtimeWeight = true
	}

	return f, nil
}
