// Package broodminder decodes BroodMinder BLE advertisement payloads and
// converts their raw sensor codes into physical units.
//
// Layout and transfer functions follow the BroodMinder User Guide v4.50,
// Appendix B. All multi-byte fields are little-endian.
package broodminder

import "fmt"

// ManufacturerID is the Bluetooth SIG company identifier broadcast by every
// BroodMinder device (IF LLC, 653 decimal).
const ManufacturerID uint16 = 0x028D

// Model identifies a BroodMinder device family. The value is the model byte
// at payload index 0.
type Model byte

const (
	ModelT      Model = 41 // temperature only (1st gen)
	ModelTH     Model = 42 // temperature + humidity (1st gen)
	ModelW      Model = 43 // weight scale, 2 load cells (1st gen)
	ModelT2     Model = 47 // temperature (T2/T3)
	ModelW3     Model = 49 // weight scale, 4 load cells (W3/W4)
	ModelSubHub Model = 52 // SubHub BLE relay
	ModelHub4G  Model = 54 // cellular hub
	ModelTH2    Model = 56 // temperature + humidity (TH2/TH3)
	ModelWPlus  Model = 57 // weight scale, 2 load cells (W+/W2)
	ModelDIY    Model = 58 // DIY weight scale, 4 load cells
	ModelHubWF  Model = 60 // WiFi hub
	ModelBeeDar Model = 63 // bee flight counter
)

func (m Model) String() string {
	switch m {
	case ModelT:
		return "T"
	case ModelTH:
		return "TH"
	case ModelW:
		return "W"
	case ModelT2:
		return "T2"
	case ModelW3:
		return "W3"
	case ModelSubHub:
		return "SubHub"
	case ModelHub4G:
		return "Hub4G"
	case ModelTH2:
		return "TH2"
	case ModelWPlus:
		return "W+"
	case ModelDIY:
		return "DIY"
	case ModelHubWF:
		return "HubWF"
	case ModelBeeDar:
		return "BeeDar"
	default:
		return fmt.Sprintf("?(%d)", byte(m))
	}
}

// layout describes which fields a model carries and which transfer function
// its temperature code uses. Models are dispatched on the model byte; the
// field offsets themselves are shared across the family (see Decode).
type layout struct {
	legacyTemp bool // SHT-style formula instead of centigrade offset
	humidity   bool // byte 14 carries a real relative-humidity reading
	weight     bool // bytes 10-13 carry load cell values
	fourCell   bool // bytes 15-18 carry the second pair of load cells
	realtime   bool // bytes 3/9 carry an unsmoothed temperature
}

// layouts is the closed set of sensor models this bridge forwards. Hub and
// relay models (52, 54, 60, 63) advertise the same manufacturer ID but carry
// no hive telemetry, so they are rejected as unsupported.
var layouts = map[Model]layout{
	ModelT:     {legacyTemp: true},
	ModelTH:    {legacyTemp: true, humidity: true},
	ModelW:     {legacyTemp: true, humidity: true, weight: true},
	ModelT2:    {realtime: true},
	ModelW3:    {weight: true, fourCell: true, realtime: true},
	ModelTH2:   {humidity: true, realtime: true},
	ModelWPlus: {humidity: true, weight: true, realtime: true},
	ModelDIY:   {humidity: true, weight: true, fourCell: true, realtime: true},
}
