// Package telemetry defines the wire contract published to the broker.
package telemetry

import "time"

// Reading is one calibrated measurement from a hive sensor. The JSON field
// names are consumed by home-automation integrations and must stay stable.
// Optional fields are omitted when the device model does not report them or
// the value was flagged suspect.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  int       `json:"sequence"`

	Temperature *float64 `json:"temperature_c,omitempty"`
	Battery     *float64 `json:"battery_pct,omitempty"`
	Humidity    *float64 `json:"humidity_pct,omitempty"`
	Weight      *float64 `json:"weight_kg,omitempty"`
	RSSI        *int     `json:"rssi,omitempty"`
}
