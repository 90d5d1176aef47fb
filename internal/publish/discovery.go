package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TotallyGatsby/brood-flow/internal/telemetry"
)

// discoveryConfig is a Home Assistant MQTT discovery payload, one per sensor
// capability. See https://www.home-assistant.io/integrations/mqtt/
type discoveryConfig struct {
	Name              string `json:"name"`
	DeviceClass       string `json:"device_class,omitempty"`
	ExpireAfter       int    `json:"expire_after"`
	ForceUpdate       bool   `json:"force_update"`
	StateClass        string `json:"state_class"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
	StateTopic        string `json:"state_topic"`
	ValueTemplate     string `json:"value_template"`
	UniqueID          string `json:"unique_id"`
}

type capability struct {
	suffix      string // appended to the object ID in the config topic
	deviceClass string
	unit        string
	field       string // JSON field in the state payload
	present     func(telemetry.Reading) bool
}

var capabilities = []capability{
	{"Temp", "temperature", "°C", "temperature_c", func(r telemetry.Reading) bool { return r.Temperature != nil }},
	{"Humidity", "humidity", "%", "humidity_pct", func(r telemetry.Reading) bool { return r.Humidity != nil }},
	{"Weight", "weight", "kg", "weight_kg", func(r telemetry.Reading) bool { return r.Weight != nil }},
	{"Battery", "battery", "%", "battery_pct", func(r telemetry.Reading) bool { return r.Battery != nil }},
}

// maybePublishDiscovery announces the device's sensors to Home Assistant, at
// most once per DiscoveryInterval per device. Config messages are retained so
// a restarted Home Assistant rediscovers the fleet without waiting for the
// next interval. Discovery is best-effort: a failed config publish is not a
// reason to hold back the reading, so errors only skip the timestamp update
// and the next reading retries.
func (s *Sink) maybePublishDiscovery(ctx context.Context, r telemetry.Reading) {
	if s.opts.DiscoveryInterval <= 0 {
		return
	}
	now := s.now()
	if last, ok := s.discovery[r.DeviceID]; ok && now.Sub(last) < s.opts.DiscoveryInterval {
		return
	}

	key := deviceKey(r.DeviceID)
	stateTopic := StateTopic(s.opts.TopicPrefix, r.DeviceID)

	for _, c := range capabilities {
		if !c.present(r) {
			continue
		}

		cfg := discoveryConfig{
			Name:              fmt.Sprintf("%s_%s", r.DeviceID, c.field),
			DeviceClass:       c.deviceClass,
			ExpireAfter:       3600,
			ForceUpdate:       true,
			StateClass:        "measurement",
			UnitOfMeasurement: c.unit,
			StateTopic:        stateTopic,
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", c.field),
			UniqueID:          fmt.Sprintf("%s_%s", key, c.field),
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			s.logger.Error("marshal discovery config", "device_id", r.DeviceID, "error", err)
			return
		}

		topic := fmt.Sprintf("%s/sensor/BM%s%s/config", s.opts.TopicPrefix, key, c.suffix)
		if err := s.publishWithRetry(ctx, topic, payload, true); err != nil {
			s.logger.Warn("discovery config publish failed",
				"topic", topic,
				"device_id", r.DeviceID,
				"error", err,
			)
			return
		}
		s.logger.Debug("discovery config published", "topic", topic, "device_id", r.DeviceID)
	}

	s.discovery[r.DeviceID] = now
}
