// Package registry tracks per-device state across advertisement bursts and
// decides which frames represent genuinely new readings.
package registry

import (
	"sync"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/broodminder"
)

// Outcome classifies one observed frame for a device.
type Outcome int

const (
	// NewDevice is the first successfully decoded frame from an identity.
	NewDevice Outcome = iota
	// Updated is a frame whose sequence counter advanced past the stored one.
	Updated
	// Duplicate is a rebroadcast of the reading already stored.
	Duplicate
	// Stale is a sequence counter behind the stored one (excluding wraparound).
	Stale
)

func (o Outcome) String() string {
	switch o {
	case NewDevice:
		return "new_device"
	case Updated:
		return "updated"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// DeviceState is the registry's record for one sensor.
type DeviceState struct {
	ID           string            `json:"device_id"`
	Model        broodminder.Model `json:"-"`
	ModelName    string            `json:"model"`
	Firmware     string            `json:"firmware"`
	LastSequence uint16            `json:"last_sequence"`
	FirstSeen    time.Time         `json:"first_seen"`
	LastSeen     time.Time         `json:"last_seen"`
	Readings     uint64            `json:"readings"`
}

// Registry is an in-memory map of device identity to last-known state.
// Entries are created on first observation and live for the process lifetime
// unless pruned after a silence interval.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*DeviceState
}

func New() *Registry {
	return &Registry{devices: make(map[string]*DeviceState)}
}

// Observe records one decoded frame for the given identity and reports
// whether it should produce a downstream reading (NewDevice, Updated) or be
// dropped (Duplicate, Stale).
//
// BLE advertisements repeat the same logical reading across many radio
// packets, so an unchanged sequence counter is a Duplicate. Counters wrap at
// the uint16 boundary; a frame is accepted as new when the forward distance
// (observed - stored) mod 65536 is nonzero and below half the counter space,
// so stored=65534 observed=1 is Updated while stored=7 observed=6 is Stale.
func (r *Registry) Observe(id string, frame broodminder.Frame, now time.Time) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.devices[id]
	if !ok {
		r.devices[id] = &DeviceState{
			ID:           id,
			Model:        frame.Model,
			ModelName:    frame.Model.String(),
			Firmware:     frame.Firmware(),
			LastSequence: frame.Sequence,
			FirstSeen:    now,
			LastSeen:     now,
			Readings:     1,
		}
		return NewDevice
	}

	st.LastSeen = now

	delta := frame.Sequence - st.LastSequence // wraps mod 2^16
	switch {
	case delta == 0:
		return Duplicate
	case delta >= 1<<15:
		return Stale
	}

	st.LastSequence = frame.Sequence
	st.Firmware = frame.Firmware()
	st.Readings++
	return Updated
}

// Prune removes devices that have been silent longer than maxSilence and
// returns their identities.
func (r *Registry) Prune(maxSilence time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []string
	for id, st := range r.devices {
		if now.Sub(st.LastSeen) > maxSilence {
			delete(r.devices, id)
			pruned = append(pruned, id)
		}
	}
	return pruned
}

// Snapshot returns a copy of all device states, for the ops endpoint.
func (r *Registry) Snapshot() []DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceState, 0, len(r.devices))
	for _, st := range r.devices {
		out = append(out, *st)
	}
	return out
}

// Len reports the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
