// Package scan runs the long-lived pipeline consuming raw advertisements and
// turning them into calibrated readings.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/ble"
	"github.com/TotallyGatsby/brood-flow/internal/broodminder"
	"github.com/TotallyGatsby/brood-flow/internal/registry"
	"github.com/TotallyGatsby/brood-flow/internal/stats"
	"github.com/TotallyGatsby/brood-flow/internal/telemetry"
	"github.com/TotallyGatsby/brood-flow/internal/utils"
)

// Source produces raw advertisement events. Run blocks until ctx is
// cancelled; a non-nil error means scanning could not start at all.
type Source interface {
	Run(ctx context.Context, onAdvert func(ble.Advertisement)) error
}

// ReadingSink receives calibrated readings. Implementations must not block.
type ReadingSink interface {
	Enqueue(telemetry.Reading)
}

// eventBuffer absorbs advertisement bursts between the radio callback and
// the processing goroutine. The radio cannot be backpressured; when the
// buffer is full the event is dropped and counted.
const eventBuffer = 64

const pruneCheckInterval = 10 * time.Minute

type Options struct {
	// RealtimeTemp publishes the unsmoothed per-advertisement temperature
	// instead of the device's aggregated one, for models that report both.
	RealtimeTemp bool
	// PruneAfter removes devices silent for longer than this. Zero disables
	// pruning.
	PruneAfter time.Duration
}

// Loop owns the decode → calibrate → dedup path. Events are processed one at
// a time in arrival order; the registry is only touched from the processing
// goroutine, and only immutable Reading snapshots cross into the sink.
type Loop struct {
	source   Source
	reg      *registry.Registry
	sink     ReadingSink
	counters *stats.Counters
	logger   *slog.Logger
	opts     Options

	events chan ble.Advertisement
}

func NewLoop(source Source, reg *registry.Registry, sink ReadingSink, counters *stats.Counters, logger *slog.Logger, opts Options) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:   source,
		reg:      reg,
		sink:     sink,
		counters: counters,
		logger:   logger,
		opts:     opts,
		events:   make(chan ble.Advertisement, eventBuffer),
	}
}

// Run consumes advertisements until ctx is cancelled. A source that fails to
// start is the only fatal error; everything after startup degrades per event.
func (l *Loop) Run(ctx context.Context) error {
	srcErr := make(chan error, 1)
	go func() {
		srcErr <- l.source.Run(ctx, l.onAdvert)
	}()

	var pruneC <-chan time.Time
	if l.opts.PruneAfter > 0 {
		t := time.NewTicker(pruneCheckInterval)
		defer t.Stop()
		pruneC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scan loop stopping")
			return nil
		case err := <-srcErr:
			if err != nil {
				return fmt.Errorf("advertisement source: %w", err)
			}
			return nil
		case <-pruneC:
			for _, id := range l.reg.Prune(l.opts.PruneAfter, time.Now()) {
				l.logger.Info("device pruned after silence", "device_id", id)
			}
		case adv := <-l.events:
			l.process(adv)
		}
	}
}

// onAdvert runs on the radio callback goroutine. It must never block, so a
// full buffer drops the event.
func (l *Loop) onAdvert(adv ble.Advertisement) {
	select {
	case l.events <- adv:
	default:
		l.counters.EventDropped()
	}
}

func (l *Loop) process(adv ble.Advertisement) {
	frame, err := broodminder.Decode(adv.CompanyID, adv.Data)
	if err != nil {
		if errors.Is(err, broodminder.ErrUnsupportedModel) {
			l.counters.UnsupportedModel()
		} else {
			l.counters.DecodeError()
		}
		l.logger.Debug("advertisement discarded",
			"addr", adv.Address,
			"data", utils.BytesToHex(adv.Data),
			"error", err,
		)
		return
	}

	id := identityFor(adv)
	outcome := l.reg.Observe(id, frame, adv.ReceivedAt)
	switch outcome {
	case registry.Duplicate:
		l.counters.Duplicate()
		return
	case registry.Stale:
		l.counters.Stale()
		l.logger.Debug("stale sequence ignored",
			"device_id", id,
			"sequence", frame.Sequence,
		)
		return
	case registry.NewDevice:
		l.logger.Info("new device detected",
			"device_id", id,
			"model", frame.Model.String(),
			"firmware", frame.Firmware(),
			"rssi", adv.RSSI,
		)
	}

	l.sink.Enqueue(l.buildReading(id, frame, adv))
}

// identityFor derives the stable device identity. BroodMinder devices
// advertise their printed ID (e.g. "47:01:01") as the local name; the BLE
// address is the fallback for firmware that omits it.
func identityFor(adv ble.Advertisement) string {
	if adv.LocalName != "" {
		return adv.LocalName
	}
	return adv.Address
}

// buildReading calibrates the frame's raw codes. Fields whose codes are
// sentinels or calibrate outside the documented envelope are left absent,
// never forwarded as plausible-looking numbers.
func (l *Loop) buildReading(id string, frame broodminder.Frame, adv ble.Advertisement) telemetry.Reading {
	r := telemetry.Reading{
		DeviceID:  id,
		Model:     frame.Model.String(),
		Timestamp: adv.ReceivedAt,
		Sequence:  int(frame.Sequence),
	}

	tempRaw := frame.TempRaw
	if l.opts.RealtimeTemp && frame.HasRealtime {
		tempRaw = frame.RealtimeTempRaw
	}
	if c, ok := broodminder.TemperatureCelsius(frame.Model, tempRaw); ok {
		r.Temperature = &c
	} else {
		l.counters.SuspectField()
		l.logger.Warn("temperature outside operating envelope, omitted",
			"device_id", id,
			"raw", tempRaw,
			"celsius", c,
		)
	}

	battery := broodminder.BatteryPercent(frame.BatteryRaw)
	r.Battery = &battery

	if frame.HasHumidity {
		if h, ok := broodminder.HumidityPercent(frame.HumidityRaw); ok {
			r.Humidity = &h
		}
	}

	if frame.HasWeight {
		if kg, ok := totalWeight(frame); ok {
			r.Weight = &kg
		}
	}

	rssi := int(adv.RSSI)
	r.RSSI = &rssi

	return r
}

// totalWeight sums the valid load cells. ok is false when every cell
// reported a sentinel.
func totalWeight(frame broodminder.Frame) (float64, bool) {
	cells := []uint16{frame.WeightLeftRaw, frame.WeightRightRaw}
	if frame.Has4Cell {
		cells = append(cells, frame.WeightLeft2Raw, frame.WeightRight2Raw)
	}

	var total float64
	valid := false
	for _, raw := range cells {
		if kg, ok := broodminder.WeightKilograms(raw); ok {
			total += kg
			valid = true
		}
	}
	return total, valid
}
