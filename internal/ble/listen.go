package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

// Advertisement is a single raw observation of a sensor broadcast. Data is
// the manufacturer-specific payload with the company ID already split off by
// the BLE stack.
type Advertisement struct {
	Address    string
	LocalName  string
	RSSI       int16
	CompanyID  uint16
	Data       []byte
	ReceivedAt time.Time
}

type Options struct {
	Adapter   string // "hci0" by default
	CompanyID uint16 // only advertisements carrying this manufacturer ID are delivered
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
	}
}

// Run enables the adapter and scans until ctx is cancelled, invoking onAdvert
// for each advertisement that carries the configured manufacturer ID. An
// error enabling the adapter or starting the scan is returned to the caller;
// it is the one failure the pipeline treats as fatal at startup.
func (l *Listener) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	slog.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	slog.Info("ble: scanning started",
		"adapter", l.opts.Adapter,
		"filter_company", fmt.Sprintf("0x%04X", l.opts.CompanyID),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		for _, md := range r.ManufacturerData() {
			if l.opts.CompanyID != 0 && md.CompanyID != l.opts.CompanyID {
				continue
			}

			obs := Advertisement{
				Address:    r.Address.String(),
				LocalName:  r.LocalName(),
				RSSI:       r.RSSI,
				CompanyID:  md.CompanyID,
				Data:       append([]byte(nil), md.Data...),
				ReceivedAt: time.Now(),
			}
			if onAdvert != nil {
				onAdvert(obs)
			}
			return
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	slog.Info("ble: scanning stopped")
	return nil
}
