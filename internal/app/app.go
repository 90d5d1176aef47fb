package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/ble"
	"github.com/TotallyGatsby/brood-flow/internal/broodminder"
	"github.com/TotallyGatsby/brood-flow/internal/config"
	"github.com/TotallyGatsby/brood-flow/internal/httpapi"
	"github.com/TotallyGatsby/brood-flow/internal/mqtt"
	"github.com/TotallyGatsby/brood-flow/internal/publish"
	"github.com/TotallyGatsby/brood-flow/internal/registry"
	"github.com/TotallyGatsby/brood-flow/internal/scan"
	"github.com/TotallyGatsby/brood-flow/internal/stats"
)

// idleSource stands in for the radio when BLE is disabled.
type idleSource struct{}

func (idleSource) Run(ctx context.Context, _ func(ble.Advertisement)) error {
	<-ctx.Done()
	return nil
}

// Run wires the pipeline and blocks until ctx is cancelled or the scan loop
// fails at startup. Radio events flow scan loop → registry → sink → broker;
// the registry lives exactly as long as the loop.
func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing bridge",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"ble_adapter", cfg.BLEAdapter,
		"topic_prefix", cfg.TopicPrefix,
	)

	mqttClient, err := mqtt.NewClient(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	// Broker connect runs in the background; readings queue up in the sink
	// while the broker is unreachable and the oldest are shed once full.
	go func() {
		if err := mqttClient.Connect(ctx); err != nil {
			slog.Error("mqtt connect failed", "error", err)
		}
	}()

	counters := &stats.Counters{}
	reg := registry.New()

	sink := publish.NewSink(mqttClient, publish.Options{
		TopicPrefix:       cfg.TopicPrefix,
		QueueSize:         cfg.PublishQueueSize,
		MaxAttempts:       cfg.PublishMaxAttempts,
		BackoffBase:       cfg.PublishBackoffBase,
		DiscoveryInterval: cfg.DiscoveryInterval,
	}, counters, slog.Default())

	sinkCtx, stopSink := context.WithCancel(context.Background())
	defer stopSink()
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		sink.Run(sinkCtx)
	}()

	var source scan.Source = ble.NewListener(ble.Options{
		Adapter:   cfg.BLEAdapter,
		CompanyID: broodminder.ManufacturerID,
	})
	if !cfg.BLEEnabled {
		slog.Warn("ble disabled; bridge runs without a radio source")
		source = idleSource{}
	}
	loop := scan.NewLoop(source, reg, sink, counters, slog.Default(), scan.Options{
		RealtimeTemp: cfg.RealtimeTemp,
		PruneAfter:   cfg.RegistryPruneAfter,
	})

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(ctx)
	}()

	srv := httpapi.NewServer(cfg, httpapi.NewMux(reg, counters, mqttClient))
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-loopErr:
		if runErr != nil {
			slog.Error("scan loop failed", "error", runErr)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	slog.Info("bridge shutting down")

	// Give queued readings a short window to flush, then stop the worker.
	drainDeadline := time.After(3 * time.Second)
	for sink.Pending() > 0 {
		select {
		case <-drainDeadline:
			slog.Warn("shutdown with unflushed readings", "pending", sink.Pending())
		case <-time.After(50 * time.Millisecond):
			continue
		}
		break
	}
	stopSink()
	<-sinkDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}
