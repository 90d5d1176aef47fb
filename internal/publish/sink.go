// Package publish forwards calibrated readings to the message broker,
// decoupled from advertisement ingestion by a bounded queue.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/stats"
	"github.com/TotallyGatsby/brood-flow/internal/telemetry"
)

// Publisher is the broker capability the sink depends on. Connection
// lifecycle, auth, and transport live behind it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

const maxBackoff = 30 * time.Second

type Options struct {
	TopicPrefix       string
	QueueSize         int
	MaxAttempts       int
	BackoffBase       time.Duration
	DiscoveryInterval time.Duration
}

// Sink serializes readings and publishes them with bounded retry. Enqueue
// never blocks: when the queue is full the oldest pending reading is dropped,
// since the radio source cannot be backpressured and unbounded buffering
// would mask a broker outage as memory growth.
type Sink struct {
	pub      Publisher
	opts     Options
	counters *stats.Counters
	logger   *slog.Logger

	mu    sync.Mutex
	queue []telemetry.Reading
	wake  chan struct{}

	discovery map[string]time.Time // device ID -> last config publish
	now       func() time.Time
}

func NewSink(pub Publisher, opts Options, counters *stats.Counters, logger *slog.Logger) *Sink {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "homeassistant"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pub:       pub,
		opts:      opts,
		counters:  counters,
		logger:    logger,
		queue:     make([]telemetry.Reading, 0, opts.QueueSize),
		wake:      make(chan struct{}, 1),
		discovery: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Enqueue hands a reading to the publish worker. Never blocks; drops the
// oldest pending reading when the queue is full.
func (s *Sink) Enqueue(r telemetry.Reading) {
	s.mu.Lock()
	if len(s.queue) >= s.opts.QueueSize {
		dropped := s.queue[0]
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.counters.QueueDropped()
		s.logger.Warn("publish queue full, dropped oldest reading",
			"device_id", dropped.DeviceID,
			"sequence", dropped.Sequence,
		)
	}
	s.queue = append(s.queue, r)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of queued readings.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drains the queue until ctx is cancelled. Each reading is published
// with bounded retry; on exhaustion it is dropped, counted, and the worker
// moves on to the next one.
func (s *Sink) Run(ctx context.Context) {
	for {
		r, ok := s.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		if err := s.forward(ctx, r); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.counters.PublishFailure()
			s.logger.Warn("reading dropped after retry exhaustion",
				"device_id", r.DeviceID,
				"sequence", r.Sequence,
				"error", err,
			)
		}
	}
}

func (s *Sink) dequeue() (telemetry.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return telemetry.Reading{}, false
	}
	r := s.queue[0]
	copy(s.queue, s.queue[1:])
	s.queue = s.queue[:len(s.queue)-1]
	return r, true
}

func (s *Sink) forward(ctx context.Context, r telemetry.Reading) error {
	s.maybePublishDiscovery(ctx, r)

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	topic := StateTopic(s.opts.TopicPrefix, r.DeviceID)
	if err := s.publishWithRetry(ctx, topic, payload, false); err != nil {
		return err
	}

	s.counters.Published()
	s.logger.Info("reading published",
		"topic", topic,
		"device_id", r.DeviceID,
		"sequence", r.Sequence,
	)
	return nil
}

func (s *Sink) publishWithRetry(ctx context.Context, topic string, payload []byte, retained bool) error {
	backoff := s.opts.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		lastErr = s.pub.Publish(topic, payload, retained)
		if lastErr == nil {
			return nil
		}
		if attempt == s.opts.MaxAttempts {
			break
		}

		s.counters.PublishRetry()
		s.logger.Debug("publish failed, backing off",
			"topic", topic,
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.opts.MaxAttempts, lastErr)
}

// deviceKey strips the colons from a BroodMinder printed ID, matching the
// topic shape existing integrations subscribe to.
func deviceKey(deviceID string) string {
	return strings.ReplaceAll(deviceID, ":", "")
}

// StateTopic derives the state topic for a device. Deterministic so
// downstream subscribers survive bridge restarts.
func StateTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/sensor/BM%s/state", prefix, deviceKey(deviceID))
}
