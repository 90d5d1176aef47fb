// Package stats holds the pipeline's countable outcomes.
package stats

import "sync/atomic"

// Counters accumulates per-event outcomes across the pipeline. All methods
// are safe for concurrent use; failures are counted here instead of being
// silently swallowed.
type Counters struct {
	decodeErrors      atomic.Uint64
	unsupportedModels atomic.Uint64
	duplicates        atomic.Uint64
	stale             atomic.Uint64
	suspectFields     atomic.Uint64
	eventsDropped     atomic.Uint64
	queueDropped      atomic.Uint64
	published         atomic.Uint64
	publishRetries    atomic.Uint64
	publishFailures   atomic.Uint64
}

func (c *Counters) DecodeError()      { c.decodeErrors.Add(1) }
func (c *Counters) UnsupportedModel() { c.unsupportedModels.Add(1) }
func (c *Counters) Duplicate()        { c.duplicates.Add(1) }
func (c *Counters) Stale()            { c.stale.Add(1) }
func (c *Counters) SuspectField()     { c.suspectFields.Add(1) }
func (c *Counters) EventDropped()     { c.eventsDropped.Add(1) }
func (c *Counters) QueueDropped()     { c.queueDropped.Add(1) }
func (c *Counters) Published()        { c.published.Add(1) }
func (c *Counters) PublishRetry()     { c.publishRetries.Add(1) }
func (c *Counters) PublishFailure()   { c.publishFailures.Add(1) }

// Snapshot is a point-in-time copy of all counters, shaped for JSON.
type Snapshot struct {
	DecodeErrors      uint64 `json:"decode_errors"`
	UnsupportedModels uint64 `json:"unsupported_models"`
	Duplicates        uint64 `json:"duplicates"`
	Stale             uint64 `json:"stale"`
	SuspectFields     uint64 `json:"suspect_fields"`
	EventsDropped     uint64 `json:"events_dropped"`
	QueueDropped      uint64 `json:"queue_dropped"`
	Published         uint64 `json:"published"`
	PublishRetries    uint64 `json:"publish_retries"`
	PublishFailures   uint64 `json:"publish_failures"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DecodeErrors:      c.decodeErrors.Load(),
		UnsupportedModels: c.unsupportedModels.Load(),
		Duplicates:        c.duplicates.Load(),
		Stale:             c.stale.Load(),
		SuspectFields:     c.suspectFields.Load(),
		EventsDropped:     c.eventsDropped.Load(),
		QueueDropped:      c.queueDropped.Load(),
		Published:         c.published.Load(),
		PublishRetries:    c.publishRetries.Load(),
		PublishFailures:   c.publishFailures.Load(),
	}
}
