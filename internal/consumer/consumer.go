// Package consumer runs the ingestion loop: decode, classify, merge or
// quarantine, acknowledge.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tripstream-systems/tripstream/internal/dedup"
	"github.com/tripstream-systems/tripstream/internal/metrics"
	"github.com/tripstream-systems/tripstream/internal/quarantine"
	"github.com/tripstream-systems/tripstream/internal/reconciler"
	"github.com/tripstream-systems/tripstream/internal/validator"
)

// Mirror receives a best-effort copy of each quarantined event for
// investigation tooling. Implementations must not block ingestion: errors
// are theirs to log and swallow.
type Mirror interface {
	IndexFailure(ctx context.Context, entityID, reason string, payload map[string]any)
}

// DLQ receives undecodable envelopes which cannot be quarantined because no
// identifier can be trusted.
type DLQ interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Stats counts per-event outcomes for the run summary.
type Stats struct {
	Succeeded   atomic.Uint64
	Quarantined atomic.Uint64
	Failed      atomic.Uint64
	Duplicates  atomic.Uint64
}

// Consumer wires the validator, reconciler and quarantine together over a
// JetStream subscription. Events are processed independently; the only
// cross-event coordination is the store's atomic per-identifier upsert.
type Consumer struct {
	reconciler *reconciler.Reconciler
	quarantine *quarantine.Accumulator
	cache      *dedup.Cache
	mirror     Mirror
	dlq        DLQ
	logger     *slog.Logger

	Stats Stats
}

// Option configures optional collaborators.
type Option func(*Consumer)

// WithDedup attaches the duplicate suppression cache.
func WithDedup(cache *dedup.Cache) Option {
	return func(c *Consumer) { c.cache = cache }
}

// WithMirror attaches the quarantine search mirror.
func WithMirror(m Mirror) Option {
	return func(c *Consumer) { c.mirror = m }
}

// WithDLQ attaches a dead-letter sink for undecodable envelopes.
func WithDLQ(d DLQ) Option {
	return func(c *Consumer) { c.dlq = d }
}

// New creates a consumer.
func New(rec *reconciler.Reconciler, quar *quarantine.Accumulator, logger *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		reconciler: rec,
		quarantine: quar,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes one delivery. A nil return acknowledges the message; an
// error leaves it unacknowledged so the transport redelivers it. Only
// transient store failures return errors — validation and decode failures
// are terminal for the event and are absorbed here so one bad payload never
// stalls the stream.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	payload, err := decode(data)
	if err != nil {
		// Nothing trustworthy to quarantine under; count it and move on.
		c.Stats.Failed.Add(1)
		metrics.EventsTotal.WithLabelValues("decode_error").Inc()
		c.logger.Warn("undecodable event envelope", "error", err, "bytes", len(data))
		if c.dlq != nil {
			if dlqErr := c.dlq.Publish(ctx, "trips.dlq.decode", data); dlqErr != nil {
				c.logger.Error("failed to publish decode failure to DLQ", "error", dlqErr)
			}
		}
		return nil
	}

	phase, reason := validator.Classify(payload)
	if phase == validator.PhaseInvalid {
		return c.sendToQuarantine(ctx, payload, reason)
	}

	if c.cache.Seen(ctx, data) {
		c.Stats.Duplicates.Add(1)
		metrics.DedupHits.Inc()
		return nil
	}

	entityID, _ := validator.EntityID(payload)
	start := time.Now()
	if err := c.reconciler.Merge(ctx, entityID, payload); err != nil {
		metrics.StoreErrors.Inc()
		c.logger.Error("merge failed, leaving event for redelivery",
			"entity_id", entityID, "phase", string(phase), "error", err)
		return err
	}
	metrics.MergeDuration.Observe(time.Since(start).Seconds())

	// Marked only once the merge has landed, so a redelivery after a store
	// failure is retried rather than absorbed as a duplicate.
	c.cache.Mark(ctx, data)

	c.Stats.Succeeded.Add(1)
	metrics.EventsTotal.WithLabelValues("merged").Inc()
	c.logger.Debug("merged event", "entity_id", entityID, "phase", string(phase))
	return nil
}

func (c *Consumer) sendToQuarantine(ctx context.Context, payload map[string]any, reason string) error {
	entityID, ok := validator.EntityID(payload)
	if !ok {
		entityID = quarantine.SyntheticID()
	}

	if err := c.quarantine.Record(ctx, entityID, reason, payload); err != nil {
		// Quarantine writes hit the same store; unavailability is just as
		// retryable here.
		metrics.StoreErrors.Inc()
		c.logger.Error("quarantine write failed, leaving event for redelivery",
			"entity_id", entityID, "error", err)
		return err
	}

	c.Stats.Quarantined.Add(1)
	metrics.EventsTotal.WithLabelValues("quarantined").Inc()
	metrics.QuarantineTotal.WithLabelValues(reasonClass(reason)).Inc()
	c.logger.Info("quarantined event", "entity_id", entityID, "reason", reason)

	if c.mirror != nil {
		c.mirror.IndexFailure(ctx, entityID, reason, payload)
	}
	return nil
}

// Start consumes messages until the returned context is stopped.
func (c *Consumer) Start(ctx context.Context, js jetstream.Consumer) (jetstream.ConsumeContext, error) {
	return js.Consume(func(msg jetstream.Msg) {
		if err := c.Handle(ctx, msg.Data()); err != nil {
			if nakErr := msg.Nak(); nakErr != nil {
				c.logger.Error("failed to nak message", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
	})
}

// decode parses a JSON envelope preserving numeric literals exactly.
func decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func reasonClass(reason string) string {
	switch {
	case reason == validator.ReasonMissingIdentifier:
		return "missing_identifier"
	case reason == validator.ReasonUnknownRecordType:
		return "unknown_type"
	case strings.HasPrefix(reason, "missing or blank field"):
		return "missing_field"
	default:
		return "other"
	}
}
