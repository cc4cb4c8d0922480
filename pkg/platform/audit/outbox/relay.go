// Package outbox relays audit events committed to the outbox table onto
// Kafka. Delivery is at-least-once: an entry is marked processed only after
// the broker acknowledged it, in the same transaction that claimed it.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loanmanager/internal/platform/kafka"
)

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Source,Producer

// Entry is one unpublished outbox row.
type Entry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Source claims unpublished entries. Process hands up to limit entries to fn
// and marks them processed when fn returns nil; on error they stay pending.
type Source interface {
	Process(ctx context.Context, limit int, fn func(ctx context.Context, entries []Entry) error) (int, error)
	Pending(ctx context.Context) (int, error)
}

// Producer publishes messages to the audit topic.
type Producer interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

// Metrics receives one observation per poll.
type Metrics interface {
	ObserveOutboxBatch(pending, published int)
	IncrementOutboxFailures()
}

// Relay polls the outbox and forwards entries to Kafka.
type Relay struct {
	source    Source
	producer  Producer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   Metrics
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func New(source Source, producer Producer, opts ...Option) (*Relay, error) {
	if source == nil {
		return nil, errors.New("outbox source is required")
	}
	if producer == nil {
		return nil, errors.New("outbox producer is required")
	}
	r := &Relay{
		source:    source,
		producer:  producer,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes full batches until the outbox has fewer than batchSize
// pending entries, returning how many were published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.source.Process(ctx, r.batchSize, r.publish)
		if err != nil {
			if r.metrics != nil {
				r.metrics.IncrementOutboxFailures()
			}
			return total, err
		}
		total += n
		if n < r.batchSize {
			break
		}
	}

	if r.metrics != nil {
		pending, err := r.source.Pending(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "outbox pending count failed", "error", err)
		}
		r.metrics.ObserveOutboxBatch(pending, total)
	}
	if total > 0 {
		r.logger.DebugContext(ctx, "outbox relay published", "count", total)
	}
	return total, nil
}

func (r *Relay) publish(ctx context.Context, entries []Entry) error {
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_id":       e.ID,
				"event_type":     e.EventType,
				"aggregate_type": e.AggregateType,
			},
		})
	}
	return r.producer.Publish(ctx, msgs)
}
