package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
	"github.com/iho/gocredit/internal/usecase"
)

const defaultInterval = 5 * time.Second

// Publisher receives every outbox event. Returning an error leaves the event
// unpublished so the whole chain sees it again on the next poll.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event *domain.OutboxEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	return f(ctx, event)
}

type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publishers []Publisher
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	// BatchSize bounds how many events one poll loads.
	BatchSize int
	Interval  time.Duration
}

// EventPublisher polls the outbox and relays events in creation order.
// Delivery is at least once: an event is marked published only after every
// publisher accepted it.
type EventPublisher struct {
	outbox     usecase.OutboxRepository
	publishers []Publisher
	log        zerolog.Logger
	metrics    *metrics.Metrics
	batchSize  int
	interval   time.Duration
	now        func() time.Time
}

func NewEventPublisher(cfg Config) *EventPublisher {
	ep := &EventPublisher{
		outbox:     cfg.OutboxRepo,
		publishers: cfg.Publishers,
		log:        cfg.Logger.With().Str("component", "event_publisher").Logger(),
		metrics:    cfg.Metrics,
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if ep.batchSize <= 0 {
		ep.batchSize = usecase.DefaultBatchSize
	}
	if ep.interval <= 0 {
		ep.interval = defaultInterval
	}
	return ep
}

// Start polls until ctx is cancelled and returns ctx.Err().
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.log.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Int("publishers", len(ep.publishers)).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		ep.poll(ctx)

		select {
		case <-ctx.Done():
			ep.log.Info().Msg("event publisher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (ep *EventPublisher) poll(ctx context.Context) {
	res, err := ep.drain(ctx)
	if err != nil {
		ep.log.Error().Err(err).Msg("load outbox events")
		return
	}
	if res.failed > 0 {
		ep.log.Warn().Int("published", res.published).Int("failed", res.failed).Msg("outbox batch partially delivered")
	}
}

type drainResult struct {
	published int
	failed    int
}

// drain delivers one batch. A failing event does not hold back the rest of
// the batch.
func (ep *EventPublisher) drain(ctx context.Context) (drainResult, error) {
	var res drainResult

	events, err := ep.outbox.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return res, fmt.Errorf("get unpublished: %w", err)
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return res, nil
		}
		log := ep.log.With().
			Str("event_id", event.ID).
			Str("event_type", event.EventType).
			Int64("sequence", event.Sequence).
			Logger()

		if err := ep.deliver(ctx, event); err != nil {
			res.failed++
			ep.count(event.EventType, false)
			log.Error().Err(err).Msg("deliver event")
			continue
		}
		if err := ep.outbox.MarkPublished(ctx, event.ID, ep.now()); err != nil {
			res.failed++
			log.Error().Err(err).Msg("mark event published")
			continue
		}
		res.published++
		ep.count(event.EventType, true)
	}
	return res, nil
}

func (ep *EventPublisher) deliver(ctx context.Context, event *domain.OutboxEvent) error {
	for i, p := range ep.publishers {
		if err := p.Publish(ctx, event); err != nil {
			return fmt.Errorf("publisher %d: %w", i, err)
		}
	}
	return nil
}

func (ep *EventPublisher) count(eventType string, ok bool) {
	if ep.metrics == nil {
		return
	}
	if ok {
		ep.metrics.OutboxPublished.WithLabelValues(eventType).Inc()
		return
	}
	ep.metrics.OutboxErrors.WithLabelValues(eventType).Inc()
}

// LogPublisher writes every event to the log.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", event.ID, err)
	}

	p.log.Info().
		Str("event_id", event.ID).
		Int64("sequence", event.Sequence).
		Str("event_type", event.EventType).
		Str("aggregate_type", event.AggregateType).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", payload).
		Msg("event published")
	return nil
}
