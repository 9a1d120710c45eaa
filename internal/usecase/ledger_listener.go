package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// LedgerPostingListener books the postings carried by outbox events. Such
// postings depend on the state their transaction saw, so they reach the
// ledger only once that transaction committed. Redelivery reuses the
// reference written with the event and the ledger books it once.
type LedgerPostingListener struct {
	book   *facilityBook
	logger zerolog.Logger
}

// NewLedgerPostingListener creates a new LedgerPostingListener.
func NewLedgerPostingListener(ledger LedgerClient, logger zerolog.Logger, metrics *metrics.Metrics) *LedgerPostingListener {
	return &LedgerPostingListener{
		book:   &facilityBook{ledger: ledger, logger: logger, metrics: metrics},
		logger: logger,
	}
}

// Publish books the event's posting. Events without one are ignored.
func (l *LedgerPostingListener) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	raw, ok := event.Payload[domain.OutboxPayloadPosting]
	if !ok || raw == nil {
		return nil
	}

	posting, err := domain.LedgerPostingFromPayload(raw)
	if err != nil {
		// Redelivering a malformed posting would fail forever.
		l.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.EventType).
			Msg("outbox event carries an invalid ledger posting")
		return nil
	}

	_, err = l.book.post(ctx, posting)
	return err
}
