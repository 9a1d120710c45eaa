package usecase

import (
	"context"
	"time"

	"github.com/iho/gocredit/internal/domain"
)

// runInTx executes fn in a transaction bounded by DefaultTransactionTimeout.
// With a retrier the whole unit is re-run on retryable errors, so fn must
// reload everything it mutates. Ids that end up in ledger references are
// generated by the caller before the first attempt.
func runInTx(ctx context.Context, txManager TransactionManager, retrier Retrier, fn func(ctx context.Context, tx Transaction) error) error {
	attempt := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if retrier == nil {
		return attempt()
	}
	return retrier.Retry(ctx, attempt)
}

// outbox writes integration events in the caller's transaction.
type outbox struct {
	repo  OutboxRepository
	idGen IDGenerator
}

func (o outbox) emit(ctx context.Context, tx Transaction, aggregateType, aggregateID, eventType string, payload map[string]any) error {
	if o.repo == nil {
		return nil
	}
	return o.repo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            o.idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	})
}
