package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
)

// HistoryUseCase maintains and serves the facility history projection. The
// projection follows the outbox by sequence and resumes from a stored cursor.
type HistoryUseCase struct {
	txManager   TransactionManager
	outboxRepo  OutboxRepository
	historyRepo HistoryRepository
	authorizer  Authorizer
	logger      zerolog.Logger
}

// NewHistoryUseCase creates a new HistoryUseCase.
func NewHistoryUseCase(
	txManager TransactionManager,
	outboxRepo OutboxRepository,
	historyRepo HistoryRepository,
	authorizer Authorizer,
	logger zerolog.Logger,
) *HistoryUseCase {
	return &HistoryUseCase{
		txManager:   txManager,
		outboxRepo:  outboxRepo,
		historyRepo: historyRepo,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// Project appends up to batchSize outbox events after the cursor to the
// history and advances the cursor in the same transaction. It returns the
// number of events consumed.
func (uc *HistoryUseCase) Project(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	consumed := 0
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		cursor, err := uc.historyRepo.GetCursor(ctx, tx, FacilityHistoryCursor)
		if err != nil {
			return err
		}

		events, err := uc.outboxRepo.GetAfterSequence(ctx, cursor, batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		for _, event := range events {
			facilityID := event.FacilityID()
			if facilityID == "" {
				continue
			}
			if err := uc.historyRepo.Append(ctx, tx, &domain.HistoryEntry{
				FacilityID: facilityID,
				Sequence:   event.Sequence,
				EventType:  event.EventType,
				Summary:    event.Payload,
				RecordedAt: event.CreatedAt,
			}); err != nil {
				return err
			}
		}

		consumed = len(events)
		return uc.historyRepo.SaveCursor(ctx, tx, FacilityHistoryCursor, events[len(events)-1].Sequence)
	})
	if err != nil {
		return 0, err
	}

	if consumed > 0 {
		uc.logger.Debug().Int("events", consumed).Msg("facility history projected")
	}

	return consumed, nil
}

// List returns a facility's history, oldest first.
func (uc *HistoryUseCase) List(ctx context.Context, facilityID string, limit, offset int) ([]*domain.HistoryEntry, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}

	limit, offset = domain.ClampPage(limit, offset)
	return uc.historyRepo.ListByFacility(ctx, facilityID, limit, offset)
}
