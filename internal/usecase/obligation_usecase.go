package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// ObligationUseCase moves obligations through their receivable buckets as
// their dates pass.
type ObligationUseCase struct {
	txManager      TransactionManager
	retrier        Retrier
	obligationRepo ObligationRepository
	authorizer     Authorizer
	book           *facilityBook
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// NewObligationUseCase creates a new ObligationUseCase.
func NewObligationUseCase(
	txManager TransactionManager,
	retrier Retrier,
	obligationRepo ObligationRepository,
	outboxRepo OutboxRepository,
	authorizer Authorizer,
	idGen IDGenerator,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *ObligationUseCase {
	return &ObligationUseCase{
		txManager:      txManager,
		retrier:        retrier,
		obligationRepo: obligationRepo,
		authorizer:     authorizer,
		book: &facilityBook{
			obligationRepo: obligationRepo,
			outbox:         outbox{repo: outboxRepo, idGen: idGen},
			logger:         logger,
			metrics:        metrics,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// ProcessTransitions records every bucket move that became effective by now
// and returns how many obligations changed.
func (uc *ObligationUseCase) ProcessTransitions(ctx context.Context, now time.Time) (int, error) {
	ids, err := uc.obligationRepo.ListDueForTransition(ctx, now, DefaultBatchSize)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		moved, err := uc.Transition(ctx, id, now)
		if err != nil {
			if uc.metrics != nil {
				uc.metrics.UseCaseErrors.WithLabelValues("obligation_transition").Inc()
			}
			uc.logger.Error().Err(err).Str("obligation_id", id).Msg("failed to transition obligation")
			continue
		}
		if moved {
			changed++
		}
	}

	return changed, nil
}

// Transition applies the effective bucket moves of one obligation. An
// obligation that skipped a run catches up through every bucket in order.
func (uc *ObligationUseCase) Transition(ctx context.Context, obligationID string, now time.Time) (bool, error) {
	moved := false
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		moved = false

		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectObligation, obligationID, domain.AuditActionObligationTransition)
		if err != nil {
			return err
		}

		obligation, err := uc.obligationRepo.GetByIDTx(ctx, tx, obligationID)
		if err != nil {
			return err
		}

		for {
			at, ok := obligation.NextTransitionAt()
			if !ok || now.Before(at) {
				break
			}

			from := obligation.Status()
			result, err := uc.next(obligation, now, audit)
			if err != nil {
				return err
			}
			if result.WasIgnored() {
				break
			}

			to := obligation.Status()
			if uc.metrics != nil {
				uc.metrics.ObligationTransitions.WithLabelValues(string(to)).Inc()
			}

			payload := map[string]any{
				"obligation_id":   obligation.ID,
				"facility_id":     obligation.FacilityID,
				"obligation_type": string(obligation.Type),
				"from":            string(from),
				"to":              string(to),
				"outstanding":     obligation.Outstanding().String(),
			}
			if posting := result.Value(); posting != nil {
				payload[domain.OutboxPayloadPosting] = *posting
			}
			if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypeObligation, obligation.ID, domain.OutboxEventObligationStatusChanged, payload); err != nil {
				return err
			}

			moved = true
		}

		if !moved {
			return nil
		}
		return uc.obligationRepo.Update(ctx, tx, obligation)
	})
	if err != nil {
		return false, err
	}

	return moved, nil
}

func (uc *ObligationUseCase) next(obligation *domain.Obligation, now time.Time, audit domain.AuditInfo) (domain.Idempotent[*domain.LedgerPosting], error) {
	switch obligation.Status() {
	case domain.ObligationStatusNotYetDue:
		return obligation.RecordDue(now, audit)
	case domain.ObligationStatusDue:
		return obligation.RecordOverdue(now, audit)
	case domain.ObligationStatusOverdue:
		return obligation.RecordDefaulted(now, audit)
	default:
		return domain.Ignored[*domain.LedgerPosting](), nil
	}
}
