package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
)

// ApprovalOutcomeListener routes concluded approval processes to the
// aggregate they decide on. Events arrive at least once; both targets ignore
// repeated outcomes.
type ApprovalOutcomeListener struct {
	facilities *CreditFacilityUseCase
	disbursals *DisbursalUseCase
	logger     zerolog.Logger
}

// NewApprovalOutcomeListener creates a new ApprovalOutcomeListener.
func NewApprovalOutcomeListener(facilities *CreditFacilityUseCase, disbursals *DisbursalUseCase, logger zerolog.Logger) *ApprovalOutcomeListener {
	return &ApprovalOutcomeListener{
		facilities: facilities,
		disbursals: disbursals,
		logger:     logger,
	}
}

// Publish handles one outbox event. Events of other types are ignored.
func (l *ApprovalOutcomeListener) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if event.EventType != domain.OutboxEventApprovalConcluded {
		return nil
	}

	processType := domain.ApprovalProcessType(event.PayloadString("process_type"))
	targetRef := event.PayloadString("target_ref")
	approved := event.PayloadBool("approved")

	ctx = domain.ContextWithUser(ctx, domain.SystemUser())

	var err error
	switch processType {
	case domain.ApprovalProcessTypeCreditFacility:
		_, err = l.facilities.ApplyApprovalOutcome(ctx, targetRef, approved)
	case domain.ApprovalProcessTypeDisbursal:
		_, err = l.disbursals.ApplyApprovalOutcome(ctx, targetRef, approved)
	default:
		l.logger.Warn().
			Str("event_id", event.ID).
			Str("process_type", string(processType)).
			Msg("approval outcome for unknown process type")
		return nil
	}

	// A conflicting outcome can never be applied; redelivering it would
	// fail forever.
	if errors.Is(err, domain.ErrInconsistentIdempotency) {
		l.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("process_type", string(processType)).
			Str("target_ref", targetRef).
			Bool("approved", approved).
			Msg("approval outcome conflicts with recorded outcome")
		return nil
	}
	return err
}
