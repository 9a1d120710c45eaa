package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// ObligationRepository implements usecase.ObligationRepository.
type ObligationRepository struct {
	db     querier
	events eventStore[domain.ObligationEvent]
}

// NewObligationRepository creates a new ObligationRepository.
func NewObligationRepository(pool *pgxpool.Pool) *ObligationRepository {
	return newObligationRepository(pool)
}

func newObligationRepository(db querier) *ObligationRepository {
	return &ObligationRepository{
		db:     db,
		events: newEventStore("obligation_events", domain.ObligationEvents),
	}
}

// Create stores a new obligation with its initial events.
func (r *ObligationRepository) Create(ctx context.Context, tx usecase.Transaction, obligation *domain.Obligation) error {
	now := r.events.now()
	return r.events.create(ctx, txQuerier(tx), obligation.Events, `
		INSERT INTO obligations (id, facility_id, obligation_type, status, next_transition_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`,
		obligation.ID,
		obligation.FacilityID,
		string(obligation.Type),
		string(obligation.Status()),
		nextTransitionAt(obligation),
		obligation.Events.Len(),
		now,
	)
}

// Update appends pending events if the stored version is unchanged.
func (r *ObligationRepository) Update(ctx context.Context, tx usecase.Transaction, obligation *domain.Obligation) error {
	return r.events.update(ctx, txQuerier(tx), obligation.Events, `
		UPDATE obligations
		SET status = $3, next_transition_at = $4, version = $5, updated_at = $6
		WHERE id = $1 AND version = $2
	`,
		obligation.ID,
		obligation.Version(),
		string(obligation.Status()),
		nextTransitionAt(obligation),
		obligation.Events.Len(),
		r.events.now(),
	)
}

// GetByIDTx loads an obligation inside tx.
func (r *ObligationRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Obligation, error) {
	events, err := r.events.load(ctx, txQuerier(tx), id, domain.ErrObligationNotFound)
	if err != nil {
		return nil, err
	}
	return domain.ObligationFromEvents(events)
}

// ListByFacility returns the obligations of a facility in creation order.
func (r *ObligationRepository) ListByFacility(ctx context.Context, facilityID string) ([]*domain.Obligation, error) {
	return r.listByFacility(ctx, r.db, facilityID)
}

// ListByFacilityTx returns the obligations of a facility inside tx.
func (r *ObligationRepository) ListByFacilityTx(ctx context.Context, tx usecase.Transaction, facilityID string) ([]*domain.Obligation, error) {
	return r.listByFacility(ctx, txQuerier(tx), facilityID)
}

func (r *ObligationRepository) listByFacility(ctx context.Context, db querier, facilityID string) ([]*domain.Obligation, error) {
	ids, err := scanIDs(ctx, db, `
		SELECT id FROM obligations
		WHERE facility_id = $1
		ORDER BY created_at, id
	`, facilityID)
	if err != nil {
		return nil, err
	}

	logs, err := r.events.loadMany(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	obligations := make([]*domain.Obligation, 0, len(ids))
	for _, id := range ids {
		events, ok := logs[id]
		if !ok {
			continue
		}
		obligation, err := domain.ObligationFromEvents(events)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, obligation)
	}
	return obligations, nil
}

// ListDueForTransition returns ids of obligations whose next bucket move is due.
func (r *ObligationRepository) ListDueForTransition(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return scanIDs(ctx, r.db, `
		SELECT id FROM obligations
		WHERE next_transition_at IS NOT NULL AND next_transition_at <= $1
		ORDER BY next_transition_at, id
		LIMIT $2
	`, now, limit)
}

func nextTransitionAt(obligation *domain.Obligation) *time.Time {
	at, ok := obligation.NextTransitionAt()
	if !ok {
		return nil
	}
	return &at
}
