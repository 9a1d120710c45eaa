package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// CreditFacilityRepository implements usecase.CreditFacilityRepository.
type CreditFacilityRepository struct {
	db     querier
	events eventStore[domain.CreditFacilityEvent]
}

// NewCreditFacilityRepository creates a new CreditFacilityRepository.
func NewCreditFacilityRepository(pool *pgxpool.Pool) *CreditFacilityRepository {
	return newCreditFacilityRepository(pool)
}

func newCreditFacilityRepository(db querier) *CreditFacilityRepository {
	return &CreditFacilityRepository{
		db:     db,
		events: newEventStore("credit_facility_events", domain.CreditFacilityEvents),
	}
}

// Create stores a new facility with its initial events.
func (r *CreditFacilityRepository) Create(ctx context.Context, tx usecase.Transaction, facility *domain.CreditFacility) error {
	now := r.events.now()
	return r.events.create(ctx, txQuerier(tx), facility.Events, `
		INSERT INTO credit_facilities (id, customer_id, status, matures_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`,
		facility.ID,
		facility.CustomerID,
		string(facility.Status()),
		facility.MaturesAt(),
		facility.Events.Len(),
		now,
	)
}

// Update appends pending events if the stored version is unchanged.
func (r *CreditFacilityRepository) Update(ctx context.Context, tx usecase.Transaction, facility *domain.CreditFacility) error {
	return r.events.update(ctx, txQuerier(tx), facility.Events, `
		UPDATE credit_facilities
		SET status = $3, matures_at = $4, version = $5, updated_at = $6
		WHERE id = $1 AND version = $2
	`,
		facility.ID,
		facility.Version(),
		string(facility.Status()),
		facility.MaturesAt(),
		facility.Events.Len(),
		r.events.now(),
	)
}

// GetByID loads a facility outside a transaction.
func (r *CreditFacilityRepository) GetByID(ctx context.Context, id string) (*domain.CreditFacility, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads a facility inside tx.
func (r *CreditFacilityRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.CreditFacility, error) {
	return r.get(ctx, txQuerier(tx), id)
}

func (r *CreditFacilityRepository) get(ctx context.Context, db querier, id string) (*domain.CreditFacility, error) {
	events, err := r.events.load(ctx, db, id, domain.ErrCreditFacilityNotFound)
	if err != nil {
		return nil, err
	}
	return domain.CreditFacilityFromEvents(events)
}

// List returns facilities newest first.
func (r *CreditFacilityRepository) List(ctx context.Context, limit, offset int) ([]*domain.CreditFacility, error) {
	ids, err := scanIDs(ctx, r.db, `
		SELECT id FROM credit_facilities
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}

	logs, err := r.events.loadMany(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	facilities := make([]*domain.CreditFacility, 0, len(ids))
	for _, id := range ids {
		events, ok := logs[id]
		if !ok {
			continue
		}
		facility, err := domain.CreditFacilityFromEvents(events)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, facility)
	}
	return facilities, nil
}

// ListMaturing returns ids of active facilities due to mature at now.
func (r *CreditFacilityRepository) ListMaturing(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return scanIDs(ctx, r.db, `
		SELECT id FROM credit_facilities
		WHERE status = $1 AND matures_at <= $2
		ORDER BY matures_at, id
		LIMIT $3
	`, string(domain.CreditFacilityStatusActive), now, limit)
}
