package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// DisbursalRepository implements usecase.DisbursalRepository.
type DisbursalRepository struct {
	db     querier
	events eventStore[domain.DisbursalEvent]
}

// NewDisbursalRepository creates a new DisbursalRepository.
func NewDisbursalRepository(pool *pgxpool.Pool) *DisbursalRepository {
	return newDisbursalRepository(pool)
}

func newDisbursalRepository(db querier) *DisbursalRepository {
	return &DisbursalRepository{
		db:     db,
		events: newEventStore("disbursal_events", domain.DisbursalEvents),
	}
}

// Create stores a new disbursal with its initial events.
func (r *DisbursalRepository) Create(ctx context.Context, tx usecase.Transaction, disbursal *domain.Disbursal) error {
	now := r.events.now()
	return r.events.create(ctx, txQuerier(tx), disbursal.Events, `
		INSERT INTO disbursals (id, facility_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`,
		disbursal.ID,
		disbursal.FacilityID,
		string(disbursal.Status()),
		disbursal.Events.Len(),
		now,
	)
}

// Update appends pending events if the stored version is unchanged.
func (r *DisbursalRepository) Update(ctx context.Context, tx usecase.Transaction, disbursal *domain.Disbursal) error {
	return r.events.update(ctx, txQuerier(tx), disbursal.Events, `
		UPDATE disbursals
		SET status = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $2
	`,
		disbursal.ID,
		disbursal.Version(),
		string(disbursal.Status()),
		disbursal.Events.Len(),
		r.events.now(),
	)
}

// GetByID loads a disbursal outside a transaction.
func (r *DisbursalRepository) GetByID(ctx context.Context, id string) (*domain.Disbursal, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads a disbursal inside tx.
func (r *DisbursalRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Disbursal, error) {
	return r.get(ctx, txQuerier(tx), id)
}

func (r *DisbursalRepository) get(ctx context.Context, db querier, id string) (*domain.Disbursal, error) {
	events, err := r.events.load(ctx, db, id, domain.ErrDisbursalNotFound)
	if err != nil {
		return nil, err
	}
	return domain.DisbursalFromEvents(events)
}

// ListByFacility returns the disbursals of a facility in creation order.
func (r *DisbursalRepository) ListByFacility(ctx context.Context, facilityID string) ([]*domain.Disbursal, error) {
	ids, err := scanIDs(ctx, r.db, `
		SELECT id FROM disbursals
		WHERE facility_id = $1
		ORDER BY created_at, id
	`, facilityID)
	if err != nil {
		return nil, err
	}

	logs, err := r.events.loadMany(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	disbursals := make([]*domain.Disbursal, 0, len(ids))
	for _, id := range ids {
		events, ok := logs[id]
		if !ok {
			continue
		}
		disbursal, err := domain.DisbursalFromEvents(events)
		if err != nil {
			return nil, err
		}
		disbursals = append(disbursals, disbursal)
	}
	return disbursals, nil
}
