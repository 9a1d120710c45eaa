package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// ApprovalProcessRepository implements usecase.ApprovalProcessRepository.
type ApprovalProcessRepository struct {
	db     querier
	events eventStore[domain.ApprovalProcessEvent]
}

// NewApprovalProcessRepository creates a new ApprovalProcessRepository.
func NewApprovalProcessRepository(pool *pgxpool.Pool) *ApprovalProcessRepository {
	return newApprovalProcessRepository(pool)
}

func newApprovalProcessRepository(db querier) *ApprovalProcessRepository {
	return &ApprovalProcessRepository{
		db:     db,
		events: newEventStore("approval_process_events", domain.ApprovalProcessEvents),
	}
}

// Create stores a new process with its initial events.
func (r *ApprovalProcessRepository) Create(ctx context.Context, tx usecase.Transaction, process *domain.ApprovalProcess) error {
	now := r.events.now()
	return r.events.create(ctx, txQuerier(tx), process.Events, `
		INSERT INTO approval_processes (id, process_type, target_ref, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`,
		process.ID,
		string(process.ProcessType),
		process.TargetRef,
		string(process.Status()),
		process.Events.Len(),
		now,
	)
}

// Update appends pending events if the stored version is unchanged.
func (r *ApprovalProcessRepository) Update(ctx context.Context, tx usecase.Transaction, process *domain.ApprovalProcess) error {
	return r.events.update(ctx, txQuerier(tx), process.Events, `
		UPDATE approval_processes
		SET status = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $2
	`,
		process.ID,
		process.Version(),
		string(process.Status()),
		process.Events.Len(),
		r.events.now(),
	)
}

// GetByID loads a process outside a transaction.
func (r *ApprovalProcessRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalProcess, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads a process inside tx.
func (r *ApprovalProcessRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.ApprovalProcess, error) {
	return r.get(ctx, txQuerier(tx), id)
}

func (r *ApprovalProcessRepository) get(ctx context.Context, db querier, id string) (*domain.ApprovalProcess, error) {
	events, err := r.events.load(ctx, db, id, domain.ErrApprovalProcessNotFound)
	if err != nil {
		return nil, err
	}
	return domain.ApprovalProcessFromEvents(events)
}
