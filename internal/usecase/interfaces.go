package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
)

// CreditFacilityRepository persists credit facilities and their event logs.
// Update stores pending events and fails with domain.ErrConcurrentModification
// when the stored version moved.
type CreditFacilityRepository interface {
	Create(ctx context.Context, tx Transaction, facility *domain.CreditFacility) error
	Update(ctx context.Context, tx Transaction, facility *domain.CreditFacility) error
	GetByID(ctx context.Context, id string) (*domain.CreditFacility, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.CreditFacility, error)
	List(ctx context.Context, limit, offset int) ([]*domain.CreditFacility, error)
	// ListMaturing returns ids of active facilities whose maturity date is at or before now.
	ListMaturing(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// DisbursalRepository persists disbursals and their event logs.
type DisbursalRepository interface {
	Create(ctx context.Context, tx Transaction, disbursal *domain.Disbursal) error
	Update(ctx context.Context, tx Transaction, disbursal *domain.Disbursal) error
	GetByID(ctx context.Context, id string) (*domain.Disbursal, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Disbursal, error)
	ListByFacility(ctx context.Context, facilityID string) ([]*domain.Disbursal, error)
}

// ObligationRepository persists obligations and their event logs.
type ObligationRepository interface {
	Create(ctx context.Context, tx Transaction, obligation *domain.Obligation) error
	Update(ctx context.Context, tx Transaction, obligation *domain.Obligation) error
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Obligation, error)
	ListByFacility(ctx context.Context, facilityID string) ([]*domain.Obligation, error)
	ListByFacilityTx(ctx context.Context, tx Transaction, facilityID string) ([]*domain.Obligation, error)
	// ListDueForTransition returns ids of unpaid obligations whose next bucket move is at or before now.
	ListDueForTransition(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ApprovalProcessRepository persists approval processes and their event logs.
type ApprovalProcessRepository interface {
	Create(ctx context.Context, tx Transaction, process *domain.ApprovalProcess) error
	Update(ctx context.Context, tx Transaction, process *domain.ApprovalProcess) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalProcess, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.ApprovalProcess, error)
}

// PaymentRepository persists payments with their allocations.
type PaymentRepository interface {
	Create(ctx context.Context, tx Transaction, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error)
}

// GovernanceRepository persists committees and approval policies.
type GovernanceRepository interface {
	CreateCommittee(ctx context.Context, tx Transaction, committee *domain.Committee) error
	UpdateCommittee(ctx context.Context, tx Transaction, committee *domain.Committee) error
	GetCommittee(ctx context.Context, id string) (*domain.Committee, error)
	GetCommitteeTx(ctx context.Context, tx Transaction, id string) (*domain.Committee, error)
	ListCommittees(ctx context.Context) ([]*domain.Committee, error)
	SavePolicy(ctx context.Context, tx Transaction, policy *domain.Policy) error
	GetPolicyTx(ctx context.Context, tx Transaction, processType domain.ApprovalProcessType) (*domain.Policy, error)
	ListPolicies(ctx context.Context) ([]*domain.Policy, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	GetAfterSequence(ctx context.Context, sequence int64, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	GetByResourceID(ctx context.Context, object domain.AuditObject, resourceID string) ([]*domain.AuditLog, error)
}

// HistoryRepository stores the facility history projection and its cursor.
type HistoryRepository interface {
	Append(ctx context.Context, tx Transaction, entry *domain.HistoryEntry) error
	ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.HistoryEntry, error)
	GetCursor(ctx context.Context, tx Transaction, name string) (int64, error)
	SaveCursor(ctx context.Context, tx Transaction, name string, sequence int64) error
}

// LedgerClient talks to the external double-entry ledger. Both calls are
// idempotent on the reference they carry.
type LedgerClient interface {
	CreateAccount(ctx context.Context, account domain.NewLedgerAccount) (string, error)
	Post(ctx context.Context, posting domain.LedgerPosting) (string, error)
}

// PriceProvider returns the collateral price in the facility currency.
type PriceProvider interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
	SetPrice(ctx context.Context, price decimal.Decimal) error
}

// Authorizer checks whether the caller in ctx may perform action. Enforce
// records the decision in the audit log and returns the entry every resulting
// event refers to.
type Authorizer interface {
	Enforce(ctx context.Context, tx Transaction, object domain.AuditObject, resourceID string, action domain.AuditAction) (domain.AuditInfo, error)
	Authorize(ctx context.Context, action domain.AuditAction) error
}

// Retrier re-runs an operation on transient failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	// Get returns nil without error on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claim so the request can be retried.
	Release(ctx context.Context, key string) error
}
