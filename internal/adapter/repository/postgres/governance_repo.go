package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// GovernanceRepository implements usecase.GovernanceRepository.
type GovernanceRepository struct {
	db querier
}

// NewGovernanceRepository creates a new GovernanceRepository.
func NewGovernanceRepository(pool *pgxpool.Pool) *GovernanceRepository {
	return newGovernanceRepository(pool)
}

func newGovernanceRepository(db querier) *GovernanceRepository {
	return &GovernanceRepository{db: db}
}

const committeeColumns = `id, name, members, created_at, updated_at`

// CreateCommittee inserts a committee.
func (r *GovernanceRepository) CreateCommittee(ctx context.Context, tx usecase.Transaction, committee *domain.Committee) error {
	_, err := txQuerier(tx).Exec(ctx, `
		INSERT INTO committees (`+committeeColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`,
		committee.ID,
		committee.Name,
		members(committee),
		committee.CreatedAt,
		committee.UpdatedAt,
	)
	return err
}

// UpdateCommittee replaces the name and membership of a committee.
func (r *GovernanceRepository) UpdateCommittee(ctx context.Context, tx usecase.Transaction, committee *domain.Committee) error {
	tag, err := txQuerier(tx).Exec(ctx, `
		UPDATE committees
		SET name = $2, members = $3, updated_at = $4
		WHERE id = $1
	`,
		committee.ID,
		committee.Name,
		members(committee),
		committee.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCommitteeNotFound
	}
	return nil
}

// GetCommittee retrieves a committee by ID.
func (r *GovernanceRepository) GetCommittee(ctx context.Context, id string) (*domain.Committee, error) {
	return r.getCommittee(ctx, r.db, id, false)
}

// GetCommitteeTx retrieves a committee by ID inside tx. The row is locked so
// membership cannot change while a vote is evaluated.
func (r *GovernanceRepository) GetCommitteeTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Committee, error) {
	return r.getCommittee(ctx, txQuerier(tx), id, true)
}

func (r *GovernanceRepository) getCommittee(ctx context.Context, db querier, id string, forShare bool) (*domain.Committee, error) {
	query := `SELECT ` + committeeColumns + ` FROM committees WHERE id = $1`
	if forShare {
		query += ` FOR SHARE`
	}

	var c domain.Committee
	err := db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Members, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCommitteeNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCommittees returns every committee ordered by id.
func (r *GovernanceRepository) ListCommittees(ctx context.Context) ([]*domain.Committee, error) {
	rows, err := r.db.Query(ctx, `SELECT `+committeeColumns+` FROM committees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var committees []*domain.Committee
	for rows.Next() {
		var c domain.Committee
		if err := rows.Scan(&c.ID, &c.Name, &c.Members, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		committees = append(committees, &c)
	}
	return committees, rows.Err()
}

const policyColumns = `process_type, id, rules_kind, threshold, committee_id, updated_at`

// SavePolicy inserts or replaces the policy of a process type.
func (r *GovernanceRepository) SavePolicy(ctx context.Context, tx usecase.Transaction, policy *domain.Policy) error {
	_, err := txQuerier(tx).Exec(ctx, `
		INSERT INTO approval_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (process_type) DO UPDATE
		SET rules_kind = EXCLUDED.rules_kind,
		    threshold = EXCLUDED.threshold,
		    committee_id = EXCLUDED.committee_id,
		    updated_at = EXCLUDED.updated_at
	`,
		string(policy.ProcessType),
		policy.ID,
		string(policy.Rules.Kind),
		int64(policy.Rules.Threshold),
		policy.CommitteeID,
		policy.UpdatedAt,
	)
	return err
}

// GetPolicyTx retrieves the policy of a process type inside tx.
func (r *GovernanceRepository) GetPolicyTx(ctx context.Context, tx usecase.Transaction, processType domain.ApprovalProcessType) (*domain.Policy, error) {
	row := txQuerier(tx).QueryRow(ctx, `
		SELECT `+policyColumns+` FROM approval_policies WHERE process_type = $1
	`, string(processType))

	policy, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, err
	}
	return policy, nil
}

// ListPolicies returns every configured policy.
func (r *GovernanceRepository) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.db.Query(ctx, `SELECT `+policyColumns+` FROM approval_policies ORDER BY process_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var (
		p           domain.Policy
		processType string
		kind        string
		threshold   int64
	)
	if err := row.Scan(&processType, &p.ID, &kind, &threshold, &p.CommitteeID, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ProcessType = domain.ApprovalProcessType(processType)
	p.Rules = domain.ApprovalRules{Kind: domain.ApprovalRulesKind(kind), Threshold: uint32(threshold)}
	return &p, nil
}

func members(c *domain.Committee) []string {
	if c.Members == nil {
		return []string{}
	}
	return c.Members
}
