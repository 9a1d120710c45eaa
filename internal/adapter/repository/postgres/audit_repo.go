package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// AuditRepository implements audit log persistence
type AuditRepository struct {
	db querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return newAuditRepository(pool)
}

func newAuditRepository(db querier) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditLog = `
	INSERT INTO audit_logs (
		id, subject, object, action, resource_id, request_id, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Create inserts an audit log entry outside any transaction. Denied
// decisions are stored this way so they survive the caller's rollback.
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	return r.insert(ctx, r.db, log)
}

// CreateTx inserts an audit log entry in tx.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	return r.insert(ctx, txQuerier(tx), log)
}

func (r *AuditRepository) insert(ctx context.Context, db querier, log *domain.AuditLog) error {
	_, err := db.Exec(ctx, insertAuditLog,
		log.ID,
		log.Subject,
		string(log.Object),
		string(log.Action),
		log.ResourceID,
		log.RequestID,
		string(log.Status),
		log.CreatedAt,
	)
	return err
}

// GetByResourceID retrieves all audit logs for a specific resource
func (r *AuditRepository) GetByResourceID(ctx context.Context, object domain.AuditObject, resourceID string) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subject, object, action, resource_id, request_id, status, created_at
		FROM audit_logs
		WHERE object = $1 AND resource_id = $2
		ORDER BY created_at DESC, id
	`, string(object), resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AuditLog
	for rows.Next() {
		var (
			log                 domain.AuditLog
			obj, action, status string
		)
		if err := rows.Scan(
			&log.ID,
			&log.Subject,
			&obj,
			&action,
			&log.ResourceID,
			&log.RequestID,
			&status,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		log.Object = domain.AuditObject(obj)
		log.Action = domain.AuditAction(action)
		log.Status = domain.AuditStatus(status)
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
