package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// RoleAuthorizer grants actions by the caller's role and writes one audit
// log row per decision.
type RoleAuthorizer struct {
	auditRepo AuditRepository
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewRoleAuthorizer creates a RoleAuthorizer.
func NewRoleAuthorizer(auditRepo AuditRepository, logger zerolog.Logger, metrics *metrics.Metrics) *RoleAuthorizer {
	return &RoleAuthorizer{
		auditRepo: auditRepo,
		logger:    logger,
		metrics:   metrics,
	}
}

type requestIDKey struct{}

// ContextWithRequestID stores the request id recorded on audit rows.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Enforce checks the caller's role. Allowed decisions are written in tx so
// they commit with the change; denied decisions are written on their own.
func (a *RoleAuthorizer) Enforce(ctx context.Context, tx Transaction, object domain.AuditObject, resourceID string, action domain.AuditAction) (domain.AuditInfo, error) {
	user := domain.UserFromContext(ctx)

	entry := &domain.AuditLog{
		ID:         uuid.NewString(),
		Subject:    user.ID,
		Object:     object,
		Action:     action,
		ResourceID: resourceID,
		RequestID:  RequestIDFromContext(ctx),
		Status:     domain.AuditStatusAllowed,
		CreatedAt:  time.Now().UTC(),
	}

	if !user.Role.Allows(action) {
		entry.Status = domain.AuditStatusDenied
		a.record(entry)
		if err := a.auditRepo.Create(ctx, entry); err != nil {
			a.logger.Error().Err(err).Str("action", string(action)).Msg("failed to record denied audit log")
		}
		return domain.AuditInfo{}, fmt.Errorf("%w: %s may not %s", domain.ErrInsufficientRole, user.ID, action)
	}

	if err := a.auditRepo.CreateTx(ctx, tx, entry); err != nil {
		return domain.AuditInfo{}, fmt.Errorf("record audit log: %w", err)
	}
	a.record(entry)

	return entry.Info(), nil
}

// Authorize checks read access without writing an audit row.
func (a *RoleAuthorizer) Authorize(ctx context.Context, action domain.AuditAction) error {
	user := domain.UserFromContext(ctx)
	if !user.Role.Allows(action) {
		return fmt.Errorf("%w: %s may not %s", domain.ErrInsufficientRole, user.ID, action)
	}
	return nil
}

func (a *RoleAuthorizer) record(entry *domain.AuditLog) {
	if a.metrics != nil {
		a.metrics.AuditLogsCreated.WithLabelValues(string(entry.Action), string(entry.Status)).Inc()
	}
}
