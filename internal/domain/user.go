package domain

import (
	"context"
	"errors"
)

// SystemSubject is the subject recorded for changes made by background jobs
// and event listeners.
const SystemSubject = "system"

// User is the caller a request or job acts for.
type User struct {
	ID    string
	Email string
	Role  Role
}

type Role string

const (
	// RoleAdmin has full access, including governance and price management
	RoleAdmin Role = "admin"

	// RoleOperator can run the facility lifecycle and vote on approvals
	RoleOperator Role = "operator"

	// RoleViewer can only read facilities and disbursals
	RoleViewer Role = "viewer"

	// RoleSystem is used by jobs and listeners
	RoleSystem Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer, RoleSystem:
		return true
	}
	return false
}

// Allows checks whether the role may perform action.
func (r Role) Allows(action AuditAction) bool {
	switch r {
	case RoleAdmin, RoleSystem:
		return true
	case RoleOperator:
		return action != AuditActionGovernanceManage && action != AuditActionCollateralPriceSet
	case RoleViewer:
		return action.IsRead()
	default:
		return false
	}
}

// SystemUser is the caller attributed to background work.
func SystemUser() *User {
	return &User{ID: SystemSubject, Role: RoleSystem}
}

type userContextKey struct{}

// ContextWithUser stores the authenticated user in ctx.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the caller stored in ctx, or the system user.
func UserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(userContextKey{}).(*User); ok && user != nil {
		return user
	}
	return SystemUser()
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)
