package domain

import (
	"time"
)

// AuditInfo references the audit log entry that authorized a change. Every
// stored event carries one.
type AuditInfo struct {
	EntryID    string
	Subject    string
	RecordedAt time.Time
}

// AuditLog represents an authorization decision recorded for compliance
type AuditLog struct {
	ID         string
	Subject    string      // Who performed the action
	Object     AuditObject // What kind of resource was touched
	Action     AuditAction // What action (credit_facility.create, disbursal.initiate, etc.)
	ResourceID string      // ID of the resource, if known
	RequestID  string      // Request ID for tracing
	Status     AuditStatus
	CreatedAt  time.Time
}

// Info returns the reference stored on events produced under this entry.
func (a *AuditLog) Info() AuditInfo {
	return AuditInfo{
		EntryID:    a.ID,
		Subject:    a.Subject,
		RecordedAt: a.CreatedAt,
	}
}

// AuditObject names a protected resource kind
type AuditObject string

const (
	AuditObjectCreditFacility  AuditObject = "credit_facility"
	AuditObjectDisbursal       AuditObject = "disbursal"
	AuditObjectObligation      AuditObject = "obligation"
	AuditObjectPayment         AuditObject = "payment"
	AuditObjectApprovalProcess AuditObject = "approval_process"
	AuditObjectGovernance      AuditObject = "governance"
	AuditObjectCollateralPrice AuditObject = "collateral_price"
)

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	// Credit facility actions
	AuditActionFacilityCreate           AuditAction = "credit_facility.create"
	AuditActionFacilityRead             AuditAction = "credit_facility.read"
	AuditActionFacilityUpdateCollateral AuditAction = "credit_facility.update_collateral"
	AuditActionFacilityConcludeApproval AuditAction = "credit_facility.conclude_approval"
	AuditActionFacilityActivate         AuditAction = "credit_facility.activate"
	AuditActionFacilityRecordInterest   AuditAction = "credit_facility.record_interest"
	AuditActionFacilityMature           AuditAction = "credit_facility.mature"
	AuditActionFacilityComplete         AuditAction = "credit_facility.complete"

	// Disbursal actions
	AuditActionDisbursalInitiate         AuditAction = "disbursal.initiate"
	AuditActionDisbursalConcludeApproval AuditAction = "disbursal.conclude_approval"
	AuditActionDisbursalRead             AuditAction = "disbursal.read"

	// Obligation actions
	AuditActionObligationTransition AuditAction = "obligation.transition"

	// Payment actions
	AuditActionPaymentRecord AuditAction = "payment.record"

	// Governance actions
	AuditActionApprovalVote       AuditAction = "approval_process.vote"
	AuditActionApprovalConclude   AuditAction = "approval_process.conclude"
	AuditActionGovernanceRead     AuditAction = "governance.read"
	AuditActionGovernanceManage   AuditAction = "governance.manage"
	AuditActionCollateralPriceSet AuditAction = "collateral_price.set"
)

// IsRead reports whether the action only reads state.
func (a AuditAction) IsRead() bool {
	switch a {
	case AuditActionFacilityRead, AuditActionDisbursalRead, AuditActionGovernanceRead:
		return true
	default:
		return false
	}
}

// AuditStatus represents the outcome of an authorization check
type AuditStatus string

const (
	AuditStatusAllowed AuditStatus = "allowed"
	AuditStatusDenied  AuditStatus = "denied"
)
