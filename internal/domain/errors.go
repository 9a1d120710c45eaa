package domain

import "errors"

var (
	// Event log errors
	ErrUninitializedEntity    = errors.New("entity has no initialization event")
	ErrEventSequenceGap       = errors.New("event sequence is not contiguous")
	ErrConcurrentModification = errors.New("entity was modified concurrently")
	ErrUnknownEventType       = errors.New("unknown event type")

	// Idempotency errors
	ErrInconsistentIdempotency = errors.New("transition was already applied with a different outcome")

	// Amount errors
	ErrInvalidAmount = errors.New("amount must be positive")

	// Approval process errors
	ErrApprovalProcessNotFound  = errors.New("approval process not found")
	ErrApprovalAlreadyConcluded = errors.New("approval process already concluded")
	ErrApprovalVoterNotEligible = errors.New("voter is not eligible for this approval process")
	ErrApprovalAlreadyVoted     = errors.New("voter has already voted")
	ErrInvalidApprovalRules     = errors.New("invalid approval rules")
	ErrCommitteeNotFound        = errors.New("committee not found")
	ErrPolicyNotFound           = errors.New("policy not found")

	// Obligation errors
	ErrObligationNotFound          = errors.New("obligation not found")
	ErrAmountExceedsOutstanding    = errors.New("amount exceeds outstanding obligation")
	ErrInvalidObligation           = errors.New("invalid obligation")
	ErrInvalidObligationTransition = errors.New("obligation cannot make this transition from its current status")

	// Payment errors
	ErrPaymentNotFound                                = errors.New("payment not found")
	ErrPaymentAmountGreaterThanOutstandingObligations = errors.New("payment amount is greater than outstanding obligations")

	// Disbursal errors
	ErrDisbursalNotFound              = errors.New("disbursal not found")
	ErrDisbursalAmountCannotBeZero    = errors.New("disbursal amount cannot be zero")
	ErrInvalidDisbursal               = errors.New("invalid disbursal")
	ErrDisbursalExceedsFacilityAmount = errors.New("disbursal exceeds remaining facility amount")
	ErrDisbursalPastMaturity          = errors.New("disbursal cannot be initiated after facility maturity")

	// Credit facility errors
	ErrCreditFacilityNotFound      = errors.New("credit facility not found")
	ErrInvalidTerms                = errors.New("invalid credit facility terms")
	ErrInvalidCreditFacility       = errors.New("invalid credit facility")
	ErrFacilityNotActive           = errors.New("credit facility is not active")
	ErrFacilityNotApproved         = errors.New("credit facility approval has not concluded positively")
	ErrFacilityUndercollateralized = errors.New("credit facility collateral is below the initial threshold")
	ErrFacilityClosed              = errors.New("credit facility is closed")
	ErrFacilityNotMatured          = errors.New("credit facility has not matured")
	ErrFacilityHasOutstanding      = errors.New("credit facility has outstanding obligations")

	// Ledger errors
	ErrLedgerUnavailable    = errors.New("external ledger is unavailable")
	ErrLedgerRejected       = errors.New("external ledger rejected the posting")
	ErrInvalidLedgerPosting = errors.New("invalid ledger posting")
)
