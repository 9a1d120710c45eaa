package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// TermsRequest carries facility terms.
type TermsRequest struct {
	AnnualRate              decimal.Decimal `json:"annual_rate"`
	DurationMonths          int             `json:"duration_months"`
	ObligationOverdueDays   int             `json:"obligation_overdue_days"`
	ObligationDefaultedDays int             `json:"obligation_defaulted_days,omitempty"`
	InitialCVL              decimal.Decimal `json:"initial_cvl"`
	MarginCallCVL           decimal.Decimal `json:"margin_call_cvl"`
	LiquidationCVL          decimal.Decimal `json:"liquidation_cvl"`
}

// ToDomain converts to domain terms.
func (r TermsRequest) ToDomain() domain.TermValues {
	return domain.TermValues{
		AnnualRate:              r.AnnualRate,
		DurationMonths:          r.DurationMonths,
		ObligationOverdueDays:   r.ObligationOverdueDays,
		ObligationDefaultedDays: r.ObligationDefaultedDays,
		InitialCVL:              r.InitialCVL,
		MarginCallCVL:           r.MarginCallCVL,
		LiquidationCVL:          r.LiquidationCVL,
	}
}

// CreateFacilityRequest represents a request to create a credit facility.
type CreateFacilityRequest struct {
	CustomerID       string          `json:"customer_id"`
	DepositAccountID string          `json:"deposit_account_id"`
	Amount           decimal.Decimal `json:"amount"`
	InitialDisbursal decimal.Decimal `json:"initial_disbursal"`
	Terms            TermsRequest    `json:"terms"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateFacilityRequest) ToUseCaseInput() usecase.CreateFacilityInput {
	return usecase.CreateFacilityInput{
		CustomerID:       r.CustomerID,
		DepositAccountID: r.DepositAccountID,
		Amount:           r.Amount,
		InitialDisbursal: r.InitialDisbursal,
		Terms:            r.Terms.ToDomain(),
	}
}

// UpdateCollateralRequest sets the collateral held for a facility.
type UpdateCollateralRequest struct {
	Collateral decimal.Decimal `json:"collateral"`
}

// RecordInterestRequest records interest accrued for a period.
type RecordInterestRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	PeriodEnd time.Time       `json:"period_end"`
}

// InitiateDisbursalRequest requests a drawdown.
type InitiateDisbursalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RecordPaymentRequest represents a payment against a facility.
type RecordPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	SourceAccountID string          `json:"source_account_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordPaymentRequest) ToUseCaseInput(facilityID string) usecase.RecordPaymentInput {
	return usecase.RecordPaymentInput{
		FacilityID:      facilityID,
		Amount:          r.Amount,
		SourceAccountID: r.SourceAccountID,
	}
}

// VoteRequest casts a vote on an approval process.
type VoteRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

// SetCollateralPriceRequest sets the collateral price.
type SetCollateralPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// CreateCommitteeRequest creates a committee.
type CreateCommitteeRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CommitteeMemberRequest adds a member to a committee.
type CommitteeMemberRequest struct {
	UserID string `json:"user_id"`
}

// SetPolicyRequest configures the approval policy of a process type.
type SetPolicyRequest struct {
	ProcessType string `json:"process_type"`
	Rules       struct {
		Kind      string `json:"kind"`
		Threshold uint32 `json:"threshold,omitempty"`
	} `json:"rules"`
	CommitteeID string `json:"committee_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *SetPolicyRequest) ToUseCaseInput() usecase.SetPolicyInput {
	return usecase.SetPolicyInput{
		ProcessType: domain.ApprovalProcessType(r.ProcessType),
		Rules: domain.ApprovalRules{
			Kind:      domain.ApprovalRulesKind(r.Rules.Kind),
			Threshold: r.Rules.Threshold,
		},
		CommitteeID: r.CommitteeID,
	}
}
