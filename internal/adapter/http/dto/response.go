package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// FacilityResponse represents a credit facility in API responses.
type FacilityResponse struct {
	ID                     string                  `json:"id"`
	CustomerID             string                  `json:"customer_id"`
	ApprovalProcessID      string                  `json:"approval_process_id"`
	Status                 string                  `json:"status"`
	Amount                 decimal.Decimal         `json:"amount"`
	InitialDisbursal       decimal.Decimal         `json:"initial_disbursal"`
	Collateral             decimal.Decimal         `json:"collateral"`
	Collateralization      string                  `json:"collateralization"`
	Terms                  domain.TermValues       `json:"terms"`
	Accounts               domain.FacilityAccounts `json:"accounts"`
	ActivatedAt            *time.Time              `json:"activated_at,omitempty"`
	MaturesAt              *time.Time              `json:"matures_at,omitempty"`
	DisbursalIDs           []string                `json:"disbursal_ids"`
	ObligationIDs          []string                `json:"obligation_ids"`
	Version                int                     `json:"version"`
	Balance                *BalanceResponse        `json:"balance,omitempty"`
	CurrentCollateralState string                  `json:"current_collateralization,omitempty"`
	CVL                    *decimal.Decimal        `json:"cvl,omitempty"`
	CollateralPrice        *decimal.Decimal        `json:"collateral_price,omitempty"`
	Obligations            []*ObligationResponse   `json:"obligations,omitempty"`
}

// BalanceResponse is the computed balance of a facility.
type BalanceResponse struct {
	FacilityRemaining    decimal.Decimal `json:"facility_remaining"`
	Disbursed            decimal.Decimal `json:"disbursed"`
	InterestRecorded     decimal.Decimal `json:"interest_recorded"`
	DisbursalOutstanding decimal.Decimal `json:"disbursal_outstanding"`
	InterestOutstanding  decimal.Decimal `json:"interest_outstanding"`
	TotalOutstanding     decimal.Decimal `json:"total_outstanding"`
	NotYetDue            decimal.Decimal `json:"not_yet_due"`
	Due                  decimal.Decimal `json:"due"`
	Overdue              decimal.Decimal `json:"overdue"`
	Defaulted            decimal.Decimal `json:"defaulted"`
	Collateral           decimal.Decimal `json:"collateral"`
}

// FacilityFromDomain converts a domain facility to response.
func FacilityFromDomain(f *domain.CreditFacility) *FacilityResponse {
	return &FacilityResponse{
		ID:                f.ID,
		CustomerID:        f.CustomerID,
		ApprovalProcessID: f.ApprovalProcessID,
		Status:            string(f.Status()),
		Amount:            f.Amount,
		InitialDisbursal:  f.InitialDisbursal,
		Collateral:        f.Collateral(),
		Collateralization: string(f.CollateralizationState()),
		Terms:             f.Terms,
		Accounts:          f.Accounts,
		ActivatedAt:       f.ActivatedAt(),
		MaturesAt:         f.MaturesAt(),
		DisbursalIDs:      nonNil(f.DisbursalIDs()),
		ObligationIDs:     nonNil(f.ObligationIDs()),
		Version:           f.Version(),
	}
}

// FacilityFromView converts a facility view, including its balances.
func FacilityFromView(v *usecase.FacilityView) *FacilityResponse {
	resp := FacilityFromDomain(v.Facility)
	b := v.Balance
	resp.Balance = &BalanceResponse{
		FacilityRemaining:    b.FacilityRemaining,
		Disbursed:            b.Disbursed,
		InterestRecorded:     b.InterestRecorded,
		DisbursalOutstanding: b.DisbursalOutstanding,
		InterestOutstanding:  b.InterestOutstanding,
		TotalOutstanding:     b.TotalOutstanding(),
		NotYetDue:            b.NotYetDue,
		Due:                  b.Due,
		Overdue:              b.Overdue,
		Defaulted:            b.Defaulted,
		Collateral:           b.Collateral,
	}
	resp.CurrentCollateralState = string(v.Collateralization)
	resp.CVL = v.CVL
	price := v.Price
	resp.CollateralPrice = &price
	resp.Obligations = ObligationsFromDomain(v.Obligations)
	return resp
}

// FacilitiesFromDomain converts domain facilities to responses.
func FacilitiesFromDomain(facilities []*domain.CreditFacility) []*FacilityResponse {
	result := make([]*FacilityResponse, len(facilities))
	for i, f := range facilities {
		result[i] = FacilityFromDomain(f)
	}
	return result
}

// ListFacilitiesResponse represents a page of facilities.
type ListFacilitiesResponse struct {
	Facilities []*FacilityResponse `json:"facilities"`
	Total      int64               `json:"total"`
}

// ObligationResponse represents an obligation in API responses.
type ObligationResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	DueDate       time.Time       `json:"due_date"`
	OverdueDate   time.Time       `json:"overdue_date"`
	DefaultedDate *time.Time      `json:"defaulted_date,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// ObligationsFromDomain converts domain obligations to responses.
func ObligationsFromDomain(obligations []*domain.Obligation) []*ObligationResponse {
	result := make([]*ObligationResponse, len(obligations))
	for i, o := range obligations {
		result[i] = &ObligationResponse{
			ID:            o.ID,
			Type:          string(o.Type),
			Status:        string(o.Status()),
			Amount:        o.Amount,
			Outstanding:   o.Outstanding(),
			DueDate:       o.DueDate,
			OverdueDate:   o.OverdueDate,
			DefaultedDate: o.DefaultedDate,
			RecordedAt:    o.RecordedAt(),
		}
	}
	return result
}

// DisbursalResponse represents a disbursal in API responses.
type DisbursalResponse struct {
	ID                string          `json:"id"`
	FacilityID        string          `json:"facility_id"`
	ApprovalProcessID string          `json:"approval_process_id"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           time.Time       `json:"due_date"`
	ObligationID      string          `json:"obligation_id,omitempty"`
	LedgerTxID        string          `json:"ledger_tx_id,omitempty"`
	Version           int             `json:"version"`
}

// DisbursalFromDomain converts a domain disbursal to response.
func DisbursalFromDomain(d *domain.Disbursal) *DisbursalResponse {
	return &DisbursalResponse{
		ID:                d.ID,
		FacilityID:        d.FacilityID,
		ApprovalProcessID: d.ApprovalProcessID,
		Status:            string(d.Status()),
		Amount:            d.Amount,
		DueDate:           d.DueDate,
		ObligationID:      d.ObligationID(),
		LedgerTxID:        d.LedgerTxID(),
		Version:           d.Version(),
	}
}

// DisbursalsFromDomain converts domain disbursals to responses.
func DisbursalsFromDomain(disbursals []*domain.Disbursal) []*DisbursalResponse {
	result := make([]*DisbursalResponse, len(disbursals))
	for i, d := range disbursals {
		result[i] = DisbursalFromDomain(d)
	}
	return result
}

// AllocationResponse is one part of a payment.
type AllocationResponse struct {
	ID             string          `json:"id"`
	ObligationID   string          `json:"obligation_id"`
	ObligationType string          `json:"obligation_type"`
	Amount         decimal.Decimal `json:"amount"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID              string                `json:"id"`
	FacilityID      string                `json:"facility_id"`
	Amount          decimal.Decimal       `json:"amount"`
	SourceAccountID string                `json:"source_account_id"`
	RecordedAt      time.Time             `json:"recorded_at"`
	Allocations     []*AllocationResponse `json:"allocations"`
}

// PaymentFromDomain converts a domain payment to response.
func PaymentFromDomain(p *domain.Payment) *PaymentResponse {
	allocations := make([]*AllocationResponse, len(p.Allocations))
	for i, a := range p.Allocations {
		allocations[i] = &AllocationResponse{
			ID:             a.ID,
			ObligationID:   a.ObligationID,
			ObligationType: string(a.ObligationType),
			Amount:         a.Amount,
		}
	}
	return &PaymentResponse{
		ID:              p.ID,
		FacilityID:      p.FacilityID,
		Amount:          p.Amount,
		SourceAccountID: p.SourceAccountID,
		RecordedAt:      p.RecordedAt,
		Allocations:     allocations,
	}
}

// PaymentsFromDomain converts domain payments to responses.
func PaymentsFromDomain(payments []*domain.Payment) []*PaymentResponse {
	result := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		result[i] = PaymentFromDomain(p)
	}
	return result
}

// ApprovalProcessResponse represents an approval process in API responses.
type ApprovalProcessResponse struct {
	ID          string               `json:"id"`
	ProcessType string               `json:"process_type"`
	TargetRef   string               `json:"target_ref"`
	Status      string               `json:"status"`
	Rules       domain.ApprovalRules `json:"rules"`
	CommitteeID string               `json:"committee_id,omitempty"`
	Approvers   []string             `json:"approvers"`
	Deniers     []string             `json:"deniers"`
	Version     int                  `json:"version"`
}

// ApprovalProcessFromDomain converts a domain approval process to response.
func ApprovalProcessFromDomain(p *domain.ApprovalProcess) *ApprovalProcessResponse {
	return &ApprovalProcessResponse{
		ID:          p.ID,
		ProcessType: string(p.ProcessType),
		TargetRef:   p.TargetRef,
		Status:      string(p.Status()),
		Rules:       p.Rules,
		CommitteeID: p.CommitteeID,
		Approvers:   nonNil(p.Approvers()),
		Deniers:     nonNil(p.Deniers()),
		Version:     p.Version(),
	}
}

// CommitteeResponse represents a committee in API responses.
type CommitteeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommitteeFromDomain converts a domain committee to response.
func CommitteeFromDomain(c *domain.Committee) *CommitteeResponse {
	return &CommitteeResponse{
		ID:        c.ID,
		Name:      c.Name,
		Members:   nonNil(c.Members),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// CommitteesFromDomain converts domain committees to responses.
func CommitteesFromDomain(committees []*domain.Committee) []*CommitteeResponse {
	result := make([]*CommitteeResponse, len(committees))
	for i, c := range committees {
		result[i] = CommitteeFromDomain(c)
	}
	return result
}

// PolicyResponse represents an approval policy in API responses.
type PolicyResponse struct {
	ProcessType string               `json:"process_type"`
	Rules       domain.ApprovalRules `json:"rules"`
	CommitteeID string               `json:"committee_id,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// PolicyFromDomain converts a domain policy to response.
func PolicyFromDomain(p *domain.Policy) *PolicyResponse {
	return &PolicyResponse{
		ProcessType: string(p.ProcessType),
		Rules:       p.Rules,
		CommitteeID: p.CommitteeID,
		UpdatedAt:   p.UpdatedAt,
	}
}

// PoliciesFromDomain converts domain policies to responses.
func PoliciesFromDomain(policies []*domain.Policy) []*PolicyResponse {
	result := make([]*PolicyResponse, len(policies))
	for i, p := range policies {
		result[i] = PolicyFromDomain(p)
	}
	return result
}

// HistoryEntryResponse is one entry of a facility's history.
type HistoryEntryResponse struct {
	Sequence   int64          `json:"sequence"`
	EventType  string         `json:"event_type"`
	Summary    map[string]any `json:"summary"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// HistoryFromDomain converts history entries to responses.
func HistoryFromDomain(entries []*domain.HistoryEntry) []*HistoryEntryResponse {
	result := make([]*HistoryEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = &HistoryEntryResponse{
			Sequence:   e.Sequence,
			EventType:  e.EventType,
			Summary:    e.Summary,
			RecordedAt: e.RecordedAt,
		}
	}
	return result
}

// CollateralPriceResponse reports a price update.
type CollateralPriceResponse struct {
	Price               decimal.Decimal `json:"price"`
	FacilitiesRefreshed int             `json:"facilities_refreshed"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
