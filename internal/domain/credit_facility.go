package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreditFacilityStatus is the derived lifecycle state of a facility
type CreditFacilityStatus string

const (
	CreditFacilityStatusPendingCollateralization CreditFacilityStatus = "pending_collateralization"
	CreditFacilityStatusPendingApproval          CreditFacilityStatus = "pending_approval"
	CreditFacilityStatusActive                   CreditFacilityStatus = "active"
	CreditFacilityStatusExpired                  CreditFacilityStatus = "expired"
	CreditFacilityStatusClosed                   CreditFacilityStatus = "closed"
)

// CollateralAction tells whether collateral was posted or withdrawn.
type CollateralAction string

const (
	CollateralActionAdd    CollateralAction = "add"
	CollateralActionRemove CollateralAction = "remove"
)

// FacilityAccounts are the external ledger accounts opened for a facility.
type FacilityAccounts struct {
	Facility           string             `json:"facility"`
	FacilityOmnibus    string             `json:"facility_omnibus"`
	Collateral         string             `json:"collateral"`
	CollateralOmnibus  string             `json:"collateral_omnibus"`
	Receivable         ObligationAccounts `json:"receivable"`
	InterestReceivable ObligationAccounts `json:"interest_receivable"`
	InterestIncome     string             `json:"interest_income"`
	Deposit            string             `json:"deposit"`
}

func (a FacilityAccounts) validate() error {
	if a.Facility == "" || a.FacilityOmnibus == "" || a.Collateral == "" ||
		a.CollateralOmnibus == "" || a.InterestIncome == "" || a.Deposit == "" {
		return fmt.Errorf("%w: facility accounts are incomplete", ErrInvalidCreditFacility)
	}
	if err := a.Receivable.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCreditFacility, err)
	}
	if err := a.InterestReceivable.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCreditFacility, err)
	}
	return nil
}

// NewCreditFacility holds the data needed to create a facility. A positive
// InitialDisbursal is drawn and settled as part of activation.
type NewCreditFacility struct {
	ID                string
	CustomerID        string
	ApprovalProcessID string
	Amount            decimal.Decimal
	InitialDisbursal  decimal.Decimal
	Terms             TermValues
	Accounts          FacilityAccounts
}

// Validate checks the new facility
func (n NewCreditFacility) Validate() error {
	if n.ID == "" || n.CustomerID == "" || n.ApprovalProcessID == "" {
		return fmt.Errorf("%w: id, customer id and approval process id are required", ErrInvalidCreditFacility)
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if n.InitialDisbursal.IsNegative() {
		return ErrInvalidAmount
	}
	if n.InitialDisbursal.GreaterThan(n.Amount) {
		return ErrDisbursalExceedsFacilityAmount
	}
	if err := n.Terms.Validate(); err != nil {
		return err
	}
	return n.Accounts.validate()
}

// CreditFacilityEvent is an event of the facility log.
type CreditFacilityEvent interface {
	DomainEvent
	creditFacilityEvent()
}

const (
	EventTypeCreditFacilityInitialized                   = "credit_facility.initialized"
	EventTypeCreditFacilityApprovalProcessConcluded      = "credit_facility.approval_process_concluded"
	EventTypeCreditFacilityCollateralUpdated             = "credit_facility.collateral_updated"
	EventTypeCreditFacilityCollateralizationStateChanged = "credit_facility.collateralization_state_changed"
	EventTypeCreditFacilityActivated                     = "credit_facility.activated"
	EventTypeCreditFacilityDisbursalInitiated            = "credit_facility.disbursal_initiated"
	EventTypeCreditFacilityDisbursalConcluded            = "credit_facility.disbursal_concluded"
	EventTypeCreditFacilityObligationRecorded            = "credit_facility.obligation_recorded"
	EventTypeCreditFacilityInterestAccrued               = "credit_facility.interest_accrued"
	EventTypeCreditFacilityMatured                       = "credit_facility.matured"
	EventTypeCreditFacilityCompleted                     = "credit_facility.completed"
)

type CreditFacilityInitialized struct {
	ID                string           `json:"id"`
	CustomerID        string           `json:"customer_id"`
	ApprovalProcessID string           `json:"approval_process_id"`
	Amount            decimal.Decimal  `json:"amount"`
	InitialDisbursal  decimal.Decimal  `json:"initial_disbursal"`
	Terms             TermValues       `json:"terms"`
	Accounts          FacilityAccounts `json:"accounts"`
}

type CreditFacilityApprovalProcessConcluded struct {
	ApprovalProcessID string `json:"approval_process_id"`
	Approved          bool   `json:"approved"`
}

type CreditFacilityCollateralUpdated struct {
	UpdateID   string           `json:"update_id"`
	Collateral decimal.Decimal  `json:"collateral"`
	Delta      decimal.Decimal  `json:"delta"`
	Action     CollateralAction `json:"action"`
	Reference  string           `json:"reference"`
}

type CreditFacilityCollateralizationStateChanged struct {
	State       CollateralizationState `json:"state"`
	Collateral  decimal.Decimal        `json:"collateral"`
	Outstanding decimal.Decimal        `json:"outstanding"`
	Price       decimal.Decimal        `json:"price"`
}

type CreditFacilityActivated struct {
	LedgerTxID  string    `json:"ledger_tx_id"`
	ActivatedAt time.Time `json:"activated_at"`
	MaturesAt   time.Time `json:"matures_at"`
}

type CreditFacilityDisbursalInitiated struct {
	DisbursalID string          `json:"disbursal_id"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreditFacilityDisbursalConcluded struct {
	DisbursalID string `json:"disbursal_id"`
	Approved    bool   `json:"approved"`
}

type CreditFacilityObligationRecorded struct {
	ObligationID string          `json:"obligation_id"`
	Type         ObligationType  `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
}

type CreditFacilityInterestAccrued struct {
	ObligationID string          `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
	PeriodEnd    time.Time       `json:"period_end"`
}

type CreditFacilityMatured struct{}

type CreditFacilityCompleted struct{}

func (CreditFacilityInitialized) EventType() string { return EventTypeCreditFacilityInitialized }
func (CreditFacilityApprovalProcessConcluded) EventType() string {
	return EventTypeCreditFacilityApprovalProcessConcluded
}
func (CreditFacilityCollateralUpdated) EventType() string {
	return EventTypeCreditFacilityCollateralUpdated
}
func (CreditFacilityCollateralizationStateChanged) EventType() string {
	return EventTypeCreditFacilityCollateralizationStateChanged
}
func (CreditFacilityActivated) EventType() string { return EventTypeCreditFacilityActivated }
func (CreditFacilityDisbursalInitiated) EventType() string {
	return EventTypeCreditFacilityDisbursalInitiated
}
func (CreditFacilityDisbursalConcluded) EventType() string {
	return EventTypeCreditFacilityDisbursalConcluded
}
func (CreditFacilityObligationRecorded) EventType() string {
	return EventTypeCreditFacilityObligationRecorded
}
func (CreditFacilityInterestAccrued) EventType() string {
	return EventTypeCreditFacilityInterestAccrued
}
func (CreditFacilityMatured) EventType() string   { return EventTypeCreditFacilityMatured }
func (CreditFacilityCompleted) EventType() string { return EventTypeCreditFacilityCompleted }

func (CreditFacilityInitialized) creditFacilityEvent()                   {}
func (CreditFacilityApprovalProcessConcluded) creditFacilityEvent()      {}
func (CreditFacilityCollateralUpdated) creditFacilityEvent()             {}
func (CreditFacilityCollateralizationStateChanged) creditFacilityEvent() {}
func (CreditFacilityActivated) creditFacilityEvent()                     {}
func (CreditFacilityDisbursalInitiated) creditFacilityEvent()            {}
func (CreditFacilityDisbursalConcluded) creditFacilityEvent()            {}
func (CreditFacilityObligationRecorded) creditFacilityEvent()            {}
func (CreditFacilityInterestAccrued) creditFacilityEvent()               {}
func (CreditFacilityMatured) creditFacilityEvent()                       {}
func (CreditFacilityCompleted) creditFacilityEvent()                     {}

// CreditFacility is the aggregate root of a loan. It references its
// disbursals and obligations by id. Its state is a projection of Events.
type CreditFacility struct {
	ID                string
	CustomerID        string
	ApprovalProcessID string
	Amount            decimal.Decimal
	InitialDisbursal  decimal.Decimal
	Terms             TermValues
	Accounts          FacilityAccounts

	approved          *bool
	collateral        decimal.Decimal
	collateralization CollateralizationState
	activatedAt       *time.Time
	maturesAt         *time.Time
	matured           bool
	completed         bool

	disbursalIDs       []string
	disbursalAmounts   map[string]decimal.Decimal
	cancelledDisbursal map[string]bool
	obligationIDs      []string
	obligationTypes    map[string]ObligationType
	disbursed          decimal.Decimal
	interestRecorded   decimal.Decimal

	Events *EntityEvents[CreditFacilityEvent]
}

// CreateCreditFacility validates n and returns a facility with a pending
// Initialized event.
func CreateCreditFacility(n NewCreditFacility, audit AuditInfo) (*CreditFacility, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	events := NewEntityEvents[CreditFacilityEvent](n.ID, audit, CreditFacilityInitialized{
		ID:                n.ID,
		CustomerID:        n.CustomerID,
		ApprovalProcessID: n.ApprovalProcessID,
		Amount:            n.Amount,
		InitialDisbursal:  n.InitialDisbursal,
		Terms:             n.Terms,
		Accounts:          n.Accounts,
	})
	return CreditFacilityFromEvents(events)
}

// CreditFacilityFromEvents hydrates a facility by replaying its log.
func CreditFacilityFromEvents(events *EntityEvents[CreditFacilityEvent]) (*CreditFacility, error) {
	all := events.All()
	if len(all) == 0 {
		return nil, ErrUninitializedEntity
	}
	if _, ok := all[0].Payload.(CreditFacilityInitialized); !ok {
		return nil, fmt.Errorf("%w: credit facility %s", ErrUninitializedEntity, events.EntityID())
	}

	f := &CreditFacility{
		collateral:         decimal.Zero,
		collateralization:  CollateralizationNoCollateral,
		disbursalAmounts:   make(map[string]decimal.Decimal),
		cancelledDisbursal: make(map[string]bool),
		obligationTypes:    make(map[string]ObligationType),
		disbursed:          decimal.Zero,
		interestRecorded:   decimal.Zero,
		Events:             events,
	}
	for _, e := range all {
		f.apply(e.Payload)
	}
	return f, nil
}

func (f *CreditFacility) apply(event CreditFacilityEvent) {
	switch e := event.(type) {
	case CreditFacilityInitialized:
		f.ID = e.ID
		f.CustomerID = e.CustomerID
		f.ApprovalProcessID = e.ApprovalProcessID
		f.Amount = e.Amount
		f.InitialDisbursal = e.InitialDisbursal
		f.Terms = e.Terms
		f.Accounts = e.Accounts
	case CreditFacilityApprovalProcessConcluded:
		approved := e.Approved
		f.approved = &approved
	case CreditFacilityCollateralUpdated:
		f.collateral = e.Collateral
	case CreditFacilityCollateralizationStateChanged:
		f.collateralization = e.State
	case CreditFacilityActivated:
		activatedAt, maturesAt := e.ActivatedAt, e.MaturesAt
		f.activatedAt = &activatedAt
		f.maturesAt = &maturesAt
	case CreditFacilityDisbursalInitiated:
		f.disbursalIDs = append(f.disbursalIDs, e.DisbursalID)
		f.disbursalAmounts[e.DisbursalID] = e.Amount
	case CreditFacilityDisbursalConcluded:
		if !e.Approved {
			f.cancelledDisbursal[e.DisbursalID] = true
		}
	case CreditFacilityObligationRecorded:
		f.obligationIDs = append(f.obligationIDs, e.ObligationID)
		f.obligationTypes[e.ObligationID] = e.Type
		switch e.Type {
		case ObligationTypeDisbursal:
			f.disbursed = f.disbursed.Add(e.Amount)
		case ObligationTypeInterest:
			f.interestRecorded = f.interestRecorded.Add(e.Amount)
		}
	case CreditFacilityMatured:
		f.matured = true
	case CreditFacilityCompleted:
		f.completed = true
	}
}

func (f *CreditFacility) push(event CreditFacilityEvent, audit AuditInfo) {
	f.Events.Push(event, audit)
	f.apply(event)
}

// Status derives the lifecycle state from the recorded events.
func (f *CreditFacility) Status() CreditFacilityStatus {
	switch {
	case f.completed:
		return CreditFacilityStatusClosed
	case f.approved != nil && !*f.approved:
		return CreditFacilityStatusClosed
	case f.matured:
		return CreditFacilityStatusExpired
	case f.activatedAt != nil:
		return CreditFacilityStatusActive
	case f.collateralization == CollateralizationFullyCollateralized:
		return CreditFacilityStatusPendingApproval
	default:
		return CreditFacilityStatusPendingCollateralization
	}
}

// Collateral is the running collateral total.
func (f *CreditFacility) Collateral() decimal.Decimal {
	return f.collateral
}

// CollateralizationState is the last recorded classification.
func (f *CreditFacility) CollateralizationState() CollateralizationState {
	return f.collateralization
}

// Approved returns the approval outcome once concluded.
func (f *CreditFacility) Approved() (approved bool, ok bool) {
	if f.approved == nil {
		return false, false
	}
	return *f.approved, true
}

// ActivatedAt is set once the facility is active.
func (f *CreditFacility) ActivatedAt() *time.Time {
	return f.activatedAt
}

// MaturesAt is set once the facility is active.
func (f *CreditFacility) MaturesAt() *time.Time {
	return f.maturesAt
}

// IsActivated reports whether activation was recorded.
func (f *CreditFacility) IsActivated() bool {
	return f.activatedAt != nil
}

// DisbursalIDs returns the ids of all disbursals initiated against the facility.
func (f *CreditFacility) DisbursalIDs() []string {
	return append([]string(nil), f.disbursalIDs...)
}

// ObligationIDs returns the ids of all obligations recorded for the facility.
func (f *CreditFacility) ObligationIDs() []string {
	return append([]string(nil), f.obligationIDs...)
}

// Version is the number of persisted events.
func (f *CreditFacility) Version() int {
	return f.Events.LenPersisted()
}

// CommittedAmount is the sum of all disbursals that were not cancelled.
func (f *CreditFacility) CommittedAmount() decimal.Decimal {
	total := decimal.Zero
	for id, amount := range f.disbursalAmounts {
		if !f.cancelledDisbursal[id] {
			total = total.Add(amount)
		}
	}
	return total
}

// ApprovalProcessConcluded records the facility approval outcome. Replaying the
// same outcome is ignored; the opposite outcome fails.
func (f *CreditFacility) ApprovalProcessConcluded(approved bool, audit AuditInfo) (Idempotent[bool], error) {
	replay := GuardReplay(f.Events, func(e CreditFacilityEvent) Replay {
		if c, ok := e.(CreditFacilityApprovalProcessConcluded); ok {
			if c.Approved == approved {
				return ReplaySameOutcome
			}
			return ReplayConflictingOutcome
		}
		return ReplayNotApplied
	})

	switch replay {
	case ReplaySameOutcome:
		return Ignored[bool](), nil
	case ReplayConflictingOutcome:
		return Ignored[bool](), fmt.Errorf("%w: facility %s approval already concluded with approved=%t",
			ErrInconsistentIdempotency, f.ID, !approved)
	}

	f.push(CreditFacilityApprovalProcessConcluded{
		ApprovalProcessID: f.ApprovalProcessID,
		Approved:          approved,
	}, audit)
	return Executed(approved), nil
}

// UpdateCollateral sets the collateral total and returns the posting that
// moves the difference. Setting the current value again is ignored.
//
// The delta depends on the state the update was applied to, so the posting
// must only be booked once the event is committed. updateID names the
// request and keys the posting.
func (f *CreditFacility) UpdateCollateral(updateID string, collateral decimal.Decimal, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	if f.Status() == CreditFacilityStatusClosed {
		return Ignored[*LedgerPosting](), ErrFacilityClosed
	}
	if collateral.IsNegative() {
		return Ignored[*LedgerPosting](), ErrInvalidAmount
	}
	if err := ValidateID(updateID); err != nil {
		return Ignored[*LedgerPosting](), err
	}
	if collateral.Equal(f.collateral) {
		return Ignored[*LedgerPosting](), nil
	}

	delta := collateral.Sub(f.collateral)
	ref := CollateralLedgerReference(updateID)

	transfer := LedgerTransfer{
		FromAccountID: f.Accounts.CollateralOmnibus,
		ToAccountID:   f.Accounts.Collateral,
		Amount:        delta.Abs(),
	}
	action := CollateralActionAdd
	if delta.IsNegative() {
		action = CollateralActionRemove
		transfer.FromAccountID, transfer.ToAccountID = transfer.ToAccountID, transfer.FromAccountID
	}

	f.push(CreditFacilityCollateralUpdated{
		UpdateID:   updateID,
		Collateral: collateral,
		Delta:      delta.Abs(),
		Action:     action,
		Reference:  ref,
	}, audit)

	return Executed(&LedgerPosting{
		Reference:   ref,
		Description: fmt.Sprintf("collateral %s for facility %s", action, f.ID),
		Transfers:   []LedgerTransfer{transfer},
	}), nil
}

// Collateralization computes the classification for the given price and
// balance without recording it.
func (f *CreditFacility) Collateralization(price decimal.Decimal, balance FacilityBalance) CollateralizationState {
	if !f.IsActivated() {
		return f.Terms.Collateralization(f.collateral, price, f.Amount, false)
	}
	return f.Terms.Collateralization(f.collateral, price, balance.TotalOutstanding(), true)
}

// UpdateCollateralizationState records a new classification when it changed.
func (f *CreditFacility) UpdateCollateralizationState(price decimal.Decimal, balance FacilityBalance, audit AuditInfo) Idempotent[CollateralizationState] {
	if f.Status() == CreditFacilityStatusClosed {
		return Ignored[CollateralizationState]()
	}

	state := f.Collateralization(price, balance)
	if state == f.collateralization {
		return Ignored[CollateralizationState]()
	}

	f.push(CreditFacilityCollateralizationStateChanged{
		State:       state,
		Collateral:  f.collateral,
		Outstanding: balance.TotalOutstanding(),
		Price:       price,
	}, audit)
	return Executed(state)
}

// FacilityActivation is what activation asks the caller to carry out.
type FacilityActivation struct {
	Posting          LedgerPosting
	InitialDisbursal *NewDisbursal
}

// InitialDisbursalID is the id of the disbursal created on activation.
func InitialDisbursalID(facilityID string) string {
	return facilityID + "-initial"
}

// InterestObligationID is the id of the obligation booking interest for the
// period ending at periodEnd.
func InterestObligationID(facilityID string, periodEnd time.Time) string {
	return facilityID + "-interest-" + periodEnd.UTC().Format("20060102T150405")
}

// CollateralReleaseID keys the posting returning collateral on completion.
func CollateralReleaseID(facilityID string) string {
	return facilityID + "-release"
}

// Activate makes an approved and fully collateralized facility active. When
// the facility carries an initial disbursal, it is initiated here under
// InitialDisbursalID and must be settled in the same transaction.
func (f *CreditFacility) Activate(now time.Time, price decimal.Decimal, audit AuditInfo) (Idempotent[*FacilityActivation], error) {
	if f.IsActivated() {
		return Ignored[*FacilityActivation](), nil
	}
	if f.Status() == CreditFacilityStatusClosed {
		return Ignored[*FacilityActivation](), ErrFacilityClosed
	}
	if approved, ok := f.Approved(); !ok || !approved {
		return Ignored[*FacilityActivation](), ErrFacilityNotApproved
	}
	if f.Terms.Collateralization(f.collateral, price, f.Amount, false) != CollateralizationFullyCollateralized {
		return Ignored[*FacilityActivation](), ErrFacilityUndercollateralized
	}
	ref := ActivationLedgerReference(f.ID)
	maturesAt := f.Terms.MaturityDate(now)
	f.push(CreditFacilityActivated{
		LedgerTxID:  ref,
		ActivatedAt: now,
		MaturesAt:   maturesAt,
	}, audit)

	activation := &FacilityActivation{
		Posting: LedgerPosting{
			Reference:   ref,
			Description: fmt.Sprintf("activation of facility %s", f.ID),
			Transfers: []LedgerTransfer{{
				FromAccountID: f.Accounts.FacilityOmnibus,
				ToAccountID:   f.Accounts.Facility,
				Amount:        f.Amount,
			}},
		},
	}

	if f.InitialDisbursal.IsPositive() {
		disbursal, err := f.InitiateDisbursal(InitialDisbursalID(f.ID), f.ApprovalProcessID, f.InitialDisbursal, now, audit)
		if err != nil {
			return Ignored[*FacilityActivation](), err
		}
		activation.InitialDisbursal = disbursal
	}

	return Executed(activation), nil
}

// InitiateDisbursal records a new drawdown and returns the disbursal to create.
func (f *CreditFacility) InitiateDisbursal(disbursalID, approvalProcessID string, amount decimal.Decimal, now time.Time, audit AuditInfo) (*NewDisbursal, error) {
	if f.Status() != CreditFacilityStatusActive {
		return nil, ErrFacilityNotActive
	}
	if !now.Before(*f.maturesAt) {
		return nil, ErrDisbursalPastMaturity
	}
	if amount.IsZero() {
		return nil, ErrDisbursalAmountCannotBeZero
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if f.CommittedAmount().Add(amount).GreaterThan(f.Amount) {
		return nil, fmt.Errorf("%w: facility %s limit %s, committed %s, requested %s",
			ErrDisbursalExceedsFacilityAmount, f.ID, f.Amount, f.CommittedAmount(), amount)
	}

	due := *f.maturesAt
	overdue, defaulted := f.Terms.ObligationDates(due)
	n := &NewDisbursal{
		ID:                disbursalID,
		FacilityID:        f.ID,
		ApprovalProcessID: approvalProcessID,
		Amount:            amount,
		Accounts: DisbursalAccounts{
			Facility:        f.Accounts.Facility,
			FacilityOmnibus: f.Accounts.FacilityOmnibus,
			Receivable:      f.Accounts.Receivable,
			Deposit:         f.Accounts.Deposit,
		},
		DueDate:       due,
		OverdueDate:   overdue,
		DefaultedDate: defaulted,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	f.push(CreditFacilityDisbursalInitiated{DisbursalID: disbursalID, Amount: amount}, audit)
	return n, nil
}

// DisbursalConcluded records the outcome of one of the facility's disbursals.
func (f *CreditFacility) DisbursalConcluded(disbursalID string, approved bool, audit AuditInfo) Idempotent[bool] {
	replay := GuardReplay(f.Events, func(e CreditFacilityEvent) Replay {
		if c, ok := e.(CreditFacilityDisbursalConcluded); ok && c.DisbursalID == disbursalID {
			return ReplaySameOutcome
		}
		return ReplayNotApplied
	})
	if replay != ReplayNotApplied {
		return Ignored[bool]()
	}

	f.push(CreditFacilityDisbursalConcluded{DisbursalID: disbursalID, Approved: approved}, audit)
	return Executed(approved)
}

// ObligationRecorded tracks an obligation created for the facility.
func (f *CreditFacility) ObligationRecorded(obligation NewObligation, audit AuditInfo) Idempotent[string] {
	if _, ok := f.obligationTypes[obligation.ID]; ok {
		return Ignored[string]()
	}

	f.push(CreditFacilityObligationRecorded{
		ObligationID: obligation.ID,
		Type:         obligation.Type,
		Amount:       obligation.Amount,
	}, audit)
	return Executed(obligation.ID)
}

// InterestAccrual is an interest obligation plus the posting that books it.
type InterestAccrual struct {
	Obligation NewObligation
	Posting    LedgerPosting
}

// RecordInterestAccrual books interest for the period ending at periodEnd.
// The amount is supplied by the caller; a period is recorded at most once.
func (f *CreditFacility) RecordInterestAccrual(amount decimal.Decimal, periodEnd time.Time, audit AuditInfo) (Idempotent[*InterestAccrual], error) {
	if !f.IsActivated() || f.Status() == CreditFacilityStatusClosed {
		return Ignored[*InterestAccrual](), ErrFacilityNotActive
	}
	if !amount.IsPositive() {
		return Ignored[*InterestAccrual](), ErrInvalidAmount
	}

	replay := GuardReplay(f.Events, func(e CreditFacilityEvent) Replay {
		if a, ok := e.(CreditFacilityInterestAccrued); ok && a.PeriodEnd.Equal(periodEnd) {
			return ReplaySameOutcome
		}
		return ReplayNotApplied
	})
	if replay != ReplayNotApplied {
		return Ignored[*InterestAccrual](), nil
	}

	obligationID := InterestObligationID(f.ID, periodEnd)
	overdue, defaulted := f.Terms.ObligationDates(periodEnd)
	obligation := NewObligation{
		ID:            obligationID,
		FacilityID:    f.ID,
		Type:          ObligationTypeInterest,
		Amount:        amount,
		Reference:     InterestLedgerReference(obligationID),
		Accounts:      f.Accounts.InterestReceivable,
		DueDate:       periodEnd,
		OverdueDate:   overdue,
		DefaultedDate: defaulted,
		RecordedAt:    periodEnd,
	}
	if err := obligation.Validate(); err != nil {
		return Ignored[*InterestAccrual](), err
	}

	f.push(CreditFacilityInterestAccrued{
		ObligationID: obligationID,
		Amount:       amount,
		PeriodEnd:    periodEnd,
	}, audit)
	f.ObligationRecorded(obligation, audit)

	return Executed(&InterestAccrual{
		Obligation: obligation,
		Posting: LedgerPosting{
			Reference:   InterestLedgerReference(obligationID),
			Description: fmt.Sprintf("interest for facility %s until %s", f.ID, periodEnd.Format(time.DateOnly)),
			Transfers: []LedgerTransfer{{
				FromAccountID: f.Accounts.InterestReceivable.NotYetDue,
				ToAccountID:   f.Accounts.InterestIncome,
				Amount:        amount,
			}},
		},
	}), nil
}

// Mature expires an active facility once its maturity date has passed.
func (f *CreditFacility) Mature(now time.Time, audit AuditInfo) (Idempotent[time.Time], error) {
	if f.matured {
		return Ignored[time.Time](), nil
	}
	if f.Status() != CreditFacilityStatusActive {
		return Ignored[time.Time](), ErrFacilityNotActive
	}
	if now.Before(*f.maturesAt) {
		return Ignored[time.Time](), ErrFacilityNotMatured
	}

	f.push(CreditFacilityMatured{}, audit)
	return Executed(*f.maturesAt), nil
}

// Complete closes an expired facility with nothing outstanding and returns the
// posting releasing its collateral, nil when none is held.
func (f *CreditFacility) Complete(balance FacilityBalance, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	if f.completed {
		return Ignored[*LedgerPosting](), nil
	}
	if f.Status() != CreditFacilityStatusExpired {
		return Ignored[*LedgerPosting](), ErrFacilityNotMatured
	}
	if !balance.TotalOutstanding().IsZero() {
		return Ignored[*LedgerPosting](), fmt.Errorf("%w: facility %s still owes %s",
			ErrFacilityHasOutstanding, f.ID, balance.TotalOutstanding())
	}

	var posting *LedgerPosting
	if f.collateral.IsPositive() {
		released, err := f.UpdateCollateral(CollateralReleaseID(f.ID), decimal.Zero, audit)
		if err != nil {
			return Ignored[*LedgerPosting](), err
		}
		posting = released.Value()
	}

	f.push(CreditFacilityCompleted{}, audit)
	return Executed(posting), nil
}

// FacilityBalance summarizes what a facility owes.
type FacilityBalance struct {
	FacilityRemaining    decimal.Decimal
	Disbursed            decimal.Decimal
	InterestRecorded     decimal.Decimal
	DisbursalOutstanding decimal.Decimal
	InterestOutstanding  decimal.Decimal
	NotYetDue            decimal.Decimal
	Due                  decimal.Decimal
	Overdue              decimal.Decimal
	Defaulted            decimal.Decimal
	Collateral           decimal.Decimal
}

// TotalOutstanding is disbursal plus interest outstanding.
func (b FacilityBalance) TotalOutstanding() decimal.Decimal {
	return b.DisbursalOutstanding.Add(b.InterestOutstanding)
}

// Balance sums the facility's obligations. Obligations of other facilities
// are skipped.
func (f *CreditFacility) Balance(obligations []*Obligation) FacilityBalance {
	b := FacilityBalance{
		FacilityRemaining:    f.Amount.Sub(f.disbursed),
		Disbursed:            f.disbursed,
		InterestRecorded:     f.interestRecorded,
		DisbursalOutstanding: decimal.Zero,
		InterestOutstanding:  decimal.Zero,
		NotYetDue:            decimal.Zero,
		Due:                  decimal.Zero,
		Overdue:              decimal.Zero,
		Defaulted:            decimal.Zero,
		Collateral:           f.collateral,
	}

	for _, o := range obligations {
		if o.FacilityID != f.ID {
			continue
		}
		out := o.Outstanding()
		switch o.Type {
		case ObligationTypeInterest:
			b.InterestOutstanding = b.InterestOutstanding.Add(out)
		default:
			b.DisbursalOutstanding = b.DisbursalOutstanding.Add(out)
		}
		switch o.Status() {
		case ObligationStatusNotYetDue:
			b.NotYetDue = b.NotYetDue.Add(out)
		case ObligationStatusDue:
			b.Due = b.Due.Add(out)
		case ObligationStatusOverdue:
			b.Overdue = b.Overdue.Add(out)
		case ObligationStatusDefaulted:
			b.Defaulted = b.Defaulted.Add(out)
		}
	}

	return b
}
