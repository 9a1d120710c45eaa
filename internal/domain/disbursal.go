package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DisbursalStatus is the derived state of a disbursal
type DisbursalStatus string

const (
	DisbursalStatusNew       DisbursalStatus = "new"
	DisbursalStatusApproved  DisbursalStatus = "approved"
	DisbursalStatusDenied    DisbursalStatus = "denied"
	DisbursalStatusConfirmed DisbursalStatus = "confirmed"
	DisbursalStatusCancelled DisbursalStatus = "cancelled"
)

// DisbursalAccounts are the ledger accounts a settlement touches.
type DisbursalAccounts struct {
	Facility        string             `json:"facility"`
	FacilityOmnibus string             `json:"facility_omnibus"`
	Receivable      ObligationAccounts `json:"receivable"`
	Deposit         string             `json:"deposit"`
}

func (a DisbursalAccounts) validate() error {
	if a.Facility == "" || a.FacilityOmnibus == "" || a.Deposit == "" {
		return fmt.Errorf("%w: facility and deposit accounts are required", ErrInvalidDisbursal)
	}
	if err := a.Receivable.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDisbursal, err)
	}
	return nil
}

// NewDisbursal holds the data needed to initiate a disbursal.
type NewDisbursal struct {
	ID                string
	FacilityID        string
	ApprovalProcessID string
	Amount            decimal.Decimal
	Accounts          DisbursalAccounts
	DueDate           time.Time
	OverdueDate       time.Time
	DefaultedDate     *time.Time
}

// Validate checks the new disbursal
func (n NewDisbursal) Validate() error {
	if n.Amount.IsZero() {
		return ErrDisbursalAmountCannotBeZero
	}
	if n.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if n.ID == "" || n.FacilityID == "" || n.ApprovalProcessID == "" {
		return fmt.Errorf("%w: id, facility id and approval process id are required", ErrInvalidDisbursal)
	}
	if n.OverdueDate.Before(n.DueDate) {
		return fmt.Errorf("%w: overdue date precedes due date", ErrInvalidDisbursal)
	}
	if n.DefaultedDate != nil && n.DefaultedDate.Before(n.OverdueDate) {
		return fmt.Errorf("%w: defaulted date precedes overdue date", ErrInvalidDisbursal)
	}
	return n.Accounts.validate()
}

// DisbursalEvent is an event of the disbursal log.
type DisbursalEvent interface {
	DomainEvent
	disbursalEvent()
}

const (
	EventTypeDisbursalInitialized              = "disbursal.initialized"
	EventTypeDisbursalApprovalProcessConcluded = "disbursal.approval_process_concluded"
	EventTypeDisbursalSettled                  = "disbursal.settled"
	EventTypeDisbursalCancelled                = "disbursal.cancelled"
)

type DisbursalInitialized struct {
	ID                string            `json:"id"`
	FacilityID        string            `json:"facility_id"`
	ApprovalProcessID string            `json:"approval_process_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Accounts          DisbursalAccounts `json:"accounts"`
	DueDate           time.Time         `json:"due_date"`
	OverdueDate       time.Time         `json:"overdue_date"`
	DefaultedDate     *time.Time        `json:"defaulted_date,omitempty"`
}

type DisbursalApprovalProcessConcluded struct {
	ApprovalProcessID string `json:"approval_process_id"`
	Approved          bool   `json:"approved"`
}

type DisbursalSettled struct {
	LedgerTxID   string          `json:"ledger_tx_id"`
	ObligationID string          `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
	EffectiveAt  time.Time       `json:"effective_at"`
}

type DisbursalCancelled struct {
	LedgerTxID string `json:"ledger_tx_id"`
}

func (DisbursalInitialized) EventType() string { return EventTypeDisbursalInitialized }
func (DisbursalApprovalProcessConcluded) EventType() string {
	return EventTypeDisbursalApprovalProcessConcluded
}
func (DisbursalSettled) EventType() string   { return EventTypeDisbursalSettled }
func (DisbursalCancelled) EventType() string { return EventTypeDisbursalCancelled }

func (DisbursalInitialized) disbursalEvent()              {}
func (DisbursalApprovalProcessConcluded) disbursalEvent() {}
func (DisbursalSettled) disbursalEvent()                  {}
func (DisbursalCancelled) disbursalEvent()                {}

// Disbursal is a drawdown against a facility. Its state is a projection of Events.
type Disbursal struct {
	ID                string
	FacilityID        string
	ApprovalProcessID string
	Amount            decimal.Decimal
	Accounts          DisbursalAccounts
	DueDate           time.Time
	OverdueDate       time.Time
	DefaultedDate     *time.Time

	approved     *bool
	settled      bool
	cancelled    bool
	obligationID string
	ledgerTxID   string

	Events *EntityEvents[DisbursalEvent]
}

// CreateDisbursal validates n and returns a disbursal with a pending
// Initialized event.
func CreateDisbursal(n NewDisbursal, audit AuditInfo) (*Disbursal, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	events := NewEntityEvents[DisbursalEvent](n.ID, audit, DisbursalInitialized{
		ID:                n.ID,
		FacilityID:        n.FacilityID,
		ApprovalProcessID: n.ApprovalProcessID,
		Amount:            n.Amount,
		Accounts:          n.Accounts,
		DueDate:           n.DueDate,
		OverdueDate:       n.OverdueDate,
		DefaultedDate:     n.DefaultedDate,
	})
	return DisbursalFromEvents(events)
}

// DisbursalFromEvents hydrates a disbursal by replaying its log.
func DisbursalFromEvents(events *EntityEvents[DisbursalEvent]) (*Disbursal, error) {
	all := events.All()
	if len(all) == 0 {
		return nil, ErrUninitializedEntity
	}
	if _, ok := all[0].Payload.(DisbursalInitialized); !ok {
		return nil, fmt.Errorf("%w: disbursal %s", ErrUninitializedEntity, events.EntityID())
	}

	d := &Disbursal{Events: events}
	for _, e := range all {
		d.apply(e.Payload)
	}
	return d, nil
}

func (d *Disbursal) apply(event DisbursalEvent) {
	switch e := event.(type) {
	case DisbursalInitialized:
		d.ID = e.ID
		d.FacilityID = e.FacilityID
		d.ApprovalProcessID = e.ApprovalProcessID
		d.Amount = e.Amount
		d.Accounts = e.Accounts
		d.DueDate = e.DueDate
		d.OverdueDate = e.OverdueDate
		d.DefaultedDate = e.DefaultedDate
	case DisbursalApprovalProcessConcluded:
		approved := e.Approved
		d.approved = &approved
	case DisbursalSettled:
		d.settled = true
		d.obligationID = e.ObligationID
		d.ledgerTxID = e.LedgerTxID
	case DisbursalCancelled:
		d.cancelled = true
		d.ledgerTxID = e.LedgerTxID
	}
}

func (d *Disbursal) push(event DisbursalEvent, audit AuditInfo) {
	d.Events.Push(event, audit)
	d.apply(event)
}

// Status is confirmed once settled, otherwise follows the approval outcome.
func (d *Disbursal) Status() DisbursalStatus {
	switch {
	case d.settled:
		return DisbursalStatusConfirmed
	case d.cancelled:
		return DisbursalStatusCancelled
	case d.approved == nil:
		return DisbursalStatusNew
	case *d.approved:
		return DisbursalStatusApproved
	default:
		return DisbursalStatusDenied
	}
}

// ObligationID is set once the disbursal settled.
func (d *Disbursal) ObligationID() string {
	return d.obligationID
}

// LedgerTxID is the ledger reference recorded on settlement or cancellation.
func (d *Disbursal) LedgerTxID() string {
	return d.ledgerTxID
}

// IsCancelled reports whether the disbursal was denied and cancelled.
func (d *Disbursal) IsCancelled() bool {
	return d.cancelled
}

// Version is the number of persisted events.
func (d *Disbursal) Version() int {
	return d.Events.LenPersisted()
}

// ApprovalProcessConcluded applies the approval outcome. On approval the
// disbursal settles and returns the obligation to record; on denial it is
// cancelled and returns nil. Applying the same outcome again is ignored;
// applying the opposite outcome fails with ErrInconsistentIdempotency.
func (d *Disbursal) ApprovalProcessConcluded(ledgerTxID string, approved bool, effective time.Time, audit AuditInfo) (Idempotent[*NewObligation], error) {
	replay := GuardReplay(d.Events, func(e DisbursalEvent) Replay {
		if c, ok := e.(DisbursalApprovalProcessConcluded); ok {
			if c.Approved == approved {
				return ReplaySameOutcome
			}
			return ReplayConflictingOutcome
		}
		return ReplayNotApplied
	})

	switch replay {
	case ReplaySameOutcome:
		return Ignored[*NewObligation](), nil
	case ReplayConflictingOutcome:
		return Ignored[*NewObligation](), fmt.Errorf("%w: disbursal %s approval already concluded with approved=%t",
			ErrInconsistentIdempotency, d.ID, !approved)
	}

	d.push(DisbursalApprovalProcessConcluded{
		ApprovalProcessID: d.ApprovalProcessID,
		Approved:          approved,
	}, audit)

	if !approved {
		d.push(DisbursalCancelled{LedgerTxID: ledgerTxID}, audit)
		return Executed[*NewObligation](nil), nil
	}

	obligation, err := d.settle(ledgerTxID, effective, audit)
	if err != nil {
		return Ignored[*NewObligation](), err
	}
	return Executed(obligation), nil
}

func (d *Disbursal) settle(ledgerTxID string, effective time.Time, audit AuditInfo) (*NewObligation, error) {
	replay := GuardReplay(d.Events, func(e DisbursalEvent) Replay {
		if _, ok := e.(DisbursalSettled); ok {
			return ReplaySameOutcome
		}
		return ReplayNotApplied
	})
	if replay != ReplayNotApplied {
		return nil, fmt.Errorf("%w: disbursal %s already settled", ErrInconsistentIdempotency, d.ID)
	}

	obligation := &NewObligation{
		ID:            d.ID,
		FacilityID:    d.FacilityID,
		Type:          ObligationTypeDisbursal,
		Amount:        d.Amount,
		Reference:     DisbursalLedgerReference(d.ID),
		Accounts:      d.Accounts.Receivable,
		DueDate:       d.DueDate,
		OverdueDate:   d.OverdueDate,
		DefaultedDate: d.DefaultedDate,
		RecordedAt:    effective,
	}

	d.push(DisbursalSettled{
		LedgerTxID:   ledgerTxID,
		ObligationID: obligation.ID,
		Amount:       d.Amount,
		EffectiveAt:  effective,
	}, audit)

	return obligation, nil
}

// SettlementPosting pays the amount out to the deposit account, records it as
// owed on the not-yet-due receivable and draws down the facility.
func (d *Disbursal) SettlementPosting() LedgerPosting {
	return LedgerPosting{
		Reference:   DisbursalLedgerReference(d.ID),
		Description: fmt.Sprintf("disbursal %s settlement for facility %s", d.ID, d.FacilityID),
		Transfers: []LedgerTransfer{
			{FromAccountID: d.Accounts.Receivable.NotYetDue, ToAccountID: d.Accounts.Deposit, Amount: d.Amount},
			{FromAccountID: d.Accounts.Facility, ToAccountID: d.Accounts.FacilityOmnibus, Amount: d.Amount},
		},
	}
}
