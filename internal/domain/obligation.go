package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ObligationType distinguishes principal from interest.
type ObligationType string

const (
	ObligationTypeDisbursal ObligationType = "disbursal"
	ObligationTypeInterest  ObligationType = "interest"
)

// IsValid checks if the obligation type is known
func (t ObligationType) IsValid() bool {
	return t == ObligationTypeDisbursal || t == ObligationTypeInterest
}

// ObligationStatus is the derived state of an obligation
type ObligationStatus string

const (
	ObligationStatusNotYetDue ObligationStatus = "not_yet_due"
	ObligationStatusDue       ObligationStatus = "due"
	ObligationStatusOverdue   ObligationStatus = "overdue"
	ObligationStatusDefaulted ObligationStatus = "defaulted"
	ObligationStatusPaid      ObligationStatus = "paid"
)

// ObligationAccounts are the receivable accounts that carry the outstanding
// balance in each status.
type ObligationAccounts struct {
	NotYetDue string `json:"not_yet_due"`
	Due       string `json:"due"`
	Overdue   string `json:"overdue"`
	Defaulted string `json:"defaulted"`
}

func (a ObligationAccounts) validate() error {
	if a.NotYetDue == "" || a.Due == "" || a.Overdue == "" || a.Defaulted == "" {
		return fmt.Errorf("%w: all receivable accounts are required", ErrInvalidObligation)
	}
	return nil
}

// NewObligation holds the data needed to record an obligation. RecordedAt is
// the effective date used for payment ordering.
type NewObligation struct {
	ID            string
	FacilityID    string
	Type          ObligationType
	Amount        decimal.Decimal
	Reference     string
	Accounts      ObligationAccounts
	DueDate       time.Time
	OverdueDate   time.Time
	DefaultedDate *time.Time
	RecordedAt    time.Time
}

// Validate checks the new obligation
func (n NewObligation) Validate() error {
	if n.ID == "" || n.FacilityID == "" {
		return fmt.Errorf("%w: id and facility id are required", ErrInvalidObligation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidObligation, n.Type)
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if n.OverdueDate.Before(n.DueDate) {
		return fmt.Errorf("%w: overdue date precedes due date", ErrInvalidObligation)
	}
	if n.DefaultedDate != nil && n.DefaultedDate.Before(n.OverdueDate) {
		return fmt.Errorf("%w: defaulted date precedes overdue date", ErrInvalidObligation)
	}
	return n.Accounts.validate()
}

// ObligationEvent is an event of the obligation log.
type ObligationEvent interface {
	DomainEvent
	obligationEvent()
}

const (
	EventTypeObligationInitialized       = "obligation.initialized"
	EventTypeObligationDueRecorded       = "obligation.due_recorded"
	EventTypeObligationOverdueRecorded   = "obligation.overdue_recorded"
	EventTypeObligationDefaultedRecorded = "obligation.defaulted_recorded"
	EventTypeObligationPaymentAllocated  = "obligation.payment_allocated"
	EventTypeObligationCompleted         = "obligation.completed"
)

type ObligationInitialized struct {
	ID            string             `json:"id"`
	FacilityID    string             `json:"facility_id"`
	Type          ObligationType     `json:"type"`
	Amount        decimal.Decimal    `json:"amount"`
	Reference     string             `json:"reference"`
	Accounts      ObligationAccounts `json:"accounts"`
	DueDate       time.Time          `json:"due_date"`
	OverdueDate   time.Time          `json:"overdue_date"`
	DefaultedDate *time.Time         `json:"defaulted_date,omitempty"`
	RecordedAt    time.Time          `json:"recorded_at"`
}

type ObligationDueRecorded struct {
	Amount decimal.Decimal `json:"amount"`
}

type ObligationOverdueRecorded struct {
	Amount decimal.Decimal `json:"amount"`
}

type ObligationDefaultedRecorded struct {
	Amount decimal.Decimal `json:"amount"`
}

type ObligationPaymentAllocated struct {
	PaymentID    string          `json:"payment_id"`
	AllocationID string          `json:"allocation_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type ObligationCompleted struct{}

func (ObligationInitialized) EventType() string       { return EventTypeObligationInitialized }
func (ObligationDueRecorded) EventType() string       { return EventTypeObligationDueRecorded }
func (ObligationOverdueRecorded) EventType() string   { return EventTypeObligationOverdueRecorded }
func (ObligationDefaultedRecorded) EventType() string { return EventTypeObligationDefaultedRecorded }
func (ObligationPaymentAllocated) EventType() string  { return EventTypeObligationPaymentAllocated }
func (ObligationCompleted) EventType() string         { return EventTypeObligationCompleted }

func (ObligationInitialized) obligationEvent()       {}
func (ObligationDueRecorded) obligationEvent()       {}
func (ObligationOverdueRecorded) obligationEvent()   {}
func (ObligationDefaultedRecorded) obligationEvent() {}
func (ObligationPaymentAllocated) obligationEvent()  {}
func (ObligationCompleted) obligationEvent()         {}

// Obligation is an amount owed against a facility. Its state is a projection
// of Events.
type Obligation struct {
	ID            string
	FacilityID    string
	Type          ObligationType
	Amount        decimal.Decimal
	Reference     string
	Accounts      ObligationAccounts
	DueDate       time.Time
	OverdueDate   time.Time
	DefaultedDate *time.Time

	recordedAt time.Time
	paid       decimal.Decimal
	bucket     ObligationStatus
	completed  bool

	Events *EntityEvents[ObligationEvent]
}

// CreateObligation validates n and returns an obligation with a pending
// Initialized event.
func CreateObligation(n NewObligation, audit AuditInfo) (*Obligation, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	events := NewEntityEvents[ObligationEvent](n.ID, audit, ObligationInitialized{
		ID:            n.ID,
		FacilityID:    n.FacilityID,
		Type:          n.Type,
		Amount:        n.Amount,
		Reference:     n.Reference,
		Accounts:      n.Accounts,
		DueDate:       n.DueDate,
		OverdueDate:   n.OverdueDate,
		DefaultedDate: n.DefaultedDate,
		RecordedAt:    n.RecordedAt,
	})
	return ObligationFromEvents(events)
}

// ObligationFromEvents hydrates an obligation by replaying its log.
func ObligationFromEvents(events *EntityEvents[ObligationEvent]) (*Obligation, error) {
	all := events.All()
	if len(all) == 0 {
		return nil, ErrUninitializedEntity
	}
	if _, ok := all[0].Payload.(ObligationInitialized); !ok {
		return nil, fmt.Errorf("%w: obligation %s", ErrUninitializedEntity, events.EntityID())
	}

	o := &Obligation{Events: events}
	for _, e := range all {
		o.apply(e.Payload)
	}
	return o, nil
}

func (o *Obligation) apply(event ObligationEvent) {
	switch e := event.(type) {
	case ObligationInitialized:
		o.ID = e.ID
		o.FacilityID = e.FacilityID
		o.Type = e.Type
		o.Amount = e.Amount
		o.Reference = e.Reference
		o.Accounts = e.Accounts
		o.DueDate = e.DueDate
		o.OverdueDate = e.OverdueDate
		o.DefaultedDate = e.DefaultedDate
		o.recordedAt = e.RecordedAt
		o.paid = decimal.Zero
		o.bucket = ObligationStatusNotYetDue
	case ObligationDueRecorded:
		o.bucket = ObligationStatusDue
	case ObligationOverdueRecorded:
		o.bucket = ObligationStatusOverdue
	case ObligationDefaultedRecorded:
		o.bucket = ObligationStatusDefaulted
	case ObligationPaymentAllocated:
		o.paid = o.paid.Add(e.Amount)
	case ObligationCompleted:
		o.completed = true
	}
}

func (o *Obligation) push(event ObligationEvent, audit AuditInfo) {
	o.Events.Push(event, audit)
	o.apply(event)
}

// Outstanding is the amount minus every allocation recorded so far.
func (o *Obligation) Outstanding() decimal.Decimal {
	out := o.Amount.Sub(o.paid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// ObligationID, ObligationType and RecordedAt expose what the payment
// allocator orders by.
func (o *Obligation) ObligationID() string {
	return o.ID
}

func (o *Obligation) ObligationType() ObligationType {
	return o.Type
}

func (o *Obligation) RecordedAt() time.Time {
	return o.recordedAt
}

// ReceivableAccount is the account currently carrying the outstanding balance.
func (o *Obligation) ReceivableAccount() string {
	switch o.bucket {
	case ObligationStatusDue:
		return o.Accounts.Due
	case ObligationStatusOverdue:
		return o.Accounts.Overdue
	case ObligationStatusDefaulted:
		return o.Accounts.Defaulted
	default:
		return o.Accounts.NotYetDue
	}
}

// Status is paid once completed, otherwise the current bucket.
func (o *Obligation) Status() ObligationStatus {
	if o.completed {
		return ObligationStatusPaid
	}
	return o.bucket
}

// IsPaid reports whether nothing is owed anymore.
func (o *Obligation) IsPaid() bool {
	return o.completed
}

// Version is the number of persisted events.
func (o *Obligation) Version() int {
	return o.Events.LenPersisted()
}

// RecordPaymentAllocation reduces the outstanding amount and returns what is
// left. Replaying an allocation id is ignored.
func (o *Obligation) RecordPaymentAllocation(allocation NewPaymentAllocation, audit AuditInfo) (Idempotent[decimal.Decimal], error) {
	replay := GuardReplay(o.Events, func(e ObligationEvent) Replay {
		if a, ok := e.(ObligationPaymentAllocated); ok && a.AllocationID == allocation.ID {
			return ReplaySameOutcome
		}
		return ReplayNotApplied
	})
	if replay != ReplayNotApplied {
		return Ignored[decimal.Decimal](), nil
	}

	if !allocation.Amount.IsPositive() {
		return Ignored[decimal.Decimal](), ErrInvalidAmount
	}
	if allocation.Amount.GreaterThan(o.Outstanding()) {
		return Ignored[decimal.Decimal](), fmt.Errorf("%w: obligation %s owes %s, allocation is %s",
			ErrAmountExceedsOutstanding, o.ID, o.Outstanding(), allocation.Amount)
	}

	o.push(ObligationPaymentAllocated{
		PaymentID:    allocation.PaymentID,
		AllocationID: allocation.ID,
		Amount:       allocation.Amount,
	}, audit)

	if o.Outstanding().IsZero() {
		o.push(ObligationCompleted{}, audit)
	}

	return Executed(o.Outstanding()), nil
}

// RecordDue moves the outstanding balance into the due bucket once DueDate has
// passed. The returned posting is nil when nothing is left to move.
func (o *Obligation) RecordDue(now time.Time, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	return o.transition(now, o.DueDate, ObligationStatusNotYetDue, ObligationStatusDue, audit)
}

// RecordOverdue moves a due balance into the overdue bucket.
func (o *Obligation) RecordOverdue(now time.Time, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	return o.transition(now, o.OverdueDate, ObligationStatusDue, ObligationStatusOverdue, audit)
}

// RecordDefaulted moves an overdue balance into the defaulted bucket. It is
// rejected for obligations without a defaulted date.
func (o *Obligation) RecordDefaulted(now time.Time, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	if o.DefaultedDate == nil {
		return Ignored[*LedgerPosting](), fmt.Errorf("%w: obligation %s has no defaulted date", ErrInvalidObligationTransition, o.ID)
	}
	return o.transition(now, *o.DefaultedDate, ObligationStatusOverdue, ObligationStatusDefaulted, audit)
}

// NextTransitionAt returns when the next bucket move becomes effective.
func (o *Obligation) NextTransitionAt() (time.Time, bool) {
	if o.completed {
		return time.Time{}, false
	}
	switch o.bucket {
	case ObligationStatusNotYetDue:
		return o.DueDate, true
	case ObligationStatusDue:
		return o.OverdueDate, true
	case ObligationStatusOverdue:
		if o.DefaultedDate != nil {
			return *o.DefaultedDate, true
		}
	}
	return time.Time{}, false
}

func (o *Obligation) transition(now, effective time.Time, from, to ObligationStatus, audit AuditInfo) (Idempotent[*LedgerPosting], error) {
	if o.completed || statusRank(o.bucket) >= statusRank(to) {
		return Ignored[*LedgerPosting](), nil
	}
	if o.bucket != from {
		return Ignored[*LedgerPosting](), fmt.Errorf("%w: obligation %s is %s, expected %s", ErrInvalidObligationTransition, o.ID, o.bucket, from)
	}
	if now.Before(effective) {
		return Ignored[*LedgerPosting](), fmt.Errorf("%w: obligation %s becomes %s at %s", ErrInvalidObligationTransition, o.ID, to, effective.Format(time.RFC3339))
	}

	oldAccount := o.ReceivableAccount()
	amount := o.Outstanding()

	switch to {
	case ObligationStatusDue:
		o.push(ObligationDueRecorded{Amount: amount}, audit)
	case ObligationStatusOverdue:
		o.push(ObligationOverdueRecorded{Amount: amount}, audit)
	case ObligationStatusDefaulted:
		o.push(ObligationDefaultedRecorded{Amount: amount}, audit)
	}

	if amount.IsZero() {
		return Executed[*LedgerPosting](nil), nil
	}

	return Executed(&LedgerPosting{
		Reference:   ObligationTransitionLedgerReference(o.ID, to),
		Description: fmt.Sprintf("obligation %s %s", o.ID, to),
		Transfers: []LedgerTransfer{{
			FromAccountID: o.ReceivableAccount(),
			ToAccountID:   oldAccount,
			Amount:        amount,
		}},
	}), nil
}

func statusRank(s ObligationStatus) int {
	switch s {
	case ObligationStatusDue:
		return 1
	case ObligationStatusOverdue:
		return 2
	case ObligationStatusDefaulted:
		return 3
	case ObligationStatusPaid:
		return 4
	default:
		return 0
	}
}
