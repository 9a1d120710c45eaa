package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received against a facility.
type Payment struct {
	ID              string
	FacilityID      string
	Amount          decimal.Decimal
	SourceAccountID string
	RecordedAt      time.Time
	Allocations     []NewPaymentAllocation
}

// NewPaymentAllocation is the part of a payment applied to one obligation.
// Allocations are immutable once created.
type NewPaymentAllocation struct {
	ID                     string
	PaymentID              string
	FacilityID             string
	ObligationID           string
	ObligationType         ObligationType
	Amount                 decimal.Decimal
	ReceivableAccountID    string
	PaymentSourceAccountID string
	RecordedAt             time.Time
}

// AllocatableObligation is what the allocator needs from an obligation.
type AllocatableObligation interface {
	ObligationID() string
	ObligationType() ObligationType
	RecordedAt() time.Time
	Outstanding() decimal.Decimal
	ReceivableAccount() string
}

// PaymentAllocationID derives the id of the n-th allocation of a payment.
func PaymentAllocationID(paymentID string, n int) string {
	return fmt.Sprintf("%s-%d", paymentID, n)
}

// AllocatePayment splits a payment across obligations: interest before
// disbursal, oldest first within each type, ties broken by obligation id.
// The returned amounts always sum to the payment amount.
func AllocatePayment(payment Payment, obligations []AllocatableObligation) ([]NewPaymentAllocation, error) {
	if !payment.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	total := decimal.Zero
	var interest, disbursal []AllocatableObligation
	for _, o := range obligations {
		total = total.Add(o.Outstanding())
		switch o.ObligationType() {
		case ObligationTypeInterest:
			interest = append(interest, o)
		default:
			disbursal = append(disbursal, o)
		}
	}

	if payment.Amount.GreaterThan(total) {
		return nil, fmt.Errorf("%w: payment %s, outstanding %s",
			ErrPaymentAmountGreaterThanOutstandingObligations, payment.Amount, total)
	}

	sortByRecordedAt(interest)
	sortByRecordedAt(disbursal)

	remaining := payment.Amount
	allocations := make([]NewPaymentAllocation, 0, len(obligations))
	for _, o := range append(interest, disbursal...) {
		if remaining.IsZero() {
			break
		}
		outstanding := o.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}

		amount := decimal.Min(remaining, outstanding)
		remaining = remaining.Sub(amount)

		allocations = append(allocations, NewPaymentAllocation{
			ID:                     PaymentAllocationID(payment.ID, len(allocations)+1),
			PaymentID:              payment.ID,
			FacilityID:             payment.FacilityID,
			ObligationID:           o.ObligationID(),
			ObligationType:         o.ObligationType(),
			Amount:                 amount,
			ReceivableAccountID:    o.ReceivableAccount(),
			PaymentSourceAccountID: payment.SourceAccountID,
			RecordedAt:             payment.RecordedAt,
		})
	}

	return allocations, nil
}

func sortByRecordedAt(obligations []AllocatableObligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		a, b := obligations[i], obligations[j]
		if !a.RecordedAt().Equal(b.RecordedAt()) {
			return a.RecordedAt().Before(b.RecordedAt())
		}
		return a.ObligationID() < b.ObligationID()
	})
}

// LedgerPosting returns the transfers that move the payment into the
// receivable accounts of the allocated obligations.
func (p *Payment) LedgerPosting() LedgerPosting {
	transfers := make([]LedgerTransfer, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		transfers = append(transfers, LedgerTransfer{
			FromAccountID: a.PaymentSourceAccountID,
			ToAccountID:   a.ReceivableAccountID,
			Amount:        a.Amount,
		})
	}
	return LedgerPosting{
		Reference:   PaymentLedgerReference(p.ID),
		Description: fmt.Sprintf("payment %s for facility %s", p.ID, p.FacilityID),
		Transfers:   transfers,
	}
}
