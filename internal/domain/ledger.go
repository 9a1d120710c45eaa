package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerTransfer moves amount from one external ledger account to another.
type LedgerTransfer struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// LedgerPosting is a set of transfers the external ledger applies atomically.
// Reference is the idempotency key: posting the same reference twice yields
// the same ledger transaction.
type LedgerPosting struct {
	Reference   string           `json:"reference"`
	Description string           `json:"description"`
	Transfers   []LedgerTransfer `json:"transfers"`
}

// OutboxPayloadPosting is the outbox payload key of a posting that is booked
// only after the transaction writing the event has committed.
const OutboxPayloadPosting = "posting"

// LedgerPostingFromPayload decodes a posting stored in an outbox payload,
// either as written or after a round trip through storage.
func LedgerPostingFromPayload(v any) (LedgerPosting, error) {
	var posting LedgerPosting
	data, err := json.Marshal(v)
	if err != nil {
		return posting, fmt.Errorf("%w: %v", ErrInvalidLedgerPosting, err)
	}
	if err := json.Unmarshal(data, &posting); err != nil {
		return posting, fmt.Errorf("%w: %v", ErrInvalidLedgerPosting, err)
	}
	return posting, posting.Validate()
}

// Validate checks the posting before it is sent
func (p LedgerPosting) Validate() error {
	if strings.TrimSpace(p.Reference) == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidLedgerPosting)
	}
	if len(p.Transfers) == 0 {
		return fmt.Errorf("%w: at least one transfer is required", ErrInvalidLedgerPosting)
	}
	for i, t := range p.Transfers {
		if t.FromAccountID == "" || t.ToAccountID == "" {
			return fmt.Errorf("%w: transfer %d is missing an account", ErrInvalidLedgerPosting, i)
		}
		if t.FromAccountID == t.ToAccountID {
			return fmt.Errorf("%w: transfer %d uses the same account twice", ErrInvalidLedgerPosting, i)
		}
		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: transfer %d amount must be positive", ErrInvalidLedgerPosting, i)
		}
	}
	return nil
}

// NewLedgerAccount describes an account to open in the external ledger.
type NewLedgerAccount struct {
	Reference string
	Name      string
	Currency  string
	// AllowNegative is set for receivable and omnibus accounts, whose balances
	// run below zero while money is owed or outstanding.
	AllowNegative bool
}

// Ledger posting references. They are derived from ids that stay the same
// across retries of one command, so the ledger books each posting once.
func DisbursalLedgerReference(disbursalID string) string {
	return "disbursal-" + disbursalID
}

func PaymentLedgerReference(paymentID string) string {
	return "payment-" + paymentID
}

func ActivationLedgerReference(facilityID string) string {
	return "activation-" + facilityID
}

func CollateralLedgerReference(updateID string) string {
	return "collateral-" + updateID
}

func ObligationTransitionLedgerReference(obligationID string, status ObligationStatus) string {
	return fmt.Sprintf("obligation-%s-%s", obligationID, status)
}

func InterestLedgerReference(obligationID string) string {
	return "interest-" + obligationID
}
