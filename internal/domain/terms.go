package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TermValues are the contractual terms of a credit facility. CVL thresholds are
// percentages of collateral value over exposure.
type TermValues struct {
	AnnualRate              decimal.Decimal `json:"annual_rate"`
	DurationMonths          int             `json:"duration_months"`
	ObligationOverdueDays   int             `json:"obligation_overdue_days"`
	ObligationDefaultedDays int             `json:"obligation_defaulted_days,omitempty"`
	InitialCVL              decimal.Decimal `json:"initial_cvl"`
	MarginCallCVL           decimal.Decimal `json:"margin_call_cvl"`
	LiquidationCVL          decimal.Decimal `json:"liquidation_cvl"`
}

// Validate checks the terms
func (t TermValues) Validate() error {
	if t.AnnualRate.IsNegative() {
		return fmt.Errorf("%w: annual rate cannot be negative", ErrInvalidTerms)
	}
	if t.DurationMonths <= 0 {
		return fmt.Errorf("%w: duration must be at least one month", ErrInvalidTerms)
	}
	if t.ObligationOverdueDays < 0 {
		return fmt.Errorf("%w: overdue days cannot be negative", ErrInvalidTerms)
	}
	if t.ObligationDefaultedDays != 0 && t.ObligationDefaultedDays < t.ObligationOverdueDays {
		return fmt.Errorf("%w: defaulted days must not precede overdue days", ErrInvalidTerms)
	}
	if !t.LiquidationCVL.IsPositive() {
		return fmt.Errorf("%w: liquidation cvl must be positive", ErrInvalidTerms)
	}
	if !t.MarginCallCVL.GreaterThan(t.LiquidationCVL) {
		return fmt.Errorf("%w: margin call cvl must exceed liquidation cvl", ErrInvalidTerms)
	}
	if !t.InitialCVL.GreaterThan(t.MarginCallCVL) {
		return fmt.Errorf("%w: initial cvl must exceed margin call cvl", ErrInvalidTerms)
	}
	return nil
}

// MaturityDate is when a facility activated at activatedAt expires.
func (t TermValues) MaturityDate(activatedAt time.Time) time.Time {
	return activatedAt.AddDate(0, t.DurationMonths, 0)
}

// ObligationDates derives the overdue and defaulted dates for an obligation
// due at due.
func (t TermValues) ObligationDates(due time.Time) (overdue time.Time, defaulted *time.Time) {
	overdue = due.AddDate(0, 0, t.ObligationOverdueDays)
	if t.ObligationDefaultedDays > 0 {
		d := due.AddDate(0, 0, t.ObligationDefaultedDays)
		defaulted = &d
	}
	return overdue, defaulted
}

// CVL returns collateral value over exposure as a percentage. ok is false when
// there is no exposure.
func CVL(collateral, price, exposure decimal.Decimal) (cvl decimal.Decimal, ok bool) {
	if !exposure.IsPositive() {
		return decimal.Zero, false
	}
	return collateral.Mul(price).Div(exposure).Mul(hundred).Round(2), true
}

// CollateralizationState classifies collateral sufficiency
type CollateralizationState string

const (
	CollateralizationNoCollateral              CollateralizationState = "no_collateral"
	CollateralizationFullyCollateralized       CollateralizationState = "fully_collateralized"
	CollateralizationUnderMarginCallThreshold  CollateralizationState = "under_margin_call_threshold"
	CollateralizationUnderLiquidationThreshold CollateralizationState = "under_liquidation_threshold"
)

// Collateralization classifies the facility. Before activation the exposure is
// the facility amount and the initial CVL is required; afterwards the exposure
// is the outstanding balance and the margin call CVL is required.
func (t TermValues) Collateralization(collateral, price, exposure decimal.Decimal, active bool) CollateralizationState {
	if !collateral.IsPositive() {
		return CollateralizationNoCollateral
	}

	cvl, ok := CVL(collateral, price, exposure)
	if !ok {
		return CollateralizationFullyCollateralized
	}

	full := t.MarginCallCVL
	if !active {
		full = t.InitialCVL
	}

	switch {
	case cvl.GreaterThanOrEqual(full):
		return CollateralizationFullyCollateralized
	case cvl.GreaterThanOrEqual(t.LiquidationCVL):
		return CollateralizationUnderMarginCallThreshold
	default:
		return CollateralizationUnderLiquidationThreshold
	}
}
