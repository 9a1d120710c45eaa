package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testAudit() AuditInfo {
	return AuditInfo{EntryID: "audit-1", Subject: "tester", RecordedAt: testNow}
}

func testObligationAccounts(prefix string) ObligationAccounts {
	return ObligationAccounts{
		NotYetDue: prefix + "-not-yet-due",
		Due:       prefix + "-due",
		Overdue:   prefix + "-overdue",
		Defaulted: prefix + "-defaulted",
	}
}

func testFacilityAccounts() FacilityAccounts {
	return FacilityAccounts{
		Facility:           "acc-facility",
		FacilityOmnibus:    "acc-facility-omnibus",
		Collateral:         "acc-collateral",
		CollateralOmnibus:  "acc-collateral-omnibus",
		Receivable:         testObligationAccounts("acc-disbursal"),
		InterestReceivable: testObligationAccounts("acc-interest"),
		InterestIncome:     "acc-interest-income",
		Deposit:            "acc-deposit",
	}
}

func testTerms() TermValues {
	return TermValues{
		AnnualRate:              decimal.RequireFromString("0.12"),
		DurationMonths:          12,
		ObligationOverdueDays:   30,
		ObligationDefaultedDays: 90,
		InitialCVL:              decimal.NewFromInt(140),
		MarginCallCVL:           decimal.NewFromInt(125),
		LiquidationCVL:          decimal.NewFromInt(105),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testObligation(id string, typ ObligationType, amount string, recordedAt time.Time) *Obligation {
	defaulted := recordedAt.AddDate(0, 0, 90)
	o, err := CreateObligation(NewObligation{
		ID:            id,
		FacilityID:    "facility-1",
		Type:          typ,
		Amount:        dec(amount),
		Reference:     fmt.Sprintf("ref-%s", id),
		Accounts:      testObligationAccounts("acc-" + id),
		DueDate:       recordedAt.AddDate(0, 1, 0),
		OverdueDate:   recordedAt.AddDate(0, 2, 0),
		DefaultedDate: &defaulted,
		RecordedAt:    recordedAt,
	}, testAudit())
	if err != nil {
		panic(err)
	}
	return o
}
