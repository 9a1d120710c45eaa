package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
)

func obligationAccounts(prefix string) domain.ObligationAccounts {
	return domain.ObligationAccounts{
		NotYetDue: prefix + "-not-yet-due",
		Due:       prefix + "-due",
		Overdue:   prefix + "-overdue",
		Defaulted: prefix + "-defaulted",
	}
}

func testFacility() *domain.CreditFacility {
	facility, err := domain.CreateCreditFacility(domain.NewCreditFacility{
		ID:                "cf-1",
		CustomerID:        "cust-1",
		ApprovalProcessID: "ap-1",
		Amount:            decimal.NewFromInt(10000),
		InitialDisbursal:  decimal.NewFromInt(1000),
		Terms: domain.TermValues{
			AnnualRate:              decimal.RequireFromString("0.12"),
			DurationMonths:          12,
			ObligationOverdueDays:   30,
			ObligationDefaultedDays: 90,
			InitialCVL:              decimal.NewFromInt(140),
			MarginCallCVL:           decimal.NewFromInt(125),
			LiquidationCVL:          decimal.NewFromInt(105),
		},
		Accounts: domain.FacilityAccounts{
			Facility:           "acc-facility",
			FacilityOmnibus:    "acc-facility-omnibus",
			Collateral:         "acc-collateral",
			CollateralOmnibus:  "acc-collateral-omnibus",
			Receivable:         obligationAccounts("acc-disbursal"),
			InterestReceivable: obligationAccounts("acc-interest"),
			InterestIncome:     "acc-interest-income",
			Deposit:            "acc-deposit",
		},
	}, domain.AuditInfo{EntryID: "audit-1", Subject: "tester"})
	if err != nil {
		panic(err)
	}
	return facility
}
