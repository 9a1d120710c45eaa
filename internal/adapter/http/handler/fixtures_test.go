package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
)

var testAudit = domain.AuditInfo{EntryID: "audit-1", Subject: "tester"}

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
	}, testAudit)
	if err != nil {
		panic(err)
	}
	return facility
}

func testDisbursal() *domain.Disbursal {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	disbursal, err := domain.CreateDisbursal(domain.NewDisbursal{
		ID:                "d-1",
		FacilityID:        "cf-1",
		ApprovalProcessID: "ap-d-1",
		Amount:            decimal.NewFromInt(500),
		Accounts: domain.DisbursalAccounts{
			Facility:        "acc-facility",
			FacilityOmnibus: "acc-facility-omnibus",
			Receivable:      obligationAccounts("acc-disbursal"),
			Deposit:         "acc-deposit",
		},
		DueDate:     due,
		OverdueDate: due.AddDate(0, 0, 30),
	}, testAudit)
	if err != nil {
		panic(err)
	}
	return disbursal
}

func testProcess() *domain.ApprovalProcess {
	process, err := domain.StartApprovalProcess(domain.NewApprovalProcess{
		ID:          "ap-1",
		ProcessType: domain.ApprovalProcessTypeDisbursal,
		Rules:       domain.CommitteeThreshold(2),
		CommitteeID: "c-1",
		TargetRef:   "d-1",
	}, testAudit)
	if err != nil {
		panic(err)
	}
	return process
}

// withURLParams attaches chi route parameters to r.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
