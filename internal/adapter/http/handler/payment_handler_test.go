package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

type paymentServiceStub struct {
	recordFn func(ctx context.Context, input usecase.RecordPaymentInput) (*domain.Payment, error)
	getFn    func(ctx context.Context, id string) (*domain.Payment, error)
	listFn   func(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error)
}

func (s *paymentServiceStub) Record(ctx context.Context, input usecase.RecordPaymentInput) (*domain.Payment, error) {
	return s.recordFn(ctx, input)
}

func (s *paymentServiceStub) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return s.getFn(ctx, id)
}

func (s *paymentServiceStub) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error) {
	return s.listFn(ctx, facilityID, limit, offset)
}

func testPayment() *domain.Payment {
	return &domain.Payment{
		ID:         "pay-1",
		FacilityID: "cf-1",
		Amount:     decimal.NewFromInt(100),
		Allocations: []domain.NewPaymentAllocation{
			{ID: "pay-1-1", ObligationID: "ob-1", ObligationType: domain.ObligationTypeInterest, Amount: decimal.NewFromInt(100)},
		},
	}
}

func TestPaymentHandler_Record(t *testing.T) {
	var captured usecase.RecordPaymentInput
	handler := NewPaymentHandler(&paymentServiceStub{
		recordFn: func(ctx context.Context, input usecase.RecordPaymentInput) (*domain.Payment, error) {
			captured = input
			return testPayment(), nil
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/facilities/cf-1/payments",
		strings.NewReader(`{"amount":"100","source_account_id":"acc-deposit"}`)), "id", "cf-1")
	rec := httptest.NewRecorder()

	handler.Record(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.FacilityID != "cf-1" || captured.SourceAccountID != "acc-deposit" {
		t.Fatalf("unexpected input: %+v", captured)
	}

	var resp dto.PaymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Allocations) != 1 {
		t.Fatalf("expected one allocation, got %d", len(resp.Allocations))
	}
}

func TestPaymentHandler_Record_Overpayment(t *testing.T) {
	handler := NewPaymentHandler(&paymentServiceStub{
		recordFn: func(ctx context.Context, input usecase.RecordPaymentInput) (*domain.Payment, error) {
			return nil, domain.ErrPaymentAmountGreaterThanOutstandingObligations
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/facilities/cf-1/payments", strings.NewReader(`{"amount":"1000000"}`)), "id", "cf-1")
	rec := httptest.NewRecorder()

	handler.Record(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPaymentHandler_ListByFacility(t *testing.T) {
	var gotLimit int
	handler := NewPaymentHandler(&paymentServiceStub{
		listFn: func(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error) {
			gotLimit = limit
			return []*domain.Payment{testPayment()}, nil
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/facilities/cf-1/payments", nil), "id", "cf-1")
	rec := httptest.NewRecorder()

	handler.ListByFacility(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != defaultPageSize {
		t.Fatalf("expected default page size, got %d", gotLimit)
	}
}

func TestPaymentHandler_Get_NotFound(t *testing.T) {
	handler := NewPaymentHandler(&paymentServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Payment, error) {
			return nil, domain.ErrPaymentNotFound
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/payments/pay-9", nil), "id", "pay-9")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
