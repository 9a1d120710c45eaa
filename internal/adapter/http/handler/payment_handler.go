package handler

import (
	"context"
	"net/http"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// PaymentService defines the behavior needed by PaymentHandler.
type PaymentService interface {
	Record(ctx context.Context, input usecase.RecordPaymentInput) (*domain.Payment, error)
	Get(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error)
}

// PaymentHandler handles payment HTTP requests.
type PaymentHandler struct {
	paymentUC PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentUC PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC}
}

// Record allocates a payment over the facility's obligations.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	var req dto.RecordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	payment, err := h.paymentUC.Record(r.Context(), req.ToUseCaseInput(facilityID))
	if err != nil {
		writeDomainError(w, "failed to record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PaymentFromDomain(payment))
}

// Get retrieves a payment by ID.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payment")
	if !ok {
		return
	}

	payment, err := h.paymentUC.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(payment))
}

// ListByFacility lists the payments of a facility, newest first.
func (h *PaymentHandler) ListByFacility(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(w, r, "facility")
	if !ok {
		return
	}
	limit, offset := parsePage(r)

	payments, err := h.paymentUC.ListByFacility(r.Context(), facilityID, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list payments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentsFromDomain(payments))
}
