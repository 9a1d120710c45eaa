package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
)

// DisbursalService defines the behavior needed by DisbursalHandler.
type DisbursalService interface {
	Initiate(ctx context.Context, facilityID string, amount decimal.Decimal) (*domain.Disbursal, error)
	Get(ctx context.Context, disbursalID string) (*domain.Disbursal, error)
}

// DisbursalHandler handles disbursal HTTP requests.
type DisbursalHandler struct {
	disbursalUC DisbursalService
}

// NewDisbursalHandler creates a new DisbursalHandler.
func NewDisbursalHandler(disbursalUC DisbursalService) *DisbursalHandler {
	return &DisbursalHandler{disbursalUC: disbursalUC}
}

// Initiate requests a drawdown against a facility. The disbursal settles once
// its approval process concludes.
func (h *DisbursalHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	var req dto.InitiateDisbursalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	disbursal, err := h.disbursalUC.Initiate(r.Context(), facilityID, req.Amount)
	if err != nil {
		writeDomainError(w, "failed to initiate disbursal", err)
		return
	}

	writeJSON(w, http.StatusAccepted, dto.DisbursalFromDomain(disbursal))
}

// Get retrieves a disbursal by ID.
func (h *DisbursalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "disbursal")
	if !ok {
		return
	}

	disbursal, err := h.disbursalUC.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get disbursal", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisbursalFromDomain(disbursal))
}
