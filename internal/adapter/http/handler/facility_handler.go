package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// FacilityService defines the behavior needed by FacilityHandler.
type FacilityService interface {
	Create(ctx context.Context, input usecase.CreateFacilityInput) (*domain.CreditFacility, error)
	Get(ctx context.Context, facilityID string) (*usecase.FacilityView, error)
	List(ctx context.Context, limit, offset int) ([]*domain.CreditFacility, error)
	ListDisbursals(ctx context.Context, facilityID string) ([]*domain.Disbursal, error)
	UpdateCollateral(ctx context.Context, facilityID string, collateral decimal.Decimal) (*domain.CreditFacility, error)
	RecordInterest(ctx context.Context, facilityID string, amount decimal.Decimal, periodEnd time.Time) (*domain.CreditFacility, error)
	SetCollateralPrice(ctx context.Context, price decimal.Decimal) (int, error)
}

// FacilityHandler handles credit facility HTTP requests.
type FacilityHandler struct {
	facilityUC FacilityService
}

// NewFacilityHandler creates a new FacilityHandler.
func NewFacilityHandler(facilityUC FacilityService) *FacilityHandler {
	return &FacilityHandler{facilityUC: facilityUC}
}

// Create opens a credit facility and starts its approval.
func (h *FacilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateFacilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	facility, err := h.facilityUC.Create(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to create credit facility", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.FacilityFromDomain(facility))
}

// Get returns a facility with balances and collateralization.
func (h *FacilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	view, err := h.facilityUC.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get credit facility", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromView(view))
}

// List lists facilities newest first.
func (h *FacilityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)

	facilities, err := h.facilityUC.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list credit facilities", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListFacilitiesResponse{
		Facilities: dto.FacilitiesFromDomain(facilities),
		Total:      int64(len(facilities)),
	})
}

// ListDisbursals lists the disbursals of a facility.
func (h *FacilityHandler) ListDisbursals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	disbursals, err := h.facilityUC.ListDisbursals(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to list disbursals", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisbursalsFromDomain(disbursals))
}

// UpdateCollateral sets the collateral held for a facility.
func (h *FacilityHandler) UpdateCollateral(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	var req dto.UpdateCollateralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	facility, err := h.facilityUC.UpdateCollateral(r.Context(), id, req.Collateral)
	if err != nil {
		writeDomainError(w, "failed to update collateral", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromDomain(facility))
}

// RecordInterest records interest accrued for a period.
func (h *FacilityHandler) RecordInterest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "facility")
	if !ok {
		return
	}

	var req dto.RecordInterestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.PeriodEnd.IsZero() {
		writeError(w, http.StatusBadRequest, "missing period_end", "")
		return
	}

	facility, err := h.facilityUC.RecordInterest(r.Context(), id, req.Amount, req.PeriodEnd)
	if err != nil {
		writeDomainError(w, "failed to record interest", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromDomain(facility))
}

// SetCollateralPrice stores a new collateral price.
func (h *FacilityHandler) SetCollateralPrice(w http.ResponseWriter, r *http.Request) {
	var req dto.SetCollateralPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	refreshed, err := h.facilityUC.SetCollateralPrice(r.Context(), req.Price)
	if err != nil {
		writeDomainError(w, "failed to set collateral price", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CollateralPriceResponse{
		Price:               req.Price,
		FacilitiesRefreshed: refreshed,
	})
}
