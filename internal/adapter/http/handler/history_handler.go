package handler

import (
	"context"
	"net/http"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
)

// HistoryService defines the behavior needed by HistoryHandler.
type HistoryService interface {
	List(ctx context.Context, facilityID string, limit, offset int) ([]*domain.HistoryEntry, error)
}

// HistoryHandler serves the facility history projection.
type HistoryHandler struct {
	historyUC HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historyUC HistoryService) *HistoryHandler {
	return &HistoryHandler{historyUC: historyUC}
}

// ListByFacility lists history entries of a facility in sequence order.
func (h *HistoryHandler) ListByFacility(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(w, r, "facility")
	if !ok {
		return
	}
	limit, offset := parsePage(r)

	entries, err := h.historyUC.List(r.Context(), facilityID, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list facility history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromDomain(entries))
}
