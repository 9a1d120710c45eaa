package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError writes err with the status it maps to.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, mapDomainError(err), message, err.Error())
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrCreditFacilityNotFound),
		errors.Is(err, domain.ErrDisbursalNotFound),
		errors.Is(err, domain.ErrObligationNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrApprovalProcessNotFound),
		errors.Is(err, domain.ErrCommitteeNotFound),
		errors.Is(err, domain.ErrPolicyNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrInvalidIDFormat),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTerms),
		errors.Is(err, domain.ErrInvalidCreditFacility),
		errors.Is(err, domain.ErrInvalidDisbursal),
		errors.Is(err, domain.ErrInvalidObligation),
		errors.Is(err, domain.ErrInvalidApprovalRules),
		errors.Is(err, domain.ErrDisbursalAmountCannotBeZero):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrInsufficientRole),
		errors.Is(err, domain.ErrApprovalVoterNotEligible):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrApprovalAlreadyConcluded),
		errors.Is(err, domain.ErrApprovalAlreadyVoted),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrInconsistentIdempotency):
		return http.StatusConflict

	case errors.Is(err, domain.ErrAmountExceedsOutstanding),
		errors.Is(err, domain.ErrPaymentAmountGreaterThanOutstandingObligations),
		errors.Is(err, domain.ErrDisbursalExceedsFacilityAmount),
		errors.Is(err, domain.ErrDisbursalPastMaturity),
		errors.Is(err, domain.ErrFacilityNotActive),
		errors.Is(err, domain.ErrFacilityNotApproved),
		errors.Is(err, domain.ErrFacilityUndercollateralized),
		errors.Is(err, domain.ErrFacilityClosed),
		errors.Is(err, domain.ErrFacilityNotMatured),
		errors.Is(err, domain.ErrFacilityHasOutstanding),
		errors.Is(err, domain.ErrInvalidObligationTransition),
		errors.Is(err, domain.ErrLedgerRejected):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parsePage reads limit and offset, clamping them to sane bounds.
func parsePage(r *http.Request) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultPageSize)
	offset = parseIntQuery(r, "offset", 0)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// pathID returns the {id} URL parameter, writing a 400 when it is missing.
func pathID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing "+what+" ID", "")
		return "", false
	}
	return id, true
}
