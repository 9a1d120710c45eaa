package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/gocredit/internal/adapter/http/dto"
	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// ApprovalService defines the behavior needed by ApprovalHandler.
type ApprovalService interface {
	Approve(ctx context.Context, processID string) (*domain.ApprovalProcess, error)
	Deny(ctx context.Context, processID, reason string) (*domain.ApprovalProcess, error)
	GetProcess(ctx context.Context, processID string) (*domain.ApprovalProcess, error)
	CreateCommittee(ctx context.Context, name string, members []string) (*domain.Committee, error)
	AddCommitteeMember(ctx context.Context, committeeID, userID string) (*domain.Committee, error)
	RemoveCommitteeMember(ctx context.Context, committeeID, userID string) (*domain.Committee, error)
	GetCommittee(ctx context.Context, committeeID string) (*domain.Committee, error)
	ListCommittees(ctx context.Context) ([]*domain.Committee, error)
	SetPolicy(ctx context.Context, input usecase.SetPolicyInput) (*domain.Policy, error)
	ListPolicies(ctx context.Context) ([]*domain.Policy, error)
}

// ApprovalHandler handles approval processes and their governance.
type ApprovalHandler struct {
	approvalUC ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler.
func NewApprovalHandler(approvalUC ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalUC: approvalUC}
}

// GetProcess retrieves an approval process by ID.
func (h *ApprovalHandler) GetProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "approval process")
	if !ok {
		return
	}

	process, err := h.approvalUC.GetProcess(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get approval process", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ApprovalProcessFromDomain(process))
}

// Vote records the caller's approval or denial.
func (h *ApprovalHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "approval process")
	if !ok {
		return
	}

	var req dto.VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var (
		process *domain.ApprovalProcess
		err     error
	)
	if req.Approve {
		process, err = h.approvalUC.Approve(r.Context(), id)
	} else {
		process, err = h.approvalUC.Deny(r.Context(), id, req.Reason)
	}
	if err != nil {
		writeDomainError(w, "failed to record vote", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ApprovalProcessFromDomain(process))
}

// CreateCommittee creates a committee.
func (h *ApprovalHandler) CreateCommittee(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCommitteeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	committee, err := h.approvalUC.CreateCommittee(r.Context(), req.Name, req.Members)
	if err != nil {
		writeDomainError(w, "failed to create committee", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.CommitteeFromDomain(committee))
}

// GetCommittee retrieves a committee by ID.
func (h *ApprovalHandler) GetCommittee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "committee")
	if !ok {
		return
	}

	committee, err := h.approvalUC.GetCommittee(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get committee", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CommitteeFromDomain(committee))
}

// ListCommittees lists all committees.
func (h *ApprovalHandler) ListCommittees(w http.ResponseWriter, r *http.Request) {
	committees, err := h.approvalUC.ListCommittees(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list committees", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CommitteesFromDomain(committees))
}

// AddCommitteeMember adds a member to a committee.
func (h *ApprovalHandler) AddCommitteeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "committee")
	if !ok {
		return
	}

	var req dto.CommitteeMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	committee, err := h.approvalUC.AddCommitteeMember(r.Context(), id, req.UserID)
	if err != nil {
		writeDomainError(w, "failed to add committee member", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CommitteeFromDomain(committee))
}

// RemoveCommitteeMember removes the {userID} member from a committee.
func (h *ApprovalHandler) RemoveCommitteeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "committee")
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user ID", "")
		return
	}

	committee, err := h.approvalUC.RemoveCommitteeMember(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, "failed to remove committee member", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CommitteeFromDomain(committee))
}

// SetPolicy replaces the approval policy of a process type.
func (h *ApprovalHandler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	var req dto.SetPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	policy, err := h.approvalUC.SetPolicy(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to set policy", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PolicyFromDomain(policy))
}

// ListPolicies lists the configured approval policies.
func (h *ApprovalHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.approvalUC.ListPolicies(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list policies", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoliciesFromDomain(policies))
}
