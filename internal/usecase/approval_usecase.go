package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// ApprovalUseCase runs approval processes and the governance records that
// parameterize them.
type ApprovalUseCase struct {
	txManager      TransactionManager
	retrier        Retrier
	processRepo    ApprovalProcessRepository
	governanceRepo GovernanceRepository
	outbox         outbox
	authorizer     Authorizer
	idGen          IDGenerator
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// NewApprovalUseCase creates a new ApprovalUseCase.
func NewApprovalUseCase(
	txManager TransactionManager,
	retrier Retrier,
	processRepo ApprovalProcessRepository,
	governanceRepo GovernanceRepository,
	outboxRepo OutboxRepository,
	authorizer Authorizer,
	idGen IDGenerator,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *ApprovalUseCase {
	return &ApprovalUseCase{
		txManager:      txManager,
		retrier:        retrier,
		processRepo:    processRepo,
		governanceRepo: governanceRepo,
		outbox:         outbox{repo: outboxRepo, idGen: idGen},
		authorizer:     authorizer,
		idGen:          idGen,
		logger:         logger,
		metrics:        metrics,
	}
}

// StartProcess creates a process governed by the policy of processType inside
// the caller's transaction. Processes whose rules decide immediately conclude
// here and announce it through the outbox.
func (uc *ApprovalUseCase) StartProcess(
	ctx context.Context,
	tx Transaction,
	processType domain.ApprovalProcessType,
	processID, targetRef string,
	audit domain.AuditInfo,
) (*domain.ApprovalProcess, error) {
	policy, err := uc.governanceRepo.GetPolicyTx(ctx, tx, processType)
	if errors.Is(err, domain.ErrPolicyNotFound) {
		policy = domain.DefaultPolicy(processType)
	} else if err != nil {
		return nil, err
	}

	process, err := domain.StartApprovalProcess(policy.NewProcess(processID, targetRef), audit)
	if err != nil {
		return nil, err
	}

	eligible, err := uc.eligibleVoters(ctx, tx, process)
	if err != nil {
		return nil, err
	}

	approved, concluded := process.CheckConcluded(eligible, audit)

	if err := uc.processRepo.Create(ctx, tx, process); err != nil {
		return nil, err
	}

	if concluded {
		if err := uc.announce(ctx, tx, process, approved); err != nil {
			return nil, err
		}
	}

	return process, nil
}

// Approve records the caller's approval.
func (uc *ApprovalUseCase) Approve(ctx context.Context, processID string) (*domain.ApprovalProcess, error) {
	return uc.vote(ctx, processID, "approve", func(p *domain.ApprovalProcess, eligible domain.VoterSet, voter string, audit domain.AuditInfo) error {
		return p.Approve(eligible, voter, audit)
	})
}

// Deny records the caller's denial.
func (uc *ApprovalUseCase) Deny(ctx context.Context, processID, reason string) (*domain.ApprovalProcess, error) {
	return uc.vote(ctx, processID, "deny", func(p *domain.ApprovalProcess, eligible domain.VoterSet, voter string, audit domain.AuditInfo) error {
		return p.Deny(eligible, voter, reason, audit)
	})
}

func (uc *ApprovalUseCase) vote(
	ctx context.Context,
	processID, vote string,
	cast func(p *domain.ApprovalProcess, eligible domain.VoterSet, voter string, audit domain.AuditInfo) error,
) (*domain.ApprovalProcess, error) {
	voter := domain.UserFromContext(ctx).ID

	var process *domain.ApprovalProcess
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectApprovalProcess, processID, domain.AuditActionApprovalVote)
		if err != nil {
			return err
		}

		process, err = uc.processRepo.GetByIDTx(ctx, tx, processID)
		if err != nil {
			return err
		}

		eligible, err := uc.eligibleVoters(ctx, tx, process)
		if err != nil {
			return err
		}

		if err := cast(process, eligible, voter, audit); err != nil {
			return err
		}

		approved, concluded := process.CheckConcluded(eligible, audit)

		if err := uc.processRepo.Update(ctx, tx, process); err != nil {
			return err
		}

		if concluded {
			return uc.announce(ctx, tx, process, approved)
		}
		return nil
	})
	if err != nil {
		uc.logger.Warn().Err(err).
			Str("approval_process_id", processID).
			Str("voter", voter).
			Str("vote", vote).
			Msg("approval vote rejected")
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.ApprovalVotes.WithLabelValues(string(process.ProcessType), vote).Inc()
	}

	return process, nil
}

// GetProcess returns an approval process.
func (uc *ApprovalUseCase) GetProcess(ctx context.Context, processID string) (*domain.ApprovalProcess, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}
	return uc.processRepo.GetByID(ctx, processID)
}

func (uc *ApprovalUseCase) eligibleVoters(ctx context.Context, tx Transaction, process *domain.ApprovalProcess) (domain.VoterSet, error) {
	if process.CommitteeID == "" {
		return domain.NewVoterSet(), nil
	}

	committee, err := uc.governanceRepo.GetCommitteeTx(ctx, tx, process.CommitteeID)
	if err != nil {
		return nil, fmt.Errorf("load committee %s: %w", process.CommitteeID, err)
	}
	return committee.VoterSet(), nil
}

func (uc *ApprovalUseCase) announce(ctx context.Context, tx Transaction, process *domain.ApprovalProcess, approved bool) error {
	outcome := "denied"
	if approved {
		outcome = "approved"
	}

	uc.logger.Info().
		Str("approval_process_id", process.ID).
		Str("process_type", string(process.ProcessType)).
		Str("target_ref", process.TargetRef).
		Str("outcome", outcome).
		Msg("approval process concluded")

	if uc.metrics != nil {
		uc.metrics.ApprovalsConcluded.WithLabelValues(string(process.ProcessType), outcome).Inc()
	}

	return uc.outbox.emit(ctx, tx, domain.AggregateTypeApprovalProcess, process.ID, domain.OutboxEventApprovalConcluded, map[string]any{
		"approval_process_id": process.ID,
		"process_type":        string(process.ProcessType),
		"target_ref":          process.TargetRef,
		"approved":            approved,
	})
}

// CreateCommittee creates a voting committee.
func (uc *ApprovalUseCase) CreateCommittee(ctx context.Context, name string, members []string) (*domain.Committee, error) {
	now := time.Now().UTC()
	committee := &domain.Committee{
		ID:        uc.idGen.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range members {
		committee.AddMember(m)
	}

	if err := committee.Validate(); err != nil {
		return nil, err
	}

	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectGovernance, committee.ID, domain.AuditActionGovernanceManage); err != nil {
			return err
		}
		return uc.governanceRepo.CreateCommittee(ctx, tx, committee)
	})
	if err != nil {
		return nil, err
	}

	return committee, nil
}

// AddCommitteeMember adds a voter to a committee.
func (uc *ApprovalUseCase) AddCommitteeMember(ctx context.Context, committeeID, userID string) (*domain.Committee, error) {
	if err := domain.ValidateID(userID); err != nil {
		return nil, fmt.Errorf("%w: member %w", domain.ErrInvalidApprovalRules, err)
	}
	return uc.updateCommittee(ctx, committeeID, func(c *domain.Committee) bool {
		return c.AddMember(userID)
	})
}

// RemoveCommitteeMember removes a voter from a committee. Running processes
// use the membership at the time of each vote.
func (uc *ApprovalUseCase) RemoveCommitteeMember(ctx context.Context, committeeID, userID string) (*domain.Committee, error) {
	return uc.updateCommittee(ctx, committeeID, func(c *domain.Committee) bool {
		return c.RemoveMember(userID)
	})
}

func (uc *ApprovalUseCase) updateCommittee(ctx context.Context, committeeID string, change func(*domain.Committee) bool) (*domain.Committee, error) {
	var committee *domain.Committee
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectGovernance, committeeID, domain.AuditActionGovernanceManage); err != nil {
			return err
		}

		var err error
		committee, err = uc.governanceRepo.GetCommitteeTx(ctx, tx, committeeID)
		if err != nil {
			return err
		}

		if !change(committee) {
			return nil
		}
		committee.UpdatedAt = time.Now().UTC()
		return uc.governanceRepo.UpdateCommittee(ctx, tx, committee)
	})
	if err != nil {
		return nil, err
	}

	return committee, nil
}

// GetCommittee returns a committee.
func (uc *ApprovalUseCase) GetCommittee(ctx context.Context, committeeID string) (*domain.Committee, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionGovernanceRead); err != nil {
		return nil, err
	}
	return uc.governanceRepo.GetCommittee(ctx, committeeID)
}

// ListCommittees returns all committees.
func (uc *ApprovalUseCase) ListCommittees(ctx context.Context) ([]*domain.Committee, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionGovernanceRead); err != nil {
		return nil, err
	}
	return uc.governanceRepo.ListCommittees(ctx)
}

// SetPolicyInput represents input for configuring an approval policy.
type SetPolicyInput struct {
	ProcessType domain.ApprovalProcessType
	Rules       domain.ApprovalRules
	CommitteeID string
}

// SetPolicy replaces the policy of a process type. Only processes started
// afterwards use it.
func (uc *ApprovalUseCase) SetPolicy(ctx context.Context, input SetPolicyInput) (*domain.Policy, error) {
	policy := &domain.Policy{
		ID:          string(input.ProcessType),
		ProcessType: input.ProcessType,
		Rules:       input.Rules,
		CommitteeID: input.CommitteeID,
		UpdatedAt:   time.Now().UTC(),
	}
	if policy.Rules.Kind == domain.ApprovalRulesAutomatic {
		policy.CommitteeID = ""
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectGovernance, policy.ID, domain.AuditActionGovernanceManage); err != nil {
			return err
		}

		if policy.CommitteeID != "" {
			committee, err := uc.governanceRepo.GetCommitteeTx(ctx, tx, policy.CommitteeID)
			if err != nil {
				return err
			}
			if uint32(len(committee.Members)) < policy.Rules.Threshold {
				return fmt.Errorf("%w: committee %s has %d members, threshold is %d",
					domain.ErrInvalidApprovalRules, committee.ID, len(committee.Members), policy.Rules.Threshold)
			}
		}

		return uc.governanceRepo.SavePolicy(ctx, tx, policy)
	})
	if err != nil {
		return nil, err
	}

	return policy, nil
}

// ListPolicies returns the configured policies.
func (uc *ApprovalUseCase) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionGovernanceRead); err != nil {
		return nil, err
	}
	return uc.governanceRepo.ListPolicies(ctx)
}
