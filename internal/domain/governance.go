package domain

import (
	"fmt"
	"time"
)

// Committee is a named group of voters.
type Committee struct {
	ID        string
	Name      string
	Members   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the committee
func (c *Committee) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return fmt.Errorf("%w: committee %w", ErrInvalidApprovalRules, err)
	}
	for _, m := range c.Members {
		if err := ValidateID(m); err != nil {
			return fmt.Errorf("%w: member %w", ErrInvalidApprovalRules, err)
		}
	}
	return nil
}

// VoterSet returns the members eligible to vote.
func (c *Committee) VoterSet() VoterSet {
	return NewVoterSet(c.Members...)
}

// AddMember adds a user; adding an existing member is a no-op.
func (c *Committee) AddMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return false
		}
	}
	c.Members = append(c.Members, userID)
	return true
}

// RemoveMember removes a user; removing a non-member is a no-op.
func (c *Committee) RemoveMember(userID string) bool {
	for i, m := range c.Members {
		if m == userID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Policy binds an approval process type to its rules.
type Policy struct {
	ID          string
	ProcessType ApprovalProcessType
	Rules       ApprovalRules
	CommitteeID string
	UpdatedAt   time.Time
}

// DefaultPolicy is used when no policy is configured for a process type.
func DefaultPolicy(processType ApprovalProcessType) *Policy {
	return &Policy{
		ID:          string(processType),
		ProcessType: processType,
		Rules:       AutomaticApproval(),
	}
}

// Validate checks the policy
func (p *Policy) Validate() error {
	if !p.ProcessType.IsValid() {
		return fmt.Errorf("%w: unknown process type %q", ErrInvalidApprovalRules, p.ProcessType)
	}
	if p.Rules.Kind == ApprovalRulesCommitteeThreshold && p.CommitteeID == "" {
		return fmt.Errorf("%w: committee threshold requires a committee", ErrInvalidApprovalRules)
	}
	return p.Rules.Validate()
}

// NewProcess returns the parameters for a process governed by this policy.
func (p *Policy) NewProcess(id, targetRef string) NewApprovalProcess {
	return NewApprovalProcess{
		ID:          id,
		ProcessType: p.ProcessType,
		Rules:       p.Rules,
		CommitteeID: p.CommitteeID,
		TargetRef:   targetRef,
	}
}
