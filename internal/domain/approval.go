package domain

import (
	"fmt"
	"sort"
)

// ApprovalProcessType identifies what an approval process decides on.
type ApprovalProcessType string

const (
	ApprovalProcessTypeCreditFacility ApprovalProcessType = "credit-facility-approval"
	ApprovalProcessTypeDisbursal      ApprovalProcessType = "disbursal-approval"
)

// IsValid checks if the process type is known
func (t ApprovalProcessType) IsValid() bool {
	return t == ApprovalProcessTypeCreditFacility || t == ApprovalProcessTypeDisbursal
}

// ApprovalRulesKind is the discriminant of ApprovalRules.
type ApprovalRulesKind string

const (
	ApprovalRulesAutomatic          ApprovalRulesKind = "automatic"
	ApprovalRulesCommitteeThreshold ApprovalRulesKind = "committee_threshold"
)

// ApprovalRules decides when an approval process concludes. Threshold is only
// meaningful for committee_threshold rules.
type ApprovalRules struct {
	Kind      ApprovalRulesKind `json:"kind"`
	Threshold uint32            `json:"threshold,omitempty"`
}

// AutomaticApproval approves on first evaluation.
func AutomaticApproval() ApprovalRules {
	return ApprovalRules{Kind: ApprovalRulesAutomatic}
}

// CommitteeThreshold approves once n eligible members approved.
func CommitteeThreshold(n uint32) ApprovalRules {
	return ApprovalRules{Kind: ApprovalRulesCommitteeThreshold, Threshold: n}
}

// Validate checks the rule variant.
func (r ApprovalRules) Validate() error {
	switch r.Kind {
	case ApprovalRulesAutomatic:
		return nil
	case ApprovalRulesCommitteeThreshold:
		if r.Threshold == 0 {
			return fmt.Errorf("%w: committee threshold must be at least 1", ErrInvalidApprovalRules)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidApprovalRules, r.Kind)
	}
}

// Evaluate returns whether the votes decide the process and, if so, the outcome.
// Only votes cast by eligible voters count.
func (r ApprovalRules) Evaluate(eligible, approvers, deniers VoterSet) (approved bool, decided bool) {
	switch r.Kind {
	case ApprovalRulesAutomatic:
		return true, true
	case ApprovalRulesCommitteeThreshold:
		n := int(r.Threshold)
		if eligible.CountIn(approvers) >= n {
			return true, true
		}
		if eligible.Len()-eligible.CountIn(deniers) < n {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// VoterSet is a set of user ids.
type VoterSet map[string]struct{}

// NewVoterSet builds a set from ids.
func NewVoterSet(ids ...string) VoterSet {
	s := make(VoterSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s VoterSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the set size.
func (s VoterSet) Len() int {
	return len(s)
}

// CountIn returns how many members of s are also in other.
func (s VoterSet) CountIn(other VoterSet) int {
	n := 0
	for id := range other {
		if s.Contains(id) {
			n++
		}
	}
	return n
}

// Sorted returns the members in lexical order.
func (s VoterSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApprovalProcessEvent is an event of the approval process log.
type ApprovalProcessEvent interface {
	DomainEvent
	approvalProcessEvent()
}

const (
	EventTypeApprovalProcessInitialized = "approval_process.initialized"
	EventTypeApprovalProcessApproved    = "approval_process.approved"
	EventTypeApprovalProcessDenied      = "approval_process.denied"
	EventTypeApprovalProcessConcluded   = "approval_process.concluded"
)

type ApprovalProcessInitialized struct {
	ID          string              `json:"id"`
	ProcessType ApprovalProcessType `json:"process_type"`
	Rules       ApprovalRules       `json:"rules"`
	CommitteeID string              `json:"committee_id,omitempty"`
	TargetRef   string              `json:"target_ref"`
}

type ApprovalProcessApproved struct {
	Approver string `json:"approver"`
}

type ApprovalProcessDenied struct {
	Denier string `json:"denier"`
	Reason string `json:"reason"`
}

type ApprovalProcessConcluded struct {
	Approved bool `json:"approved"`
}

func (ApprovalProcessInitialized) EventType() string { return EventTypeApprovalProcessInitialized }
func (ApprovalProcessApproved) EventType() string    { return EventTypeApprovalProcessApproved }
func (ApprovalProcessDenied) EventType() string      { return EventTypeApprovalProcessDenied }
func (ApprovalProcessConcluded) EventType() string   { return EventTypeApprovalProcessConcluded }

func (ApprovalProcessInitialized) approvalProcessEvent() {}
func (ApprovalProcessApproved) approvalProcessEvent()    {}
func (ApprovalProcessDenied) approvalProcessEvent()      {}
func (ApprovalProcessConcluded) approvalProcessEvent()   {}

// ApprovalProcessStatus is the derived state of an approval process
type ApprovalProcessStatus string

const (
	ApprovalProcessStatusInProgress ApprovalProcessStatus = "in_progress"
	ApprovalProcessStatusApproved   ApprovalProcessStatus = "approved"
	ApprovalProcessStatusDenied     ApprovalProcessStatus = "denied"
)

// NewApprovalProcess holds the data needed to start an approval process.
type NewApprovalProcess struct {
	ID          string
	ProcessType ApprovalProcessType
	Rules       ApprovalRules
	CommitteeID string
	TargetRef   string
}

// Validate checks the new process
func (n NewApprovalProcess) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidApprovalRules)
	}
	if !n.ProcessType.IsValid() {
		return fmt.Errorf("%w: unknown process type %q", ErrInvalidApprovalRules, n.ProcessType)
	}
	if n.Rules.Kind == ApprovalRulesCommitteeThreshold && n.CommitteeID == "" {
		return fmt.Errorf("%w: committee threshold requires a committee", ErrInvalidApprovalRules)
	}
	return n.Rules.Validate()
}

// ApprovalProcess is a multi-voter decision. Its state is a projection of Events.
type ApprovalProcess struct {
	ID          string
	ProcessType ApprovalProcessType
	Rules       ApprovalRules
	CommitteeID string
	TargetRef   string

	approvers VoterSet
	deniers   VoterSet
	concluded *bool

	Events *EntityEvents[ApprovalProcessEvent]
}

// StartApprovalProcess creates a process with a single pending Initialized event.
func StartApprovalProcess(n NewApprovalProcess, audit AuditInfo) (*ApprovalProcess, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	events := NewEntityEvents[ApprovalProcessEvent](n.ID, audit, ApprovalProcessInitialized{
		ID:          n.ID,
		ProcessType: n.ProcessType,
		Rules:       n.Rules,
		CommitteeID: n.CommitteeID,
		TargetRef:   n.TargetRef,
	})
	return ApprovalProcessFromEvents(events)
}

// ApprovalProcessFromEvents hydrates a process by replaying its log.
func ApprovalProcessFromEvents(events *EntityEvents[ApprovalProcessEvent]) (*ApprovalProcess, error) {
	all := events.All()
	if len(all) == 0 {
		return nil, ErrUninitializedEntity
	}
	if _, ok := all[0].Payload.(ApprovalProcessInitialized); !ok {
		return nil, fmt.Errorf("%w: approval process %s", ErrUninitializedEntity, events.EntityID())
	}

	p := &ApprovalProcess{
		approvers: NewVoterSet(),
		deniers:   NewVoterSet(),
		Events:    events,
	}
	for _, e := range all {
		p.apply(e.Payload)
	}
	return p, nil
}

func (p *ApprovalProcess) apply(event ApprovalProcessEvent) {
	switch e := event.(type) {
	case ApprovalProcessInitialized:
		p.ID = e.ID
		p.ProcessType = e.ProcessType
		p.Rules = e.Rules
		p.CommitteeID = e.CommitteeID
		p.TargetRef = e.TargetRef
	case ApprovalProcessApproved:
		p.approvers[e.Approver] = struct{}{}
	case ApprovalProcessDenied:
		p.deniers[e.Denier] = struct{}{}
	case ApprovalProcessConcluded:
		approved := e.Approved
		p.concluded = &approved
	}
}

func (p *ApprovalProcess) push(event ApprovalProcessEvent, audit AuditInfo) {
	p.Events.Push(event, audit)
	p.apply(event)
}

// Approve records voter's approval.
func (p *ApprovalProcess) Approve(eligible VoterSet, voter string, audit AuditInfo) error {
	if err := p.checkVote(eligible, voter); err != nil {
		return err
	}
	p.push(ApprovalProcessApproved{Approver: voter}, audit)
	return nil
}

// Deny records voter's denial.
func (p *ApprovalProcess) Deny(eligible VoterSet, voter, reason string, audit AuditInfo) error {
	if err := p.checkVote(eligible, voter); err != nil {
		return err
	}
	p.push(ApprovalProcessDenied{Denier: voter, Reason: reason}, audit)
	return nil
}

func (p *ApprovalProcess) checkVote(eligible VoterSet, voter string) error {
	if p.concluded != nil {
		return ErrApprovalAlreadyConcluded
	}
	if !eligible.Contains(voter) {
		return ErrApprovalVoterNotEligible
	}
	if p.approvers.Contains(voter) || p.deniers.Contains(voter) {
		return ErrApprovalAlreadyVoted
	}
	return nil
}

// CheckConcluded evaluates the rules and records the conclusion when decided.
// It is a no-op returning (false, false) once the process has concluded.
func (p *ApprovalProcess) CheckConcluded(eligible VoterSet, audit AuditInfo) (approved bool, concluded bool) {
	if p.concluded != nil {
		return false, false
	}

	approved, decided := p.Rules.Evaluate(eligible, p.approvers, p.deniers)
	if !decided {
		return false, false
	}

	p.push(ApprovalProcessConcluded{Approved: approved}, audit)
	return approved, true
}

// Concluded returns the outcome once decided.
func (p *ApprovalProcess) Concluded() (approved bool, ok bool) {
	if p.concluded == nil {
		return false, false
	}
	return *p.concluded, true
}

// Status is derived from the conclusion
func (p *ApprovalProcess) Status() ApprovalProcessStatus {
	approved, ok := p.Concluded()
	switch {
	case !ok:
		return ApprovalProcessStatusInProgress
	case approved:
		return ApprovalProcessStatusApproved
	default:
		return ApprovalProcessStatusDenied
	}
}

// Approvers returns the ids of voters who approved.
func (p *ApprovalProcess) Approvers() []string {
	return p.approvers.Sorted()
}

// Deniers returns the ids of voters who denied.
func (p *ApprovalProcess) Deniers() []string {
	return p.deniers.Sorted()
}

// Version is the number of persisted events.
func (p *ApprovalProcess) Version() int {
	return p.Events.LenPersisted()
}
