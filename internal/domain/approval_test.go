package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommitteeProcess(t *testing.T, threshold uint32) *ApprovalProcess {
	t.Helper()
	p, err := StartApprovalProcess(NewApprovalProcess{
		ID:          "ap-1",
		ProcessType: ApprovalProcessTypeDisbursal,
		Rules:       CommitteeThreshold(threshold),
		CommitteeID: "committee-1",
		TargetRef:   "disbursal-1",
	}, testAudit())
	require.NoError(t, err)
	return p
}

func TestApprovalRules_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rules   ApprovalRules
		wantErr bool
	}{
		{"automatic", AutomaticApproval(), false},
		{"committee threshold", CommitteeThreshold(2), false},
		{"zero threshold", CommitteeThreshold(0), true},
		{"unknown kind", ApprovalRules{Kind: "majority"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidApprovalRules)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApprovalRules_Evaluate(t *testing.T) {
	eligible := NewVoterSet("alice", "bob", "carol")

	tests := []struct {
		name         string
		rules        ApprovalRules
		approvers    VoterSet
		deniers      VoterSet
		wantDecided  bool
		wantApproved bool
	}{
		{"automatic always approves", AutomaticApproval(), NewVoterSet(), NewVoterSet(), true, true},
		{"threshold not reached", CommitteeThreshold(2), NewVoterSet("alice"), NewVoterSet(), false, false},
		{"threshold reached", CommitteeThreshold(2), NewVoterSet("alice", "bob"), NewVoterSet(), true, true},
		{"ineligible approvals ignored", CommitteeThreshold(2), NewVoterSet("alice", "mallory"), NewVoterSet(), false, false},
		{"one denial still reachable", CommitteeThreshold(2), NewVoterSet(), NewVoterSet("alice"), false, false},
		{"two denials make threshold unreachable", CommitteeThreshold(2), NewVoterSet(), NewVoterSet("alice", "bob"), true, false},
		{"ineligible denials ignored", CommitteeThreshold(2), NewVoterSet(), NewVoterSet("alice", "mallory"), false, false},
		{"threshold above committee size denies", CommitteeThreshold(4), NewVoterSet(), NewVoterSet(), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, decided := tt.rules.Evaluate(eligible, tt.approvers, tt.deniers)
			assert.Equal(t, tt.wantDecided, decided)
			assert.Equal(t, tt.wantApproved, approved)
		})
	}
}

func TestApprovalProcess_AutomaticConcludesOnFirstCheck(t *testing.T) {
	p, err := StartApprovalProcess(NewApprovalProcess{
		ID:          "ap-auto",
		ProcessType: ApprovalProcessTypeCreditFacility,
		Rules:       AutomaticApproval(),
		TargetRef:   "facility-1",
	}, testAudit())
	require.NoError(t, err)

	approved, concluded := p.CheckConcluded(NewVoterSet(), testAudit())
	assert.True(t, concluded)
	assert.True(t, approved)
	assert.Equal(t, ApprovalProcessStatusApproved, p.Status())

	approved, concluded = p.CheckConcluded(NewVoterSet(), testAudit())
	assert.False(t, concluded, "second check after conclusion is a no-op")
	assert.False(t, approved)
	assert.Equal(t, 2, p.Events.Len())
}

func TestApprovalProcess_CommitteeThresholdMet(t *testing.T) {
	// one admin and one bank manager out of a three member committee
	eligible := NewVoterSet("admin", "bank-manager", "auditor")
	p := newCommitteeProcess(t, 2)

	require.NoError(t, p.Approve(eligible, "admin", testAudit()))
	_, concluded := p.CheckConcluded(eligible, testAudit())
	assert.False(t, concluded)

	require.NoError(t, p.Approve(eligible, "bank-manager", testAudit()))
	approved, concluded := p.CheckConcluded(eligible, testAudit())
	assert.True(t, concluded)
	assert.True(t, approved)
	assert.Equal(t, []string{"admin", "bank-manager"}, p.Approvers())
}

func TestApprovalProcess_DenialMakesThresholdUnreachable(t *testing.T) {
	eligible := NewVoterSet("alice", "bob", "carol")
	p := newCommitteeProcess(t, 2)

	require.NoError(t, p.Deny(eligible, "alice", "collateral too volatile", testAudit()))
	_, concluded := p.CheckConcluded(eligible, testAudit())
	assert.False(t, concluded, "two approvals are still possible")

	require.NoError(t, p.Deny(eligible, "bob", "agree", testAudit()))
	approved, concluded := p.CheckConcluded(eligible, testAudit())
	assert.True(t, concluded)
	assert.False(t, approved)
	assert.Equal(t, ApprovalProcessStatusDenied, p.Status())
	assert.Equal(t, []string{"alice", "bob"}, p.Deniers())
}

func TestApprovalProcess_VoteErrors(t *testing.T) {
	eligible := NewVoterSet("alice", "bob")

	t.Run("not eligible", func(t *testing.T) {
		p := newCommitteeProcess(t, 2)
		err := p.Approve(eligible, "mallory", testAudit())
		assert.ErrorIs(t, err, ErrApprovalVoterNotEligible)
		assert.Equal(t, 1, p.Events.Len(), "failed vote must not append events")
	})

	t.Run("already approved", func(t *testing.T) {
		p := newCommitteeProcess(t, 2)
		require.NoError(t, p.Approve(eligible, "alice", testAudit()))
		assert.ErrorIs(t, p.Approve(eligible, "alice", testAudit()), ErrApprovalAlreadyVoted)
		assert.ErrorIs(t, p.Deny(eligible, "alice", "changed my mind", testAudit()), ErrApprovalAlreadyVoted)
		assert.Equal(t, 2, p.Events.Len())
	})

	t.Run("already concluded", func(t *testing.T) {
		p := newCommitteeProcess(t, 1)
		require.NoError(t, p.Approve(eligible, "alice", testAudit()))
		_, concluded := p.CheckConcluded(eligible, testAudit())
		require.True(t, concluded)

		assert.ErrorIs(t, p.Approve(eligible, "bob", testAudit()), ErrApprovalAlreadyConcluded)
		assert.ErrorIs(t, p.Deny(eligible, "bob", "late", testAudit()), ErrApprovalAlreadyConcluded)
	})

	t.Run("concluded takes precedence over eligibility", func(t *testing.T) {
		p := newCommitteeProcess(t, 1)
		require.NoError(t, p.Approve(eligible, "alice", testAudit()))
		p.CheckConcluded(eligible, testAudit())
		assert.ErrorIs(t, p.Approve(eligible, "mallory", testAudit()), ErrApprovalAlreadyConcluded)
	})
}

func TestApprovalProcess_ReplayIsDeterministic(t *testing.T) {
	eligible := NewVoterSet("alice", "bob", "carol")
	p := newCommitteeProcess(t, 2)
	require.NoError(t, p.Approve(eligible, "alice", testAudit()))
	require.NoError(t, p.Deny(eligible, "carol", "no", testAudit()))
	require.NoError(t, p.Approve(eligible, "bob", testAudit()))
	p.CheckConcluded(eligible, testAudit())

	loaded, err := LoadEntityEvents(p.ID, p.Events.All())
	require.NoError(t, err)
	replayed, err := ApprovalProcessFromEvents(loaded)
	require.NoError(t, err)

	assert.Equal(t, p.Status(), replayed.Status())
	assert.Equal(t, p.Approvers(), replayed.Approvers())
	assert.Equal(t, p.Deniers(), replayed.Deniers())
	assert.Equal(t, p.Rules, replayed.Rules)
	assert.Equal(t, p.CommitteeID, replayed.CommitteeID)
}

func TestStartApprovalProcess_Validation(t *testing.T) {
	_, err := StartApprovalProcess(NewApprovalProcess{
		ID:          "ap-1",
		ProcessType: ApprovalProcessTypeDisbursal,
		Rules:       CommitteeThreshold(2),
	}, testAudit())
	assert.ErrorIs(t, err, ErrInvalidApprovalRules)

	_, err = StartApprovalProcess(NewApprovalProcess{
		ID:          "ap-1",
		ProcessType: "unknown",
		Rules:       AutomaticApproval(),
	}, testAudit())
	assert.ErrorIs(t, err, ErrInvalidApprovalRules)
}

func TestCommittee_Membership(t *testing.T) {
	c := &Committee{ID: "c-1", Name: "Credit"}
	assert.True(t, c.AddMember("alice"))
	assert.False(t, c.AddMember("alice"))
	assert.True(t, c.AddMember("bob"))
	assert.True(t, c.VoterSet().Contains("bob"))

	assert.True(t, c.RemoveMember("alice"))
	assert.False(t, c.RemoveMember("alice"))
	assert.Equal(t, []string{"bob"}, c.Members)
}
