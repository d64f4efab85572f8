package dispute

import (
	"math"
	"testing"
	"time"
)

func TestComputeSchedule(t *testing.T) {
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	sched := computeSchedule(created, DefaultDisputePeriod)

	if !sched.activation.Equal(created.Add(24 * time.Hour)) {
		t.Errorf("activation = %v", sched.activation)
	}
	if !sched.disputeEnd.Equal(sched.activation.Add(7 * 24 * time.Hour)) {
		t.Errorf("dispute end = %v", sched.disputeEnd)
	}
	if !sched.votingStart.Equal(sched.disputeEnd) {
		t.Errorf("voting start = %v, want same as dispute end", sched.votingStart)
	}
	if !sched.votingEnd.Equal(sched.disputeEnd.Add(3 * 24 * time.Hour)) {
		t.Errorf("voting end = %v", sched.votingEnd)
	}
	if !sched.resolutionDeadline.Equal(sched.votingEnd.Add(7 * 24 * time.Hour)) {
		t.Errorf("resolution deadline = %v", sched.resolutionDeadline)
	}
}

func TestDetermineWinner(t *testing.T) {
	base := Dispute{Creator: "alice", Respondent: "bob"}

	cases := []struct {
		name       string
		creator    int
		respondent int
		wantWinner string
		wantTie    bool
	}{
		{"creator majority", 2, 1, "alice", false},
		{"respondent majority", 1, 3, "bob", false},
		{"tie", 2, 2, "system", true},
		{"zero votes", 0, 0, "system", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			d.CreatorVotes = tc.creator
			d.RespondentVotes = tc.respondent

			winner, tie := determineWinner(d, "system")
			if winner != tc.wantWinner || tie != tc.wantTie {
				t.Errorf("determineWinner = (%q, %v), want (%q, %v)", winner, tie, tc.wantWinner, tc.wantTie)
			}
		})
	}
}

func TestBuildSummary(t *testing.T) {
	d := Dispute{Creator: "alice", Respondent: "bob", CreatorVotes: 2, RespondentVotes: 1}
	if got := buildSummary(d, "alice", false); got != "resolved 2-1 in favor of alice" {
		t.Errorf("summary = %q", got)
	}

	d.RespondentVotes = 2
	if got := buildSummary(d, "system", true); got != "tied 2-2; receipt held by system pending release" {
		t.Errorf("tie summary = %q", got)
	}
}

func TestRemainingCooldown(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	if got := remainingCooldown(UserState{}, now); got != 0 {
		t.Errorf("fresh principal cooldown = %v, want 0", got)
	}

	recent := now.Add(-time.Hour)
	if got := remainingCooldown(UserState{LastCreationAt: &recent}, now); got != CreationCooldown-time.Hour {
		t.Errorf("recent creation cooldown = %v", got)
	}

	old := now.Add(-CreationCooldown - time.Minute)
	if got := remainingCooldown(UserState{LastCreationAt: &old}, now); got != 0 {
		t.Errorf("expired cooldown = %v, want 0", got)
	}

	if got := remainingCooldown(UserState{Blacklisted: true}, now); got != time.Duration(math.MaxInt64) {
		t.Errorf("blacklisted cooldown = %v, want max", got)
	}
}
