package dispute

import (
	"context"
	"time"
)

// Read-only accessors. These delegate to the store and never take the pause
// switch into account.

func (s *Service) Get(ctx context.Context, id int64) (Dispute, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetTally(ctx context.Context, id int64) (Tally, error) {
	return s.store.GetTally(ctx, id)
}

func (s *Service) ListEvidence(ctx context.Context, disputeID int64) ([]Evidence, error) {
	return s.store.ListEvidence(ctx, disputeID)
}

func (s *Service) ListVotes(ctx context.Context, disputeID int64) ([]Vote, error) {
	return s.store.ListVotes(ctx, disputeID)
}

func (s *Service) ListSubmitters(ctx context.Context, disputeID int64) ([]string, error) {
	return s.store.ListSubmitters(ctx, disputeID)
}

func (s *Service) UserDisputes(ctx context.Context, principal string) ([]Dispute, error) {
	return s.store.UserDisputes(ctx, principal)
}

func (s *Service) UserState(ctx context.Context, principal string) (UserState, error) {
	return s.store.UserState(ctx, principal)
}

// Counter returns the highest dispute id assigned so far.
func (s *Service) Counter(ctx context.Context) (int64, error) {
	return s.store.Counter(ctx)
}

// CanCreate reports whether the principal may create a dispute right now.
func (s *Service) CanCreate(ctx context.Context, principal string) (bool, error) {
	wait, err := s.RemainingCooldown(ctx, principal)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// RemainingCooldown reports how long the principal must wait before the next
// creation. Blacklisted principals report the unreachable maximum duration.
func (s *Service) RemainingCooldown(ctx context.Context, principal string) (time.Duration, error) {
	state, err := s.store.UserState(ctx, principal)
	if err != nil {
		return 0, err
	}
	return remainingCooldown(state, s.now()), nil
}
