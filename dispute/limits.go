package dispute

import "time"

// Schedule periods. All deadlines are derived once at creation:
// activation = created + ActivationPeriod, dispute end = activation + period,
// voting runs [dispute end, dispute end + VotingPeriod], and the resolution
// deadline (advisory, never enforced) follows VotingPeriod by
// ResolutionPeriod.
const (
	ActivationPeriod     = 24 * time.Hour
	DefaultDisputePeriod = 7 * 24 * time.Hour
	MinDisputePeriod     = 24 * time.Hour
	MaxDisputePeriod     = 30 * 24 * time.Hour
	VotingPeriod         = 3 * 24 * time.Hour
	ResolutionPeriod     = 7 * 24 * time.Hour
	CreationCooldown     = 24 * time.Hour
)

// Content bounds.
const (
	MinDescriptionLen = 10
	MaxDescriptionLen = 2000
	MaxTitleLen       = 200
	MinEvidenceCount  = 1
	MaxEvidenceCount  = 20
	MinVoteReasonLen  = 5
	MaxVoteReasonLen  = 500
)
