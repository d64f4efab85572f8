package dispute

import "time"

// Phase represents the lifecycle position of a dispute. UnderReview,
// Cancelled and Expired exist in the schema as reserved values; no transition
// currently sets them.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseActive      Phase = "active"
	PhaseVoting      Phase = "voting"
	PhaseUnderReview Phase = "under_review"
	PhaseResolved    Phase = "resolved"
	PhaseCancelled   Phase = "cancelled"
	PhaseExpired     Phase = "expired"
)

type Category string

const (
	CategoryPayment  Category = "payment"
	CategoryService  Category = "service"
	CategoryGoods    Category = "goods"
	CategoryContract Category = "contract"
	CategoryConduct  Category = "conduct"
	CategoryOther    Category = "other"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Dispute mirrors the disputes table. The schedule columns are derived once
// at creation and never change afterwards.
type Dispute struct {
	ID                 int64
	Creator            string
	Respondent         string
	Title              string
	Description        string
	Category           Category
	Priority           Priority
	RequiresEscrow     bool
	EscrowAmount       int64
	Phase              Phase
	CreatorVotes       int
	RespondentVotes    int
	Winner             *string
	ReceiptID          *int64
	ResolutionSummary  *string
	CreatedAt          time.Time
	ActivationAt       time.Time
	DisputeEndAt       time.Time
	VotingStartAt      time.Time
	VotingEndAt        time.Time
	ResolutionDeadline time.Time
	UpdatedAt          time.Time
}

// Resolved reports whether a winner has been recorded.
func (d Dispute) Resolved() bool {
	return d.Winner != nil && *d.Winner != ""
}

// Evidence is an append-only record attached to a dispute. Verified is
// reserved and always false for now.
type Evidence struct {
	ID              int64
	DisputeID       int64
	Submitter       string
	Description     string
	DocumentHash    string
	SupportsCreator bool
	Verified        bool
	SubmittedAt     time.Time
}

// Vote is a one-time stance declaration by an evidence submitter.
type Vote struct {
	ID              int64
	DisputeID       int64
	Voter           string
	SupportsCreator bool
	Reason          string
	Verified        bool
	CastAt          time.Time
}

// UserState tracks per-principal creation cooldown and the administrative
// blacklist flag across disputes.
type UserState struct {
	Principal      string
	LastCreationAt *time.Time
	DisputeCount   int
	Blacklisted    bool
}

// Timeline event types appended by the engine.
const (
	EventDisputeCreated    = "DISPUTE_CREATED"
	EventEvidenceSubmitted = "EVIDENCE_SUBMITTED"
	EventPhaseChanged      = "PHASE_CHANGED"
	EventVotingStarted     = "VOTING_STARTED"
	EventVoteCast          = "VOTE_CAST"
	EventDisputeResolved   = "DISPUTE_RESOLVED"
)
