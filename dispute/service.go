package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"verdict/escrow"
	"verdict/receipt"
)

var (
	// ErrPaused signals the global suspend switch is engaged.
	ErrPaused = errors.New("dispute: operations paused")
	// ErrBlacklisted signals the caller is administratively blocked.
	ErrBlacklisted = errors.New("dispute: caller is blacklisted")
	// ErrCooldownActive signals the caller created a dispute too recently.
	ErrCooldownActive = errors.New("dispute: creation cooldown active")
	// ErrInvalidRespondent signals an empty respondent or a self-dispute.
	ErrInvalidRespondent = errors.New("dispute: invalid respondent")
	// ErrTitleLength signals a missing or oversized title.
	ErrTitleLength = errors.New("dispute: invalid title length")
	// ErrDescriptionLength signals a description outside the allowed bounds.
	ErrDescriptionLength = errors.New("dispute: invalid description length")
	// ErrEvidenceCount signals a creation evidence batch outside the bounds.
	ErrEvidenceCount = errors.New("dispute: invalid evidence count")
	// ErrCustomPeriod signals a non-zero custom period outside the range.
	ErrCustomPeriod = errors.New("dispute: custom period out of range")
	// ErrEscrowAmount signals escrow was requested with a zero amount.
	ErrEscrowAmount = errors.New("dispute: escrow amount must be positive")
	// ErrInsufficientValue signals the attached value cannot cover the escrow.
	ErrInsufficientValue = errors.New("dispute: attached value below escrow amount")
	// ErrWrongPhase signals the dispute is not in a phase accepting the operation.
	ErrWrongPhase = errors.New("dispute: wrong phase")
	// ErrEvidenceLimit signals the dispute already holds the maximum evidence.
	ErrEvidenceLimit = errors.New("dispute: evidence limit reached")
	// ErrVotingNotReached signals startVoting before the dispute window closed.
	ErrVotingNotReached = errors.New("dispute: voting window not reached")
	// ErrNoSubmitters signals a voting start with an empty submitter set.
	ErrNoSubmitters = errors.New("dispute: no evidence submitters")
	// ErrVotingClosed signals a vote after the voting deadline.
	ErrVotingClosed = errors.New("dispute: voting window closed")
	// ErrNotSubmitter signals a vote by a principal with no evidence on record.
	ErrNotSubmitter = errors.New("dispute: caller never submitted evidence")
	// ErrReasonLength signals a vote reason outside the allowed bounds.
	ErrReasonLength = errors.New("dispute: invalid vote reason length")
	// ErrVotingNotEnded signals a resolution attempt before the voting deadline.
	ErrVotingNotEnded = errors.New("dispute: voting still open")
	// ErrAlreadyResolved signals a second resolution of the same dispute.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrForbidden signals the caller lacks the admin capability.
	ErrForbidden = errors.New("dispute: admin role required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the ledger access required by the engine. Repository is the
// PostgreSQL implementation.
type Store interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Dispute, error)
	Insert(ctx context.Context, tx pgx.Tx, d Dispute) (Dispute, error)
	AppendEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error)
	RecordSubmitter(ctx context.Context, tx pgx.Tx, disputeID int64, principal string, at time.Time) (bool, error)
	EvidenceCount(ctx context.Context, tx pgx.Tx, disputeID int64) (int, error)
	SubmitterCount(ctx context.Context, tx pgx.Tx, disputeID int64) (int, error)
	IsSubmitter(ctx context.Context, tx pgx.Tx, disputeID int64, principal string) (bool, error)
	InsertVote(ctx context.Context, tx pgx.Tx, v Vote) (Vote, error)
	AddTally(ctx context.Context, tx pgx.Tx, disputeID int64, supportsCreator bool) error
	SetPhase(ctx context.Context, tx pgx.Tx, id int64, phase Phase) error
	SetResolution(ctx context.Context, tx pgx.Tx, id int64, winner, summary string, receiptID int64) error
	LockUserState(ctx context.Context, tx pgx.Tx, principal string) (UserState, error)
	UserStateTx(ctx context.Context, tx pgx.Tx, principal string) (UserState, error)
	RecordCreation(ctx context.Context, tx pgx.Tx, principal string, at time.Time) error
	SetBlacklist(ctx context.Context, tx pgx.Tx, principal string, blacklisted bool) error

	Get(ctx context.Context, id int64) (Dispute, error)
	GetTally(ctx context.Context, id int64) (Tally, error)
	ListEvidence(ctx context.Context, disputeID int64) ([]Evidence, error)
	ListVotes(ctx context.Context, disputeID int64) ([]Vote, error)
	ListSubmitters(ctx context.Context, disputeID int64) ([]string, error)
	UserDisputes(ctx context.Context, principal string) ([]Dispute, error)
	UserState(ctx context.Context, principal string) (UserState, error)
	Counter(ctx context.Context) (int64, error)
}

// EscrowLedger is the value-transfer collaborator, satisfied by escrow.Ledger.
type EscrowLedger interface {
	TransferTx(ctx context.Context, tx pgx.Tx, from, to string, amount int64, disputeID int64, kind string) error
}

// ReceiptMinter is the receipt collaborator, satisfied by receipt.Registry.
type ReceiptMinter interface {
	MintTx(ctx context.Context, tx pgx.Tx, params receipt.MintParams) (receipt.Token, error)
}

// TimelineWriter appends dispute history events inside the engine transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// OutboxWriter enqueues notifications inside the engine transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service is the dispute engine. Every mutating entry point validates
// preconditions, then performs all ledger writes, value movement, timeline
// appends and outbox enqueues in a single transaction, so a failure anywhere
// rolls the whole call back.
type Service struct {
	pool     TxBeginner
	store    Store
	ledger   EscrowLedger
	receipts ReceiptMinter
	timeline TimelineWriter
	outbox   OutboxWriter
	system   string
	now      func() time.Time
	metrics  *Metrics
	paused   atomic.Bool
}

func NewService(pool TxBeginner, store Store, ledger EscrowLedger, receipts ReceiptMinter, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:     pool,
		store:    store,
		ledger:   ledger,
		receipts: receipts,
		timeline: timeline,
		outbox:   outbox,
		system:   "system",
		now:      time.Now,
	}
}

// WithClock overrides the engine clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithSystemAccount overrides the identity holding escrow stakes and tie receipts.
func (s *Service) WithSystemAccount(account string) *Service {
	if account != "" {
		s.system = account
	}
	return s
}

func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// SystemAccount returns the engine's own principal identity.
func (s *Service) SystemAccount() string {
	return s.system
}

// Paused reports whether the global suspend switch is engaged.
func (s *Service) Paused() bool {
	return s.paused.Load()
}

// Pause engages the global suspend switch. Admin only.
func (s *Service) Pause(actorRole string) error {
	if !isAdmin(actorRole) {
		return ErrForbidden
	}
	s.paused.Store(true)
	return nil
}

// Unpause releases the global suspend switch. Admin only.
func (s *Service) Unpause(actorRole string) error {
	if !isAdmin(actorRole) {
		return ErrForbidden
	}
	s.paused.Store(false)
	return nil
}

func isAdmin(role string) bool {
	return strings.ToLower(role) == "admin"
}

// EvidenceInput is one caller-supplied evidence entry at creation time.
type EvidenceInput struct {
	Description     string
	DocumentHash    string
	SupportsCreator bool
}

// CreateParams enumerates everything a creation call carries. AttachedValue
// is the amount of native value the caller authorizes the engine to debit;
// only the escrow amount is actually retained.
type CreateParams struct {
	Creator        string
	Respondent     string
	Title          string
	Description    string
	Category       Category
	Priority       Priority
	CustomPeriod   time.Duration
	RequiresEscrow bool
	EscrowAmount   int64
	AttachedValue  int64
	Evidence       []EvidenceInput
}

// Create validates and opens a new dispute, records the initial evidence
// batch attributed to the creator, stamps the cooldown clock, and retains the
// escrow stake.
func (s *Service) Create(ctx context.Context, params CreateParams) (Dispute, error) {
	if s.paused.Load() {
		return Dispute{}, ErrPaused
	}
	if err := validateCreate(params); err != nil {
		return Dispute{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.store.LockUserState(ctx, tx, params.Creator)
	if err != nil {
		return Dispute{}, err
	}
	if state.Blacklisted {
		return Dispute{}, ErrBlacklisted
	}
	now := s.now()
	if remainingCooldown(state, now) > 0 {
		return Dispute{}, ErrCooldownActive
	}

	period := params.CustomPeriod
	if period == 0 {
		period = DefaultDisputePeriod
	}
	sched := computeSchedule(now, period)

	category := params.Category
	if category == "" {
		category = CategoryOther
	}
	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	created, err := s.store.Insert(ctx, tx, Dispute{
		Creator:            params.Creator,
		Respondent:         params.Respondent,
		Title:              params.Title,
		Description:        params.Description,
		Category:           category,
		Priority:           priority,
		RequiresEscrow:     params.RequiresEscrow,
		EscrowAmount:       params.EscrowAmount,
		Phase:              PhasePending,
		CreatedAt:          now,
		ActivationAt:       sched.activation,
		DisputeEndAt:       sched.disputeEnd,
		VotingStartAt:      sched.votingStart,
		VotingEndAt:        sched.votingEnd,
		ResolutionDeadline: sched.resolutionDeadline,
	})
	if err != nil {
		return Dispute{}, err
	}

	for _, in := range params.Evidence {
		if _, err := s.store.AppendEvidence(ctx, tx, Evidence{
			DisputeID:       created.ID,
			Submitter:       params.Creator,
			Description:     in.Description,
			DocumentHash:    in.DocumentHash,
			SupportsCreator: in.SupportsCreator,
			SubmittedAt:     now,
		}); err != nil {
			return Dispute{}, err
		}
	}
	if _, err := s.store.RecordSubmitter(ctx, tx, created.ID, params.Creator, now); err != nil {
		return Dispute{}, err
	}
	if err := s.store.RecordCreation(ctx, tx, params.Creator, now); err != nil {
		return Dispute{}, err
	}

	// State is fully written before any value moves; an escrow debit failure
	// rolls everything back.
	if params.RequiresEscrow {
		if err := s.ledger.TransferTx(ctx, tx, params.Creator, s.system, params.EscrowAmount, created.ID, escrow.KindStake); err != nil {
			return Dispute{}, err
		}
	}

	if err := s.timeline.Append(ctx, tx, created.ID, EventDisputeCreated, &params.Creator, map[string]any{
		"respondent":      params.Respondent,
		"category":        string(category),
		"priority":        string(priority),
		"requires_escrow": params.RequiresEscrow,
		"escrow_amount":   params.EscrowAmount,
		"evidence_count":  len(params.Evidence),
	}); err != nil {
		return Dispute{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "dispute.created", map[string]any{
		"dispute_id":    created.ID,
		"creator":       params.Creator,
		"respondent":    params.Respondent,
		"voting_end_at": created.VotingEndAt.UTC(),
	}); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit create: %w", err)
	}

	s.metrics.incCreated()
	return created, nil
}

// SubmitEvidenceParams carries one evidence submission.
type SubmitEvidenceParams struct {
	DisputeID       int64
	Submitter       string
	Description     string
	DocumentHash    string
	SupportsCreator bool
}

// SubmitEvidence appends evidence to an open dispute. A first-time submitter
// joins the distinct-submitters set, which is what later grants voting
// eligibility.
func (s *Service) SubmitEvidence(ctx context.Context, params SubmitEvidenceParams) (Evidence, error) {
	if s.paused.Load() {
		return Evidence{}, ErrPaused
	}
	if params.Submitter == "" {
		return Evidence{}, fmt.Errorf("dispute: missing submitter")
	}
	if l := len(params.Description); l < MinDescriptionLen || l > MaxDescriptionLen {
		return Evidence{}, ErrDescriptionLength
	}
	if params.DocumentHash == "" {
		return Evidence{}, fmt.Errorf("dispute: missing document hash")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Evidence{}, fmt.Errorf("dispute: begin evidence: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, params.DisputeID)
	if err != nil {
		return Evidence{}, err
	}

	state, err := s.store.UserStateTx(ctx, tx, params.Submitter)
	if err != nil {
		return Evidence{}, err
	}
	if state.Blacklisted {
		return Evidence{}, ErrBlacklisted
	}

	switch d.Phase {
	case PhasePending, PhaseActive, PhaseUnderReview:
	default:
		return Evidence{}, ErrWrongPhase
	}

	count, err := s.store.EvidenceCount(ctx, tx, d.ID)
	if err != nil {
		return Evidence{}, err
	}
	if count >= MaxEvidenceCount {
		return Evidence{}, ErrEvidenceLimit
	}

	now := s.now()
	ev, err := s.store.AppendEvidence(ctx, tx, Evidence{
		DisputeID:       d.ID,
		Submitter:       params.Submitter,
		Description:     params.Description,
		DocumentHash:    params.DocumentHash,
		SupportsCreator: params.SupportsCreator,
		SubmittedAt:     now,
	})
	if err != nil {
		return Evidence{}, err
	}
	firstTime, err := s.store.RecordSubmitter(ctx, tx, d.ID, params.Submitter, now)
	if err != nil {
		return Evidence{}, err
	}

	if err := s.timeline.Append(ctx, tx, d.ID, EventEvidenceSubmitted, &params.Submitter, map[string]any{
		"evidence_id":      ev.ID,
		"supports_creator": params.SupportsCreator,
		"first_time":       firstTime,
	}); err != nil {
		return Evidence{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "dispute.evidence_submitted", map[string]any{
		"dispute_id":       d.ID,
		"submitter":        params.Submitter,
		"supports_creator": params.SupportsCreator,
	}); err != nil {
		return Evidence{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Evidence{}, fmt.Errorf("dispute: commit evidence: %w", err)
	}

	s.metrics.incEvidence()
	return ev, nil
}

// StartVotingParams identifies the dispute and the triggering principal. Any
// principal may trigger; no party privilege is required.
type StartVotingParams struct {
	DisputeID int64
	ActorID   string
}

// StartVoting moves an active dispute whose dispute window has closed into
// the voting phase. A still-pending dispute past its activation time is first
// advanced to active within the same call.
func (s *Service) StartVoting(ctx context.Context, params StartVotingParams) (Dispute, error) {
	if s.paused.Load() {
		return Dispute{}, ErrPaused
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin start voting: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}

	now := s.now()
	if err := s.advancePhase(ctx, tx, &d, now, params.ActorID); err != nil {
		return Dispute{}, err
	}

	if d.Phase != PhaseActive {
		return Dispute{}, ErrWrongPhase
	}
	if now.Before(d.VotingStartAt) {
		return Dispute{}, ErrVotingNotReached
	}
	submitters, err := s.store.SubmitterCount(ctx, tx, d.ID)
	if err != nil {
		return Dispute{}, err
	}
	if submitters == 0 {
		return Dispute{}, ErrNoSubmitters
	}

	if err := s.setPhase(ctx, tx, &d, PhaseVoting, params.ActorID); err != nil {
		return Dispute{}, err
	}
	if err := s.timeline.Append(ctx, tx, d.ID, EventVotingStarted, actorPtr(params.ActorID), map[string]any{
		"voting_end_at": d.VotingEndAt.UTC(),
		"submitters":    submitters,
	}); err != nil {
		return Dispute{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "dispute.voting_started", map[string]any{
		"dispute_id":    d.ID,
		"voting_end_at": d.VotingEndAt.UTC(),
	}); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit start voting: %w", err)
	}
	return d, nil
}

// CastVoteParams carries one vote.
type CastVoteParams struct {
	DisputeID       int64
	Voter           string
	SupportsCreator bool
	Reason          string
}

// CastVote records a one-time vote by an evidence submitter during the
// voting window and bumps the matching tally.
func (s *Service) CastVote(ctx context.Context, params CastVoteParams) (Vote, error) {
	if s.paused.Load() {
		return Vote{}, ErrPaused
	}
	if params.Voter == "" {
		return Vote{}, fmt.Errorf("dispute: missing voter")
	}
	if l := len(params.Reason); l < MinVoteReasonLen || l > MaxVoteReasonLen {
		return Vote{}, ErrReasonLength
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Vote{}, fmt.Errorf("dispute: begin vote: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, params.DisputeID)
	if err != nil {
		return Vote{}, err
	}

	state, err := s.store.UserStateTx(ctx, tx, params.Voter)
	if err != nil {
		return Vote{}, err
	}
	if state.Blacklisted {
		return Vote{}, ErrBlacklisted
	}

	if d.Phase != PhaseVoting {
		return Vote{}, ErrWrongPhase
	}
	now := s.now()
	if now.After(d.VotingEndAt) {
		return Vote{}, ErrVotingClosed
	}

	eligible, err := s.store.IsSubmitter(ctx, tx, d.ID, params.Voter)
	if err != nil {
		return Vote{}, err
	}
	if !eligible {
		return Vote{}, ErrNotSubmitter
	}

	vote, err := s.store.InsertVote(ctx, tx, Vote{
		DisputeID:       d.ID,
		Voter:           params.Voter,
		SupportsCreator: params.SupportsCreator,
		Reason:          params.Reason,
		CastAt:          now,
	})
	if err != nil {
		return Vote{}, err
	}
	if err := s.store.AddTally(ctx, tx, d.ID, params.SupportsCreator); err != nil {
		return Vote{}, err
	}

	if err := s.timeline.Append(ctx, tx, d.ID, EventVoteCast, &params.Voter, map[string]any{
		"supports_creator": params.SupportsCreator,
	}); err != nil {
		return Vote{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "dispute.vote_cast", map[string]any{
		"dispute_id":       d.ID,
		"voter":            params.Voter,
		"supports_creator": params.SupportsCreator,
	}); err != nil {
		return Vote{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Vote{}, fmt.Errorf("dispute: commit vote: %w", err)
	}

	s.metrics.incVote()
	return vote, nil
}

// ResolveParams identifies the dispute and the triggering principal.
type ResolveParams struct {
	DisputeID int64
	ActorID   string
}

// Resolve settles a dispute whose voting window has closed: determines the
// winner by simple majority (tie goes to the system identity), mints the
// receipt, and distributes the escrow. Everything commits or rolls back
// together, so a failed payout leaves the dispute in Voting, retryable.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Dispute, error) {
	if s.paused.Load() {
		return Dispute{}, ErrPaused
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, params.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if d.Resolved() {
		return Dispute{}, ErrAlreadyResolved
	}
	if d.Phase != PhaseVoting {
		return Dispute{}, ErrWrongPhase
	}
	now := s.now()
	if !now.After(d.VotingEndAt) {
		return Dispute{}, ErrVotingNotEnded
	}

	winner, tie := determineWinner(d, s.system)
	summary := buildSummary(d, winner, tie)

	tok, err := s.receipts.MintTx(ctx, tx, receipt.MintParams{
		DisputeID: d.ID,
		Owner:     winner,
		Tie:       tie,
		Title:     d.Title,
		Summary:   summary,
	})
	if err != nil {
		return Dispute{}, err
	}
	if err := s.store.SetResolution(ctx, tx, d.ID, winner, summary, tok.ID); err != nil {
		return Dispute{}, err
	}

	// Settlement is recorded before value leaves the system account.
	if d.RequiresEscrow && d.EscrowAmount > 0 {
		if tie {
			// Odd amounts leave the extra unit with the respondent.
			half := d.EscrowAmount / 2
			if half > 0 {
				if err := s.ledger.TransferTx(ctx, tx, s.system, d.Creator, half, d.ID, escrow.KindSplit); err != nil {
					return Dispute{}, err
				}
			}
			if rest := d.EscrowAmount - half; rest > 0 {
				if err := s.ledger.TransferTx(ctx, tx, s.system, d.Respondent, rest, d.ID, escrow.KindSplit); err != nil {
					return Dispute{}, err
				}
			}
		} else {
			if err := s.ledger.TransferTx(ctx, tx, s.system, winner, d.EscrowAmount, d.ID, escrow.KindPayout); err != nil {
				return Dispute{}, err
			}
		}
	}

	if err := s.timeline.Append(ctx, tx, d.ID, EventDisputeResolved, actorPtr(params.ActorID), map[string]any{
		"creator_votes":    d.CreatorVotes,
		"respondent_votes": d.RespondentVotes,
		"winner":           winner,
		"tie":              tie,
		"receipt_id":       tok.ID,
	}); err != nil {
		return Dispute{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "dispute.resolved", map[string]any{
		"dispute_id":       d.ID,
		"creator_votes":    d.CreatorVotes,
		"respondent_votes": d.RespondentVotes,
		"winner":           winner,
		"receipt_id":       tok.ID,
	}); err != nil {
		return Dispute{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, "receipt.minted", map[string]any{
		"receipt_id": tok.ID,
		"dispute_id": d.ID,
		"owner":      winner,
		"tie":        tie,
	}); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}

	s.metrics.incResolved()

	d.Phase = PhaseResolved
	d.Winner = &winner
	d.ReceiptID = &tok.ID
	d.ResolutionSummary = &summary
	return d, nil
}

// SetBlacklistParams flips the administrative block for one principal.
type SetBlacklistParams struct {
	Principal   string
	Blacklisted bool
	ActorID     string
	ActorRole   string
}

// SetBlacklist is the administrative block toggle. It is deliberately not
// gated by the pause switch.
func (s *Service) SetBlacklist(ctx context.Context, params SetBlacklistParams) error {
	if !isAdmin(params.ActorRole) {
		return ErrForbidden
	}
	if params.Principal == "" {
		return fmt.Errorf("dispute: missing principal")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispute: begin blacklist: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.SetBlacklist(ctx, tx, params.Principal, params.Blacklisted); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit blacklist: %w", err)
	}
	return nil
}

// advancePhase performs the lazy Pending->Active transition when the
// activation time has passed. It is the single place this transition lives.
func (s *Service) advancePhase(ctx context.Context, tx pgx.Tx, d *Dispute, now time.Time, actorID string) error {
	if d.Phase != PhasePending || now.Before(d.ActivationAt) {
		return nil
	}
	return s.setPhase(ctx, tx, d, PhaseActive, actorID)
}

func (s *Service) setPhase(ctx context.Context, tx pgx.Tx, d *Dispute, next Phase, actorID string) error {
	prev := d.Phase
	if err := s.store.SetPhase(ctx, tx, d.ID, next); err != nil {
		return err
	}
	d.Phase = next

	if err := s.timeline.Append(ctx, tx, d.ID, EventPhaseChanged, actorPtr(actorID), map[string]any{
		"previous": string(prev),
		"next":     string(next),
	}); err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, tx, "dispute.phase_changed", map[string]any{
		"dispute_id": d.ID,
		"previous":   string(prev),
		"next":       string(next),
	})
}

type schedule struct {
	activation         time.Time
	disputeEnd         time.Time
	votingStart        time.Time
	votingEnd          time.Time
	resolutionDeadline time.Time
}

func computeSchedule(created time.Time, period time.Duration) schedule {
	activation := created.Add(ActivationPeriod)
	disputeEnd := activation.Add(period)
	votingEnd := disputeEnd.Add(VotingPeriod)
	return schedule{
		activation:         activation,
		disputeEnd:         disputeEnd,
		votingStart:        disputeEnd,
		votingEnd:          votingEnd,
		resolutionDeadline: votingEnd.Add(ResolutionPeriod),
	}
}

func determineWinner(d Dispute, system string) (winner string, tie bool) {
	switch {
	case d.CreatorVotes > d.RespondentVotes:
		return d.Creator, false
	case d.RespondentVotes > d.CreatorVotes:
		return d.Respondent, false
	default:
		return system, true
	}
}

func buildSummary(d Dispute, winner string, tie bool) string {
	if tie {
		return fmt.Sprintf("tied %d-%d; receipt held by %s pending release", d.CreatorVotes, d.RespondentVotes, winner)
	}
	return fmt.Sprintf("resolved %d-%d in favor of %s", d.CreatorVotes, d.RespondentVotes, winner)
}

func validateCreate(params CreateParams) error {
	if params.Creator == "" {
		return fmt.Errorf("dispute: missing creator")
	}
	if params.Respondent == "" || params.Respondent == params.Creator {
		return ErrInvalidRespondent
	}
	if l := len(params.Title); l == 0 || l > MaxTitleLen {
		return ErrTitleLength
	}
	if l := len(params.Description); l < MinDescriptionLen || l > MaxDescriptionLen {
		return ErrDescriptionLength
	}
	if n := len(params.Evidence); n < MinEvidenceCount || n > MaxEvidenceCount {
		return ErrEvidenceCount
	}
	for _, in := range params.Evidence {
		if l := len(in.Description); l < MinDescriptionLen || l > MaxDescriptionLen {
			return ErrDescriptionLength
		}
		if in.DocumentHash == "" {
			return fmt.Errorf("dispute: missing document hash")
		}
	}
	if params.CustomPeriod != 0 && (params.CustomPeriod < MinDisputePeriod || params.CustomPeriod > MaxDisputePeriod) {
		return ErrCustomPeriod
	}
	if params.RequiresEscrow {
		if params.EscrowAmount <= 0 {
			return ErrEscrowAmount
		}
		if params.AttachedValue < params.EscrowAmount {
			return ErrInsufficientValue
		}
	}
	return nil
}

func actorPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
