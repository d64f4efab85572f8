package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrAlreadyVoted signals a second vote by the same principal.
	ErrAlreadyVoted = errors.New("dispute: already voted")
)

const disputeColumns = `
	id, creator, respondent, title, description, category::text, priority::text,
	requires_escrow, escrow_amount, phase::text, creator_votes, respondent_votes,
	winner, receipt_id, resolution_summary,
	created_at, activation_at, dispute_end_at, voting_start_at, voting_end_at,
	resolution_deadline, updated_at`

// Repository implements Store backed by PostgreSQL. The Tx-suffixed-parameter
// methods run inside the engine's transaction; plain methods read through the
// pool.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForUpdate loads a dispute row with a row lock, serializing every
// mutating entry point per dispute.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Dispute, error) {
	q := `SELECT` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
	d, err := scanDispute(tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: lock: %w", err)
	}
	return d, nil
}

// Insert persists a new dispute and returns it with the assigned sequential
// id. The id comes from the dispute_counter row updated inside the caller's
// transaction, so an aborted creation consumes nothing and ids stay dense.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, d Dispute) (Dispute, error) {
	var id int64
	if err := tx.QueryRow(ctx, `UPDATE dispute_counter SET value = value + 1 RETURNING value`).Scan(&id); err != nil {
		return Dispute{}, fmt.Errorf("dispute: next id: %w", err)
	}

	q := `
		INSERT INTO disputes (
			id, creator, respondent, title, description, category, priority,
			requires_escrow, escrow_amount, phase,
			created_at, activation_at, dispute_end_at, voting_start_at,
			voting_end_at, resolution_deadline
		)
		VALUES ($1, $2, $3, $4, $5, $6::dispute_category, $7::dispute_priority,
		        $8, $9, $10::dispute_phase, $11, $12, $13, $14, $15, $16)
		RETURNING` + disputeColumns

	created, err := scanDispute(tx.QueryRow(ctx, q,
		id, d.Creator, d.Respondent, d.Title, d.Description, d.Category, d.Priority,
		d.RequiresEscrow, d.EscrowAmount, d.Phase,
		d.CreatedAt, d.ActivationAt, d.DisputeEndAt, d.VotingStartAt,
		d.VotingEndAt, d.ResolutionDeadline,
	))
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}
	return created, nil
}

// AppendEvidence stores one evidence entry.
func (r *Repository) AppendEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error) {
	const q = `
		INSERT INTO evidence (dispute_id, submitter, description, document_hash, supports_creator, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, dispute_id, submitter, description, document_hash, supports_creator, verified, submitted_at
	`
	var out Evidence
	err := tx.QueryRow(ctx, q,
		e.DisputeID, e.Submitter, e.Description, e.DocumentHash, e.SupportsCreator, e.SubmittedAt,
	).Scan(&out.ID, &out.DisputeID, &out.Submitter, &out.Description, &out.DocumentHash,
		&out.SupportsCreator, &out.Verified, &out.SubmittedAt)
	if err != nil {
		return Evidence{}, fmt.Errorf("dispute: append evidence: %w", err)
	}
	return out, nil
}

// RecordSubmitter adds the principal to the dispute's distinct-submitters set
// on first submission. Returns true when the principal was newly added.
func (r *Repository) RecordSubmitter(ctx context.Context, tx pgx.Tx, disputeID int64, principal string, at time.Time) (bool, error) {
	const q = `
		INSERT INTO evidence_submitters (dispute_id, principal, first_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (dispute_id, principal) DO NOTHING
	`
	tag, err := tx.Exec(ctx, q, disputeID, principal, at)
	if err != nil {
		return false, fmt.Errorf("dispute: record submitter: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EvidenceCount reports how many evidence entries a dispute holds.
func (r *Repository) EvidenceCount(ctx context.Context, tx pgx.Tx, disputeID int64) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM evidence WHERE dispute_id = $1`, disputeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: evidence count: %w", err)
	}
	return n, nil
}

// SubmitterCount reports the size of the distinct-submitters set.
func (r *Repository) SubmitterCount(ctx context.Context, tx pgx.Tx, disputeID int64) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM evidence_submitters WHERE dispute_id = $1`, disputeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: submitter count: %w", err)
	}
	return n, nil
}

// IsSubmitter reports whether the principal has submitted evidence on the dispute.
func (r *Repository) IsSubmitter(ctx context.Context, tx pgx.Tx, disputeID int64, principal string) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM evidence_submitters WHERE dispute_id = $1 AND principal = $2)`
	if err := tx.QueryRow(ctx, q, disputeID, principal).Scan(&exists); err != nil {
		return false, fmt.Errorf("dispute: submitter check: %w", err)
	}
	return exists, nil
}

// InsertVote stores a vote, mapping the uniqueness violation to ErrAlreadyVoted.
func (r *Repository) InsertVote(ctx context.Context, tx pgx.Tx, v Vote) (Vote, error) {
	const q = `
		INSERT INTO votes (dispute_id, voter, supports_creator, reason, cast_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, dispute_id, voter, supports_creator, reason, verified, cast_at
	`
	var out Vote
	err := tx.QueryRow(ctx, q, v.DisputeID, v.Voter, v.SupportsCreator, v.Reason, v.CastAt).
		Scan(&out.ID, &out.DisputeID, &out.Voter, &out.SupportsCreator, &out.Reason, &out.Verified, &out.CastAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Vote{}, ErrAlreadyVoted
		}
		return Vote{}, fmt.Errorf("dispute: insert vote: %w", err)
	}
	return out, nil
}

// AddTally increments the matching vote counter on the dispute row.
func (r *Repository) AddTally(ctx context.Context, tx pgx.Tx, disputeID int64, supportsCreator bool) error {
	column := "respondent_votes"
	if supportsCreator {
		column = "creator_votes"
	}
	q := fmt.Sprintf(`UPDATE disputes SET %s = %s + 1, updated_at = get_tx_timestamp() WHERE id = $1`, column, column)
	tag, err := tx.Exec(ctx, q, disputeID)
	if err != nil {
		return fmt.Errorf("dispute: add tally: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPhase moves a dispute to the given phase.
func (r *Repository) SetPhase(ctx context.Context, tx pgx.Tx, id int64, phase Phase) error {
	const q = `UPDATE disputes SET phase = $2::dispute_phase, updated_at = get_tx_timestamp() WHERE id = $1`
	tag, err := tx.Exec(ctx, q, id, phase)
	if err != nil {
		return fmt.Errorf("dispute: set phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResolution records the settlement outcome on the dispute row.
func (r *Repository) SetResolution(ctx context.Context, tx pgx.Tx, id int64, winner, summary string, receiptID int64) error {
	const q = `
		UPDATE disputes
		SET phase = 'resolved',
		    winner = $2,
		    resolution_summary = $3,
		    receipt_id = $4,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND winner IS NULL
	`
	tag, err := tx.Exec(ctx, q, id, winner, summary, receiptID)
	if err != nil {
		return fmt.Errorf("dispute: set resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockUserState upserts and row-locks the per-principal tracking row,
// serializing concurrent creations by the same principal.
func (r *Repository) LockUserState(ctx context.Context, tx pgx.Tx, principal string) (UserState, error) {
	const upsert = `INSERT INTO user_states (principal) VALUES ($1) ON CONFLICT (principal) DO NOTHING`
	if _, err := tx.Exec(ctx, upsert, principal); err != nil {
		return UserState{}, fmt.Errorf("dispute: ensure user state: %w", err)
	}

	const q = `
		SELECT principal, last_creation_at, dispute_count, blacklisted
		FROM user_states
		WHERE principal = $1
		FOR UPDATE
	`
	var s UserState
	if err := tx.QueryRow(ctx, q, principal).Scan(&s.Principal, &s.LastCreationAt, &s.DisputeCount, &s.Blacklisted); err != nil {
		return UserState{}, fmt.Errorf("dispute: lock user state: %w", err)
	}
	return s, nil
}

// UserStateTx reads the tracking row inside the engine transaction without
// locking it. Principals with no row report the zero state.
func (r *Repository) UserStateTx(ctx context.Context, tx pgx.Tx, principal string) (UserState, error) {
	const q = `
		SELECT principal, last_creation_at, dispute_count, blacklisted
		FROM user_states
		WHERE principal = $1
	`
	var s UserState
	err := tx.QueryRow(ctx, q, principal).Scan(&s.Principal, &s.LastCreationAt, &s.DisputeCount, &s.Blacklisted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserState{Principal: principal}, nil
		}
		return UserState{}, fmt.Errorf("dispute: user state: %w", err)
	}
	return s, nil
}

// RecordCreation stamps the cooldown clock and bumps the creation counter.
func (r *Repository) RecordCreation(ctx context.Context, tx pgx.Tx, principal string, at time.Time) error {
	const q = `
		UPDATE user_states
		SET last_creation_at = $2,
		    dispute_count = dispute_count + 1,
		    updated_at = get_tx_timestamp()
		WHERE principal = $1
	`
	tag, err := tx.Exec(ctx, q, principal, at)
	if err != nil {
		return fmt.Errorf("dispute: record creation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispute: user state missing for %s", principal)
	}
	return nil
}

// SetBlacklist flips the administrative block flag for a principal.
func (r *Repository) SetBlacklist(ctx context.Context, tx pgx.Tx, principal string, blacklisted bool) error {
	const q = `
		INSERT INTO user_states (principal, blacklisted)
		VALUES ($1, $2)
		ON CONFLICT (principal) DO UPDATE
		SET blacklisted = EXCLUDED.blacklisted,
		    updated_at = get_tx_timestamp()
	`
	if _, err := tx.Exec(ctx, q, principal, blacklisted); err != nil {
		return fmt.Errorf("dispute: set blacklist: %w", err)
	}
	return nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var d Dispute
	err := row.Scan(
		&d.ID,
		&d.Creator,
		&d.Respondent,
		&d.Title,
		&d.Description,
		&d.Category,
		&d.Priority,
		&d.RequiresEscrow,
		&d.EscrowAmount,
		&d.Phase,
		&d.CreatorVotes,
		&d.RespondentVotes,
		&d.Winner,
		&d.ReceiptID,
		&d.ResolutionSummary,
		&d.CreatedAt,
		&d.ActivationAt,
		&d.DisputeEndAt,
		&d.VotingStartAt,
		&d.VotingEndAt,
		&d.ResolutionDeadline,
		&d.UpdatedAt,
	)
	if err != nil {
		return Dispute{}, err
	}
	return d, nil
}
