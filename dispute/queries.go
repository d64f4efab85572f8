package dispute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
)

// Get returns a dispute by id.
func (r *Repository) Get(ctx context.Context, id int64) (Dispute, error) {
	q := `SELECT` + disputeColumns + ` FROM disputes WHERE id = $1`
	d, err := scanDispute(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

// Tally bundles the running vote counts and the recorded winner, if any.
type Tally struct {
	CreatorVotes    int
	RespondentVotes int
	Winner          *string
}

func (r *Repository) GetTally(ctx context.Context, id int64) (Tally, error) {
	const q = `SELECT creator_votes, respondent_votes, winner FROM disputes WHERE id = $1`
	var t Tally
	if err := r.pool.QueryRow(ctx, q, id).Scan(&t.CreatorVotes, &t.RespondentVotes, &t.Winner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tally{}, ErrNotFound
		}
		return Tally{}, fmt.Errorf("dispute: tally: %w", err)
	}
	return t, nil
}

// ListEvidence returns a dispute's evidence in submission order.
func (r *Repository) ListEvidence(ctx context.Context, disputeID int64) ([]Evidence, error) {
	const q = `
		SELECT id, dispute_id, submitter, description, document_hash, supports_creator, verified, submitted_at
		FROM evidence
		WHERE dispute_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, q, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list evidence: %w", err)
	}
	defer rows.Close()

	out := make([]Evidence, 0, 8)
	for rows.Next() {
		var e Evidence
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Submitter, &e.Description, &e.DocumentHash,
			&e.SupportsCreator, &e.Verified, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan evidence: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate evidence: %w", err)
	}
	return out, nil
}

// ListVotes returns a dispute's votes in cast order.
func (r *Repository) ListVotes(ctx context.Context, disputeID int64) ([]Vote, error) {
	const q = `
		SELECT id, dispute_id, voter, supports_creator, reason, verified, cast_at
		FROM votes
		WHERE dispute_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, q, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list votes: %w", err)
	}
	defer rows.Close()

	out := make([]Vote, 0, 8)
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.ID, &v.DisputeID, &v.Voter, &v.SupportsCreator, &v.Reason, &v.Verified, &v.CastAt); err != nil {
			return nil, fmt.Errorf("dispute: scan vote: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate votes: %w", err)
	}
	return out, nil
}

// ListSubmitters returns the distinct evidence submitters in first-submission order.
func (r *Repository) ListSubmitters(ctx context.Context, disputeID int64) ([]string, error) {
	const q = `SELECT principal FROM evidence_submitters WHERE dispute_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, q, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list submitters: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 8)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("dispute: scan submitter: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate submitters: %w", err)
	}
	return out, nil
}

// UserDisputes returns every dispute the principal is party to, newest first.
func (r *Repository) UserDisputes(ctx context.Context, principal string) ([]Dispute, error) {
	q := `SELECT` + disputeColumns + `
		FROM disputes
		WHERE creator = $1 OR respondent = $1
		ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, q, principal)
	if err != nil {
		return nil, fmt.Errorf("dispute: user disputes: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 8)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan user dispute: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate user disputes: %w", err)
	}
	return out, nil
}

// UserState returns the per-principal tracking row, zero state when absent.
func (r *Repository) UserState(ctx context.Context, principal string) (UserState, error) {
	const q = `
		SELECT principal, last_creation_at, dispute_count, blacklisted
		FROM user_states
		WHERE principal = $1
	`
	var s UserState
	err := r.pool.QueryRow(ctx, q, principal).Scan(&s.Principal, &s.LastCreationAt, &s.DisputeCount, &s.Blacklisted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserState{Principal: principal}, nil
		}
		return UserState{}, fmt.Errorf("dispute: user state: %w", err)
	}
	return s, nil
}

// Counter returns the number of disputes created so far. Ids are dense, so
// this equals the highest assigned id.
func (r *Repository) Counter(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT value FROM dispute_counter`).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: counter: %w", err)
	}
	return n, nil
}

// remainingCooldown reports how long the principal must still wait before
// creating another dispute, measured at now. Blacklisted principals report
// the unreachable maximum.
func remainingCooldown(s UserState, now time.Time) time.Duration {
	if s.Blacklisted {
		return time.Duration(math.MaxInt64)
	}
	if s.LastCreationAt == nil {
		return 0
	}
	elapsed := now.Sub(*s.LastCreationAt)
	if elapsed >= CreationCooldown {
		return 0
	}
	return CreationCooldown - elapsed
}
