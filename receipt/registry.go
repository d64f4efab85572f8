package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the token does not exist.
	ErrNotFound = errors.New("receipt: not found")
	// ErrAlreadyMinted signals the dispute already has a receipt.
	ErrAlreadyMinted = errors.New("receipt: dispute already has a receipt")
	// ErrNotHeldBySystem signals a release attempt on a token a party owns.
	ErrNotHeldBySystem = errors.New("receipt: token not held by system")
	// ErrNotTie signals a release attempt on a decisive-outcome token.
	ErrNotTie = errors.New("receipt: token is not a tie receipt")
	// ErrBadRecipient signals the release target is not a dispute party.
	ErrBadRecipient = errors.New("receipt: recipient is not a dispute party")
	// ErrForbidden signals the caller lacks the admin capability.
	ErrForbidden = errors.New("receipt: admin role required")
	// ErrPaused signals the engine suspend switch is engaged.
	ErrPaused = errors.New("receipt: operations paused")
)

// OutboxWriter enqueues a notification in the surrounding transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Registry owns the receipts table. Minting happens inside the engine's
// resolution transaction; tie release runs in its own transaction.
type Registry struct {
	pool   *pgxpool.Pool
	system string
	outbox OutboxWriter
	paused func() bool
}

func NewRegistry(pool *pgxpool.Pool, systemAccount string) *Registry {
	if systemAccount == "" {
		systemAccount = "system"
	}
	return &Registry{pool: pool, system: systemAccount}
}

func (r *Registry) WithOutbox(out OutboxWriter) *Registry {
	r.outbox = out
	return r
}

// WithPauseCheck wires the engine's suspend switch into mutating operations.
func (r *Registry) WithPauseCheck(paused func() bool) *Registry {
	r.paused = paused
	return r
}

// MintTx mints the receipt for a freshly resolved dispute inside the caller's
// transaction and returns the assigned token.
func (r *Registry) MintTx(ctx context.Context, tx pgx.Tx, params MintParams) (Token, error) {
	if params.DisputeID <= 0 {
		return Token{}, fmt.Errorf("receipt: mint missing dispute id")
	}
	if params.Owner == "" {
		return Token{}, fmt.Errorf("receipt: mint missing owner")
	}

	outcome := "win"
	if params.Tie {
		outcome = "tie"
	}
	metadata, err := json.Marshal(map[string]any{
		"dispute_id": params.DisputeID,
		"title":      params.Title,
		"outcome":    outcome,
		"summary":    params.Summary,
	})
	if err != nil {
		return Token{}, fmt.Errorf("receipt: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO receipts (dispute_id, owner, tie, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, dispute_id, owner, tie, metadata, minted_at, released_at, released_to
	`
	tok, err := scanToken(tx.QueryRow(ctx, q, params.DisputeID, params.Owner, params.Tie, metadata))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Token{}, ErrAlreadyMinted
		}
		return Token{}, fmt.Errorf("receipt: mint: %w", err)
	}
	return tok, nil
}

// ReleaseParams identifies the token, the party receiving it, and the acting
// administrator.
type ReleaseParams struct {
	TokenID   int64
	To        string
	ActorID   string
	ActorRole string
}

// ReleaseTie hands a system-held tie receipt to one of the dispute parties.
func (r *Registry) ReleaseTie(ctx context.Context, params ReleaseParams) (Token, error) {
	if r.paused != nil && r.paused() {
		return Token{}, ErrPaused
	}
	if strings.ToLower(params.ActorRole) != "admin" {
		return Token{}, ErrForbidden
	}
	if params.To == "" {
		return Token{}, ErrBadRecipient
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("receipt: begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockSQL = `
		SELECT t.id, t.dispute_id, t.owner, t.tie, t.metadata, t.minted_at, t.released_at, t.released_to,
		       d.creator, d.respondent
		FROM receipts t
		JOIN disputes d ON d.id = t.dispute_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`
	var (
		tok        Token
		creator    string
		respondent string
	)
	if err := tx.QueryRow(ctx, lockSQL, params.TokenID).Scan(
		&tok.ID, &tok.DisputeID, &tok.Owner, &tok.Tie, &tok.Metadata,
		&tok.MintedAt, &tok.ReleasedAt, &tok.ReleasedTo,
		&creator, &respondent,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("receipt: lock token: %w", err)
	}

	if !tok.Tie {
		return Token{}, ErrNotTie
	}
	if tok.Owner != r.system {
		return Token{}, ErrNotHeldBySystem
	}
	if params.To != creator && params.To != respondent {
		return Token{}, ErrBadRecipient
	}

	const updateSQL = `
		UPDATE receipts
		SET owner = $2,
		    released_at = get_tx_timestamp(),
		    released_to = $2
		WHERE id = $1
		RETURNING id, dispute_id, owner, tie, metadata, minted_at, released_at, released_to
	`
	released, err := scanToken(tx.QueryRow(ctx, updateSQL, params.TokenID, params.To))
	if err != nil {
		return Token{}, fmt.Errorf("receipt: release: %w", err)
	}

	if r.outbox != nil {
		payload := map[string]any{
			"receipt_id": released.ID,
			"dispute_id": released.DisputeID,
			"released_to": params.To,
			"released_by": params.ActorID,
		}
		if err := r.outbox.Enqueue(ctx, tx, "receipt.tie_released", payload); err != nil {
			return Token{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Token{}, fmt.Errorf("receipt: commit release: %w", err)
	}
	return released, nil
}

// Get returns a token by id.
func (r *Registry) Get(ctx context.Context, id int64) (Token, error) {
	const q = `
		SELECT id, dispute_id, owner, tie, metadata, minted_at, released_at, released_to
		FROM receipts
		WHERE id = $1
	`
	tok, err := scanToken(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("receipt: get: %w", err)
	}
	return tok, nil
}

// ForDispute returns the token minted for a dispute.
func (r *Registry) ForDispute(ctx context.Context, disputeID int64) (Token, error) {
	const q = `
		SELECT id, dispute_id, owner, tie, metadata, minted_at, released_at, released_to
		FROM receipts
		WHERE dispute_id = $1
	`
	tok, err := scanToken(r.pool.QueryRow(ctx, q, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("receipt: for dispute: %w", err)
	}
	return tok, nil
}

// OwnerOf returns the current owner of a token.
func (r *Registry) OwnerOf(ctx context.Context, id int64) (string, error) {
	tok, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

// Counter returns the highest serial minted so far, zero when none exist.
func (r *Registry) Counter(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM receipts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("receipt: counter: %w", err)
	}
	return n, nil
}

func scanToken(row pgx.Row) (Token, error) {
	var tok Token
	err := row.Scan(
		&tok.ID,
		&tok.DisputeID,
		&tok.Owner,
		&tok.Tie,
		&tok.Metadata,
		&tok.MintedAt,
		&tok.ReleasedAt,
		&tok.ReleasedTo,
	)
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}
