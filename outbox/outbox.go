package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification topics emitted by the dispute engine.
const (
	TopicDisputeCreated    = "dispute.created"
	TopicEvidenceSubmitted = "dispute.evidence_submitted"
	TopicPhaseChanged      = "dispute.phase_changed"
	TopicVotingStarted     = "dispute.voting_started"
	TopicVoteCast          = "dispute.vote_cast"
	TopicDisputeResolved   = "dispute.resolved"
	TopicReceiptMinted     = "receipt.minted"
	TopicTieReleased       = "receipt.tie_released"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        uuid.UUID
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Writer enqueues notifications inside a caller-owned transaction so they
// commit or roll back with the state change they describe.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}

// Worker drains pending messages for downstream delivery.
type Worker struct {
	pool *pgxpool.Pool
}

func NewWorker(pool *pgxpool.Pool) *Worker {
	return &Worker{pool: pool}
}

// Claim locks and returns up to limit pending messages, bumping their attempt
// count. Callers must mark each message processed or dead afterwards.
func (w *Worker) Claim(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
		UPDATE outbox
		SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, payload, status, attempts, created_at
	`
	rows, err := w.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	return out, nil
}

// MarkProcessed transitions a claimed message to processed.
func (w *Worker) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return w.setStatus(ctx, id, StatusProcessed)
}

// MarkDead parks a message that exhausted delivery attempts.
func (w *Worker) MarkDead(ctx context.Context, id uuid.UUID) error {
	return w.setStatus(ctx, id, StatusDead)
}

func (w *Worker) setStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := w.pool.Exec(ctx, `UPDATE outbox SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("outbox: mark %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox: message %s not found", id)
	}
	return nil
}

// PendingCount reports how many messages await delivery.
func (w *Worker) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := w.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE status = 'pending'`).Scan(&n)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("outbox: pending count: %w", err)
	}
	return n, nil
}
