package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one append-only entry in a dispute's history.
type Event struct {
	ID        int64
	DisputeID int64
	Seq       int
	Type      string
	Actor     *string
	Payload   []byte
	CreatedAt time.Time
}

// Writer appends timeline events inside a caller-owned transaction. The
// per-dispute seq is derived under the caller's dispute row lock, so it is
// dense and monotonic per dispute.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("timeline: marshal payload: %w", err)
	}

	var actorVal any
	if actor != nil && *actor != "" {
		actorVal = *actor
	}

	const q = `
		INSERT INTO timeline_events (dispute_id, seq, type, actor, payload)
		VALUES ($1, COALESCE((SELECT MAX(seq) FROM timeline_events WHERE dispute_id = $1), 0) + 1, $2, $3, $4::jsonb)
	`
	if _, err := tx.Exec(ctx, q, disputeID, eventType, actorVal, body); err != nil {
		return fmt.Errorf("timeline: append %s: %w", eventType, err)
	}
	return nil
}

// Reader serves the read side of the event log through the pool.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// List returns the events of one dispute in seq order.
func (r *Reader) List(ctx context.Context, disputeID int64) ([]Event, error) {
	const q = `
		SELECT id, dispute_id, seq, type, actor, payload, created_at
		FROM timeline_events
		WHERE dispute_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, q, disputeID)
	if err != nil {
		return nil, fmt.Errorf("timeline: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 8)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Seq, &e.Type, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("timeline: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline: iterate: %w", err)
	}
	return out, nil
}
