package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_balances_non_negative",
			SQL:  `SELECT principal, balance FROM escrow_accounts WHERE balance < 0`,
		},
		{
			// Value only enters through deposits; internal transfers conserve it.
			Name: "O2_value_conservation",
			SQL: `SELECT held.total, deposited.total FROM
                  (SELECT COALESCE(SUM(balance),0) AS total FROM escrow_accounts) held,
                  (SELECT COALESCE(SUM(amount),0) AS total FROM escrow_transfers WHERE kind = 'deposit') deposited
                  WHERE held.total <> deposited.total`,
		},
		{
			Name: "O3_tally_matches_votes",
			SQL: `SELECT d.id, d.creator_votes, d.respondent_votes FROM disputes d
                  WHERE d.creator_votes <> (SELECT COUNT(*) FROM votes v WHERE v.dispute_id = d.id AND v.supports_creator)
                     OR d.respondent_votes <> (SELECT COUNT(*) FROM votes v WHERE v.dispute_id = d.id AND NOT v.supports_creator)`,
		},
		{
			Name: "O4_voters_are_submitters",
			SQL: `SELECT v.dispute_id, v.voter FROM votes v
                  LEFT JOIN evidence_submitters s ON s.dispute_id = v.dispute_id AND s.principal = v.voter
                  WHERE s.id IS NULL`,
		},
		{
			Name: "O5_one_vote_per_principal",
			SQL: `SELECT dispute_id, voter, COUNT(*) FROM votes
                  GROUP BY dispute_id, voter HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_resolved_have_winner_and_receipt",
			SQL: `SELECT id, phase, winner, receipt_id FROM disputes
                  WHERE (phase = 'resolved') <> (winner IS NOT NULL)
                     OR (phase = 'resolved' AND receipt_id IS NULL)`,
		},
		{
			Name: "O7_receipt_dispute_bijection",
			SQL: `SELECT r.id FROM receipts r
                  LEFT JOIN disputes d ON d.id = r.dispute_id AND d.receipt_id = r.id
                  WHERE d.id IS NULL
                  UNION ALL
                  SELECT dispute_id FROM receipts GROUP BY dispute_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_schedule_ordering",
			SQL: `SELECT id FROM disputes
                  WHERE NOT (created_at < activation_at
                         AND activation_at < dispute_end_at
                         AND dispute_end_at = voting_start_at
                         AND voting_start_at < voting_end_at
                         AND voting_end_at < resolution_deadline)`,
		},
		{
			Name: "O9_evidence_cap",
			SQL: `SELECT dispute_id, COUNT(*) FROM evidence
                  GROUP BY dispute_id HAVING COUNT(*) > 20`,
		},
		{
			Name: "O10_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT dispute_id, seq,
                             LAG(seq) OVER (PARTITION BY dispute_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O11_released_receipts_not_system",
			SQL: `SELECT r.id FROM receipts r
                  JOIN disputes d ON d.id = r.dispute_id
                  WHERE r.released_at IS NOT NULL
                    AND (r.owner NOT IN (d.creator, d.respondent) OR NOT r.tie)`,
		},
		{
			Name: "O12_no_self_disputes",
			SQL:  `SELECT id FROM disputes WHERE creator = respondent OR respondent = ''`,
		},
		{
			Name: "O13_outbox_stale",
			SQL: `SELECT id, topic FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			// Aborted creations must not burn ids: count = max id = counter.
			Name: "O14_dispute_ids_dense",
			SQL: `SELECT counts.rows, counts.max_id, c.value FROM
                  (SELECT COUNT(*) AS rows, COALESCE(MAX(id),0) AS max_id FROM disputes) counts,
                  dispute_counter c
                  WHERE counts.rows <> counts.max_id OR counts.max_id <> c.value`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
