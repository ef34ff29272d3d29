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

// All returns the invariant checks run against the arbitration schema.
// Each query must return zero rows; any row is a violation sample.
func All() []Oracle {
	return []Oracle{
		{
			// Emergency resolutions may terminate a dispute straight from
			// created status, so only panel-paid resolutions must carry a panel.
			Name: "O1_panel_iff_not_created",
			SQL: `SELECT d.id FROM disputes d
                  WHERE (d.status = 'created' AND EXISTS
                        (SELECT 1 FROM assignments a WHERE a.dispute_id = d.id))
                     OR (d.status = 'in_progress' AND NOT EXISTS
                        (SELECT 1 FROM assignments a WHERE a.dispute_id = d.id))
                     OR (d.status = 'resolved'
                        AND EXISTS (SELECT 1 FROM payouts p WHERE p.dispute_id = d.id)
                        AND NOT EXISTS (SELECT 1 FROM assignments a WHERE a.dispute_id = d.id))`,
		},
		{
			Name: "O2_terminal_fields_iff_resolved",
			SQL: `SELECT id FROM disputes
                  WHERE (status = 'resolved') <> (resolved_at IS NOT NULL)
                     OR (status = 'resolved') <> (resolution IS NOT NULL)
                     OR (status <> 'resolved' AND winning_party IS NOT NULL)`,
		},
		{
			Name: "O3_votes_only_from_panel",
			SQL: `SELECT v.dispute_id, v.arbitrator FROM votes v
                  WHERE NOT EXISTS (SELECT 1 FROM assignments a
                                    WHERE a.dispute_id = v.dispute_id AND a.arbitrator = v.arbitrator)`,
		},
		{
			Name: "O4_payout_sum_within_fee",
			SQL: `SELECT d.id FROM disputes d
                  JOIN payouts p ON p.dispute_id = d.id
                  GROUP BY d.id, d.fee_paid
                  HAVING SUM(p.amount) > d.fee_paid`,
		},
		{
			Name: "O5_panel_resolution_has_full_tally",
			SQL: `SELECT d.id FROM disputes d
                  WHERE d.status = 'resolved'
                    AND EXISTS (SELECT 1 FROM payouts p WHERE p.dispute_id = d.id)
                    AND (SELECT COUNT(*) FROM votes v WHERE v.dispute_id = d.id)
                     <> (SELECT COUNT(*) FROM assignments a WHERE a.dispute_id = d.id)`,
		},
		{
			Name: "O6_escrow_conservation",
			SQL: `SELECT 'escrow_mismatch' AS detail
                  WHERE (SELECT balance FROM accounts WHERE principal = 'escrow')
                     <> (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE to_principal = 'escrow')
                      - (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE from_principal = 'escrow')`,
		},
		{
			Name: "O7_no_negative_balances",
			SQL:  `SELECT principal FROM accounts WHERE balance < 0`,
		},
		{
			Name: "O8_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT dispute_id, seq,
                             LAG(seq) OVER (PARTITION BY dispute_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O9_panel_bounded",
			SQL: `SELECT dispute_id FROM assignments
                  GROUP BY dispute_id HAVING COUNT(*) > 5`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s query: %w", o.Name, err)
		}
		if rows.Next() {
			values, _ := rows.Values()
			rows.Close()
			return o.Name, fmt.Sprint(values), nil
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return o.Name, "", fmt.Errorf("oracle %s iterate: %w", o.Name, err)
		}
		rows.Close()
	}
	return "", "", nil
}
