package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/arbitrator"
	"arbiterflow/dispute"
	"arbiterflow/event"
	"arbiterflow/settings"
	"arbiterflow/vote"
)

// PanelResolutionText is recorded on disputes resolved by a complete panel
// vote.
const PanelResolutionText = "resolved by arbitration panel vote"

var (
	// ErrUnauthorized signals the caller lacks the administrator role.
	ErrUnauthorized = errors.New("resolution: administrator role required")
	// ErrAlreadyResolved signals the dispute is already terminal.
	ErrAlreadyResolved = errors.New("resolution: dispute already resolved")
)

// Distributor pays the escrowed fee out to the panel inside the resolution
// transaction.
type Distributor interface {
	Distribute(ctx context.Context, tx pgx.Tx, disputeID int64, feePaid int64, panel []string) (int64, error)
}

// TimelineWriter appends dispute timeline events inside a transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// OutboxWriter enqueues outbox messages inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Engine drives disputes from voting to their terminal resolved state.
type Engine struct {
	pool        *pgxpool.Pool
	distributor Distributor
	timeline    TimelineWriter
	outbox      OutboxWriter
}

func NewEngine(pool *pgxpool.Pool, distributor Distributor, timeline TimelineWriter, outbox OutboxWriter) *Engine {
	return &Engine{pool: pool, distributor: distributor, timeline: timeline, outbox: outbox}
}

// DecideWinner applies the engine's tie-break rule to a complete tally. The
// asymmetry is deliberate and load-bearing: when plaintiff votes lead they
// must also strictly beat split votes, otherwise the outcome is split, and the
// defendant branch is only consulted when plaintiff votes do not lead. A
// perfect three-way tie therefore resolves to split.
func DecideWinner(c vote.Counts) vote.Decision {
	if c.FavorPlaintiff > c.FavorDefendant {
		if c.FavorPlaintiff > c.Split {
			return vote.DecisionFavorPlaintiff
		}
		return vote.DecisionSplit
	}
	if c.FavorDefendant > c.Split {
		return vote.DecisionFavorDefendant
	}
	return vote.DecisionSplit
}

// Attempt runs the quorum check in its own transaction. It is idempotent and
// side-effect-free unless the dispute has a complete tally: repeated calls on
// a resolved dispute, or one with outstanding votes, change nothing.
func (e *Engine) Attempt(ctx context.Context, disputeID int64) (bool, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, disputeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("resolution: dispute check: %w", err)
	}
	if !exists {
		return false, dispute.ErrNotFound
	}

	resolved, err := e.CheckAndResolve(ctx, tx, disputeID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("resolution: commit: %w", err)
	}
	return resolved, nil
}

// CheckAndResolve resolves the dispute inside the caller's transaction once
// every assigned arbitrator has voted. An incomplete tally is a valid
// intermediate state, not an error. Resolution, reputation updates, and fee
// payout form one atomic unit: if any part fails, the caller's transaction
// rolls back and the dispute stays in progress.
func (e *Engine) CheckAndResolve(ctx context.Context, tx pgx.Tx, disputeID int64) (bool, error) {
	var (
		status    string
		plaintiff string
		defendant string
		feePaid   int64
	)
	const lockSQL = `SELECT status::text, plaintiff, defendant, fee_paid FROM disputes WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockSQL, disputeID).Scan(&status, &plaintiff, &defendant, &feePaid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, dispute.ErrNotFound
		}
		return false, fmt.Errorf("resolution: lock dispute: %w", err)
	}
	if status != "in_progress" {
		return false, nil
	}

	panel, err := panelMembers(ctx, tx, disputeID)
	if err != nil {
		return false, err
	}
	if len(panel) == 0 {
		return false, nil
	}

	counts, err := vote.TallyTx(ctx, tx, disputeID)
	if err != nil {
		return false, err
	}
	if counts.Total() != len(panel) {
		return false, nil
	}

	decision := DecideWinner(counts)
	var winningParty *string
	switch decision {
	case vote.DecisionFavorPlaintiff:
		winningParty = &plaintiff
	case vote.DecisionFavorDefendant:
		winningParty = &defendant
	}

	const resolveSQL = `
		UPDATE disputes
		SET status = 'resolved',
		    resolution = $2,
		    winning_party = $3,
		    resolved_at = now(),
		    updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, resolveSQL, disputeID, PanelResolutionText, winningParty); err != nil {
		return false, fmt.Errorf("resolution: mark resolved: %w", err)
	}

	if err := arbitrator.RecordResolution(ctx, tx, disputeID, string(decision)); err != nil {
		return false, err
	}

	share, err := e.distributor.Distribute(ctx, tx, disputeID, feePaid, panel)
	if err != nil {
		return false, err
	}

	if e.timeline != nil {
		payload := map[string]any{
			"decision":           decision,
			"winning_party":      winningParty,
			"fee_per_arbitrator": share,
			"favor_plaintiff":    counts.FavorPlaintiff,
			"favor_defendant":    counts.FavorDefendant,
			"split":              counts.Split,
		}
		if err := e.timeline.Append(ctx, tx, disputeID, event.TypeDisputeResolved, nil, payload); err != nil {
			return false, err
		}
	}
	if e.outbox != nil {
		payload := map[string]any{
			"dispute_id":    disputeID,
			"decision":      decision,
			"winning_party": winningParty,
		}
		if err := e.outbox.Enqueue(ctx, tx, event.TopicDisputeResolved, payload); err != nil {
			return false, err
		}
	}

	return true, nil
}

func panelMembers(ctx context.Context, tx pgx.Tx, disputeID int64) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT arbitrator FROM assignments WHERE dispute_id = $1 ORDER BY position ASC`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("resolution: list panel: %w", err)
	}
	defer rows.Close()

	panel := make([]string, 0, settings.MaxPanelSize)
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("resolution: scan panel member: %w", err)
		}
		panel = append(panel, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolution: iterate panel: %w", err)
	}
	return panel, nil
}
