package panel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/dispute"
	"arbiterflow/event"
	"arbiterflow/settings"
)

var (
	// ErrInsufficientArbitrators signals the active pool is smaller than the
	// required panel size. The dispute stays in created status.
	ErrInsufficientArbitrators = errors.New("panel: insufficient active arbitrators")
	// ErrAlreadyAssigned signals the dispute already has a panel. A panel,
	// once set, is final for the life of the dispute.
	ErrAlreadyAssigned = errors.New("panel: already assigned")
)

// TimelineWriter appends dispute timeline events inside a transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// OutboxWriter enqueues outbox messages inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Selector draws arbitration panels from the registry.
type Selector struct {
	pool     *pgxpool.Pool
	timeline TimelineWriter
	outbox   OutboxWriter
}

func NewSelector(pool *pgxpool.Pool, timeline TimelineWriter, outbox OutboxWriter) *Selector {
	return &Selector{pool: pool, timeline: timeline, outbox: outbox}
}

// Assign draws the first min_arbitrators active registrants in registration
// order, records one assignment per member, and moves the dispute to
// in_progress — all in one transaction, so no observer ever sees a partial
// panel or a dispute with a panel still in created status.
func (s *Selector) Assign(ctx context.Context, disputeID int64) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("panel: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1 FOR UPDATE`, disputeID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispute.ErrNotFound
		}
		return nil, fmt.Errorf("panel: lock dispute: %w", err)
	}
	if dispute.Status(status) != dispute.StatusCreated {
		return nil, ErrAlreadyAssigned
	}

	size, err := settings.Get(ctx, tx, settings.KeyMinArbitrators)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT principal FROM arbitrators WHERE active ORDER BY seq ASC LIMIT $1`, size)
	if err != nil {
		return nil, fmt.Errorf("panel: list active arbitrators: %w", err)
	}
	members := make([]string, 0, size)
	for rows.Next() {
		var principal string
		if err := rows.Scan(&principal); err != nil {
			rows.Close()
			return nil, fmt.Errorf("panel: scan arbitrator: %w", err)
		}
		members = append(members, principal)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("panel: iterate arbitrators: %w", err)
	}

	if int64(len(members)) < size {
		return nil, ErrInsufficientArbitrators
	}

	for i, member := range members {
		if _, err := tx.Exec(ctx, `INSERT INTO assignments (dispute_id, arbitrator, position) VALUES ($1, $2, $3)`, disputeID, member, i); err != nil {
			return nil, fmt.Errorf("panel: insert assignment: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE disputes SET status = 'in_progress', updated_at = now() WHERE id = $1`, disputeID); err != nil {
		return nil, fmt.Errorf("panel: mark in progress: %w", err)
	}

	if s.timeline != nil {
		payload := map[string]any{"panel": members}
		if err := s.timeline.Append(ctx, tx, disputeID, event.TypePanelAssigned, nil, payload); err != nil {
			return nil, err
		}
	}
	if s.outbox != nil {
		payload := map[string]any{"dispute_id": disputeID, "panel": members}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicPanelAssigned, payload); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("panel: commit assignment: %w", err)
	}

	return members, nil
}

// IsAssigned reports whether the principal sits on the dispute's panel.
func (s *Selector) IsAssigned(ctx context.Context, disputeID int64, principal string) (bool, error) {
	var assigned bool
	const query = `SELECT EXISTS (SELECT 1 FROM assignments WHERE dispute_id = $1 AND arbitrator = $2)`
	if err := s.pool.QueryRow(ctx, query, disputeID, principal).Scan(&assigned); err != nil {
		return false, fmt.Errorf("panel: assignment check: %w", err)
	}
	return assigned, nil
}

// Members returns the panel in selection order. Empty for an unassigned
// dispute.
func (s *Selector) Members(ctx context.Context, disputeID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT arbitrator FROM assignments WHERE dispute_id = $1 ORDER BY position ASC`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("panel: list members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0, settings.MaxPanelSize)
	for rows.Next() {
		var principal string
		if err := rows.Scan(&principal); err != nil {
			return nil, fmt.Errorf("panel: scan member: %w", err)
		}
		members = append(members, principal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("panel: iterate members: %w", err)
	}
	return members, nil
}
