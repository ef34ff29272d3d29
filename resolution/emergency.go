package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arbiterflow/dispute"
	"arbiterflow/event"
	"arbiterflow/settings"
)

// ErrDuplicateIdempotencyKey signals the emergency resolution was already
// applied under this key.
var ErrDuplicateIdempotencyKey = errors.New("resolution: duplicate idempotency key")

// EmergencyParams carries an administrative override resolution.
type EmergencyParams struct {
	DisputeID      int64
	ActorID        string
	ActorRole      string
	WinningParty   *string
	Resolution     string
	IdempotencyKey string
}

// EmergencyResolve forces a dispute into resolved status with caller-supplied
// outcome fields, bypassing panel and vote-completeness checks. The escrowed
// fee is deliberately not distributed here; its disposition is a separate,
// explicit escrow release by the administrator. Replays under the same
// idempotency key are absorbed silently.
func (e *Engine) EmergencyResolve(ctx context.Context, params EmergencyParams) error {
	if !settings.IsAdmin(params.ActorRole) {
		return ErrUnauthorized
	}
	if params.Resolution == "" {
		return fmt.Errorf("resolution: missing resolution text")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, params.IdempotencyKey)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil
			}
			return fmt.Errorf("resolution: insert idempotency key: %w", err)
		}
	}

	var status string
	err = tx.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1 FOR UPDATE`, params.DisputeID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispute.ErrNotFound
		}
		return fmt.Errorf("resolution: lock dispute: %w", err)
	}
	if status == "resolved" {
		return ErrAlreadyResolved
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
	if _, err := tx.Exec(ctx, resolveSQL, params.DisputeID, params.Resolution, params.WinningParty); err != nil {
		return fmt.Errorf("resolution: emergency resolve: %w", err)
	}

	if e.timeline != nil {
		payload := map[string]any{
			"resolution":    params.Resolution,
			"winning_party": params.WinningParty,
		}
		if err := e.timeline.Append(ctx, tx, params.DisputeID, event.TypeDisputeEmergencyResolved, &params.ActorID, payload); err != nil {
			return err
		}
	}
	if e.outbox != nil {
		payload := map[string]any{
			"dispute_id":    params.DisputeID,
			"winning_party": params.WinningParty,
			"emergency":     true,
		}
		if err := e.outbox.Enqueue(ctx, tx, event.TopicDisputeResolved, payload); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("resolution: commit emergency resolve: %w", err)
	}
	return nil
}
