package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Timeline event types recorded per dispute.
const (
	TypeDisputeOpened            = "DISPUTE_OPENED"
	TypePanelAssigned            = "PANEL_ASSIGNED"
	TypeVoteCast                 = "VOTE_CAST"
	TypeDisputeResolved          = "DISPUTE_RESOLVED"
	TypeDisputeEmergencyResolved = "DISPUTE_EMERGENCY_RESOLVED"
	TypeEscrowReleased           = "ESCROW_RELEASED"
)

// TimelineWriter appends immutable business events to a dispute's timeline
// inside the caller's transaction.
type TimelineWriter struct{}

func NewTimelineWriter() *TimelineWriter {
	return &TimelineWriter{}
}

// Append inserts the next timeline event for the dispute. Sequence numbers are
// per dispute and dense; the MAX(seq)+1 read is safe because every caller holds
// the dispute row lock for the duration of the transaction.
func (w *TimelineWriter) Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal timeline payload: %w", err)
	}

	const insertSQL = `
		INSERT INTO timeline_events (dispute_id, seq, type, payload, actor)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3::jsonb, $4
		FROM timeline_events
		WHERE dispute_id = $1
	`
	if _, err := tx.Exec(ctx, insertSQL, disputeID, eventType, body, actor); err != nil {
		return fmt.Errorf("event: insert timeline event: %w", err)
	}
	return nil
}
