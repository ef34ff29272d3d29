package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Outbox topics published by the arbitration engine.
const (
	TopicDisputeOpened   = "dispute.opened"
	TopicPanelAssigned   = "dispute.panel_assigned"
	TopicVoteCast        = "dispute.vote_cast"
	TopicDisputeResolved = "dispute.resolved"
	TopicEscrowReleased  = "dispute.escrow_released"
)

// OutboxWriter enqueues transactional outbox messages for downstream delivery.
type OutboxWriter struct{}

func NewOutboxWriter() *OutboxWriter {
	return &OutboxWriter{}
}

// Enqueue records a message in the outbox inside the caller's transaction.
func (w *OutboxWriter) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("event: empty outbox topic")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("event: insert outbox message: %w", err)
	}
	return nil
}
