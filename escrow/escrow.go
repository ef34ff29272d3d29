package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/event"
	"arbiterflow/ledger"
	"arbiterflow/settings"
)

var (
	// ErrUnauthorized signals the caller lacks the administrator role.
	ErrUnauthorized = errors.New("escrow: administrator role required")
	// ErrNotResolved signals the dispute has not reached a terminal state.
	ErrNotResolved = errors.New("escrow: dispute not resolved")
	// ErrAlreadyDistributed signals the fee already went to the panel.
	ErrAlreadyDistributed = errors.New("escrow: fee already distributed")
	// ErrNothingHeld signals no escrowed value remains for the dispute.
	ErrNothingHeld = errors.New("escrow: nothing held for dispute")
)

// Transferer moves value between ledger accounts inside a transaction.
type Transferer interface {
	Transfer(ctx context.Context, tx pgx.Tx, from, to string, amount int64, disputeID *int64) error
}

// TimelineWriter appends dispute timeline events inside a transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// OutboxWriter enqueues outbox messages inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service pays out escrowed dispute fees.
type Service struct {
	pool     *pgxpool.Pool
	transfer Transferer
	timeline TimelineWriter
	outbox   OutboxWriter
}

func NewService(pool *pgxpool.Pool, transfer Transferer, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{pool: pool, transfer: transfer, timeline: timeline, outbox: outbox}
}

// Distribute splits feePaid evenly among the panel inside the caller's
// transaction: one escrow-to-arbitrator transfer plus one payout audit row per
// member. Integer division; the remainder stays in the escrow account. Any
// failed transfer aborts the caller's whole transaction, so a dispute is never
// durably resolved with an undistributed fee.
func SplitFee(feePaid int64, panelSize int) int64 {
	if panelSize <= 0 {
		return 0
	}
	return feePaid / int64(panelSize)
}

func (s *Service) Distribute(ctx context.Context, tx pgx.Tx, disputeID int64, feePaid int64, panel []string) (int64, error) {
	if len(panel) == 0 {
		return 0, fmt.Errorf("escrow: empty panel for dispute %d", disputeID)
	}

	share := SplitFee(feePaid, len(panel))
	for _, member := range panel {
		if share > 0 {
			if err := s.transfer.Transfer(ctx, tx, ledger.EscrowAccount, member, share, &disputeID); err != nil {
				return 0, fmt.Errorf("escrow: pay %s for dispute %d: %w", member, disputeID, err)
			}
		}
		const payoutSQL = `INSERT INTO payouts (dispute_id, arbitrator, amount) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, payoutSQL, disputeID, member, share); err != nil {
			return 0, fmt.Errorf("escrow: record payout: %w", err)
		}
	}
	return share, nil
}

// Release transfers whatever the escrow still holds for a dispute to an
// explicit recipient. This is the administrator's follow-up for
// emergency-resolved disputes, whose fee is deliberately not auto-distributed.
func (s *Service) Release(ctx context.Context, actorRole string, disputeID int64, recipient string) (int64, error) {
	if !settings.IsAdmin(actorRole) {
		return 0, ErrUnauthorized
	}
	if recipient == "" {
		return 0, fmt.Errorf("escrow: missing recipient")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var feePaid int64
	err = tx.QueryRow(ctx, `SELECT status::text, fee_paid FROM disputes WHERE id = $1 FOR UPDATE`, disputeID).Scan(&status, &feePaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("escrow: dispute %d: %w", disputeID, ErrNothingHeld)
		}
		return 0, fmt.Errorf("escrow: lock dispute: %w", err)
	}
	if status != "resolved" {
		return 0, ErrNotResolved
	}

	var distributed bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE dispute_id = $1)`, disputeID).Scan(&distributed); err != nil {
		return 0, fmt.Errorf("escrow: payout check: %w", err)
	}
	if distributed {
		return 0, ErrAlreadyDistributed
	}

	var paidOut int64
	const paidSQL = `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE dispute_id = $1 AND from_principal = $2
	`
	if err := tx.QueryRow(ctx, paidSQL, disputeID, ledger.EscrowAccount).Scan(&paidOut); err != nil {
		return 0, fmt.Errorf("escrow: sum releases: %w", err)
	}

	remaining := feePaid - paidOut
	if remaining <= 0 {
		return 0, ErrNothingHeld
	}

	if err := s.transfer.Transfer(ctx, tx, ledger.EscrowAccount, recipient, remaining, &disputeID); err != nil {
		return 0, fmt.Errorf("escrow: release to %s: %w", recipient, err)
	}

	if s.timeline != nil {
		payload := map[string]any{"recipient": recipient, "amount": remaining}
		if err := s.timeline.Append(ctx, tx, disputeID, event.TypeEscrowReleased, nil, payload); err != nil {
			return 0, err
		}
	}
	if s.outbox != nil {
		payload := map[string]any{"dispute_id": disputeID, "recipient": recipient, "amount": remaining}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicEscrowReleased, payload); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("escrow: commit release: %w", err)
	}

	return remaining, nil
}
