package dispute

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/event"
	"arbiterflow/ledger"
)

// FeeTransferer moves the arbitration fee into escrow inside the open
// transaction.
type FeeTransferer interface {
	Transfer(ctx context.Context, tx pgx.Tx, from, to string, amount int64, disputeID *int64) error
}

// FeeProvider supplies the currently configured arbitration fee.
type FeeProvider interface {
	Fee(ctx context.Context) (int64, error)
}

// TimelineWriter appends dispute timeline events inside a transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// OutboxWriter enqueues outbox messages inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service owns the authoritative dispute records.
type Service struct {
	pool     *pgxpool.Pool
	repo     Repository
	fees     FeeProvider
	transfer FeeTransferer
	timeline TimelineWriter
	outbox   OutboxWriter
}

func NewService(pool *pgxpool.Pool, repo Repository, fees FeeProvider, transfer FeeTransferer, timeline TimelineWriter, outbox OutboxWriter) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		fees:     fees,
		transfer: transfer,
		timeline: timeline,
		outbox:   outbox,
	}
}

// Open creates a dispute in created status. The arbitration fee moves from the
// plaintiff's account into escrow in the same transaction as the insert, so a
// dispute is never visible without funded escrow and a failed fee transfer
// leaves no record behind.
func (s *Service) Open(ctx context.Context, params OpenParams) (Dispute, error) {
	if err := validateOpen(params); err != nil {
		return Dispute{}, err
	}

	fee, err := s.fees.Fee(ctx)
	if err != nil {
		return Dispute{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.Insert(ctx, tx, params, fee)
	if err != nil {
		return Dispute{}, err
	}

	if fee > 0 {
		if err := s.transfer.Transfer(ctx, tx, params.Plaintiff, ledger.EscrowAccount, fee, &rec.ID); err != nil {
			return Dispute{}, err
		}
	}

	if s.timeline != nil {
		payload := map[string]any{
			"plaintiff": rec.Plaintiff,
			"defendant": rec.Defendant,
			"fee_paid":  rec.FeePaid,
		}
		if err := s.timeline.Append(ctx, tx, rec.ID, event.TypeDisputeOpened, &rec.Plaintiff, payload); err != nil {
			return Dispute{}, err
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"dispute_id": rec.ID,
			"plaintiff":  rec.Plaintiff,
			"defendant":  rec.Defendant,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicDisputeOpened, payload); err != nil {
			return Dispute{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit open: %w", err)
	}

	return rec, nil
}

// Get returns the dispute with its panel, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Dispute, error) {
	return s.repo.Get(ctx, id)
}

// IsInvolvedParty reports whether the principal participates in the dispute.
func (s *Service) IsInvolvedParty(ctx context.Context, id int64, principal string) (bool, error) {
	return s.repo.IsInvolvedParty(ctx, id, principal)
}

func validateOpen(params OpenParams) error {
	if params.Plaintiff == "" {
		return fmt.Errorf("dispute: missing plaintiff")
	}
	if params.Defendant == "" {
		return fmt.Errorf("dispute: missing defendant")
	}
	if params.Plaintiff == params.Defendant {
		return fmt.Errorf("dispute: plaintiff and defendant must differ")
	}
	if len(params.InvolvedParties) > MaxInvolvedParties {
		return fmt.Errorf("dispute: at most %d involved parties", MaxInvolvedParties)
	}
	for _, p := range params.InvolvedParties {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("dispute: empty involved party")
		}
	}
	if len(params.Details) > MaxDetailsLen {
		return fmt.Errorf("dispute: details exceed %d characters", MaxDetailsLen)
	}
	return nil
}
