package vote

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/event"
)

// Failure modes of Cast, in precondition order.
var (
	// ErrDisputeNotFound signals the dispute does not exist.
	ErrDisputeNotFound = errors.New("vote: dispute not found")
	// ErrNotFound signals no vote exists for the (dispute, arbitrator) pair.
	ErrNotFound = errors.New("vote: not found")
	// ErrNotArbitrator signals the caller is not on the dispute's panel.
	ErrNotArbitrator = errors.New("vote: caller is not an assigned arbitrator")
	// ErrDisputeResolved signals voting has closed for the dispute.
	ErrDisputeResolved = errors.New("vote: dispute already resolved")
	// ErrAlreadyVoted signals the arbitrator has already cast their vote.
	ErrAlreadyVoted = errors.New("vote: already voted")
	// ErrInvalidDecision signals an unknown decision category.
	ErrInvalidDecision = errors.New("vote: invalid decision")
)

// Resolver runs the quorum check inside the voting transaction.
type Resolver interface {
	CheckAndResolve(ctx context.Context, tx pgx.Tx, disputeID int64) (bool, error)
}

// TimelineWriter appends dispute timeline events inside a transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, disputeID int64, eventType string, actor *string, payload map[string]any) error
}

// CastParams carries one arbitrator's vote.
type CastParams struct {
	DisputeID  int64
	Arbitrator string
	Decision   Decision
	Reasoning  string
}

// Service records votes and computes tallies.
type Service struct {
	pool     *pgxpool.Pool
	resolver Resolver
	timeline TimelineWriter
}

func NewService(pool *pgxpool.Pool, resolver Resolver, timeline TimelineWriter) *Service {
	return &Service{pool: pool, resolver: resolver, timeline: timeline}
}

// Cast records the arbitrator's vote and, in the same transaction, runs the
// resolution engine's quorum check. Preconditions are verified in order, each
// with its own failure mode; the dispute row lock serializes concurrent votes
// on the same dispute so the quorum check observes a complete tally.
func (s *Service) Cast(ctx context.Context, params CastParams) (resolved bool, err error) {
	if len(params.Reasoning) > MaxReasoningLen {
		return false, fmt.Errorf("vote: reasoning exceeds %d characters", MaxReasoningLen)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("vote: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1 FOR UPDATE`, params.DisputeID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrDisputeNotFound
		}
		return false, fmt.Errorf("vote: lock dispute: %w", err)
	}

	var assigned bool
	const assignedSQL = `SELECT EXISTS (SELECT 1 FROM assignments WHERE dispute_id = $1 AND arbitrator = $2)`
	if err := tx.QueryRow(ctx, assignedSQL, params.DisputeID, params.Arbitrator).Scan(&assigned); err != nil {
		return false, fmt.Errorf("vote: assignment check: %w", err)
	}
	if !assigned {
		return false, ErrNotArbitrator
	}

	if status != "in_progress" {
		return false, ErrDisputeResolved
	}

	var voted bool
	const votedSQL = `SELECT EXISTS (SELECT 1 FROM votes WHERE dispute_id = $1 AND arbitrator = $2)`
	if err := tx.QueryRow(ctx, votedSQL, params.DisputeID, params.Arbitrator).Scan(&voted); err != nil {
		return false, fmt.Errorf("vote: prior vote check: %w", err)
	}
	if voted {
		return false, ErrAlreadyVoted
	}

	if !params.Decision.Valid() {
		return false, ErrInvalidDecision
	}

	const insertSQL = `
		INSERT INTO votes (dispute_id, arbitrator, decision, reasoning)
		VALUES ($1, $2, $3::vote_decision, $4)
	`
	if _, err := tx.Exec(ctx, insertSQL, params.DisputeID, params.Arbitrator, string(params.Decision), params.Reasoning); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrAlreadyVoted
		}
		return false, fmt.Errorf("vote: insert: %w", err)
	}

	if s.timeline != nil {
		payload := map[string]any{"decision": params.Decision}
		if err := s.timeline.Append(ctx, tx, params.DisputeID, event.TypeVoteCast, &params.Arbitrator, payload); err != nil {
			return false, err
		}
	}

	if s.resolver != nil {
		resolved, err = s.resolver.CheckAndResolve(ctx, tx, params.DisputeID)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("vote: commit: %w", err)
	}

	return resolved, nil
}

// Get fetches a single vote.
func (s *Service) Get(ctx context.Context, disputeID int64, arbitrator string) (Vote, error) {
	const query = `
		SELECT dispute_id, arbitrator, decision::text, reasoning, voted_at
		FROM votes
		WHERE dispute_id = $1 AND arbitrator = $2
	`
	var v Vote
	err := s.pool.QueryRow(ctx, query, disputeID, arbitrator).
		Scan(&v.DisputeID, &v.Arbitrator, &v.Decision, &v.Reasoning, &v.VotedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vote{}, ErrNotFound
		}
		return Vote{}, fmt.Errorf("vote: get: %w", err)
	}
	return v, nil
}

// Tally counts votes per decision category. A dispute with no panel or no
// votes yet yields all-zero counts.
func (s *Service) Tally(ctx context.Context, disputeID int64) (Counts, error) {
	return TallyTx(ctx, s.pool, disputeID)
}

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TallyTx counts votes using the supplied querier so the resolution engine can
// tally inside its own transaction.
func TallyTx(ctx context.Context, q Querier, disputeID int64) (Counts, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE decision = 'favor_plaintiff'),
			COUNT(*) FILTER (WHERE decision = 'favor_defendant'),
			COUNT(*) FILTER (WHERE decision = 'split')
		FROM votes
		WHERE dispute_id = $1
	`
	var c Counts
	if err := q.QueryRow(ctx, query, disputeID).Scan(&c.FavorPlaintiff, &c.FavorDefendant, &c.Split); err != nil {
		return Counts{}, fmt.Errorf("vote: tally: %w", err)
	}
	return c, nil
}
