package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbiterflow/dispute"
	"arbiterflow/escrow"
	"arbiterflow/ledger"
	"arbiterflow/panel"
	"arbiterflow/resolution"
	"arbiterflow/vote"
)

// Opener funds a fresh plaintiff, opens a dispute, and assigns a panel.
// Assignment may fail with insufficient arbitrators early in a run; that is
// expected and leaves the dispute in created status.
func Opener(ctx context.Context, ledgerRepo *ledger.Repository, disputes *dispute.Service, selector *panel.Selector, fee int64, stop <-chan struct{}) error {
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		plaintiff := fmt.Sprintf("plaintiff-%d-%d", rand.Int63(), i)
		defendant := fmt.Sprintf("defendant-%d-%d", rand.Int63(), i)
		for _, p := range []string{plaintiff, defendant} {
			if err := ledgerRepo.EnsureAccount(ctx, p); err != nil {
				return fmt.Errorf("opener ensure account: %w", err)
			}
		}
		if err := ledgerRepo.Credit(ctx, plaintiff, fee*2); err != nil {
			return fmt.Errorf("opener fund plaintiff: %w", err)
		}

		rec, err := disputes.Open(ctx, dispute.OpenParams{
			Plaintiff: plaintiff,
			Defendant: defendant,
			Details:   "stress dispute",
		})
		if err != nil {
			return fmt.Errorf("opener open dispute: %w", err)
		}

		if _, err := selector.Assign(ctx, rec.ID); err != nil {
			if !errors.Is(err, panel.ErrInsufficientArbitrators) && !errors.Is(err, panel.ErrAlreadyAssigned) {
				return fmt.Errorf("opener assign panel: %w", err)
			}
		}

		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Voter casts votes for one arbitrator on every in-progress dispute they sit
// on. Contention outcomes (already voted, resolved underfoot) are expected.
func Voter(ctx context.Context, pool *pgxpool.Pool, votes *vote.Service, arbitrator string, stop <-chan struct{}) error {
	decisions := []vote.Decision{vote.DecisionFavorPlaintiff, vote.DecisionFavorDefendant, vote.DecisionSplit}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		const pendingSQL = `
			SELECT a.dispute_id FROM assignments a
			JOIN disputes d ON d.id = a.dispute_id
			WHERE a.arbitrator = $1 AND d.status = 'in_progress'
			  AND NOT EXISTS (SELECT 1 FROM votes v WHERE v.dispute_id = a.dispute_id AND v.arbitrator = $1)
			LIMIT 5
		`
		rows, err := pool.Query(ctx, pendingSQL, arbitrator)
		if err != nil {
			return fmt.Errorf("voter scan: %w", err)
		}
		var pending []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("voter scan id: %w", err)
			}
			pending = append(pending, id)
		}
		rows.Close()

		for _, id := range pending {
			_, err := votes.Cast(ctx, vote.CastParams{
				DisputeID:  id,
				Arbitrator: arbitrator,
				Decision:   decisions[rand.Intn(len(decisions))],
				Reasoning:  "stress vote",
			})
			switch {
			case err == nil:
			case errors.Is(err, vote.ErrAlreadyVoted), errors.Is(err, vote.ErrDisputeResolved):
				// lost a race, fine
			default:
				return fmt.Errorf("voter cast on %d: %w", id, err)
			}
		}

		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Rogue attempts votes from a principal that is never on any panel; every
// attempt must fail with ErrNotArbitrator or ErrDisputeNotFound.
func Rogue(ctx context.Context, pool *pgxpool.Pool, votes *vote.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var id int64
		err := pool.QueryRow(ctx, `SELECT id FROM disputes ORDER BY id DESC LIMIT 1`).Scan(&id)
		if err == nil {
			_, err = votes.Cast(ctx, vote.CastParams{
				DisputeID:  id,
				Arbitrator: "rogue-outsider",
				Decision:   vote.DecisionSplit,
			})
			if err == nil {
				return fmt.Errorf("rogue vote on dispute %d was accepted", id)
			}
			if !errors.Is(err, vote.ErrNotArbitrator) && !errors.Is(err, vote.ErrDisputeNotFound) {
				return fmt.Errorf("rogue vote on %d: unexpected error %w", id, err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Resolver hammers Attempt on recent disputes to exercise idempotency.
func Resolver(ctx context.Context, pool *pgxpool.Pool, engine *resolution.Engine, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var id int64
		err := pool.QueryRow(ctx, `SELECT id FROM disputes ORDER BY random() LIMIT 1`).Scan(&id)
		if err == nil {
			if _, err := engine.Attempt(ctx, id); err != nil && !errors.Is(err, dispute.ErrNotFound) {
				return fmt.Errorf("resolver attempt %d: %w", id, err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// EmergencyAdmin occasionally force-resolves a stuck dispute and releases its
// escrow to the defendant.
func EmergencyAdmin(ctx context.Context, pool *pgxpool.Pool, engine *resolution.Engine, escrowSvc *escrow.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var id int64
		var defendant string
		err := pool.QueryRow(ctx, `SELECT id, defendant FROM disputes WHERE status <> 'resolved' ORDER BY id ASC LIMIT 1`).Scan(&id, &defendant)
		if err == nil && rand.Intn(10) == 0 {
			err := engine.EmergencyResolve(ctx, resolution.EmergencyParams{
				DisputeID:      id,
				ActorID:        "stress-admin",
				ActorRole:      "admin",
				WinningParty:   &defendant,
				Resolution:     "administrative stress resolution",
				IdempotencyKey: fmt.Sprintf("stress-emergency-%d", id),
			})
			switch {
			case err == nil:
				if _, err := escrowSvc.Release(ctx, "admin", id, defendant); err != nil &&
					!errors.Is(err, escrow.ErrAlreadyDistributed) && !errors.Is(err, escrow.ErrNothingHeld) {
					return fmt.Errorf("emergency release %d: %w", id, err)
				}
			case errors.Is(err, resolution.ErrAlreadyResolved):
				// resolved by the panel first
			default:
				return fmt.Errorf("emergency resolve %d: %w", id, err)
			}
		}
		time.Sleep(time.Duration(200+rand.Intn(200)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks them processed.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("outbox begin: %w", err)
		}
		var id int64
		err = tx.QueryRow(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`).Scan(&id)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1 WHERE id=$1`, id)
		}
		if err == nil {
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}
