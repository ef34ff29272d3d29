package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"arbiterflow/test/actors"
	"arbiterflow/test/chaos"
	"arbiterflow/test/infra"
	"arbiterflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "number of concurrent openers")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", false, "randomly kill database backends during the run")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestArbitrationConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	stack := newEngineStack(pool)
	panelists := mustSeed(t, ctx, pool, stack)

	const fee int64 = 100

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Opener(ctx2, stack.ledger, stack.disputes, stack.selector, fee, stop)
		})
	}
	for _, arb := range panelists {
		arb := arb
		g.Go(func() error { return actors.Voter(ctx2, pool, stack.votes, arb, stop) })
	}
	g.Go(func() error { return actors.Rogue(ctx2, pool, stack.votes, stop) })
	g.Go(func() error { return actors.Resolver(ctx2, pool, stack.engine, stop) })
	g.Go(func() error { return actors.EmergencyAdmin(ctx2, pool, stack.engine, stack.escrow, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, stop)
	}

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	// one final sweep after everything settles
	if name, row, err := oracles.Run(context.Background(), pool); err != nil {
		t.Logf("final oracle sweep error: %v", err)
	} else if name != "" {
		t.Fatalf("Oracle %s failed after settle. First row: %s (seed=%d)", name, row, seed)
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, stack *engineStack) []string {
	t.Helper()

	if err := stack.settings.SetFee(ctx, "admin", 100); err != nil {
		t.Fatalf("seed fee: %v", err)
	}
	if err := stack.settings.SetMinArbitrators(ctx, "admin", 3); err != nil {
		t.Fatalf("seed min arbitrators: %v", err)
	}

	panelists := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		p := fmt.Sprintf("stress-arb-%d", i)
		if _, err := stack.arbitrators.Register(ctx, p); err != nil {
			t.Fatalf("seed arbitrator %s: %v", p, err)
		}
		panelists = append(panelists, p)
	}
	return panelists
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"disputes", `SELECT id, status, plaintiff, defendant, winning_party, fee_paid FROM disputes ORDER BY id DESC LIMIT 50`},
		{"votes", `SELECT dispute_id, arbitrator, decision, voted_at FROM votes ORDER BY voted_at DESC LIMIT 50`},
		{"payouts", `SELECT dispute_id, arbitrator, amount, created_at FROM payouts ORDER BY created_at DESC LIMIT 50`},
		{"ledger_entries", `SELECT ref, from_principal, to_principal, amount, dispute_id FROM ledger_entries ORDER BY id DESC LIMIT 50`},
		{"timeline_events", `SELECT id, dispute_id, seq, type, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
