package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestTransfer_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies account locking, the balance guard, and the ledger audit trail.
func TestTransfer_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "accounts") || !tableExists(ctx, t, pool, "ledger_entries") {
		t.Skip("database schema missing; apply the migrations directory first")
	}

	repo := NewRepository(pool)

	suffix := time.Now().UnixNano()
	payer := fmt.Sprintf("itest-payer-%d", suffix)
	payee := fmt.Sprintf("itest-payee-%d", suffix)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM ledger_entries WHERE from_principal IN ($1, $2) OR to_principal IN ($1, $2)`, payer, payee)
		pool.Exec(ctx2, `DELETE FROM accounts WHERE principal IN ($1, $2)`, payer, payee)
	})

	for _, p := range []string{payer, payee} {
		if err := repo.EnsureAccount(ctx, p); err != nil {
			t.Fatalf("ensure account %s: %v", p, err)
		}
	}
	// EnsureAccount is safe to repeat.
	if err := repo.EnsureAccount(ctx, payer); err != nil {
		t.Fatalf("re-ensure account: %v", err)
	}

	if err := repo.Credit(ctx, payer, 500); err != nil {
		t.Fatalf("credit payer: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.Transfer(ctx, tx, payer, payee, 200, nil); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, tc := range []struct {
		principal string
		want      int64
	}{
		{payer, 300},
		{payee, 200},
	} {
		got, err := repo.BalanceOf(ctx, tc.principal)
		if err != nil {
			t.Fatalf("balance of %s: %v", tc.principal, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected balance %d, got %d", tc.principal, tc.want, got)
		}
	}

	// An overdraw rolls back and leaves both balances untouched.
	tx2, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.Transfer(ctx, tx2, payer, payee, 10000, nil); !errors.Is(err, ErrInsufficientFunds) {
		tx2.Rollback(ctx)
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	tx2.Rollback(ctx)

	if got, _ := repo.BalanceOf(ctx, payer); got != 300 {
		t.Fatalf("expected payer balance unchanged at 300, got %d", got)
	}

	// Exactly one audit entry was recorded for the successful transfer.
	var entryCount int
	var amount int64
	err = pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(MIN(amount), 0) FROM ledger_entries WHERE from_principal = $1 AND to_principal = $2`, payer, payee).Scan(&entryCount, &amount)
	if err != nil {
		t.Fatalf("verify entries: %v", err)
	}
	if entryCount != 1 || amount != 200 {
		t.Fatalf("unexpected ledger entries: count=%d amount=%d", entryCount, amount)
	}

	if _, err := repo.BalanceOf(ctx, "itest-nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
