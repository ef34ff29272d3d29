package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound signals the principal has no ledger account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInsufficientFunds signals the source account cannot cover the transfer.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrInvalidAmount signals a zero or negative transfer amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Repository provides account balances and transfers backed by PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	ref  func() string
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		ref:  func() string { return uuid.NewString() },
	}
}

// WithRefGenerator overrides the ledger entry reference generator, for tests.
func (r *Repository) WithRefGenerator(gen func() string) *Repository {
	r.ref = gen
	return r
}

// EnsureAccount creates the principal's account if it does not exist yet.
func (r *Repository) EnsureAccount(ctx context.Context, principal string) error {
	if principal == "" {
		return fmt.Errorf("ledger: empty principal")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO accounts (principal) VALUES ($1) ON CONFLICT (principal) DO NOTHING`, principal)
	if err != nil {
		return fmt.Errorf("ledger: ensure account: %w", err)
	}
	return nil
}

// BalanceOf returns the current balance for the principal.
func (r *Repository) BalanceOf(ctx context.Context, principal string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE principal = $1`, principal).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("ledger: balance of %s: %w", principal, err)
	}
	return balance, nil
}

// Credit adds amount to the principal's account outside any dispute flow.
// Used to fund party accounts; the escrow paths go through Transfer.
func (r *Repository) Credit(ctx context.Context, principal string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE principal = $1`, principal, amount)
	if err != nil {
		return fmt.Errorf("ledger: credit %s: %w", principal, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Transfer moves amount between two accounts inside the caller's transaction.
// Both account rows are locked in principal order to avoid deadlocks between
// concurrent transfers touching the same pair.
func (r *Repository) Transfer(ctx context.Context, tx pgx.Tx, from, to string, amount int64, disputeID *int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return fmt.Errorf("ledger: self transfer for %s", from)
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	for _, principal := range []string{first, second} {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM accounts WHERE principal = $1 FOR UPDATE`, principal).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("ledger: lock account %s: %w", principal, err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $2 WHERE principal = $1 AND balance >= $2`, from, amount)
	if err != nil {
		return fmt.Errorf("ledger: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE principal = $1`, to, amount); err != nil {
		return fmt.Errorf("ledger: credit %s: %w", to, err)
	}

	const entrySQL = `
		INSERT INTO ledger_entries (ref, from_principal, to_principal, amount, dispute_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, entrySQL, r.ref(), from, to, amount, disputeID); err != nil {
		return fmt.Errorf("ledger: record entry: %w", err)
	}

	return nil
}

// EntriesForDispute lists the audit trail of transfers tied to a dispute.
func (r *Repository) EntriesForDispute(ctx context.Context, disputeID int64) ([]Entry, error) {
	const query = `
		SELECT id, ref, from_principal, to_principal, amount, dispute_id, created_at
		FROM ledger_entries
		WHERE dispute_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, disputeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: entries for dispute: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Ref, &e.FromPrincipal, &e.ToPrincipal, &e.Amount, &e.DisputeID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate entries: %w", err)
	}
	return out, nil
}
