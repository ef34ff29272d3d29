package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
)

// Repository defines the data access required by the dispute service.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, params OpenParams, fee int64) (Dispute, error)
	Get(ctx context.Context, id int64) (Dispute, error)
	IsInvolvedParty(ctx context.Context, id int64, principal string) (bool, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const disputeColumns = `d.id, d.plaintiff, d.defendant, d.involved_parties, d.details, d.status::text,
	d.fee_paid, d.resolution, d.winning_party, d.created_at, d.resolved_at, d.updated_at`

// Insert persists a new dispute in created status inside the caller's
// transaction. IDs come from a database sequence so they stay unique and
// monotonic under concurrent opens.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, params OpenParams, fee int64) (Dispute, error) {
	query := fmt.Sprintf(`
		INSERT INTO disputes AS d (plaintiff, defendant, involved_parties, details, status, fee_paid)
		VALUES ($1, $2, $3, $4, 'created', $5)
		RETURNING %s
	`, disputeColumns)

	rec, err := scanDispute(tx.QueryRow(ctx, query,
		params.Plaintiff,
		params.Defendant,
		params.InvolvedParties,
		params.Details,
		fee,
	))
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}
	return rec, nil
}

// Get fetches a dispute and its assigned panel in selection order.
func (r *PGRepository) Get(ctx context.Context, id int64) (Dispute, error) {
	query := fmt.Sprintf(`SELECT %s FROM disputes d WHERE d.id = $1`, disputeColumns)

	rec, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}

	const panelSQL = `SELECT arbitrator FROM assignments WHERE dispute_id = $1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, panelSQL, id)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: load panel: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return Dispute{}, fmt.Errorf("dispute: scan panel member: %w", err)
		}
		rec.Arbitrators = append(rec.Arbitrators, member)
	}
	if err := rows.Err(); err != nil {
		return Dispute{}, fmt.Errorf("dispute: iterate panel: %w", err)
	}

	return rec, nil
}

// IsInvolvedParty reports whether the principal is the plaintiff, the
// defendant, or one of the additional involved parties.
func (r *PGRepository) IsInvolvedParty(ctx context.Context, id int64, principal string) (bool, error) {
	const query = `
		SELECT plaintiff = $2 OR defendant = $2 OR $2 = ANY(involved_parties)
		FROM disputes
		WHERE id = $1
	`
	var involved bool
	if err := r.pool.QueryRow(ctx, query, id, principal).Scan(&involved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("dispute: involved party check: %w", err)
	}
	return involved, nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var rec Dispute
	err := row.Scan(
		&rec.ID,
		&rec.Plaintiff,
		&rec.Defendant,
		&rec.InvolvedParties,
		&rec.Details,
		&rec.Status,
		&rec.FeePaid,
		&rec.Resolution,
		&rec.WinningParty,
		&rec.CreatedAt,
		&rec.ResolvedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Dispute{}, err
	}
	return rec, nil
}
