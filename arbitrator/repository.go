package arbitrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the principal has never registered as an arbitrator.
var ErrNotFound = errors.New("arbitrator: not found")

// Repository handles data access for the arbitrator registry.
type Repository interface {
	Upsert(ctx context.Context, principal string) (Profile, error)
	Get(ctx context.Context, principal string) (Profile, error)
	ListActive(ctx context.Context, limit int) ([]Profile, error)
	SetActive(ctx context.Context, principal string, active bool) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `principal, seq, active, reputation_score, cases_handled, successful_resolutions, registered_at, updated_at`

// Upsert registers the principal, resetting reputation and counters when the
// row already exists. The registration sequence is preserved on re-register so
// panel selection order stays stable.
func (r *PGRepository) Upsert(ctx context.Context, principal string) (Profile, error) {
	query := fmt.Sprintf(`
		INSERT INTO arbitrators (principal, active, reputation_score, cases_handled, successful_resolutions)
		VALUES ($1, true, $2, 0, 0)
		ON CONFLICT (principal) DO UPDATE SET
			active = true,
			reputation_score = $2,
			cases_handled = 0,
			successful_resolutions = 0,
			updated_at = now()
		RETURNING %s
	`, profileColumns)

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, principal, BaselineReputation))
	if err != nil {
		return Profile{}, fmt.Errorf("arbitrator: upsert: %w", err)
	}
	return profile, nil
}

// Get fetches a registry entry by principal.
func (r *PGRepository) Get(ctx context.Context, principal string) (Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM arbitrators WHERE principal = $1`, profileColumns)

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, principal))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("arbitrator: get: %w", err)
	}
	return profile, nil
}

// ListActive returns active arbitrators in registration order.
func (r *PGRepository) ListActive(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM arbitrators
		WHERE active
		ORDER BY seq ASC
		LIMIT $1
	`, profileColumns)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("arbitrator: list active: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("arbitrator: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arbitrator: iterate profiles: %w", err)
	}

	return profiles, nil
}

// SetActive flips the activity flag without touching reputation or counters.
func (r *PGRepository) SetActive(ctx context.Context, principal string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE arbitrators SET active = $2, updated_at = now() WHERE principal = $1`, principal, active)
	if err != nil {
		return fmt.Errorf("arbitrator: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordResolution updates panelists' counters inside the resolution
// transaction: everyone on the panel handled the case, and those whose vote
// matched the outcome gain reputation and a successful resolution.
func RecordResolution(ctx context.Context, tx pgx.Tx, disputeID int64, winningDecision string) error {
	const handledSQL = `
		UPDATE arbitrators ar
		SET cases_handled = cases_handled + 1, updated_at = now()
		FROM assignments a
		WHERE a.dispute_id = $1 AND a.arbitrator = ar.principal
	`
	if _, err := tx.Exec(ctx, handledSQL, disputeID); err != nil {
		return fmt.Errorf("arbitrator: bump cases handled: %w", err)
	}

	const matchedSQL = `
		UPDATE arbitrators ar
		SET successful_resolutions = successful_resolutions + 1,
		    reputation_score = reputation_score + 5,
		    updated_at = now()
		FROM votes v
		WHERE v.dispute_id = $1 AND v.decision::text = $2 AND v.arbitrator = ar.principal
	`
	if _, err := tx.Exec(ctx, matchedSQL, disputeID, winningDecision); err != nil {
		return fmt.Errorf("arbitrator: bump successful resolutions: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.Principal,
		&p.Seq,
		&p.Active,
		&p.ReputationScore,
		&p.CasesHandled,
		&p.SuccessfulResolutions,
		&p.RegisteredAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
