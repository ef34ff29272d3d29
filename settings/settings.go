package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Keys of the engine parameters stored in the settings table.
const (
	KeyArbitrationFee = "arbitration_fee"
	KeyMinArbitrators = "min_arbitrators"
)

// MaxPanelSize bounds how many arbitrators a dispute may carry.
const MaxPanelSize = 5

var (
	// ErrUnauthorized signals the caller lacks the administrator role.
	ErrUnauthorized = errors.New("settings: administrator role required")
	// ErrInvalidValue signals a setting value outside its allowed range.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Querier is the subset of pgxpool.Pool and pgx.Tx used for reads.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service reads and updates engine parameters.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Fee returns the arbitration fee charged when a dispute is opened.
func (s *Service) Fee(ctx context.Context) (int64, error) {
	return get(ctx, s.pool, KeyArbitrationFee)
}

// MinArbitrators returns the panel size used for new disputes.
func (s *Service) MinArbitrators(ctx context.Context) (int64, error) {
	return get(ctx, s.pool, KeyMinArbitrators)
}

// SetFee updates the arbitration fee. Administrator only.
func (s *Service) SetFee(ctx context.Context, actorRole string, fee int64) error {
	if !IsAdmin(actorRole) {
		return ErrUnauthorized
	}
	if fee < 0 {
		return fmt.Errorf("%w: fee must be non-negative", ErrInvalidValue)
	}
	return s.set(ctx, KeyArbitrationFee, fee)
}

// SetMinArbitrators updates the panel size for new disputes. Administrator only.
func (s *Service) SetMinArbitrators(ctx context.Context, actorRole string, n int64) error {
	if !IsAdmin(actorRole) {
		return ErrUnauthorized
	}
	if n < 1 || n > MaxPanelSize {
		return fmt.Errorf("%w: panel size must be between 1 and %d", ErrInvalidValue, MaxPanelSize)
	}
	return s.set(ctx, KeyMinArbitrators, n)
}

// IsAdmin reports whether the role string names the contract administrator.
func IsAdmin(role string) bool {
	return role == "admin"
}

// Get reads a setting using the supplied querier, so callers holding a
// transaction observe a consistent value.
func Get(ctx context.Context, q Querier, key string) (int64, error) {
	return get(ctx, q, key)
}

func get(ctx context.Context, q Querier, key string) (int64, error) {
	var value int64
	if err := q.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value); err != nil {
		return 0, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) set(ctx context.Context, key string, value int64) error {
	const query = `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}
