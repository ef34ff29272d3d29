package arbitrator

import (
	"context"
	"errors"
	"fmt"
)

// AccountEnsurer provisions a ledger account for a newly registered principal.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, principal string) error
}

// Service exposes registry-level arbitrator operations.
type Service struct {
	repo     Repository
	accounts AccountEnsurer
}

func NewService(repo Repository, accounts AccountEnsurer) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// Register marks the caller as an active arbitrator with baseline reputation.
// Registering again resets reputation and counters; the registration sequence
// position is kept. Any principal may self-register.
func (s *Service) Register(ctx context.Context, principal string) (Profile, error) {
	if principal == "" {
		return Profile{}, fmt.Errorf("arbitrator: empty principal")
	}

	if s.accounts != nil {
		if err := s.accounts.EnsureAccount(ctx, principal); err != nil {
			return Profile{}, fmt.Errorf("arbitrator: provision account: %w", err)
		}
	}

	return s.repo.Upsert(ctx, principal)
}

// Get returns the registry entry for the principal.
func (s *Service) Get(ctx context.Context, principal string) (Profile, error) {
	return s.repo.Get(ctx, principal)
}

// IsActive reports whether the principal is a registered, active arbitrator.
func (s *Service) IsActive(ctx context.Context, principal string) (bool, error) {
	profile, err := s.repo.Get(ctx, principal)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.Active, nil
}

// ListActive returns up to limit active arbitrators in registration order.
func (s *Service) ListActive(ctx context.Context, limit int) ([]Profile, error) {
	return s.repo.ListActive(ctx, limit)
}

// Deactivate removes the arbitrator from the selection pool. Registry entries
// are never deleted, only deactivated.
func (s *Service) Deactivate(ctx context.Context, principal string) error {
	return s.repo.SetActive(ctx, principal, false)
}
