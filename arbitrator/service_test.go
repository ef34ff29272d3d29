package arbitrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_RegisterResetsCounters(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, "arb-1")
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if !first.Active {
		t.Fatal("expected new arbitrator to be active")
	}
	if first.ReputationScore != BaselineReputation {
		t.Fatalf("expected baseline reputation %d got %d", BaselineReputation, first.ReputationScore)
	}

	// Simulate accumulated history, then re-register.
	repo.bump("arb-1", 7, 4, 30)

	again, err := svc.Register(ctx, "arb-1")
	if err != nil {
		t.Fatalf("re-register: unexpected error: %v", err)
	}
	if again.CasesHandled != 0 || again.SuccessfulResolutions != 0 {
		t.Fatalf("expected counters reset, got %d/%d", again.CasesHandled, again.SuccessfulResolutions)
	}
	if again.ReputationScore != BaselineReputation {
		t.Fatalf("expected reputation reset to %d got %d", BaselineReputation, again.ReputationScore)
	}
	if again.Seq != first.Seq {
		t.Fatalf("expected registration sequence preserved, got %d then %d", first.Seq, again.Seq)
	}
}

func TestService_RegisterProvisionsAccount(t *testing.T) {
	repo := newFakeRepository()
	accounts := &fakeAccounts{}
	svc := NewService(repo, accounts)

	if _, err := svc.Register(context.Background(), "arb-1"); err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if len(accounts.ensured) != 1 || accounts.ensured[0] != "arb-1" {
		t.Fatalf("expected ledger account for arb-1, got %v", accounts.ensured)
	}

	accounts.err = errors.New("ledger down")
	if _, err := svc.Register(context.Background(), "arb-2"); err == nil {
		t.Fatal("expected error when account provisioning fails")
	}
}

func TestService_IsActive(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	active, err := svc.IsActive(ctx, "ghost")
	if err != nil {
		t.Fatalf("unexpected error for unknown principal: %v", err)
	}
	if active {
		t.Fatal("unregistered principal must not be active")
	}

	if _, err := svc.Register(ctx, "arb-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if active, _ := svc.IsActive(ctx, "arb-1"); !active {
		t.Fatal("expected registered arbitrator to be active")
	}

	if err := svc.Deactivate(ctx, "arb-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if active, _ := svc.IsActive(ctx, "arb-1"); active {
		t.Fatal("expected deactivated arbitrator to be inactive")
	}

	// The entry must still exist after deactivation.
	if _, err := svc.Get(ctx, "arb-1"); err != nil {
		t.Fatalf("expected registry entry to survive deactivation: %v", err)
	}
}

func TestService_ListActiveRegistrationOrder(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, p := range []string{"arb-c", "arb-a", "arb-b"} {
		if _, err := svc.Register(ctx, p); err != nil {
			t.Fatalf("register %s: %v", p, err)
		}
	}
	if err := svc.Deactivate(ctx, "arb-a"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	got, err := svc.ListActive(ctx, 10)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	want := []string{"arb-c", "arb-b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d active arbitrators got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Principal != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], got[i].Principal)
		}
	}
}

type fakeRepository struct {
	byPrincipal map[string]Profile
	order       []string
	nextSeq     int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byPrincipal: make(map[string]Profile), nextSeq: 1}
}

func (f *fakeRepository) Upsert(ctx context.Context, principal string) (Profile, error) {
	existing, ok := f.byPrincipal[principal]
	seq := f.nextSeq
	if ok {
		seq = existing.Seq
	} else {
		f.nextSeq++
		f.order = append(f.order, principal)
	}
	profile := Profile{
		Principal:       principal,
		Seq:             seq,
		Active:          true,
		ReputationScore: BaselineReputation,
		RegisteredAt:    time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	f.byPrincipal[principal] = profile
	return profile, nil
}

func (f *fakeRepository) Get(ctx context.Context, principal string) (Profile, error) {
	profile, ok := f.byPrincipal[principal]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

func (f *fakeRepository) ListActive(ctx context.Context, limit int) ([]Profile, error) {
	out := make([]Profile, 0, len(f.order))
	for _, p := range f.order {
		profile := f.byPrincipal[p]
		if profile.Active {
			out = append(out, profile)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepository) SetActive(ctx context.Context, principal string, active bool) error {
	profile, ok := f.byPrincipal[principal]
	if !ok {
		return ErrNotFound
	}
	profile.Active = active
	f.byPrincipal[principal] = profile
	return nil
}

func (f *fakeRepository) bump(principal string, handled, successful, reputationDelta int) {
	profile := f.byPrincipal[principal]
	profile.CasesHandled += handled
	profile.SuccessfulResolutions += successful
	profile.ReputationScore += reputationDelta
	f.byPrincipal[principal] = profile
}

type fakeAccounts struct {
	ensured []string
	err     error
}

func (f *fakeAccounts) EnsureAccount(ctx context.Context, principal string) error {
	if f.err != nil {
		return f.err
	}
	f.ensured = append(f.ensured, principal)
	return nil
}
