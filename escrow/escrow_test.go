package escrow

import (
	"context"
	"errors"
	"testing"
)

func TestSplitFee(t *testing.T) {
	cases := []struct {
		fee   int64
		panel int
		want  int64
	}{
		{100, 3, 33}, // remainder of 1 stays in escrow
		{100, 4, 25},
		{99, 5, 19},
		{1000, 3, 333},
		{2, 3, 0},
		{0, 3, 0},
		{100, 0, 0},
	}
	for _, tc := range cases {
		if got := SplitFee(tc.fee, tc.panel); got != tc.want {
			t.Errorf("SplitFee(%d, %d): expected %d got %d", tc.fee, tc.panel, tc.want, got)
		}
	}
}

func TestSplitFee_NeverExceedsFee(t *testing.T) {
	for fee := int64(0); fee <= 200; fee++ {
		for panel := 1; panel <= 5; panel++ {
			share := SplitFee(fee, panel)
			if share*int64(panel) > fee {
				t.Fatalf("fee %d over panel %d: total payout %d exceeds fee", fee, panel, share*int64(panel))
			}
		}
	}
}

func TestRelease_RequiresAdmin(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)

	_, err := svc.Release(context.Background(), "party", 1, "someone")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRelease_RequiresRecipient(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)

	if _, err := svc.Release(context.Background(), "admin", 1, ""); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}
