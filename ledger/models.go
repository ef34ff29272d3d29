package ledger

import "time"

// EscrowAccount is the system account holding dispute fees between creation
// and payout. It is seeded by migration and must never be removed.
const EscrowAccount = "escrow"

// Account mirrors the accounts table.
type Account struct {
	Principal string
	Balance   int64
	CreatedAt time.Time
}

// Entry is an immutable audit record of a completed transfer.
type Entry struct {
	ID            int64
	Ref           string
	FromPrincipal string
	ToPrincipal   string
	Amount        int64
	DisputeID     *int64
	CreatedAt     time.Time
}
