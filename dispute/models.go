package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Bounds on caller-supplied dispute fields.
const (
	MaxInvolvedParties = 10
	MaxDetailsLen      = 2000
)

// Dispute mirrors the disputes table. Arbitrators carries the assigned panel
// in selection order and is empty exactly while the dispute is in created
// status.
type Dispute struct {
	ID              int64
	Plaintiff       string
	Defendant       string
	InvolvedParties []string
	Details         string
	Status          Status
	FeePaid         int64
	Resolution      *string
	WinningParty    *string
	Arbitrators     []string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	UpdatedAt       time.Time
}

// OpenParams carries caller input for opening a dispute.
type OpenParams struct {
	Plaintiff       string
	Defendant       string
	InvolvedParties []string
	Details         string
}
