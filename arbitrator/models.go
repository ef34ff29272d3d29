package arbitrator

import "time"

// BaselineReputation is the score every arbitrator starts with. Registration
// resets an existing arbitrator back to this baseline.
const BaselineReputation = 100

// Profile mirrors the arbitrators table.
type Profile struct {
	Principal             string
	Seq                   int64
	Active                bool
	ReputationScore       int
	CasesHandled          int
	SuccessfulResolutions int
	RegisteredAt          time.Time
	UpdatedAt             time.Time
}
