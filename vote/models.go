package vote

import "time"

// Decision is an arbitrator's verdict on a dispute.
type Decision string

const (
	DecisionFavorPlaintiff Decision = "favor_plaintiff"
	DecisionFavorDefendant Decision = "favor_defendant"
	DecisionSplit          Decision = "split"
)

// Valid reports whether d is one of the three decision categories.
func (d Decision) Valid() bool {
	switch d {
	case DecisionFavorPlaintiff, DecisionFavorDefendant, DecisionSplit:
		return true
	default:
		return false
	}
}

// MaxReasoningLen bounds the free-text reasoning attached to a vote.
const MaxReasoningLen = 1000

// Vote mirrors the votes table. A vote is immutable once cast.
type Vote struct {
	DisputeID  int64
	Arbitrator string
	Decision   Decision
	Reasoning  string
	VotedAt    time.Time
}

// Counts aggregates votes per decision category for one dispute.
type Counts struct {
	FavorPlaintiff int
	FavorDefendant int
	Split          int
}

// Total is the number of votes cast so far.
func (c Counts) Total() int {
	return c.FavorPlaintiff + c.FavorDefendant + c.Split
}
