package domain

import "time"

// RuleConfig defines an operator-supplied CEL detector.
// The expression yields a suspicion in [0,1] (bool true counts as 1).
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands mapping suspicion to a severity
	Bands []RuleBand `json:"bands"`

	// Contribution = suspicion * Weight * 100
	Weight float64 `json:"weight"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RuleBand maps a suspicion range to a severity and description.
// LowerLimit is inclusive, UpperLimit exclusive; nil means unbounded.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
}
