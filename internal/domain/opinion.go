package domain

import "context"

// SecondaryScorer is an optional external model consulted after the core
// score is final. Its answer is advisory only.
type SecondaryScorer interface {
	// Score returns the scorer's fraud probability for the claim.
	Score(ctx context.Context, req OpinionRequest) (*SecondOpinion, error)

	// Name identifies the scorer in logs and analyses.
	Name() string
}
