// Package scoring aggregates detector signals into a score and classifies it.
package scoring

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// NoIndicators is the reasoning text for a claim with no signals.
const NoIndicators = "No significant fraud indicators detected"

// Score holds the summed contributions of a set of signals.
type Score struct {
	Total   float64 // clipped to [0,100]
	Raw     float64 // unclipped sum
	Signals []domain.Signal
}

// Aggregate sums signal contributions. No renormalization is applied.
func Aggregate(signals []domain.Signal) Score {
	var raw float64
	for _, s := range signals {
		raw += s.Contribution
	}
	return Score{
		Total:   Clip(raw),
		Raw:     raw,
		Signals: signals,
	}
}

// Clip bounds a score to [0,100].
func Clip(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

// Classification is the outcome of classifying a score.
type Classification struct {
	RiskLevel      domain.RiskLevel
	Recommendation domain.Recommendation
}

// Classify maps a score and its signals to a risk level and recommendation.
// A critical signal blocks and a high signal forces review regardless of score.
func Classify(agg Score, p domain.ClassificationPolicy) Classification {
	worst := 0
	for _, s := range agg.Signals {
		worst = max(worst, s.Severity.Rank())
	}

	switch {
	case worst >= domain.SeverityCritical.Rank() || agg.Total >= p.CriticalScore:
		return Classification{domain.RiskCritical, domain.RecommendBlock}
	case worst >= domain.SeverityHigh.Rank() || agg.Total >= p.HighScore:
		return Classification{domain.RiskHigh, domain.RecommendReview}
	case agg.Total >= p.MediumScore:
		return Classification{domain.RiskMedium, domain.RecommendReview}
	default:
		return Classification{domain.RiskLow, domain.RecommendApprove}
	}
}

// Reasoning joins signal descriptions in order.
func Reasoning(signals []domain.Signal) string {
	if len(signals) == 0 {
		return NoIndicators
	}
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, s.Description)
	}
	return strings.Join(parts, "; ")
}

// Summary returns the headline text for a classified score.
func Summary(score float64, c Classification) string {
	n := int(math.Round(score))
	switch {
	case c.Recommendation == domain.RecommendBlock:
		return fmt.Sprintf("Critical fraud indicators detected (Risk Score: %d). Payment blocked for investigation.", n)
	case c.Recommendation == domain.RecommendReview && c.RiskLevel == domain.RiskHigh:
		return fmt.Sprintf("High fraud risk detected (Risk Score: %d). Manual review required before payment.", n)
	case c.Recommendation == domain.RecommendReview:
		return fmt.Sprintf("Moderate fraud risk (Risk Score: %d). Recommended for additional verification.", n)
	default:
		return fmt.Sprintf("Low fraud risk (Risk Score: %d). Safe to proceed with payment.", n)
	}
}

// Blend combines the core score with a secondary opinion probability.
// The result is informational and never feeds back into classification.
func Blend(core, probability float64, p domain.BlendPolicy) float64 {
	prob := math.Max(0, math.Min(1, probability))
	return Clip(p.CoreWeight*core + p.OpinionWeight*prob*100)
}

// BuildReport renders the reporting view of an analysis.
func BuildReport(a *domain.ClaimAnalysis) *domain.FraudReport {
	seen := make(map[domain.SignalType]struct{})
	alerts := make([]domain.Signal, 0, len(a.Signals))
	for _, s := range a.Signals {
		if s.Failed() {
			continue
		}
		alerts = append(alerts, s)
		seen[s.Type] = struct{}{}
	}
	patterns := make([]domain.SignalType, 0, len(seen))
	for t := range seen {
		patterns = append(patterns, t)
	}
	slices.Sort(patterns)

	var atRisk float64
	if a.Recommendation.NeedsAttention() {
		atRisk = a.Amount
	}

	return &domain.FraudReport{
		AnalysisID: a.ID,
		ClaimID:    a.ClaimID,
		VendorID:   a.VendorID,
		Amount:     a.Amount,
		RiskAssessment: domain.RiskAssessment{
			TotalScore:     a.TotalScore,
			RiskLevel:      a.RiskLevel,
			Recommendation: a.Recommendation,
			Reasoning:      a.Reasoning,
			Summary:        a.Summary,
		},
		Alerts:      alerts,
		Patterns:    patterns,
		MoneyAtRisk: atRisk,
		AnalyzedAt:  a.AnalyzedAt,
	}
}
