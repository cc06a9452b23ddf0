package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

func sig(t domain.SignalType, sev domain.Severity, points float64) domain.Signal {
	return domain.Signal{Type: t, Severity: sev, Contribution: points, Description: string(t) + " fired"}
}

func TestAggregate(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := Aggregate(nil)
		assert.Equal(t, 0.0, s.Total)
	})

	t.Run("SumsWithoutRenormalizing", func(t *testing.T) {
		s := Aggregate([]domain.Signal{
			sig(domain.SignalRoundNumber, domain.SeverityLow, 4.5),
			sig(domain.SignalBudgetMaxing, domain.SeverityMedium, 10),
		})
		assert.InDelta(t, 14.5, s.Total, 1e-9)
		assert.InDelta(t, 14.5, s.Raw, 1e-9)
	})

	t.Run("ClipsAtHundred", func(t *testing.T) {
		s := Aggregate([]domain.Signal{
			sig(domain.SignalPhantomProject, domain.SeverityHigh, 60),
			sig(domain.SignalShellCompany, domain.SeverityHigh, 71.65),
		})
		assert.Equal(t, 100.0, s.Total)
		assert.InDelta(t, 131.65, s.Raw, 1e-9)
	})
}

func TestClip(t *testing.T) {
	assert.Equal(t, 0.0, Clip(-5))
	assert.Equal(t, 100.0, Clip(250))
	assert.Equal(t, 0.0, Clip(math.NaN()))
	assert.Equal(t, 42.0, Clip(42))
}

func TestClassify(t *testing.T) {
	p := domain.DefaultPolicy().Classification

	cases := []struct {
		name    string
		signals []domain.Signal
		risk    domain.RiskLevel
		rec     domain.Recommendation
	}{
		{"Nothing", nil, domain.RiskLow, domain.RecommendApprove},
		{"LowScore", []domain.Signal{sig(domain.SignalBudgetMaxing, domain.SeverityMedium, 39.9)}, domain.RiskLow, domain.RecommendApprove},
		{"MediumBoundary", []domain.Signal{sig(domain.SignalBudgetMaxing, domain.SeverityMedium, 40)}, domain.RiskMedium, domain.RecommendReview},
		{"HighBoundary", []domain.Signal{sig(domain.SignalBudgetMaxing, domain.SeverityMedium, 70)}, domain.RiskHigh, domain.RecommendReview},
		{"CriticalBoundary", []domain.Signal{sig(domain.SignalBudgetMaxing, domain.SeverityMedium, 85)}, domain.RiskCritical, domain.RecommendBlock},
		{"HighSignalOverridesScore", []domain.Signal{sig(domain.SignalRoundNumber, domain.SeverityHigh, 1)}, domain.RiskHigh, domain.RecommendReview},
		{"CriticalSignalOverridesScore", []domain.Signal{sig(domain.SignalDuplicateInvoice, domain.SeverityCritical, 5)}, domain.RiskCritical, domain.RecommendBlock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(Aggregate(tc.signals), p)
			assert.Equal(t, tc.risk, c.RiskLevel)
			assert.Equal(t, tc.rec, c.Recommendation)
		})
	}
}

func TestClassifyMonotone(t *testing.T) {
	p := domain.DefaultPolicy().Classification
	prev := 0
	for score := 0.0; score <= 100; score += 0.5 {
		c := Classify(Score{Total: score}, p)
		rank := map[domain.RiskLevel]int{
			domain.RiskLow: 1, domain.RiskMedium: 2, domain.RiskHigh: 3, domain.RiskCritical: 4,
		}[c.RiskLevel]
		require.GreaterOrEqual(t, rank, prev, "risk level decreased at score %.1f", score)
		prev = rank
	}
}

func TestReasoning(t *testing.T) {
	assert.Equal(t, NoIndicators, Reasoning(nil))
	got := Reasoning([]domain.Signal{
		{Description: "first"},
		{Description: "second"},
	})
	assert.Equal(t, "first; second", got)
}

func TestSummary(t *testing.T) {
	assert.Equal(t,
		"Critical fraud indicators detected (Risk Score: 100). Payment blocked for investigation.",
		Summary(100, Classification{domain.RiskCritical, domain.RecommendBlock}))
	assert.Equal(t,
		"High fraud risk detected (Risk Score: 72). Manual review required before payment.",
		Summary(71.6, Classification{domain.RiskHigh, domain.RecommendReview}))
	assert.Equal(t,
		"Moderate fraud risk (Risk Score: 45). Recommended for additional verification.",
		Summary(45.2, Classification{domain.RiskMedium, domain.RecommendReview}))
	assert.Equal(t,
		"Low fraud risk (Risk Score: 10). Safe to proceed with payment.",
		Summary(10, Classification{domain.RiskLow, domain.RecommendApprove}))
}

func TestBlend(t *testing.T) {
	p := domain.DefaultPolicy().Blend
	assert.InDelta(t, 0.7*50+0.3*80, Blend(50, 0.8, p), 1e-9)
	assert.Equal(t, 100.0, Blend(100, 1, p))
	assert.InDelta(t, 35.0, Blend(50, -3, p), 1e-9)
}

func TestBuildReport(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	a := &domain.ClaimAnalysis{
		ID:             "an-1",
		ClaimID:        "cl-1",
		VendorID:       "v-1",
		Amount:         9500000,
		TotalScore:     100,
		RiskLevel:      domain.RiskCritical,
		Recommendation: domain.RecommendBlock,
		Reasoning:      "x",
		Summary:        "y",
		AnalyzedAt:     at,
		Signals: []domain.Signal{
			sig(domain.SignalShellCompany, domain.SeverityHigh, 24.5),
			sig(domain.SignalPhantomProject, domain.SeverityHigh, 38),
			{Type: domain.SignalCostVariance, Severity: domain.SeverityLow, Evidence: map[string]any{"error": domain.EvidenceErrorTag}},
		},
	}

	r := BuildReport(a)
	assert.Equal(t, "an-1", r.AnalysisID)
	assert.Equal(t, 9500000.0, r.MoneyAtRisk)
	assert.Len(t, r.Alerts, 2)
	assert.Equal(t, []domain.SignalType{domain.SignalPhantomProject, domain.SignalShellCompany}, r.Patterns)
	assert.Equal(t, domain.RecommendBlock, r.RiskAssessment.Recommendation)

	a.Recommendation = domain.RecommendApprove
	assert.Equal(t, 0.0, BuildReport(a).MoneyAtRisk)
}
