package domain

import (
	"time"
)

// RiskLevel is the coarse classification of an analysed claim.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Recommendation is the suggested next action for a claim.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendBlock   Recommendation = "BLOCK"
)

// NeedsAttention reports whether downstream alerting should be notified.
func (r Recommendation) NeedsAttention() bool {
	return r == RecommendReview || r == RecommendBlock
}

// ClaimAnalysis is the immutable result of analysing one claim.
type ClaimAnalysis struct {
	ID             string         `json:"id"`
	ClaimID        string         `json:"claimId"`
	VendorID       string         `json:"vendorId"`
	Amount         float64        `json:"amount"`
	Signals        []Signal       `json:"signals"`
	TotalScore     float64        `json:"totalScore"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Summary        string         `json:"summary"`
	AnalyzedAt     time.Time      `json:"analyzedAt"`
	DryRun         bool           `json:"dryRun,omitempty"`

	// SecondOpinion is set only when a secondary scorer answered.
	SecondOpinion *SecondOpinion `json:"secondOpinion,omitempty"`

	Metadata AnalysisMetadata `json:"metadata"`
}

// HasSignal reports whether a signal of the given type was triggered.
func (a *ClaimAnalysis) HasSignal(t SignalType) bool {
	return a.Signal(t) != nil
}

// Signal returns the first signal of the given type, or nil.
func (a *ClaimAnalysis) Signal(t SignalType) *Signal {
	for i := range a.Signals {
		if a.Signals[i].Type == t {
			return &a.Signals[i]
		}
	}
	return nil
}

// AnalysisMetadata contains processing information.
type AnalysisMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	DetectorsRun   int    `json:"detectorsRun"`
	DetectorErrors int    `json:"detectorErrors"`
	DetectMs       int64  `json:"detectMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
	SecondOpinion  string `json:"secondOpinion,omitempty"` // "ok", "unavailable"
	ProfileVersion uint64 `json:"profileVersion"`
	HistorySize    int    `json:"historySize"`
}

// SecondOpinion is the optional verdict of an external secondary scorer.
// It never changes TotalScore, RiskLevel or Recommendation.
type SecondOpinion struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model,omitempty"`
	Probability  float64 `json:"probability"`
	BlendedScore float64 `json:"blendedScore"`
	Rationale    string  `json:"rationale,omitempty"`
}

// OpinionRequest is the context handed to a secondary scorer.
type OpinionRequest struct {
	Claim     Claim        `json:"claim"`
	CoreScore float64      `json:"coreScore"`
	Flags     []SignalType `json:"flags"`
	Reasoning string       `json:"reasoning"`
}

// FraudReport is the reporting view of a ClaimAnalysis.
type FraudReport struct {
	AnalysisID     string         `json:"analysisId"`
	ClaimID        string         `json:"claimId"`
	VendorID       string         `json:"vendorId"`
	Amount         float64        `json:"amount"`
	RiskAssessment RiskAssessment `json:"riskAssessment"`
	Alerts         []Signal       `json:"alerts"`
	Patterns       []SignalType   `json:"fraudPatternsDetected"`
	MoneyAtRisk    float64        `json:"moneyAtRisk"`
	AnalyzedAt     time.Time      `json:"analyzedAt"`
}

// RiskAssessment is the headline section of a FraudReport.
type RiskAssessment struct {
	TotalScore     float64        `json:"totalScore"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Summary        string         `json:"summary"`
}
