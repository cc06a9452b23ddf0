package domain

import (
	"strings"
)

// Policy holds every tunable threshold and weight used by the detectors,
// the classifier and the opinion blend. DefaultPolicy documents the values
// the engine ships with.
type Policy struct {
	Profile        ProfilePolicy        `yaml:"profile"`
	CostVariance   CostVariancePolicy   `yaml:"cost_variance"`
	RoundNumber    RoundNumberPolicy    `yaml:"round_number"`
	PriceInflation PriceInflationPolicy `yaml:"price_inflation"`
	Budget         BudgetPolicy         `yaml:"budget"`
	VendorBehavior VendorBehaviorPolicy `yaml:"vendor_behavior"`
	ShellCompany   ShellCompanyPolicy   `yaml:"shell_company"`
	Timeline       TimelinePolicy       `yaml:"timeline"`
	Duplicate      DuplicatePolicy      `yaml:"duplicate"`
	Phantom        PhantomPolicy        `yaml:"phantom"`
	Process        ProcessPolicy        `yaml:"process"`
	InvoiceAnomaly InvoiceAnomalyPolicy `yaml:"invoice_anomaly"`
	Escalation     EscalationPolicy     `yaml:"escalation"`
	Overpricing    OverpricingPolicy    `yaml:"overpricing"`
	Collusion      CollusionPolicy      `yaml:"collusion"`
	Classification ClassificationPolicy `yaml:"classification"`
	Blend          BlendPolicy          `yaml:"blend"`
}

// Tier maps values strictly above a bound to a severity and suspicion.
// Tier lists are ordered from the highest bound down.
type Tier struct {
	Above     float64  `yaml:"above"`
	Severity  Severity `yaml:"severity"`
	Suspicion float64  `yaml:"suspicion"`
}

// MatchTier returns the first tier whose bound v exceeds.
func MatchTier(tiers []Tier, v float64) (Tier, bool) {
	for _, t := range tiers {
		if v > t.Above {
			return t, true
		}
	}
	return Tier{}, false
}

type ProfilePolicy struct {
	RecentWindowDays   int     `yaml:"recent_window_days"`
	DefaultSuccessRate float64 `yaml:"default_success_rate"`
}

type CostVariancePolicy struct {
	Weight                float64 `yaml:"weight"`
	WindowDays            int     `yaml:"window_days"`
	SpreadFactor          float64 `yaml:"spread_factor"`
	MinSamples            int     `yaml:"min_samples"`
	InsufficientSuspicion float64 `yaml:"insufficient_suspicion"`
	FlatSuspicion         float64 `yaml:"flat_suspicion"`
	ReducedWeightFactor   float64 `yaml:"reduced_weight_factor"`
	Confidence            float64 `yaml:"confidence"`
	LowConfidence         float64 `yaml:"low_confidence"`
	ZTiers                []Tier  `yaml:"z_tiers"`
}

type RoundNumberPolicy struct {
	Weight     float64 `yaml:"weight"`
	Confidence float64 `yaml:"confidence"`
	ZeroTiers  []Tier  `yaml:"zero_tiers"`
}

type PriceInflationPolicy struct {
	Weight            float64            `yaml:"weight"`
	UnitMultiplier    float64            `yaml:"unit_multiplier"`
	MarketRates       map[string]float64 `yaml:"market_rates"`
	RatioTiers        []Tier             `yaml:"ratio_tiers"`
	UnknownSuspicion  float64            `yaml:"unknown_suspicion"`
	Confidence        float64            `yaml:"confidence"`
	UnknownConfidence float64            `yaml:"unknown_confidence"`
}

// MarketRate looks up the per-unit market rate for a category, ignoring case.
func (p PriceInflationPolicy) MarketRate(category string) (float64, bool) {
	return lookupFold(p.MarketRates, category)
}

type BudgetPolicy struct {
	Weight             float64  `yaml:"weight"`
	DerivedFactor      float64  `yaml:"derived_factor"`
	UtilizationTiers   []Tier   `yaml:"utilization_tiers"`
	DefaultSeverity    Severity `yaml:"default_severity"`
	DefaultSuspicion   float64  `yaml:"default_suspicion"`
	SuppliedConfidence float64  `yaml:"supplied_confidence"`
	DerivedConfidence  float64  `yaml:"derived_confidence"`
}

type VendorBehaviorPolicy struct {
	Weight           float64  `yaml:"weight"`
	UnknownSuspicion float64  `yaml:"unknown_suspicion"`
	UnknownSeverity  Severity `yaml:"unknown_severity"`
	RecentTiers      []Tier   `yaml:"recent_tiers"`
	CleanRate        float64  `yaml:"clean_rate"`
	CleanSuspicion   float64  `yaml:"clean_suspicion"`
	AmountTiers      []Tier   `yaml:"amount_tiers"`
	YoungDays        float64  `yaml:"young_days"`
	YoungSuspicion   float64  `yaml:"young_suspicion"`
	NewDays          float64  `yaml:"new_days"`
	NewSuspicion     float64  `yaml:"new_suspicion"`
	HighAt           float64  `yaml:"high_at"`
	MediumAt         float64  `yaml:"medium_at"`
	MinSuspicion     float64  `yaml:"min_suspicion"`
	Confidence       float64  `yaml:"confidence"`
}

type ShellCompanyPolicy struct {
	Weight      float64 `yaml:"weight"`
	FewClaims   int     `yaml:"few_claims"`
	LargeAmount float64 `yaml:"large_amount"`
	YoungDays   float64 `yaml:"young_days"`
	YoungAmount float64 `yaml:"young_amount"`
	CleanDays   float64 `yaml:"clean_days"`
	CleanRate   float64 `yaml:"clean_rate"`
	CountTiers  []Tier  `yaml:"count_tiers"`
	Confidence  float64 `yaml:"confidence"`
}

type TimelinePolicy struct {
	Weight            float64  `yaml:"weight"`
	BusinessStartHour int      `yaml:"business_start_hour"`
	BusinessEndHour   int      `yaml:"business_end_hour"`
	OffHoursSuspicion float64  `yaml:"off_hours_suspicion"`
	WeekendSuspicion  float64  `yaml:"weekend_suspicion"`
	VeryEarlyHour     int      `yaml:"very_early_hour"`
	VeryLateHour      int      `yaml:"very_late_hour"`
	ExtremeSuspicion  float64  `yaml:"extreme_suspicion"`
	Holidays          []string `yaml:"holidays"` // MM-DD
	HolidaySuspicion  float64  `yaml:"holiday_suspicion"`
	Cap               float64  `yaml:"cap"`
	MediumAt          float64  `yaml:"medium_at"`
	Confidence        float64  `yaml:"confidence"`
}

type DuplicatePolicy struct {
	Weight              float64 `yaml:"weight"`
	ExactSuspicion      float64 `yaml:"exact_suspicion"`
	ExactConfidence     float64 `yaml:"exact_confidence"`
	AmountTolerance     float64 `yaml:"amount_tolerance"`
	WindowDays          int     `yaml:"window_days"`
	NearTiers           []Tier  `yaml:"near_tiers"`
	NearConfidence      float64 `yaml:"near_confidence"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SimilarSuspicion    float64 `yaml:"similar_suspicion"`
	SimilarConfidence   float64 `yaml:"similar_confidence"`
}

type PhantomPolicy struct {
	Weight             float64            `yaml:"weight"`
	RoundZeros         int                `yaml:"round_zeros"`
	RoundSuspicion     float64            `yaml:"round_suspicion"`
	Ceilings           map[string]float64 `yaml:"ceilings"`
	CeilingSuspicion   float64            `yaml:"ceiling_suspicion"`
	ShortInvoiceLength int                `yaml:"short_invoice_length"`
	ShortSuspicion     float64            `yaml:"short_suspicion"`
	NewVendorAmount    float64            `yaml:"new_vendor_amount"`
	NewVendorSuspicion float64            `yaml:"new_vendor_suspicion"`
	Cap                float64            `yaml:"cap"`
	HighAt             float64            `yaml:"high_at"`
	MediumAt           float64            `yaml:"medium_at"`
	Confidence         float64            `yaml:"confidence"`
}

// Ceiling returns the phantom-project amount ceiling for a category.
func (p PhantomPolicy) Ceiling(category string) (float64, bool) {
	return lookupFold(p.Ceilings, category)
}

type ProcessPolicy struct {
	Weight           float64 `yaml:"weight"`
	TenderThreshold  float64 `yaml:"tender_threshold"`
	TenderSuspicion  float64 `yaml:"tender_suspicion"`
	TenderConfidence float64 `yaml:"tender_confidence"`
	SplitWindowDays  int     `yaml:"split_window_days"`
	SplitMinClaims   int     `yaml:"split_min_claims"`
	SplitTotal       float64 `yaml:"split_total"`
	SplitClaimCap    float64 `yaml:"split_claim_cap"`
	SplitSuspicion   float64 `yaml:"split_suspicion"`
	SplitConfidence  float64 `yaml:"split_confidence"`
}

type InvoiceAnomalyPolicy struct {
	Weight              float64  `yaml:"weight"`
	DuplicateKeywords   []string `yaml:"duplicate_keywords"`
	DuplicateSuspicion  float64  `yaml:"duplicate_suspicion"`
	DuplicateConfidence float64  `yaml:"duplicate_confidence"`
	GenericKeywords     []string `yaml:"generic_keywords"`
	GenericSuspicion    float64  `yaml:"generic_suspicion"`
	GenericConfidence   float64  `yaml:"generic_confidence"`
}

type EscalationPolicy struct {
	Weight     float64 `yaml:"weight"`
	Lookback   int     `yaml:"lookback"`
	MinClaims  int     `yaml:"min_claims"`
	MinGrowth  float64 `yaml:"min_growth"` // fraction, 1.0 = +100%
	Suspicion  float64 `yaml:"suspicion"`
	Confidence float64 `yaml:"confidence"`
}

type OverpricingPolicy struct {
	Weight     float64 `yaml:"weight"`
	MinClaims  int     `yaml:"min_claims"`
	Factor     float64 `yaml:"factor"`
	Suspicion  float64 `yaml:"suspicion"`
	Confidence float64 `yaml:"confidence"`
}

type CollusionPolicy struct {
	Weight     float64 `yaml:"weight"`
	Tolerance  float64 `yaml:"tolerance"` // relative, 0.05 = 5%
	MinClaims  int     `yaml:"min_claims"`
	WindowDays int     `yaml:"window_days"`
	Suspicion  float64 `yaml:"suspicion"`
	Confidence float64 `yaml:"confidence"`
}

type ClassificationPolicy struct {
	CriticalScore float64 `yaml:"critical_score"`
	HighScore     float64 `yaml:"high_score"`
	MediumScore   float64 `yaml:"medium_score"`
}

type BlendPolicy struct {
	CoreWeight    float64 `yaml:"core_weight"`
	OpinionWeight float64 `yaml:"opinion_weight"`
}

// DefaultPolicy returns the shipped detector policy.
func DefaultPolicy() Policy {
	return Policy{
		Profile: ProfilePolicy{
			RecentWindowDays:   30,
			DefaultSuccessRate: DefaultSuccessRate,
		},
		CostVariance: CostVariancePolicy{
			Weight:                0.47,
			WindowDays:            730,
			SpreadFactor:          3.0,
			MinSamples:            3,
			InsufficientSuspicion: 0.2,
			FlatSuspicion:         0.1,
			ReducedWeightFactor:   0.5,
			Confidence:            0.85,
			LowConfidence:         0.3,
			ZTiers: []Tier{
				{Above: 3.0, Severity: SeverityCritical, Suspicion: 0.95},
				{Above: 2.5, Severity: SeverityHigh, Suspicion: 0.8},
				{Above: 2.0, Severity: SeverityHigh, Suspicion: 0.6},
				{Above: 1.5, Severity: SeverityMedium, Suspicion: 0.3},
			},
		},
		RoundNumber: RoundNumberPolicy{
			Weight:     0.15,
			Confidence: 0.8,
			ZeroTiers: []Tier{
				{Above: 4, Severity: SeverityHigh, Suspicion: 0.95},
				{Above: 3, Severity: SeverityHigh, Suspicion: 0.8},
				{Above: 2, Severity: SeverityMedium, Suspicion: 0.6},
				{Above: 1, Severity: SeverityLow, Suspicion: 0.3},
			},
		},
		PriceInflation: PriceInflationPolicy{
			Weight:         0.30,
			UnitMultiplier: 100,
			MarketRates: map[string]float64{
				"Road Construction":      2500,
				"School Building":        3200,
				"Hospital Equipment":     150000,
				"IT Infrastructure":      85000,
				"Water Supply":           1800,
				"Public Transport":       4500000,
				"Government Buildings":   3800,
				"Educational Technology": 45000,
			},
			RatioTiers: []Tier{
				{Above: 2.0, Severity: SeverityHigh, Suspicion: 0.9},
				{Above: 1.5, Severity: SeverityMedium, Suspicion: 0.7},
				{Above: 1.2, Severity: SeverityLow, Suspicion: 0.4},
			},
			UnknownSuspicion:  0.2,
			Confidence:        0.75,
			UnknownConfidence: 0.3,
		},
		Budget: BudgetPolicy{
			Weight:        0.20,
			DerivedFactor: 1.1,
			UtilizationTiers: []Tier{
				{Above: 0.99, Severity: SeverityCritical, Suspicion: 0.95},
				{Above: 0.95, Severity: SeverityHigh, Suspicion: 0.8},
				{Above: 0.90, Severity: SeverityMedium, Suspicion: 0.5},
			},
			DefaultSeverity:    SeverityLow,
			DefaultSuspicion:   0.1,
			SuppliedConfidence: 0.9,
			DerivedConfidence:  0.5,
		},
		VendorBehavior: VendorBehaviorPolicy{
			Weight:           0.22,
			UnknownSuspicion: 0.6,
			UnknownSeverity:  SeverityMedium,
			RecentTiers: []Tier{
				{Above: 8, Suspicion: 0.85},
				{Above: 5, Suspicion: 0.7},
			},
			CleanRate:      0.9,
			CleanSuspicion: 0.8,
			AmountTiers: []Tier{
				{Above: 4.0, Suspicion: 0.75},
				{Above: 2.5, Suspicion: 0.5},
			},
			YoungDays:      30,
			YoungSuspicion: 0.7,
			NewDays:        90,
			NewSuspicion:   0.4,
			HighAt:         0.8,
			MediumAt:       0.5,
			MinSuspicion:   0.15,
			Confidence:     0.7,
		},
		ShellCompany: ShellCompanyPolicy{
			Weight:      0.35,
			FewClaims:   3,
			LargeAmount: 1000000,
			YoungDays:   60,
			YoungAmount: 500000,
			CleanDays:   180,
			CleanRate:   0.9,
			CountTiers: []Tier{
				{Above: 2, Severity: SeverityCritical, Suspicion: 0.9},
				{Above: 1, Severity: SeverityHigh, Suspicion: 0.7},
				{Above: 0, Severity: SeverityMedium, Suspicion: 0.4},
			},
			Confidence: 0.8,
		},
		Timeline: TimelinePolicy{
			Weight:            0.10,
			BusinessStartHour: 8,
			BusinessEndHour:   18,
			OffHoursSuspicion: 0.4,
			WeekendSuspicion:  0.3,
			VeryEarlyHour:     6,
			VeryLateHour:      22,
			ExtremeSuspicion:  0.3,
			Holidays:          []string{"12-25", "12-26", "01-01"},
			HolidaySuspicion:  0.4,
			Cap:               0.95,
			MediumAt:          0.7,
			Confidence:        0.6,
		},
		Duplicate: DuplicatePolicy{
			Weight:          0.30,
			ExactSuspicion:  0.98,
			ExactConfidence: 0.98,
			AmountTolerance: 1000,
			WindowDays:      365,
			NearTiers: []Tier{
				{Above: 3, Severity: SeverityHigh, Suspicion: 0.8},
				{Above: 1, Severity: SeverityMedium, Suspicion: 0.5},
			},
			NearConfidence:      0.8,
			SimilarityThreshold: 0.8,
			SimilarSuspicion:    0.7,
			SimilarConfidence:   0.65,
		},
		Phantom: PhantomPolicy{
			Weight:         0.40,
			RoundZeros:     5,
			RoundSuspicion: 0.3,
			Ceilings: map[string]float64{
				"IT Infrastructure":      2000000,
				"Educational Technology": 1000000,
				"Hospital Equipment":     5000000,
				"Government Buildings":   10000000,
			},
			CeilingSuspicion:   0.4,
			ShortInvoiceLength: 20,
			ShortSuspicion:     0.2,
			NewVendorAmount:    1000000,
			NewVendorSuspicion: 0.3,
			Cap:                0.95,
			HighAt:             0.7,
			MediumAt:           0.4,
			Confidence:         0.7,
		},
		Process: ProcessPolicy{
			Weight:           0.50,
			TenderThreshold:  50000000,
			TenderSuspicion:  1.0,
			TenderConfidence: 0.95,
			SplitWindowDays:  30,
			SplitMinClaims:   3,
			SplitTotal:       20000000,
			SplitClaimCap:    5000000,
			SplitSuspicion:   0.6,
			SplitConfidence:  0.8,
		},
		InvoiceAnomaly: InvoiceAnomalyPolicy{
			Weight:              0.40,
			DuplicateKeywords:   []string{"duplicate"},
			DuplicateSuspicion:  1.0,
			DuplicateConfidence: 0.9,
			GenericKeywords:     []string{"template", "sample", "test", "dummy", "generic"},
			GenericSuspicion:    0.5,
			GenericConfidence:   0.7,
		},
		Escalation: EscalationPolicy{
			Weight:     0.25,
			Lookback:   5,
			MinClaims:  3,
			MinGrowth:  1.0,
			Suspicion:  1.0,
			Confidence: 0.75,
		},
		Overpricing: OverpricingPolicy{
			Weight:     0.30,
			MinClaims:  3,
			Factor:     1.3,
			Suspicion:  1.0,
			Confidence: 0.85,
		},
		Collusion: CollusionPolicy{
			Weight:     0.35,
			Tolerance:  0.05,
			MinClaims:  2,
			WindowDays: 365,
			Suspicion:  1.0,
			Confidence: 0.7,
		},
		Classification: ClassificationPolicy{
			CriticalScore: 85,
			HighScore:     70,
			MediumScore:   40,
		},
		Blend: BlendPolicy{
			CoreWeight:    0.7,
			OpinionWeight: 0.3,
		},
	}
}

func lookupFold(m map[string]float64, key string) (float64, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return 0, false
}
