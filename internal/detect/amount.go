package detect

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/profile"
)

// ErrZeroCeiling is returned when budget utilization cannot be computed.
var ErrZeroCeiling = errors.New("budget ceiling is zero")

// CostVariance flags amounts that are statistical outliers for the category.
type CostVariance struct {
	Policy domain.CostVariancePolicy
}

func (d *CostVariance) Type() domain.SignalType { return domain.SignalCostVariance }

func (d *CostVariance) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	x := in.Claim.Amount
	spread := p.SpreadFactor * math.Max(x, 1)
	window := time.Duration(p.WindowDays) * 24 * time.Hour

	var sample []float64
	for c := range in.Snapshot.Category.All() {
		if c.ID == in.Claim.ID {
			continue
		}
		if math.Abs(c.Amount-x) >= spread {
			continue
		}
		if in.AsOf.Sub(c.SubmittedAt) >= window {
			continue
		}
		sample = append(sample, c.Amount)
	}

	// Thin or flat history contributes at a reduced weight.
	if len(sample) < p.MinSamples {
		return NewSignal(d.Type(), domain.SeverityLow, p.InsufficientSuspicion, p.LowConfidence, p.Weight*p.ReducedWeightFactor,
			fmt.Sprintf("Insufficient %s history for cost comparison (%d comparable claims)", in.Claim.Category, len(sample)),
			map[string]any{"sampleSize": len(sample), "minSamples": p.MinSamples, "amount": x}), nil
	}

	mean, std := profile.MeanStd(sample)
	if std == 0 {
		return NewSignal(d.Type(), domain.SeverityLow, p.FlatSuspicion, p.LowConfidence, p.Weight*p.ReducedWeightFactor,
			fmt.Sprintf("Comparable %s claims show no variance", in.Claim.Category),
			map[string]any{"sampleSize": len(sample), "mean": mean, "stdDev": std, "amount": x}), nil
	}

	z := math.Abs(x-mean) / std
	tier, ok := domain.MatchTier(p.ZTiers, z)
	if !ok {
		return nil, nil
	}
	return NewSignal(d.Type(), tier.Severity, tier.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Amount deviates %.1f standard deviations from the %s average of %.2f", z, in.Claim.Category, mean),
		map[string]any{"sampleSize": len(sample), "mean": mean, "stdDev": std, "zScore": z, "amount": x}), nil
}

// RoundNumber flags suspiciously round amounts.
type RoundNumber struct {
	Policy domain.RoundNumberPolicy
}

func (d *RoundNumber) Type() domain.SignalType { return domain.SignalRoundNumber }

func (d *RoundNumber) Detect(in *Input) (*domain.Signal, error) {
	zeros := trailingZeros(in.Claim.Amount)
	tier, ok := domain.MatchTier(d.Policy.ZeroTiers, float64(zeros))
	if !ok {
		return nil, nil
	}
	return NewSignal(d.Type(), tier.Severity, tier.Suspicion, d.Policy.Confidence, d.Policy.Weight,
		fmt.Sprintf("Amount %.2f is a round number with %d trailing zeros", in.Claim.Amount, zeros),
		map[string]any{"amount": in.Claim.Amount, "trailingZeros": zeros}), nil
}

// PriceInflation compares the amount against the category's market baseline.
type PriceInflation struct {
	Policy domain.PriceInflationPolicy
}

func (d *PriceInflation) Type() domain.SignalType { return domain.SignalPriceInflation }

func (d *PriceInflation) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	rate, ok := p.MarketRate(in.Claim.Category)
	if !ok {
		return NewSignal(d.Type(), domain.SeverityLow, p.UnknownSuspicion, p.UnknownConfidence, p.Weight,
			fmt.Sprintf("No market rate on record for category %q", in.Claim.Category),
			map[string]any{"category": in.Claim.Category, "amount": in.Claim.Amount}), nil
	}

	baseline := rate * p.UnitMultiplier
	ratio := in.Claim.Amount / baseline
	tier, ok := domain.MatchTier(p.RatioTiers, ratio)
	if !ok {
		return nil, nil
	}
	return NewSignal(d.Type(), tier.Severity, tier.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Amount is %.0f%% above the %s market baseline", (ratio-1)*100, in.Claim.Category),
		map[string]any{"amount": in.Claim.Amount, "marketRate": rate, "baseline": baseline, "ratio": ratio}), nil
}

// BudgetMaxing flags claims that consume nearly all of their allocation.
type BudgetMaxing struct {
	Policy domain.BudgetPolicy
}

func (d *BudgetMaxing) Type() domain.SignalType { return domain.SignalBudgetMaxing }

func (d *BudgetMaxing) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	ceiling := in.Claim.BudgetCeiling
	confidence := p.SuppliedConfidence
	source := "supplied"
	if !in.Claim.HasBudgetCeiling() {
		ceiling = in.Claim.Amount * p.DerivedFactor
		confidence = p.DerivedConfidence
		source = "derived"
	}
	if ceiling == 0 {
		return nil, ErrZeroCeiling
	}

	utilization := in.Claim.Amount / ceiling
	sev, suspicion := p.DefaultSeverity, p.DefaultSuspicion
	if tier, ok := domain.MatchTier(p.UtilizationTiers, utilization); ok {
		sev, suspicion = tier.Severity, tier.Suspicion
	}
	return NewSignal(d.Type(), sev, suspicion, confidence, p.Weight,
		fmt.Sprintf("Claim uses %.1f%% of the %s budget ceiling", utilization*100, source),
		map[string]any{"amount": in.Claim.Amount, "ceiling": ceiling, "utilization": utilization, "ceilingSource": source}), nil
}

// PhantomProject looks for traits of work that may never have been done.
type PhantomProject struct {
	Policy domain.PhantomPolicy
}

func (d *PhantomProject) Type() domain.SignalType { return domain.SignalPhantomProject }

func (d *PhantomProject) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	c := in.Claim
	var suspicion float64
	var indicators []string
	evidence := map[string]any{"amount": c.Amount}

	if zeros := trailingZeros(c.Amount); zeros >= p.RoundZeros {
		suspicion += p.RoundSuspicion
		indicators = append(indicators, "very round amount")
		evidence["trailingZeros"] = zeros
	}
	if ceiling, ok := p.Ceiling(c.Category); ok && c.Amount > ceiling {
		suspicion += p.CeilingSuspicion
		indicators = append(indicators, "amount above category ceiling")
		evidence["categoryCeiling"] = ceiling
	}
	if len(c.InvoiceID) < p.ShortInvoiceLength {
		suspicion += p.ShortSuspicion
		indicators = append(indicators, "short invoice identifier")
		evidence["invoiceLength"] = len(c.InvoiceID)
	}
	if in.Snapshot.Profile.IsNew() && c.Amount > p.NewVendorAmount {
		suspicion += p.NewVendorSuspicion
		indicators = append(indicators, "large claim from new vendor")
		evidence["newVendor"] = true
	}

	if suspicion == 0 {
		return nil, nil
	}
	suspicion = math.Min(suspicion, p.Cap)
	evidence["indicators"] = indicators

	sev := domain.SeverityLow
	switch {
	case suspicion >= p.HighAt:
		sev = domain.SeverityHigh
	case suspicion >= p.MediumAt:
		sev = domain.SeverityMedium
	}
	return NewSignal(d.Type(), sev, suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Possible phantom project: %s", joinIndicators(indicators)), evidence), nil
}
