package detect

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// VendorPattern scores unusual vendor behaviour against its own profile.
type VendorPattern struct {
	Policy domain.VendorBehaviorPolicy
}

func (d *VendorPattern) Type() domain.SignalType { return domain.SignalVendorPattern }

func (d *VendorPattern) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	prof := in.Snapshot.Profile
	amount := in.Claim.Amount

	if prof.IsNew() {
		return NewSignal(d.Type(), p.UnknownSeverity, p.UnknownSuspicion, p.Confidence, p.Weight,
			"Vendor has no claim history",
			map[string]any{"vendorId": in.Claim.VendorID, "totalClaims": 0}), nil
	}

	var suspicion float64
	var reasons []string
	consider := func(s float64, reason string) {
		suspicion = max(suspicion, s)
		reasons = append(reasons, reason)
	}

	if t, ok := domain.MatchTier(p.RecentTiers, float64(prof.Recent30d)); ok {
		consider(t.Suspicion, fmt.Sprintf("%d claims in the last 30 days", prof.Recent30d))
	}
	if prof.SuccessRate > p.CleanRate {
		consider(p.CleanSuspicion, fmt.Sprintf("approval rate %.0f%%", prof.SuccessRate*100))
	}
	ratio := 0.0
	if prof.AverageAmount > 0 {
		ratio = amount / prof.AverageAmount
		if t, ok := domain.MatchTier(p.AmountTiers, ratio); ok {
			consider(t.Suspicion, fmt.Sprintf("amount %.1fx the vendor average", ratio))
		}
	}
	age := prof.AgeDays(in.AsOf)
	switch {
	case age < p.YoungDays:
		consider(p.YoungSuspicion, fmt.Sprintf("vendor first seen %.0f days ago", age))
	case age < p.NewDays:
		consider(p.NewSuspicion, fmt.Sprintf("vendor first seen %.0f days ago", age))
	}

	if suspicion <= p.MinSuspicion {
		return nil, nil
	}

	sev := domain.SeverityLow
	switch {
	case suspicion >= p.HighAt:
		sev = domain.SeverityHigh
	case suspicion >= p.MediumAt:
		sev = domain.SeverityMedium
	}
	return NewSignal(d.Type(), sev, suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Unusual vendor behaviour: %s", joinIndicators(reasons)),
		map[string]any{
			"reasons":       reasons,
			"recent30d":     prof.Recent30d,
			"successRate":   prof.SuccessRate,
			"averageAmount": prof.AverageAmount,
			"amountRatio":   ratio,
			"ageDays":       age,
		}), nil
}

// ShellCompany counts indicators of a vendor created to extract payments.
type ShellCompany struct {
	Policy domain.ShellCompanyPolicy
}

func (d *ShellCompany) Type() domain.SignalType { return domain.SignalShellCompany }

func (d *ShellCompany) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	prof := in.Snapshot.Profile
	amount := in.Claim.Amount
	age := prof.AgeDays(in.AsOf)

	var indicators []string
	if prof.TotalClaims <= p.FewClaims && amount > p.LargeAmount {
		indicators = append(indicators, "large claim with little history")
	}
	if prof.ServesOnlyOneCategory() && prof.TotalClaims > 1 {
		indicators = append(indicators, "single-category vendor")
	}
	if age < p.YoungDays && amount > p.YoungAmount {
		indicators = append(indicators, "young vendor with a large claim")
	}
	if age < p.CleanDays && prof.SuccessRate > p.CleanRate {
		indicators = append(indicators, "young vendor with a near-perfect approval rate")
	}

	tier, ok := domain.MatchTier(p.CountTiers, float64(len(indicators)))
	if !ok {
		return nil, nil
	}
	return NewSignal(d.Type(), tier.Severity, tier.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Shell company indicators: %s", joinIndicators(indicators)),
		map[string]any{
			"indicators":  indicators,
			"totalClaims": prof.TotalClaims,
			"ageDays":     age,
			"amount":      amount,
			"successRate": prof.SuccessRate,
		}), nil
}

// VendorEscalation flags a vendor whose recent claims keep growing sharply.
type VendorEscalation struct {
	Policy domain.EscalationPolicy
}

func (d *VendorEscalation) Type() domain.SignalType { return domain.SignalVendorEscalation }

func (d *VendorEscalation) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	prior := make([]domain.Claim, 0, in.Snapshot.Vendor.Len())
	for c := range in.Snapshot.Vendor.All() {
		if c.ID != in.Claim.ID {
			prior = append(prior, c)
		}
	}
	if len(prior) < p.MinClaims {
		return nil, nil
	}

	slices.SortStableFunc(prior, func(a, b domain.Claim) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	if len(prior) > p.Lookback {
		prior = prior[len(prior)-p.Lookback:]
	}

	amounts := make([]float64, len(prior))
	for i, c := range prior {
		amounts[i] = c.Amount
		if i > 0 && c.Amount <= amounts[i-1] {
			return nil, nil
		}
	}
	first, last := amounts[0], amounts[len(amounts)-1]
	if first <= 0 {
		return nil, nil
	}
	growth := (last - first) / first
	if growth <= p.MinGrowth {
		return nil, nil
	}
	return NewSignal(d.Type(), domain.SeverityHigh, p.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Vendor claim amounts escalated %.0f%% over the last %d claims", growth*100, len(amounts)),
		map[string]any{"amounts": amounts, "growth": growth}), nil
}

// VendorOverpricing compares a vendor's category average with its competitors.
type VendorOverpricing struct {
	Policy domain.OverpricingPolicy
}

func (d *VendorOverpricing) Type() domain.SignalType { return domain.SignalVendorOverpricing }

func (d *VendorOverpricing) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	var own, others []float64
	for c := range in.Snapshot.Category.All() {
		if c.ID == in.Claim.ID {
			continue
		}
		if c.VendorID == in.Claim.VendorID {
			own = append(own, c.Amount)
		} else {
			others = append(others, c.Amount)
		}
	}
	if len(own) < p.MinClaims || len(others) == 0 {
		return nil, nil
	}

	ownAvg, otherAvg := average(own), average(others)
	if otherAvg <= 0 || ownAvg <= p.Factor*otherAvg {
		return nil, nil
	}
	ratio := ownAvg / otherAvg
	return NewSignal(d.Type(), domain.SeverityHigh, p.Suspicion, p.Confidence, p.Weight,
		fmt.Sprintf("Vendor charges %.0f%% more than other %s vendors on average", (ratio-1)*100, in.Claim.Category),
		map[string]any{
			"vendorAverage": ownAvg,
			"marketAverage": otherAvg,
			"ratio":         ratio,
			"vendorClaims":  len(own),
			"otherClaims":   len(others),
		}), nil
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func joinIndicators(items []string) string {
	return strings.Join(items, ", ")
}

// sortedKeys returns the keys of a set in ascending order.
func sortedKeys[K cmp.Ordered](m map[K]struct{}) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
