package profile

import (
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// Vendor risk levels reported by RiskProfile.
const (
	RiskUnknown = "unknown"
	RiskVeryLow = "very_low"
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
)

// RiskProfile summarizes behavioural risk factors for a vendor as of asOf.
func (t *Tracker) RiskProfile(vendorID string, asOf time.Time) domain.VendorRiskProfile {
	t.mu.RLock()
	p := t.loadProfile(vendorID)
	claims := t.view(t.byVendor[vendorID])
	t.mu.RUnlock()

	if p.IsNew() {
		return domain.VendorRiskProfile{
			VendorID:  vendorID,
			RiskLevel: RiskUnknown,
			Message:   "No history available for vendor",
		}
	}

	age := p.AgeDays(asOf)
	score := 0
	var factors []string

	if age < 90 {
		score += 30
		factors = append(factors, "New vendor (less than 90 days)")
	}
	if p.Recent30d > 5 {
		score += 25
		factors = append(factors, "High claim frequency in last 30 days")
	}
	if p.SuccessRate > 0.9 {
		score += 20
		factors = append(factors, "Unusually high approval rate")
	}
	if p.ServesOnlyOneCategory() && p.TotalClaims > 3 {
		score += 15
		factors = append(factors, "Serves a single category only")
	}
	if p.TotalClaims > 2 {
		mean, std := MeanStd(claims.Amounts())
		if mean > 0 && std/mean > 1.5 {
			score += 20
			factors = append(factors, "Highly inconsistent claim amounts")
		}
	}

	return domain.VendorRiskProfile{
		VendorID:    vendorID,
		RiskLevel:   riskLevel(score),
		RiskScore:   score,
		RiskFactors: factors,
		TotalClaims: p.TotalClaims,
		AgeDays:     int(age),
	}
}

func riskLevel(score int) string {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskLow
	default:
		return RiskVeryLow
	}
}
