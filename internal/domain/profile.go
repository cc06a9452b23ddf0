package domain

import (
	"time"
)

// DefaultSuccessRate is assumed for vendors without an approval history.
const DefaultSuccessRate = 0.5

// VendorProfile is the incrementally maintained summary of a vendor's claims.
// Profiles handed out by the tracker are copies and safe to read freely.
type VendorProfile struct {
	VendorID      string    `json:"vendorId"`
	TotalClaims   int       `json:"totalClaims"`
	TotalAmount   float64   `json:"totalAmount"`
	AverageAmount float64   `json:"averageAmount"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	Categories    []string  `json:"categories"`
	Recent30d     int       `json:"recent30d"`
	SuccessRate   float64   `json:"successRate"`
	Version       uint64    `json:"version"`
}

// NewVendorProfile returns the sentinel profile for a vendor with no history.
func NewVendorProfile(vendorID string) VendorProfile {
	return VendorProfile{
		VendorID:    vendorID,
		SuccessRate: DefaultSuccessRate,
	}
}

// IsNew reports whether the profile is the "new vendor" sentinel.
func (p VendorProfile) IsNew() bool {
	return p.TotalClaims == 0
}

// AgeDays returns the number of days between first sighting and asOf.
// The sentinel profile has age zero.
func (p VendorProfile) AgeDays(asOf time.Time) float64 {
	if p.IsNew() || p.FirstSeen.IsZero() {
		return 0
	}
	age := asOf.Sub(p.FirstSeen).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// ServesOnlyOneCategory reports whether every claim so far was in one category.
func (p VendorProfile) ServesOnlyOneCategory() bool {
	return len(p.Categories) == 1
}

// VendorRiskProfile is a coarse behavioural risk summary for a vendor.
type VendorRiskProfile struct {
	VendorID    string   `json:"vendorId"`
	RiskLevel   string   `json:"riskLevel"`
	RiskScore   int      `json:"riskScore"`
	RiskFactors []string `json:"riskFactors,omitempty"`
	TotalClaims int      `json:"totalClaims"`
	AgeDays     int      `json:"ageDays"`
	Message     string   `json:"message,omitempty"`
}
