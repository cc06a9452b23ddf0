package domain

import (
	"math"
	"strings"
	"time"
)

// Claim is a procurement payment claim submitted by a vendor.
// A claim is immutable once it has been ingested into history.
type Claim struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendorId"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	OfficialID  string    `json:"officialId"`
	InvoiceID   string    `json:"invoiceId"`
	SubmittedAt time.Time `json:"submittedAt"`

	// BudgetCeiling is the caller's estimate of the allocation this claim
	// draws on. Zero means unknown.
	BudgetCeiling float64 `json:"budgetCeiling,omitempty"`

	// TenderReference identifies the public tender that authorised the
	// spend, if any.
	TenderReference string `json:"tenderReference,omitempty"`
}

// Validate checks that the claim is structurally usable for analysis.
func (c *Claim) Validate() error {
	if c == nil {
		return &ValidationError{Field: "claim", Reason: "is required"}
	}

	required := []struct {
		field string
		value string
	}{
		{"id", c.ID},
		{"vendorId", c.VendorID},
		{"category", c.Category},
		{"officialId", c.OfficialID},
		{"invoiceId", c.InvoiceID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return &ValidationError{Field: "amount", Reason: "must be finite"}
	}
	if c.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if math.IsNaN(c.BudgetCeiling) || math.IsInf(c.BudgetCeiling, 0) || c.BudgetCeiling < 0 {
		return &ValidationError{Field: "budgetCeiling", Reason: "must be a finite, non-negative number"}
	}
	if c.SubmittedAt.IsZero() {
		return &ValidationError{Field: "submittedAt", Reason: "is required"}
	}

	return nil
}

// HasBudgetCeiling reports whether the caller supplied an allocation ceiling.
func (c *Claim) HasBudgetCeiling() bool {
	return c.BudgetCeiling > 0
}

// ClaimMessage is the bus payload for asynchronously submitted claims.
type ClaimMessage struct {
	Claim   Claim  `json:"claim"`
	TraceID string `json:"traceId,omitempty"`
}
