package detect

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// DuplicateInvoice detects reused, repeated or near-identical invoices.
type DuplicateInvoice struct {
	Policy domain.DuplicatePolicy
}

func (d *DuplicateInvoice) Type() domain.SignalType { return domain.SignalDuplicateInvoice }

func (d *DuplicateInvoice) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	c := in.Claim

	for prior := range in.Snapshot.Invoice.All() {
		if prior.ID != c.ID {
			return NewSignal(d.Type(), domain.SeverityCritical, p.ExactSuspicion, p.ExactConfidence, p.Weight,
				fmt.Sprintf("Invoice %s was already submitted with claim %s", c.InvoiceID, prior.ID),
				map[string]any{"invoiceId": c.InvoiceID, "matchedClaimId": prior.ID, "matchedVendorId": prior.VendorID}), nil
		}
	}

	window := time.Duration(p.WindowDays) * 24 * time.Hour
	near := 0
	for prior := range in.Snapshot.Vendor.All() {
		if prior.ID == c.ID {
			continue
		}
		gap := c.SubmittedAt.Sub(prior.SubmittedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap >= window {
			continue
		}
		if math.Abs(c.Amount-prior.Amount) < p.AmountTolerance {
			near++
		}
	}
	if tier, ok := domain.MatchTier(p.NearTiers, float64(near)); ok {
		return NewSignal(d.Type(), tier.Severity, tier.Suspicion, p.NearConfidence, p.Weight,
			fmt.Sprintf("%d recent claims from this vendor have nearly the same amount", near),
			map[string]any{"nearMatches": near, "tolerance": p.AmountTolerance, "windowDays": p.WindowDays}), nil
	}

	for _, prior := range in.Snapshot.History {
		if prior.ID == c.ID || prior.InvoiceID == c.InvoiceID {
			continue
		}
		if sim := positionalSimilarity(c.InvoiceID, prior.InvoiceID); sim > p.SimilarityThreshold {
			return NewSignal(d.Type(), domain.SeverityMedium, p.SimilarSuspicion, p.SimilarConfidence, p.Weight,
				fmt.Sprintf("Invoice %s closely resembles invoice %s", c.InvoiceID, prior.InvoiceID),
				map[string]any{"invoiceId": c.InvoiceID, "similarInvoiceId": prior.InvoiceID, "matchedClaimId": prior.ID, "similarity": sim}), nil
		}
	}
	return nil, nil
}

// positionalSimilarity is the fraction of positions holding the same
// character. Strings of different length are not comparable and score zero.
func positionalSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) || len(ra) == 0 {
		return 0
	}
	same := 0
	for i := range ra {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(len(ra))
}

// InvoiceAnomaly flags invoice identifiers that look fabricated.
type InvoiceAnomaly struct {
	Policy domain.InvoiceAnomalyPolicy
}

func (d *InvoiceAnomaly) Type() domain.SignalType { return domain.SignalInvoiceAnomaly }

func (d *InvoiceAnomaly) Detect(in *Input) (*domain.Signal, error) {
	p := d.Policy
	inv := strings.ToLower(in.Claim.InvoiceID)

	if kw, ok := containsAny(inv, p.DuplicateKeywords); ok {
		return NewSignal(d.Type(), domain.SeverityHigh, p.DuplicateSuspicion, p.DuplicateConfidence, p.Weight,
			fmt.Sprintf("Invoice identifier marks itself as a duplicate (%q)", kw),
			map[string]any{"invoiceId": in.Claim.InvoiceID, "keyword": kw}), nil
	}
	if kw, ok := containsAny(inv, p.GenericKeywords); ok {
		return NewSignal(d.Type(), domain.SeverityMedium, p.GenericSuspicion, p.GenericConfidence, p.Weight,
			fmt.Sprintf("Invoice identifier looks like a placeholder (%q)", kw),
			map[string]any{"invoiceId": in.Claim.InvoiceID, "keyword": kw}), nil
	}
	return nil, nil
}

func containsAny(s string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
