// Package detect implements the built-in fraud signal detectors.
//
// Detectors are pure functions of a claim and a history snapshot. They never
// perform I/O and never mutate the snapshot.
package detect

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/profile"
)

// Input is everything a detector may look at.
type Input struct {
	Claim    domain.Claim
	Snapshot *profile.Snapshot
	AsOf     time.Time
}

// Detector produces at most one signal for a claim.
// A nil signal with a nil error means the detector found nothing.
type Detector interface {
	Type() domain.SignalType
	Detect(in *Input) (*domain.Signal, error)
}

// Registry is an immutable, ordered set of detectors.
type Registry struct {
	detectors []Detector
}

// NewRegistry creates a registry with detectors in the given order.
func NewRegistry(detectors ...Detector) *Registry {
	return &Registry{detectors: append([]Detector(nil), detectors...)}
}

// Builtin returns the built-in detectors configured from policy.
func Builtin(p domain.Policy) *Registry {
	return NewRegistry(
		&CostVariance{Policy: p.CostVariance},
		&RoundNumber{Policy: p.RoundNumber},
		&PriceInflation{Policy: p.PriceInflation},
		&BudgetMaxing{Policy: p.Budget},
		&VendorPattern{Policy: p.VendorBehavior},
		&ShellCompany{Policy: p.ShellCompany},
		&TimelineAnomaly{Policy: p.Timeline},
		&DuplicateInvoice{Policy: p.Duplicate},
		&PhantomProject{Policy: p.Phantom},
		&ProcessViolation{Policy: p.Process},
		&InvoiceAnomaly{Policy: p.InvoiceAnomaly},
		&VendorEscalation{Policy: p.Escalation},
		&VendorOverpricing{Policy: p.Overpricing},
		&BidCollusion{Policy: p.Collusion},
	)
}

// With returns a new registry with extra detectors appended.
func (r *Registry) With(extra ...Detector) *Registry {
	all := make([]Detector, 0, len(r.detectors)+len(extra))
	all = append(all, r.detectors...)
	all = append(all, extra...)
	return &Registry{detectors: all}
}

// Detectors returns the detectors in registry order.
func (r *Registry) Detectors() []Detector {
	return append([]Detector(nil), r.detectors...)
}

// Len returns the number of registered detectors.
func (r *Registry) Len() int {
	return len(r.detectors)
}

var names = map[domain.SignalType]string{
	domain.SignalCostVariance:      "Cost Variance",
	domain.SignalRoundNumber:       "Round Number",
	domain.SignalPriceInflation:    "Price Inflation",
	domain.SignalBudgetMaxing:      "Budget Maxing",
	domain.SignalVendorPattern:     "Vendor Pattern",
	domain.SignalShellCompany:      "Shell Company",
	domain.SignalTimelineAnomaly:   "Timeline Anomaly",
	domain.SignalDuplicateInvoice:  "Duplicate Invoice",
	domain.SignalPhantomProject:    "Phantom Project",
	domain.SignalProcessViolation:  "Process Violation",
	domain.SignalInvoiceAnomaly:    "Invoice Anomaly",
	domain.SignalVendorEscalation:  "Vendor Escalation",
	domain.SignalVendorOverpricing: "Vendor Overpricing",
	domain.SignalBidCollusion:      "Bid Collusion",
	domain.SignalCustomRule:        "Custom Rule",
}

// Name returns the display name of a signal type.
func Name(t domain.SignalType) string {
	if n, ok := names[t]; ok {
		return n
	}
	return string(t)
}

// NewSignal builds a signal whose contribution is suspicion * weight * 100.
func NewSignal(t domain.SignalType, sev domain.Severity, suspicion, confidence, weight float64, desc string, evidence map[string]any) *domain.Signal {
	return &domain.Signal{
		Type:         t,
		Name:         Name(t),
		Severity:     sev,
		Confidence:   confidence,
		Suspicion:    suspicion,
		Description:  desc,
		Evidence:     evidence,
		Contribution: contribution(suspicion, weight),
	}
}

func contribution(suspicion, weight float64) float64 {
	c := suspicion * weight * 100
	return math.Max(0, math.Min(100, c))
}

// trailingZeros counts trailing zeros of the integer part of amount.
// Zero has none.
func trailingZeros(amount float64) int {
	if amount < 1 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return 0
	}
	digits := strconv.FormatFloat(math.Floor(amount), 'f', 0, 64)
	return len(digits) - len(strings.TrimRight(digits, "0"))
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}
