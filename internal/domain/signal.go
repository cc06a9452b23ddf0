package domain

// SignalType identifies the detector that produced a signal.
type SignalType string

const (
	SignalCostVariance     SignalType = "COST_VARIANCE"
	SignalRoundNumber      SignalType = "ROUND_NUMBER"
	SignalPriceInflation   SignalType = "PRICE_INFLATION"
	SignalBudgetMaxing     SignalType = "BUDGET_MAXING"
	SignalVendorPattern    SignalType = "VENDOR_PATTERN"
	SignalShellCompany     SignalType = "SHELL_COMPANY"
	SignalTimelineAnomaly  SignalType = "TIMELINE_ANOMALY"
	SignalDuplicateInvoice SignalType = "DUPLICATE_INVOICE"
	SignalPhantomProject   SignalType = "PHANTOM_PROJECT"
	SignalProcessViolation SignalType = "PROCESS_VIOLATION"

	SignalInvoiceAnomaly    SignalType = "INVOICE_ANOMALY"
	SignalVendorEscalation  SignalType = "VENDOR_ESCALATION"
	SignalVendorOverpricing SignalType = "VENDOR_OVERPRICING"
	SignalBidCollusion      SignalType = "BID_COLLUSION"
	SignalCustomRule        SignalType = "CUSTOM_RULE"
)

// Severity grades how alarming a single signal is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so they can be compared. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// EvidenceErrorTag marks a signal substituted for a failed detector.
const EvidenceErrorTag = "ANALYSIS_ERROR"

// Signal is one detector's verdict about a single suspicious characteristic.
type Signal struct {
	Type         SignalType     `json:"type"`
	Name         string         `json:"name,omitempty"`
	Severity     Severity       `json:"severity"`
	Confidence   float64        `json:"confidence"`
	Suspicion    float64        `json:"suspicion"`
	Description  string         `json:"description"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	Contribution float64        `json:"contribution"`
}

// Failed reports whether the signal stands in for a detector that errored.
func (s *Signal) Failed() bool {
	if s == nil || s.Evidence == nil {
		return false
	}
	tag, _ := s.Evidence["error"].(string)
	return tag == EvidenceErrorTag
}
