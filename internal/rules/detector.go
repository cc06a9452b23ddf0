package rules

import (
	"fmt"

	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// ruleDetector adapts a compiled rule to the detector interface.
type ruleDetector struct {
	rule *CompiledRule
}

func (d *ruleDetector) Type() domain.SignalType { return domain.SignalCustomRule }

// RuleID returns the ID of the wrapped rule.
func (d *ruleDetector) RuleID() string { return d.rule.Config.ID }

func (d *ruleDetector) Detect(in *detect.Input) (*domain.Signal, error) {
	cfg := d.rule.Config
	out, _, err := d.rule.Program.Eval(activation(in))
	if err != nil {
		return nil, fmt.Errorf("rule %s: evaluation error: %w", cfg.ID, err)
	}

	score := toScore(out)
	if score == 0 {
		return nil, nil
	}

	sev := defaultSeverity(score)
	reason := cfg.Description
	if len(cfg.Bands) > 0 {
		band, ok := matchBand(score, cfg.Bands)
		if !ok {
			return nil, nil
		}
		sev = band.Severity
		if band.Reason != "" {
			reason = band.Reason
		}
	}
	if reason == "" {
		reason = fmt.Sprintf("Custom rule %s matched", cfg.ID)
	}

	s := detect.NewSignal(domain.SignalCustomRule, sev, score, 1.0, cfg.Weight, reason, map[string]any{
		"ruleId":      cfg.ID,
		"ruleVersion": cfg.Version,
		"expression":  cfg.Expression,
		"value":       out.Value(),
	})
	if cfg.Name != "" {
		s.Name = cfg.Name
	}
	return s, nil
}

func activation(in *detect.Input) map[string]any {
	c := in.Claim
	p := in.Snapshot.Profile

	return map[string]any{
		"claim": map[string]any{
			"id":               c.ID,
			"vendor_id":        c.VendorID,
			"amount":           c.Amount,
			"category":         c.Category,
			"official_id":      c.OfficialID,
			"invoice_id":       c.InvoiceID,
			"tender_reference": c.TenderReference,
		},
		"amount":            c.Amount,
		"category":          c.Category,
		"vendor_id":         c.VendorID,
		"official_id":       c.OfficialID,
		"invoice_id":        c.InvoiceID,
		"hour":              int64(c.SubmittedAt.Hour()),
		"weekday":           int64(c.SubmittedAt.Weekday()),
		"budget_ceiling":    c.BudgetCeiling,
		"has_tender":        c.TenderReference != "",
		"vendor_claims":     int64(p.TotalClaims),
		"vendor_avg":        p.AverageAmount,
		"vendor_age_days":   p.AgeDays(in.AsOf),
		"vendor_recent_30d": int64(p.Recent30d),
		"success_rate":      p.SuccessRate,
		"is_new_vendor":     p.IsNew(),
	}
}
