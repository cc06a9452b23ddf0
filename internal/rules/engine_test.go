package rules

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/profile"
)

var asOf = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func testInput(t *testing.T, c domain.Claim, history ...domain.Claim) *detect.Input {
	t.Helper()
	tr := profile.NewTracker(domain.DefaultPolicy().Profile)
	for _, h := range history {
		if _, err := tr.Ingest(h, asOf); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	return &detect.Input{Claim: c, Snapshot: tr.Snapshot(c, asOf), AsOf: asOf}
}

func testClaim(amount float64) domain.Claim {
	return domain.Claim{
		ID:          "claim-001",
		VendorID:    "vendor-001",
		Amount:      amount,
		Category:    "Water Supply",
		OfficialID:  "official-001",
		InvoiceID:   "INV-2025-000001-WS",
		SubmittedAt: asOf,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
	if len(engine.Detectors()) != 0 {
		t.Error("expected no detectors")
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "large-claim",
		Name:       "Large Claim",
		Expression: "amount > 100.0",
		Weight:     0.2,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestInvalidRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	cases := map[string]*domain.RuleConfig{
		"Nil":             nil,
		"MissingID":       {Expression: "true", Weight: 0.1},
		"MissingExpr":     {ID: "r", Weight: 0.1},
		"BadSyntax":       {ID: "r", Expression: "this is not valid CEL !!!", Weight: 0.1},
		"UnknownVariable": {ID: "r", Expression: "debtor_id == creditor_id", Weight: 0.1},
		"StringOutput":    {ID: "r", Expression: "category", Weight: 0.1},
		"WeightTooLarge":  {ID: "r", Expression: "true", Weight: 1.5},
		"BadSeverity": {ID: "r", Expression: "true", Weight: 0.1, Bands: []domain.RuleBand{
			{Severity: "catastrophic"},
		}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			err := engine.ValidateRule(cfg)
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
	if engine.RulesCount() != 0 {
		t.Error("validation must not load rules")
	}
}

func TestRuleDetector(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	half := 0.5
	rule := &domain.RuleConfig{
		ID:          "new-vendor-large",
		Name:        "New Vendor Large Claim",
		Description: "Large first claim",
		Version:     "1.0.0",
		Expression:  "is_new_vendor && amount > 1000000.0 ? 1.0 : (amount > 500000.0 ? 0.5 : 0.0)",
		Bands: []domain.RuleBand{
			{UpperLimit: &half, Severity: domain.SeverityLow, Reason: "Moderate amount"},
			{LowerLimit: &half, Severity: domain.SeverityHigh, Reason: "Large first claim from new vendor"},
		},
		Weight:  0.3,
		Enabled: true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("load: %v", err)
	}
	d := engine.Detectors()[0]
	if d.Type() != domain.SignalCustomRule {
		t.Fatalf("expected CUSTOM_RULE, got %s", d.Type())
	}

	t.Run("Fires", func(t *testing.T) {
		s, err := d.Detect(testInput(t, testClaim(2000000)))
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		if s == nil {
			t.Fatal("expected signal")
		}
		if s.Severity != domain.SeverityHigh {
			t.Errorf("expected high, got %s", s.Severity)
		}
		if s.Contribution != 30 {
			t.Errorf("expected 30 points, got %f", s.Contribution)
		}
		if s.Name != "New Vendor Large Claim" {
			t.Errorf("unexpected name %q", s.Name)
		}
		if s.Evidence["ruleId"] != "new-vendor-large" {
			t.Errorf("unexpected evidence %v", s.Evidence)
		}
	})

	t.Run("ZeroScoreIsNoSignal", func(t *testing.T) {
		s, err := d.Detect(testInput(t, testClaim(100)))
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		if s != nil {
			t.Errorf("expected no signal, got %+v", s)
		}
	})

	t.Run("ProfileVariables", func(t *testing.T) {
		hist := domain.Claim{
			ID: "h-1", VendorID: "vendor-001", Amount: 100, Category: "Water Supply",
			OfficialID: "official-001", InvoiceID: "INV-2025-000000-WS", SubmittedAt: asOf.Add(-time.Hour),
		}
		s, err := d.Detect(testInput(t, testClaim(2000000), hist))
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		// No longer a new vendor, so only the 0.5 branch matches.
		if s == nil || s.Suspicion != 0.5 {
			t.Fatalf("expected suspicion 0.5, got %+v", s)
		}
	})
}

func TestBooleanRuleWithoutBands(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "night-shift",
		Expression: "hour < 6 || weekday == 0",
		Weight:     0.1,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("load: %v", err)
	}
	d := engine.Detectors()[0]

	c := testClaim(100)
	c.SubmittedAt = time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC)
	s, err := d.Detect(testInput(t, c))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if s == nil || s.Severity != domain.SeverityHigh {
		t.Fatalf("expected high signal for boolean true, got %+v", s)
	}
	if s.Contribution != 10 {
		t.Errorf("expected 10 points, got %f", s.Contribution)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	var configs []*domain.RuleConfig
	for i := 0; i < 5; i++ {
		configs = append(configs, &domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Expression: "amount > 0.0",
			Weight:     0.1,
			Enabled:    i%2 == 0,
		})
	}
	if err := engine.ReloadRules(configs); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if engine.RulesCount() != 3 {
		t.Errorf("expected 3 enabled rules, got %d", engine.RulesCount())
	}

	held := engine.Detectors()

	bad := []*domain.RuleConfig{{ID: "broken", Expression: "amount >", Enabled: true}}
	if err := engine.ReloadRules(bad); err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 3 {
		t.Error("failed reload must keep previous rules")
	}

	if err := engine.ReloadRules(nil); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Error("expected rules cleared")
	}
	if len(held) != 3 {
		t.Error("previously returned detectors must be unaffected")
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 0 {
		t.Errorf("expected no loaded rules, got %d", len(loaded))
	}
}

func TestDetectorsOrderedByID(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	for _, id := range []string{"c", "a", "b"} {
		if err := engine.LoadRule(&domain.RuleConfig{ID: id, Expression: "true", Weight: 0.1, Enabled: true}); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	var got []string
	for _, d := range engine.Detectors() {
		got = append(got, d.(*ruleDetector).RuleID())
	}
	if fmt.Sprint(got) != "[a b c]" {
		t.Errorf("expected [a b c], got %v", got)
	}
	loaded := engine.GetLoadedRules()
	if loaded[0].ID != "a" || loaded[2].ID != "c" {
		t.Error("expected loaded rules sorted by ID")
	}
}

func TestMatchBand(t *testing.T) {
	low, high := 0.3, 0.7
	bands := []domain.RuleBand{
		{UpperLimit: &low, Severity: domain.SeverityLow},
		{LowerLimit: &low, UpperLimit: &high, Severity: domain.SeverityMedium},
		{LowerLimit: &high, Severity: domain.SeverityCritical},
	}
	cases := []struct {
		score float64
		want  domain.Severity
	}{
		{0.1, domain.SeverityLow},
		{0.3, domain.SeverityMedium},
		{0.69, domain.SeverityMedium},
		{0.7, domain.SeverityCritical},
		{1.0, domain.SeverityCritical},
	}
	for _, tc := range cases {
		band, ok := matchBand(tc.score, bands)
		if !ok || band.Severity != tc.want {
			t.Errorf("score %.2f: expected %s, got %s (matched=%v)", tc.score, tc.want, band.Severity, ok)
		}
	}
}
