// Package rules provides operator-defined CEL detectors.
package rules

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// ErrInvalidRule is returned for rule configs that cannot be loaded.
var ErrInvalidRule = errors.New("invalid rule")

// Engine compiles CEL rule configs into detectors.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a rule engine with the claim and vendor variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("vendor_id", cel.StringType),
		cel.Variable("official_id", cel.StringType),
		cel.Variable("invoice_id", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("budget_ceiling", cel.DoubleType),
		cel.Variable("has_tender", cel.BoolType),
		// Vendor profile as seen by the snapshot
		cel.Variable("vendor_claims", cel.IntType),
		cel.Variable("vendor_avg", cel.DoubleType),
		cel.Variable("vendor_age_days", cel.DoubleType),
		cel.Variable("vendor_recent_30d", cel.IntType),
		cel.Variable("success_rate", cel.DoubleType),
		cel.Variable("is_new_vendor", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads the enabled rules among configs.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces all loaded rules.
// On error the previously loaded rules stay in place.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	slices.SortFunc(rules, func(a, b *domain.RuleConfig) int {
		return strings.Compare(a.ID, b.ID)
	})
	return rules
}

// Detectors returns one detector per loaded rule, ordered by rule ID.
// The returned detectors are unaffected by later reloads.
func (e *Engine) Detectors() []detect.Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]detect.Detector, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		out = append(out, &ruleDetector{rule: compiled})
	}
	slices.SortFunc(out, func(a, b detect.Detector) int {
		return strings.Compare(a.(*ruleDetector).rule.Config.ID, b.(*ruleDetector).rule.Config.ID)
	})
	return out
}

// Close unloads all rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, errors.Join(ErrInvalidRule, issues.Err()))
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, int, or double, got %s", ErrInvalidRule, cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func validateConfig(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", ErrInvalidRule)
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(cfg.Expression) == "" {
		return fmt.Errorf("%w: rule %s: expression is required", ErrInvalidRule, cfg.ID)
	}
	if math.IsNaN(cfg.Weight) || cfg.Weight < 0 || cfg.Weight > 1 {
		return fmt.Errorf("%w: rule %s: weight must be within [0,1]", ErrInvalidRule, cfg.ID)
	}
	for i, b := range cfg.Bands {
		if !b.Severity.Valid() {
			return fmt.Errorf("%w: rule %s: band %d has unknown severity %q", ErrInvalidRule, cfg.ID, i, b.Severity)
		}
	}
	return nil
}

// toScore converts a CEL value to a suspicion in [0,1].
func toScore(val ref.Val) float64 {
	var score float64
	switch v := val.(type) {
	case types.Bool:
		if v {
			score = 1.0
		}
	case types.Double:
		score = float64(v)
	case types.Int:
		score = float64(v)
	}
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(1, score))
}

// matchBand finds the first band containing score.
// Lower limits are inclusive, upper limits exclusive, nil means unbounded.
func matchBand(score float64, bands []domain.RuleBand) (domain.RuleBand, bool) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band, true
	}
	return domain.RuleBand{}, false
}

// defaultSeverity grades a rule without bands.
func defaultSeverity(score float64) domain.Severity {
	switch {
	case score >= 0.8:
		return domain.SeverityHigh
	case score >= 0.5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
