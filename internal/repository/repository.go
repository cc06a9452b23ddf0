// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != ":memory:" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const claimColumns = `id, vendor_id, amount, category, official_id, invoice_id,
	submitted_at, budget_ceiling, tender_reference`

// SaveClaim appends a claim to the history. Claim IDs are unique.
func (r *SQLRepository) SaveClaim(ctx context.Context, claim *domain.Claim) error {
	if claim == nil || claim.ID == "" {
		return fmt.Errorf("%w: claim ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO claims (` + claimColumns + `, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, claim.VendorID, claim.Amount, claim.Category,
		claim.OfficialID, claim.InvoiceID, claim.SubmittedAt.UTC(),
		claim.BudgetCeiling, claim.TenderReference,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("claim %s: %w", claim.ID, domain.ErrDuplicateClaim)
	}
	return nil
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", claimID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ListClaims returns every stored claim in ingestion order.
func (r *SQLRepository) ListClaims(ctx context.Context) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims ORDER BY seq`
	return r.queryClaims(ctx, query)
}

// ListClaimsByVendor returns a vendor's claims submitted at or after since,
// oldest first.
func (r *SQLRepository) ListClaimsByVendor(ctx context.Context, vendorID string, since time.Time) ([]*domain.Claim, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendorID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE vendor_id = ? AND submitted_at >= ?
		ORDER BY submitted_at, seq
	`
	return r.queryClaims(ctx, query, vendorID, since.UTC())
}

func (r *SQLRepository) queryClaims(ctx context.Context, query string, args ...any) ([]*domain.Claim, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(s scanner) (*domain.Claim, error) {
	var c domain.Claim
	if err := s.Scan(
		&c.ID, &c.VendorID, &c.Amount, &c.Category,
		&c.OfficialID, &c.InvoiceID, &c.SubmittedAt,
		&c.BudgetCeiling, &c.TenderReference,
	); err != nil {
		return nil, err
	}
	c.SubmittedAt = c.SubmittedAt.UTC()
	return &c, nil
}

// SaveAnalysis stores an analysis in the audit trail.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, analysis *domain.ClaimAnalysis) error {
	if analysis == nil || analysis.ID == "" {
		return fmt.Errorf("%w: analysis ID is required", ErrInvalidInput)
	}

	body, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `
		INSERT INTO analyses (
			id, claim_id, vendor_id, total_score, risk_level, recommendation, analyzed_at, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		analysis.ID, analysis.ClaimID, analysis.VendorID, analysis.TotalScore,
		string(analysis.RiskLevel), string(analysis.Recommendation),
		analysis.AnalyzedAt.UTC(), string(body),
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, analysisID string) (*domain.ClaimAnalysis, error) {
	query := `SELECT body FROM analyses WHERE id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), analysisID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return decodeAnalysis(body)
}

// ListAnalysesByClaim returns every analysis recorded for a claim, oldest first.
func (r *SQLRepository) ListAnalysesByClaim(ctx context.Context, claimID string) ([]*domain.ClaimAnalysis, error) {
	query := `
		SELECT body FROM analyses
		WHERE claim_id = ?
		ORDER BY analyzed_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.ClaimAnalysis
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		a, err := decodeAnalysis(body)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func decodeAnalysis(body string) (*domain.ClaimAnalysis, error) {
	var a domain.ClaimAnalysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &a, nil
}

// SaveSuccessRate upserts a vendor's externally supplied approval rate.
func (r *SQLRepository) SaveSuccessRate(ctx context.Context, vendorID string, rate float64) error {
	if vendorID == "" {
		return fmt.Errorf("%w: vendorID is required", ErrInvalidInput)
	}
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%w: rate must be within [0,1]", ErrInvalidInput)
	}

	query := `
		INSERT INTO vendor_success_rates (vendor_id, rate, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(vendor_id) DO UPDATE SET
			rate = excluded.rate,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), vendorID, rate, time.Now().UTC())
	return err
}

// ListSuccessRates returns all stored approval rates keyed by vendor.
func (r *SQLRepository) ListSuccessRates(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT vendor_id, rate FROM vendor_success_rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var vendorID string
		var rate float64
		if err := rows.Scan(&vendorID, &rate); err != nil {
			return nil, err
		}
		rates[vendorID] = rate
	}
	return rates, rows.Err()
}

// SaveRuleConfig stores a rule configuration. Saving an existing
// (id, version) pair updates it in place.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode rule bands: %w", err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	version := rule.Version
	if version == "" {
		version = "1.0.0"
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

const ruleColumns = `id, name, description, version, expression, bands, weight, enabled, created_at, updated_at`

// GetRuleConfig retrieves the most recently updated version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rule_configs
		WHERE id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	cfg, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListRuleConfigs returns the latest version of every rule, ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rule_configs
		ORDER BY id, updated_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		// Later versions of the same rule replace earlier ones.
		if n := len(configs); n > 0 && configs[n-1].ID == cfg.ID {
			configs[n-1] = cfg
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func scanRule(s scanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description sql.NullString
	var bands string
	var enabled int

	if err := s.Scan(
		&cfg.ID, &cfg.Name, &description, &cfg.Version,
		&cfg.Expression, &bands, &cfg.Weight, &enabled,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for rule %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
