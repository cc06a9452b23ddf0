// Package domain defines the core types and collaborator interfaces for TenderWatch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for claim and analysis persistence.
// The scoring core never calls it; it is used at the service boundary.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, claim *Claim) error
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
	ListClaims(ctx context.Context) ([]*Claim, error) // ingestion order
	ListClaimsByVendor(ctx context.Context, vendorID string, since time.Time) ([]*Claim, error)

	// Analysis audit trail
	SaveAnalysis(ctx context.Context, analysis *ClaimAnalysis) error
	GetAnalysis(ctx context.Context, analysisID string) (*ClaimAnalysis, error)
	ListAnalysesByClaim(ctx context.Context, claimID string) ([]*ClaimAnalysis, error)

	// Externally supplied vendor approval history
	SaveSuccessRate(ctx context.Context, vendorID string, rate float64) error
	ListSuccessRates(ctx context.Context) (map[string]float64, error)

	// Custom rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitepath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgreshost"`
	PostgresPort     int    `yaml:"postgresport"`
	PostgresUser     string `yaml:"postgresuser"`
	PostgresPassword string `yaml:"postgrespassword"`
	PostgresDB       string `yaml:"postgresdb"`
	PostgresSSLMode  string `yaml:"postgressslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxopenconns"`
	MaxIdleConns    int           `yaml:"maxidleconns"`
	ConnMaxLifetime time.Duration `yaml:"connmaxlifetime"`
}
