package repository

import "strings"

// Schema definitions for the TenderWatch database.
// Compatible with both SQLite and PostgreSQL; {{SEQ}} is replaced with the
// driver's auto-increment primary key type.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    seq {{SEQ}},
    id TEXT NOT NULL UNIQUE,
    vendor_id TEXT NOT NULL,
    amount REAL NOT NULL,
    category TEXT NOT NULL,
    official_id TEXT NOT NULL,
    invoice_id TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL,
    budget_ceiling REAL NOT NULL DEFAULT 0,
    tender_reference TEXT NOT NULL DEFAULT '',
    ingested_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_vendor ON claims(vendor_id, submitted_at);
CREATE INDEX IF NOT EXISTS idx_claims_invoice ON claims(invoice_id);
CREATE INDEX IF NOT EXISTS idx_claims_official ON claims(official_id, submitted_at);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    vendor_id TEXT NOT NULL,
    total_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    analyzed_at TIMESTAMP NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_claim ON analyses(claim_id, analyzed_at);
CREATE INDEX IF NOT EXISTS idx_analyses_recommendation ON analyses(recommendation);
`

const schemaSuccessRates = `
CREATE TABLE IF NOT EXISTS vendor_success_rates (
    vendor_id TEXT PRIMARY KEY,
    rate REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0.1,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order for a driver.
func AllSchemas(driver string) []string {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		seq = "BIGSERIAL PRIMARY KEY"
	}

	schemas := []string{
		schemaClaims,
		schemaAnalyses,
		schemaSuccessRates,
		schemaRuleConfigs,
	}
	for i, s := range schemas {
		schemas[i] = strings.ReplaceAll(s, "{{SEQ}}", seq)
	}
	return schemas
}
