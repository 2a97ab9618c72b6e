package repository

// Schema definitions for the Loanscore database.
// Compatible with both SQLite and PostgreSQL.

const schemaApplicants = `
CREATE TABLE IF NOT EXISTS applicants (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    monthly_income DOUBLE PRECISION NOT NULL,
    monthly_commitments DOUBLE PRECISION NOT NULL,
    employment_status TEXT NOT NULL,
    bureau_bucket INTEGER NOT NULL DEFAULT 0,
    bureau_score INTEGER,
    baseline_odds DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);
`

const schemaBusinesses = `
CREATE TABLE IF NOT EXISTS businesses (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    revenue TEXT NOT NULL,
    expenses TEXT NOT NULL,
    risk_rating INTEGER NOT NULL,
    bureau_score INTEGER,
    cashflow_variance DOUBLE PRECISION,
    industry_risk TEXT NOT NULL,
    cgc_eligible INTEGER NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);
`

const schemaLoanProducts = `
CREATE TABLE IF NOT EXISTS loan_products (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    bank_id TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    rate_min_pct DOUBLE PRECISION NOT NULL,
    rate_max_pct DOUBLE PRECISION NOT NULL,
    max_amount DOUBLE PRECISION NOT NULL,
    max_tenure_months INTEGER NOT NULL,
    min_grade INTEGER NOT NULL,
    criteria TEXT NOT NULL DEFAULT '',
    foir_weight DOUBLE PRECISION,
    enabled INTEGER NOT NULL DEFAULT 1,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_loan_products_bank ON loan_products(tenant_id, bank_id);
`

// Evaluations keep the full JSON document; the scalar columns exist for
// lookup and ordering. Only stored evaluations are ever written.
const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    tier INTEGER NOT NULL,
    approval_odds DOUBLE PRECISION NOT NULL,
    created_at BIGINT NOT NULL,
    document TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_applicant ON evaluations(tenant_id, applicant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaApplicants,
		schemaBusinesses,
		schemaLoanProducts,
		schemaEvaluations,
	}
}
