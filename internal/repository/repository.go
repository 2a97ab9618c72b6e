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

	"github.com/opensource-finance/loanscore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

var _ domain.Repository = (*SQLRepository)(nil)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New creates a new repository based on configuration and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveApplicant upserts an individual profile.
func (r *SQLRepository) SaveApplicant(ctx context.Context, tenantID string, p *domain.ApplicantProfile) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: applicant id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO applicants (
			id, tenant_id, monthly_income, monthly_commitments, employment_status,
			bureau_bucket, bureau_score, baseline_odds, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			monthly_income = excluded.monthly_income,
			monthly_commitments = excluded.monthly_commitments,
			employment_status = excluded.employment_status,
			bureau_bucket = excluded.bureau_bucket,
			bureau_score = excluded.bureau_score,
			baseline_odds = excluded.baseline_odds,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.MonthlyIncome, p.MonthlyCommitments, string(p.EmploymentStatus),
		p.BureauBucket, nullInt(p.BureauScore), p.BaselineOdds, r.now().UnixNano(),
	)
	return err
}

// GetApplicant retrieves an individual profile with tenant isolation.
func (r *SQLRepository) GetApplicant(ctx context.Context, tenantID string, id string) (*domain.ApplicantProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, monthly_income, monthly_commitments, employment_status,
			   bureau_bucket, bureau_score, baseline_odds
		FROM applicants
		WHERE tenant_id = ? AND id = ?
	`

	var p domain.ApplicantProfile
	var employment string
	var score sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&p.ID, &p.MonthlyIncome, &p.MonthlyCommitments, &employment,
		&p.BureauBucket, &score, &p.BaselineOdds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.EmploymentStatus = domain.EmploymentStatus(employment)
	p.BureauScore = intFromNull(score)
	return &p, nil
}

// SaveBusiness upserts a business profile. Series are stored as JSON.
func (r *SQLRepository) SaveBusiness(ctx context.Context, tenantID string, p *domain.BusinessProfile) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}

	revenue, err := json.Marshal(nonNilSeries(p.Revenue))
	if err != nil {
		return fmt.Errorf("failed to encode revenue: %w", err)
	}
	expenses, err := json.Marshal(nonNilSeries(p.Expenses))
	if err != nil {
		return fmt.Errorf("failed to encode expenses: %w", err)
	}

	variance := nullFloat(p.CashflowVariance)

	query := `
		INSERT INTO businesses (
			id, tenant_id, revenue, expenses, risk_rating, bureau_score,
			cashflow_variance, industry_risk, cgc_eligible, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			revenue = excluded.revenue,
			expenses = excluded.expenses,
			risk_rating = excluded.risk_rating,
			bureau_score = excluded.bureau_score,
			cashflow_variance = excluded.cashflow_variance,
			industry_risk = excluded.industry_risk,
			cgc_eligible = excluded.cgc_eligible,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, string(revenue), string(expenses), p.RiskRating, nullInt(p.BureauScore),
		variance, string(p.IndustryRisk), boolInt(p.CGCEligible), r.now().UnixNano(),
	)
	return err
}

// GetBusiness retrieves a business profile with tenant isolation.
func (r *SQLRepository) GetBusiness(ctx context.Context, tenantID string, id string) (*domain.BusinessProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, revenue, expenses, risk_rating, bureau_score,
			   cashflow_variance, industry_risk, cgc_eligible
		FROM businesses
		WHERE tenant_id = ? AND id = ?
	`

	var p domain.BusinessProfile
	var revenue, expenses, industry string
	var score sql.NullInt64
	var variance sql.NullFloat64
	var cgc int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&p.ID, &revenue, &expenses, &p.RiskRating, &score,
		&variance, &industry, &cgc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(revenue), &p.Revenue); err != nil {
		return nil, fmt.Errorf("failed to parse revenue for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(expenses), &p.Expenses); err != nil {
		return nil, fmt.Errorf("failed to parse expenses for %s: %w", id, err)
	}
	p.BureauScore = intFromNull(score)
	p.CashflowVariance = floatFromNull(variance)
	p.IndustryRisk = domain.IndustryRisk(industry)
	p.CGCEligible = cgc == 1
	return &p, nil
}

// SaveProduct upserts a catalog product.
func (r *SQLRepository) SaveProduct(ctx context.Context, tenantID string, p *domain.LoanProduct) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO loan_products (
			id, tenant_id, bank_id, name, kind, rate_min_pct, rate_max_pct,
			max_amount, max_tenure_months, min_grade, criteria, foir_weight, enabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			bank_id = excluded.bank_id,
			name = excluded.name,
			kind = excluded.kind,
			rate_min_pct = excluded.rate_min_pct,
			rate_max_pct = excluded.rate_max_pct,
			max_amount = excluded.max_amount,
			max_tenure_months = excluded.max_tenure_months,
			min_grade = excluded.min_grade,
			criteria = excluded.criteria,
			foir_weight = excluded.foir_weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.BankID, p.Name, string(p.Kind), p.RateMinPct, p.RateMaxPct,
		p.MaxAmount, p.MaxTenureMonths, int(p.MinGrade), p.Criteria, nullFloat(p.FOIRWeight), boolInt(p.Enabled),
		r.now().UnixNano(),
	)
	return err
}

// ListProducts returns the tenant catalog ordered by bank and ID, disabled
// products included.
func (r *SQLRepository) ListProducts(ctx context.Context, tenantID string) ([]*domain.LoanProduct, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, bank_id, name, kind, rate_min_pct, rate_max_pct,
			   max_amount, max_tenure_months, min_grade, criteria, foir_weight, enabled
		FROM loan_products
		WHERE tenant_id = ?
		ORDER BY bank_id, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*domain.LoanProduct{}
	for rows.Next() {
		var p domain.LoanProduct
		var kind string
		var grade, enabled int
		var foirWeight sql.NullFloat64

		if err := rows.Scan(
			&p.ID, &p.BankID, &p.Name, &kind, &p.RateMinPct, &p.RateMaxPct,
			&p.MaxAmount, &p.MaxTenureMonths, &grade, &p.Criteria, &foirWeight, &enabled,
		); err != nil {
			return nil, err
		}
		p.FOIRWeight = floatFromNull(foirWeight)

		p.Kind = domain.ProfileKind(kind)
		p.MinGrade = domain.Tier(grade)
		p.Enabled = enabled == 1
		products = append(products, &p)
	}

	return products, rows.Err()
}

// SaveEvaluation stores a stored-mode evaluation. Simulations are rejected.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}
	if eval.Mode != domain.ModeStored {
		return fmt.Errorf("%w: only stored evaluations are persisted, got %q", ErrInvalidInput, eval.Mode)
	}

	createdAt := r.now().UTC()
	if eval.CreatedAt != nil {
		createdAt = *eval.CreatedAt
	}

	doc, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, applicant_id, kind, tier, approval_odds, created_at, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ApplicantID, string(eval.Kind),
		int(eval.Assessment.Grade.Tier), eval.Assessment.Odds.Value,
		createdAt.UnixNano(), string(doc),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT document FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`
	return r.scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID))
}

// LatestEvaluation returns the most recent stored evaluation of an
// applicant.
func (r *SQLRepository) LatestEvaluation(ctx context.Context, tenantID string, applicantID string) (*domain.Evaluation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT document FROM evaluations
		WHERE tenant_id = ? AND applicant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, applicantID))
}

func (r *SQLRepository) scanEvaluation(row *sql.Row) (*domain.Evaluation, error) {
	var doc string
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var eval domain.Evaluation
	if err := json.Unmarshal([]byte(doc), &eval); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation: %w", err)
	}
	return &eval, nil
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
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		n++
	}
	return b.String()
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilSeries(s []domain.PeriodAmount) []domain.PeriodAmount {
	if s == nil {
		return []domain.PeriodAmount{}
	}
	return s
}
