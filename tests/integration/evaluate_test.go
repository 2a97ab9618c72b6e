//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Loanscore
// server.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server URL defaults to http://localhost:8080 and can be changed with
// LOANSCORE_TEST_URL. Each run uses a fresh tenant, so the catalog starts
// empty and is seeded by the tests.
//
// Scenarios:
//
//	A  income 10,000, commitments 3,000          DSR 0.30 (Good), FOIR 0.21
//	B  100,000 at 5% over 60 months              EMI ~1,887.12
//	C  business net cashflow 20,000, EMI 10,000  DSCR 2.0, odds >= 85
//	D  bureau bucket 3                           grade D despite clean ratios
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	t.Helper()
	baseURL := os.Getenv("LOANSCORE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	cfg := TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}

	resp, err := http.Get(cfg.BaseURL + "/health")
	if err != nil {
		t.Skipf("loanscore not reachable at %s: %v", cfg.BaseURL, err)
	}
	resp.Body.Close()
	return cfg
}

type evaluationResponse struct {
	domain.Evaluation
	Comparison *domain.Comparison `json:"comparison,omitempty"`
}

func call(t *testing.T, cfg TestConfig, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, cfg.BaseURL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", cfg.TenantID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
}

func seedCatalog(t *testing.T, cfg TestConfig) {
	t.Helper()
	products := []domain.LoanProduct{
		{ID: "ind-1", BankID: "bank-a", Name: "Personal", Kind: domain.KindIndividual, RateMinPct: 5, RateMaxPct: 8, MaxAmount: 150000, MaxTenureMonths: 84, MinGrade: domain.TierC, Enabled: true},
		{ID: "ind-2", BankID: "bank-b", Name: "Premier", Kind: domain.KindIndividual, RateMinPct: 4, RateMaxPct: 6, MaxAmount: 300000, MaxTenureMonths: 120, MinGrade: domain.TierA, Enabled: true},
		{ID: "biz-1", BankID: "bank-a", Name: "SME Term", Kind: domain.KindBusiness, RateMinPct: 6, RateMaxPct: 9, MaxAmount: 1000000, MaxTenureMonths: 120, MinGrade: domain.TierC, Enabled: true},
		{ID: "any-1", BankID: "bank-c", Name: "Flexi", Kind: domain.KindAny, RateMinPct: 9, RateMaxPct: 14, MaxAmount: 50000, MaxTenureMonths: 60, MinGrade: domain.TierD, Enabled: true},
	}
	for _, p := range products {
		call(t, cfg, http.MethodPost, "/v1/products", p, http.StatusCreated, nil)
	}
}

func intPtr(v int) *int { return &v }

func scenarioApplicant() domain.ApplicantProfile {
	return domain.ApplicantProfile{
		ID:                 "app-a",
		MonthlyIncome:      10000,
		MonthlyCommitments: 3000,
		EmploymentStatus:   domain.EmploymentSalaried,
		BureauBucket:       0,
		BureauScore:        intPtr(750),
	}
}

func TestScenarios(t *testing.T) {
	cfg := getTestConfig(t)
	seedCatalog(t, cfg)

	t.Run("A_RatiosAtBoundary", func(t *testing.T) {
		var eval evaluationResponse
		call(t, cfg, http.MethodPost, "/v1/individual/evaluate", map[string]any{
			"profile": scenarioApplicant(),
		}, http.StatusOK, &eval)

		a := eval.Assessment
		if math.Abs(a.DSR-0.30) > 1e-9 || a.FOIR == nil || math.Abs(*a.FOIR-0.21) > 1e-9 {
			t.Errorf("DSR=%v FOIR=%v, want 0.30 / 0.21", a.DSR, a.FOIR)
		}
		if a.Statuses.DSR != domain.StatusGood || a.Grade.Tier != domain.TierB {
			t.Errorf("expected Good / B, got %s / %s", a.Statuses.DSR, a.Grade.Tier.Letter())
		}
		if eval.ID == "" || eval.Mode != domain.ModeStored {
			t.Errorf("not stored: id=%q mode=%q", eval.ID, eval.Mode)
		}

		var fetched evaluationResponse
		call(t, cfg, http.MethodGet, "/v1/evaluations/"+eval.ID, nil, http.StatusOK, &fetched)
		if fetched.Assessment.Odds.Value != a.Odds.Value {
			t.Errorf("fetched odds %v != %v", fetched.Assessment.Odds.Value, a.Odds.Value)
		}
	})

	t.Run("B_Instalment", func(t *testing.T) {
		var eval evaluationResponse
		call(t, cfg, http.MethodPost, "/v1/individual/simulate", map[string]any{
			"applicantId": "app-a",
			"proposal":    domain.LoanProposal{Principal: 100000, AnnualRatePct: 5, TenureMonths: 60},
		}, http.StatusOK, &eval)

		if eval.Loan == nil || math.Abs(eval.Loan.Instalment-1887.12) > 0.005 {
			t.Errorf("EMI = %+v, want 1887.12", eval.Loan)
		}
		if eval.Mode != domain.ModeSimulation || eval.ID != "" {
			t.Errorf("simulation was stored: id=%q", eval.ID)
		}
		if eval.Comparison == nil || eval.Comparison.Trend != domain.TrendReduced {
			t.Errorf("expected reduced trend, got %+v", eval.Comparison)
		}
	})

	t.Run("C_BusinessCoverage", func(t *testing.T) {
		revenue := make([]domain.PeriodAmount, 6)
		expenses := make([]domain.PeriodAmount, 6)
		for i := range revenue {
			period := fmt.Sprintf("2025-%02d", i+1)
			revenue[i] = domain.PeriodAmount{Period: period, Amount: 50000}
			expenses[i] = domain.PeriodAmount{Period: period, Amount: 30000}
		}
		biz := domain.BusinessProfile{
			ID:           "biz-c",
			Revenue:      revenue,
			Expenses:     expenses,
			RiskRating:   1,
			IndustryRisk: domain.IndustryRiskLow,
		}
		call(t, cfg, http.MethodPut, "/v1/businesses/biz-c", biz, http.StatusOK, nil)

		principal, err := amortization.MaxPrincipal(10000, 6, 60)
		if err != nil {
			t.Fatal(err)
		}
		var eval evaluationResponse
		call(t, cfg, http.MethodPost, "/v1/business/evaluate", map[string]any{
			"applicantId": "biz-c",
			"proposal":    domain.LoanProposal{Principal: principal, AnnualRatePct: 6, TenureMonths: 60},
		}, http.StatusOK, &eval)

		a := eval.Assessment
		if a.DSCR == nil || math.Abs(*a.DSCR-2.0) > 1e-6 {
			t.Errorf("DSCR = %v, want 2.0", a.DSCR)
		}
		if a.Odds.Value < 85 || a.Odds.Band != domain.OddsBandHigh {
			t.Errorf("expected high odds, got %+v", a.Odds)
		}
		for _, m := range eval.Matches {
			if m.Product.Kind == domain.KindIndividual {
				t.Errorf("individual product %s offered to a business", m.Product.ID)
			}
		}
	})

	t.Run("D_BucketOverridesRatios", func(t *testing.T) {
		p := scenarioApplicant()
		p.ID = "app-d"
		p.MonthlyCommitments = 500
		p.BureauScore = intPtr(820)
		p.BureauBucket = 3

		var eval evaluationResponse
		call(t, cfg, http.MethodPost, "/v1/individual/evaluate", map[string]any{"profile": p}, http.StatusOK, &eval)

		a := eval.Assessment
		if a.Statuses.Bucket != domain.StatusPoor || a.Grade.Tier != domain.TierD {
			t.Errorf("expected bucket Poor / grade D, got %s / %s", a.Statuses.Bucket, a.Grade.Tier.Letter())
		}
		for _, m := range eval.Matches {
			if m.Eligible && m.Product.MinGrade != domain.TierD {
				t.Errorf("product %s should not be eligible", m.Product.ID)
			}
		}
	})
}

func TestErrorMapping(t *testing.T) {
	cfg := getTestConfig(t)

	t.Run("Validation", func(t *testing.T) {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		call(t, cfg, http.MethodPost, "/v1/amortization", domain.LoanProposal{Principal: -1, AnnualRatePct: 5, TenureMonths: 12}, http.StatusBadRequest, &e)
		if e.Field != "principal" {
			t.Errorf("field = %q", e.Field)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		call(t, cfg, http.MethodGet, "/v1/evaluations/does-not-exist", nil, http.StatusNotFound, nil)
	})

	t.Run("MissingTenant", func(t *testing.T) {
		resp, err := http.Get(cfg.BaseURL + "/v1/products")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}
