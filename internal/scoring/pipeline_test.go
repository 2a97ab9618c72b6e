package scoring

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/odds"
	"github.com/opensource-finance/loanscore/internal/rules"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	p, err := NewPipeline(domain.DefaultPolicy(), engine)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return p
}

func intPtr(v int) *int { return &v }

func applicant() *domain.ApplicantProfile {
	return &domain.ApplicantProfile{
		ID:                 "app-001",
		MonthlyIncome:      10000,
		MonthlyCommitments: 3000,
		EmploymentStatus:   domain.EmploymentSalaried,
		BureauBucket:       0,
		BureauScore:        intPtr(750),
	}
}

func series(amount float64, months int) []domain.PeriodAmount {
	out := make([]domain.PeriodAmount, months)
	for i := range out {
		out[i] = domain.PeriodAmount{Period: "2025-" + string(rune('a'+i)), Amount: amount}
	}
	return out
}

func business() *domain.BusinessProfile {
	return &domain.BusinessProfile{
		ID:           "biz-001",
		Revenue:      series(50000, 6),
		Expenses:     series(30000, 6),
		RiskRating:   1,
		IndustryRisk: domain.IndustryRiskLow,
	}
}

func products() []domain.LoanProduct {
	return []domain.LoanProduct{
		{ID: "ind-1", BankID: "bank-a", Name: "Personal", Kind: domain.KindIndividual, RateMinPct: 5, RateMaxPct: 8, MaxAmount: 150000, MaxTenureMonths: 84, MinGrade: domain.TierC, Enabled: true},
		{ID: "ind-2", BankID: "bank-b", Name: "Premier", Kind: domain.KindIndividual, RateMinPct: 4, RateMaxPct: 6, MaxAmount: 300000, MaxTenureMonths: 120, MinGrade: domain.TierA, Enabled: true},
		{ID: "biz-1", BankID: "bank-a", Name: "SME Term", Kind: domain.KindBusiness, RateMinPct: 6, RateMaxPct: 9, MaxAmount: 1000000, MaxTenureMonths: 120, MinGrade: domain.TierC, Enabled: true},
		{ID: "any-1", BankID: "bank-c", Name: "Flexi", Kind: domain.KindAny, RateMinPct: 9, RateMaxPct: 14, MaxAmount: 50000, MaxTenureMonths: 60, MinGrade: domain.TierD, Enabled: true},
	}
}

func TestScenarioA(t *testing.T) {
	p := newTestPipeline(t)

	eval, err := p.EvaluateIndividual(applicant(), nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	a := eval.Assessment
	if math.Abs(a.DSR-0.30) > 1e-12 {
		t.Errorf("DSR = %v, want 0.30", a.DSR)
	}
	if math.Abs(*a.FOIR-0.21) > 1e-12 {
		t.Errorf("FOIR = %v, want 0.21", *a.FOIR)
	}
	if a.Statuses.DSR != domain.StatusGood {
		t.Errorf("DSR status = %s, want good", a.Statuses.DSR)
	}
	if a.Statuses.FOIR != domain.StatusExcellent {
		t.Errorf("FOIR status = %s, want excellent", a.Statuses.FOIR)
	}
	if a.Grade.Tier != domain.TierB {
		t.Errorf("tier = %s, want B", a.Grade.Tier.Letter())
	}
	if a.Odds.Value != domain.OddsTierB {
		t.Errorf("odds = %v, want %v", a.Odds.Value, domain.OddsTierB)
	}
	if !a.HasFlag(domain.FlagNoProposal) || a.ResultingDSR != nil {
		t.Errorf("expected no-proposal assessment, flags %v", a.Flags)
	}
	if eval.Mode != domain.ModeStored || eval.ID != "" || eval.CreatedAt != nil {
		t.Errorf("core must not assign host fields: %+v", eval)
	}

	// 7000 * 0.70 at the reference terms.
	wantLoan, _ := amortization.MaxPrincipal(4900, 7, 60)
	if math.Abs(eval.Capacity.MaxLoanAmount-wantLoan) > 1e-6 {
		t.Errorf("max loan = %v, want %v", eval.Capacity.MaxLoanAmount, wantLoan)
	}
}

func TestScenarioB(t *testing.T) {
	p := newTestPipeline(t)
	proposal := &domain.LoanProposal{Principal: 100000, AnnualRatePct: 5, TenureMonths: 60}

	eval, err := p.EvaluateIndividual(applicant(), proposal, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if math.Abs(eval.Loan.Instalment-1887.12) > 0.005 {
		t.Errorf("EMI = %v, want ~1887.12", eval.Loan.Instalment)
	}

	// (3000 + 1887.12) / 10000 falls in the (0.40, ...) penalty band.
	want := (3000 + eval.Loan.Instalment) / 10000
	if got := *eval.Assessment.ResultingDSR; math.Abs(got-want) > 1e-12 {
		t.Errorf("resulting DSR = %v, want %v", got, want)
	}
	if got := eval.Assessment.Odds.Value; got != domain.OddsTierB+odds.DSRSeverePenalty {
		t.Errorf("odds = %v", got)
	}
}

func TestScenarioC(t *testing.T) {
	p := newTestPipeline(t)

	principal, _ := amortization.MaxPrincipal(10000, 6, 60)
	proposal := &domain.LoanProposal{Principal: principal, AnnualRatePct: 6, TenureMonths: 60}

	eval, err := p.EvaluateBusiness(business(), proposal, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	a := eval.Assessment
	if math.Abs(*a.NetCashflow-20000) > 1e-9 {
		t.Errorf("net cashflow = %v", *a.NetCashflow)
	}
	if math.Abs(*a.DSCR-2.0) > 1e-9 {
		t.Errorf("DSCR = %v, want 2.0", *a.DSCR)
	}
	if a.Odds.Value < 85 || a.Odds.Band != domain.OddsBandHigh {
		t.Errorf("expected high odds, got %+v", a.Odds)
	}
	if a.Grade.Tier != domain.TierA || a.Grade.BRR != 1 {
		t.Errorf("unexpected grade %+v", a.Grade)
	}

	for _, m := range eval.Matches {
		if m.Product.Kind == domain.KindIndividual {
			t.Errorf("individual product %s offered to business", m.Product.ID)
		}
	}
	if len(eval.Matches) != 2 {
		t.Errorf("expected 2 business matches, got %d", len(eval.Matches))
	}
}

func TestScenarioD(t *testing.T) {
	p := newTestPipeline(t)

	profile := applicant()
	profile.MonthlyCommitments = 500
	profile.BureauScore = intPtr(820)
	profile.BureauBucket = 3

	eval, err := p.EvaluateIndividual(profile, nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	a := eval.Assessment
	if a.Statuses.DSR != domain.StatusExcellent || a.Statuses.Score != domain.StatusExcellent {
		t.Fatalf("expected excellent ratios, got %+v", a.Statuses)
	}
	if a.Statuses.Bucket != domain.StatusPoor || a.Grade.Status != domain.StatusPoor || a.Grade.Tier != domain.TierD {
		t.Errorf("expected poor grade, got %+v", a.Grade)
	}
	for _, m := range eval.Matches {
		if m.Eligible && m.Product.MinGrade != domain.TierD {
			t.Errorf("product %s should not be eligible", m.Product.ID)
		}
	}
}

func TestSimulateMatchesEvaluate(t *testing.T) {
	p := newTestPipeline(t)
	proposal := &domain.LoanProposal{Principal: 80000, AnnualRatePct: 6.5, TenureMonths: 72}

	t.Run("individual", func(t *testing.T) {
		stored, err := p.EvaluateIndividual(applicant(), proposal, products())
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		sim, err := p.SimulateIndividual(applicant(), proposal, products())
		if err != nil {
			t.Fatalf("simulate failed: %v", err)
		}
		if sim.Mode != domain.ModeSimulation {
			t.Errorf("mode = %s", sim.Mode)
		}
		sim.Mode = domain.ModeStored
		if !reflect.DeepEqual(stored, sim) {
			t.Error("simulation differs from evaluation beyond the mode tag")
		}
	})

	t.Run("business", func(t *testing.T) {
		stored, err := p.EvaluateBusiness(business(), proposal, products())
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		sim, err := p.SimulateBusiness(business(), proposal, products())
		if err != nil {
			t.Fatalf("simulate failed: %v", err)
		}
		sim.Mode = domain.ModeStored
		if !reflect.DeepEqual(stored, sim) {
			t.Error("simulation differs from evaluation beyond the mode tag")
		}
	})
}

func TestSimulateIdempotent(t *testing.T) {
	p := newTestPipeline(t)
	proposal := &domain.LoanProposal{Principal: 50000, AnnualRatePct: 4.2, TenureMonths: 48}

	first, err := p.SimulateIndividual(applicant(), proposal, products())
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := p.SimulateIndividual(applicant(), proposal, products())
		if !reflect.DeepEqual(first, again) {
			t.Fatal("simulation not idempotent")
		}
	}
}

func TestInputsNotMutated(t *testing.T) {
	p := newTestPipeline(t)

	profile := business()
	proposal := &domain.LoanProposal{Principal: 200000, AnnualRatePct: 7, TenureMonths: 36}
	catalog := products()

	profileBefore := *profile
	profileBefore.Revenue = append([]domain.PeriodAmount(nil), profile.Revenue...)
	proposalBefore := *proposal
	catalogBefore := append([]domain.LoanProduct(nil), catalog...)

	eval, err := p.SimulateBusiness(profile, proposal, catalog)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	eval.Proposal.Principal = 1
	eval.Matches[0].Product.Name = "changed"

	if !reflect.DeepEqual(profileBefore.Revenue, profile.Revenue) || profile.CashflowVariance != nil {
		t.Error("profile mutated")
	}
	if *proposal != proposalBefore {
		t.Error("proposal mutated")
	}
	if !reflect.DeepEqual(catalog, catalogBefore) {
		t.Error("catalog mutated")
	}
}

func TestSimulateValidation(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name     string
		kind     domain.ProfileKind
		proposal *domain.LoanProposal
		field    string
	}{
		{"missing proposal", domain.KindIndividual, nil, "proposal"},
		{"zero principal", domain.KindIndividual, &domain.LoanProposal{Principal: 0, AnnualRatePct: 5, TenureMonths: 12}, "principal"},
		{"negative rate", domain.KindIndividual, &domain.LoanProposal{Principal: 1000, AnnualRatePct: -1, TenureMonths: 12}, "annualRatePct"},
		{"zero rate", domain.KindBusiness, &domain.LoanProposal{Principal: 1000, AnnualRatePct: 0, TenureMonths: 12}, "annualRatePct"},
		{"zero tenure", domain.KindIndividual, &domain.LoanProposal{Principal: 1000, AnnualRatePct: 5, TenureMonths: 0}, "tenureMonths"},
		{"business tenure too short", domain.KindBusiness, &domain.LoanProposal{Principal: 1000, AnnualRatePct: 5, TenureMonths: 11}, "tenureMonths"},
		{"business tenure too long", domain.KindBusiness, &domain.LoanProposal{Principal: 1000, AnnualRatePct: 5, TenureMonths: 121}, "tenureMonths"},
		{"NaN principal", domain.KindIndividual, &domain.LoanProposal{Principal: math.NaN(), AnnualRatePct: 5, TenureMonths: 12}, "principal"},
		{"infinite principal", domain.KindBusiness, &domain.LoanProposal{Principal: math.Inf(1), AnnualRatePct: 5, TenureMonths: 12}, "principal"},
		{"infinite rate", domain.KindIndividual, &domain.LoanProposal{Principal: 1000, AnnualRatePct: math.Inf(1), TenureMonths: 12}, "annualRatePct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.kind == domain.KindBusiness {
				_, err = p.SimulateBusiness(business(), tt.proposal, products())
			} else {
				_, err = p.SimulateIndividual(applicant(), tt.proposal, products())
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("field = %v, want %s", ve, tt.field)
			}
		})
	}

	long := &domain.LoanProposal{Principal: 1000, AnnualRatePct: 5, TenureMonths: 360}
	if _, err := p.SimulateIndividual(applicant(), long, products()); err != nil {
		t.Errorf("individual tenure is unbounded above: %v", err)
	}
}

func TestNonFiniteProfiles(t *testing.T) {
	p := newTestPipeline(t)

	nanIncome := applicant()
	nanIncome.MonthlyIncome = math.NaN()
	infCommitments := applicant()
	infCommitments.MonthlyCommitments = math.Inf(1)
	infRevenue := business()
	infRevenue.Revenue[2].Amount = math.Inf(1)

	check := func(name string, err error, field string) {
		t.Helper()
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Errorf("%s: expected validation error on %s, got %v", name, field, err)
		}
	}

	_, err := p.EvaluateIndividual(nanIncome, nil, products())
	check("NaN income", err, "monthlyIncome")
	_, err = p.EvaluateIndividual(infCommitments, nil, products())
	check("infinite commitments", err, "monthlyCommitments")
	_, err = p.EvaluateBusiness(infRevenue, nil, products())
	check("infinite revenue", err, "revenue")
}

func TestLongTenureSimulation(t *testing.T) {
	p := newTestPipeline(t)
	proposal := &domain.LoanProposal{Principal: 100000, AnnualRatePct: 5, TenureMonths: 200000}

	eval, err := p.SimulateIndividual(applicant(), proposal, products())
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	interestOnly := 100000 * amortization.MonthlyRate(5)
	if math.Abs(eval.Loan.Instalment-interestOnly) > 1e-6 {
		t.Errorf("expected instalment ~%v, got %v", interestOnly, eval.Loan.Instalment)
	}

	a := eval.Assessment
	if a.ResultingDSR == nil || *a.ResultingDSR <= a.DSR {
		t.Errorf("resulting DSR should include the instalment: dsr=%v resulting=%v", a.DSR, a.ResultingDSR)
	}
	if len(a.Odds.Adjustments) == 0 || a.Odds.Adjustments[0].RuleID != odds.RuleDSRModerate {
		t.Errorf("expected the moderate DSR penalty, got %+v", a.Odds.Adjustments)
	}
	if c := eval.Capacity.MaxLoanAmount; math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
		t.Errorf("capacity not finite: %v", c)
	}
	if _, err := json.Marshal(eval); err != nil {
		t.Errorf("evaluation does not encode: %v", err)
	}
}

func TestPipelinesDoNotShareRules(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	first, err := NewPipeline(domain.DefaultPolicy(), engine)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	before, err := first.EvaluateIndividual(applicant(), nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	custom := domain.DefaultPolicy()
	custom.OddsRules = []domain.OddsRule{
		{ID: "flat-penalty", Description: "flat", Kind: domain.KindAny, Expression: "true", Delta: -50, Enabled: true},
	}
	second, err := NewPipeline(custom, engine)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	after, err := first.EvaluateIndividual(applicant(), nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if after.Assessment.Odds.Value != before.Assessment.Odds.Value {
		t.Errorf("first pipeline changed odds: %v -> %v", before.Assessment.Odds.Value, after.Assessment.Odds.Value)
	}
	if !reflect.DeepEqual(first.Rules(), odds.DefaultRules()) {
		t.Errorf("first pipeline rules replaced: %+v", first.Rules())
	}

	other, err := second.EvaluateIndividual(applicant(), nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if other.Assessment.Odds.Value != before.Assessment.Odds.Value-50 {
		t.Errorf("second pipeline odds = %v, want %v", other.Assessment.Odds.Value, before.Assessment.Odds.Value-50)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("shared engine should carry no rule table, has %d", engine.RulesCount())
	}
}

func TestNewPipelineRequiresEngine(t *testing.T) {
	if _, err := NewPipeline(domain.DefaultPolicy(), nil); err == nil {
		t.Error("expected error without an engine")
	}
}

func TestIncomeZero(t *testing.T) {
	p := newTestPipeline(t)

	profile := applicant()
	profile.MonthlyIncome = 0
	proposal := &domain.LoanProposal{Principal: 10000, AnnualRatePct: 5, TenureMonths: 24}

	eval, err := p.EvaluateIndividual(profile, proposal, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	a := eval.Assessment
	if !a.HasFlag(domain.FlagIncomeZero) {
		t.Errorf("expected income_zero flag, got %v", a.Flags)
	}
	if a.DSR != 1.0 || *a.FOIR != 1.0 || *a.ResultingDSR != 1.0 {
		t.Errorf("expected worst-case ratios, got %v %v %v", a.DSR, *a.FOIR, *a.ResultingDSR)
	}
	if math.IsNaN(a.DSR) || math.IsInf(a.DSR, 0) {
		t.Error("ratio leaked NaN/Inf")
	}
	if eval.Capacity.MaxLoanAmount != 0 {
		t.Errorf("expected zero capacity, got %v", eval.Capacity.MaxLoanAmount)
	}
	for _, m := range eval.Matches {
		if m.Eligible || m.ApprovalOdds != 0 {
			t.Errorf("product %s should be ineligible", m.Product.ID)
		}
	}
}

func TestBusinessDataGap(t *testing.T) {
	p := newTestPipeline(t)

	profile := business()
	profile.Revenue = nil
	profile.Expenses = nil
	proposal := &domain.LoanProposal{Principal: 100000, AnnualRatePct: 6, TenureMonths: 36}

	eval, err := p.EvaluateBusiness(profile, proposal, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	a := eval.Assessment
	if a.Statuses.DSCR != domain.StatusInsufficientData {
		t.Errorf("DSCR status = %s", a.Statuses.DSCR)
	}
	if a.Grade.Status == domain.StatusInsufficientData || a.Grade.Tier != domain.TierA {
		t.Errorf("data gap must not drive the grade: %+v", a.Grade)
	}
	if !a.HasFlag(domain.FlagCashflowDataGap) || a.DSCR != nil || a.NetCashflow != nil {
		t.Errorf("unexpected assessment %+v", a)
	}
	if eval.Capacity.MaxLoanAmount != 0 {
		t.Errorf("expected zero capacity")
	}
	if a.Odds.Value != domain.OddsTierA+odds.DSCRDataGapPenalty {
		t.Errorf("odds = %v", a.Odds.Value)
	}
}

func TestBusinessMismatchedSeries(t *testing.T) {
	p := newTestPipeline(t)

	profile := business()
	profile.Expenses = profile.Expenses[:3]

	_, err := p.EvaluateBusiness(profile, nil, products())
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBusinessNegativeCashflow(t *testing.T) {
	p := newTestPipeline(t)

	profile := business()
	profile.Revenue = series(20000, 6)
	proposal := &domain.LoanProposal{Principal: 100000, AnnualRatePct: 6, TenureMonths: 36}

	eval, err := p.EvaluateBusiness(profile, proposal, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	a := eval.Assessment
	if *a.DSCR != 0 || !a.HasFlag(domain.FlagNegativeCashflow) {
		t.Errorf("expected zero DSCR with flag, got %v %v", *a.DSCR, a.Flags)
	}
	if eval.Capacity.MaxLoanAmount != 0 {
		t.Errorf("expected zero capacity")
	}
}

func TestBusinessWithoutProposal(t *testing.T) {
	p := newTestPipeline(t)

	eval, err := p.EvaluateBusiness(business(), nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	a := eval.Assessment
	if a.DSCR != nil || !a.HasFlag(domain.FlagNoProposal) {
		t.Errorf("expected no DSCR, got %+v", a)
	}
	// 20000 / 1.25 at the reference terms.
	if got := eval.Capacity.MaxInstalment; math.Abs(got-16000) > 1e-9 {
		t.Errorf("max instalment = %v, want 16000", got)
	}
	if eval.Capacity.TenureMonths != 60 || eval.Capacity.RatePct != 7 {
		t.Errorf("expected reference terms, got %+v", eval.Capacity)
	}
}

func TestTopNIndividual(t *testing.T) {
	p := newTestPipeline(t)

	var catalog []domain.LoanProduct
	for i := 0; i < 8; i++ {
		catalog = append(catalog, domain.LoanProduct{
			ID: string(rune('a' + i)), BankID: "bank", Name: "P", Kind: domain.KindIndividual,
			RateMinPct: float64(4 + i), RateMaxPct: 20, MaxAmount: 100000, MaxTenureMonths: 60,
			MinGrade: domain.TierD, Enabled: true,
		})
	}

	eval, err := p.EvaluateIndividual(applicant(), nil, catalog)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(eval.Matches) != 5 {
		t.Errorf("expected 5 matches, got %d", len(eval.Matches))
	}
}

func TestCompare(t *testing.T) {
	p := newTestPipeline(t)

	profile := applicant()
	profile.MonthlyCommitments = 2000

	stored, err := p.EvaluateIndividual(profile, nil, products())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	stored.ID = "eval-1"

	tests := []struct {
		name      string
		principal float64
		trend     string
	}{
		{"small loan", 10000, domain.TrendUnchanged},
		{"large loan", 200000, domain.TrendReduced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := p.SimulateIndividual(profile, &domain.LoanProposal{Principal: tt.principal, AnnualRatePct: 5, TenureMonths: 60}, products())
			if err != nil {
				t.Fatalf("simulate failed: %v", err)
			}
			c := Compare(stored, sim)
			if c.Trend != tt.trend {
				t.Errorf("trend = %s, want %s (delta %v)", c.Trend, tt.trend, c.OddsDelta)
			}
			if c.StoredEvaluationID != "eval-1" {
				t.Errorf("stored id = %s", c.StoredEvaluationID)
			}
		})
	}

	improved := *stored
	improved.Assessment.Odds.Value += 5
	if c := Compare(stored, &improved); c.Trend != domain.TrendImproved || c.OddsDelta != 5 {
		t.Errorf("expected improved, got %+v", c)
	}
}
