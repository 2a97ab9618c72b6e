package ratio

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/loanscore/internal/domain"
)

const eps = 1e-12

func series(periods []string, amounts ...float64) []domain.PeriodAmount {
	out := make([]domain.PeriodAmount, len(amounts))
	for i, a := range amounts {
		out[i] = domain.PeriodAmount{Period: periods[i], Amount: a}
	}
	return out
}

var months = []string{"2025-01", "2025-02", "2025-03", "2025-04", "2025-05", "2025-06"}

func TestDSR(t *testing.T) {
	t.Run("ScenarioA", func(t *testing.T) {
		dsr, err := DSR(10000, 3000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(dsr-0.30) > eps {
			t.Errorf("expected DSR 0.30, got %v", dsr)
		}

		foir, err := FOIR(10000, 3000, 0.7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(foir-0.21) > eps {
			t.Errorf("expected FOIR 0.21, got %v", foir)
		}
	})

	t.Run("EqualsQuotient", func(t *testing.T) {
		cases := []struct{ income, commitments float64 }{
			{1, 0}, {2500, 100}, {8000, 8000}, {4000, 6000}, {123456.78, 9876.54},
		}
		for _, c := range cases {
			got, err := DSR(c.income, c.commitments)
			if err != nil {
				t.Fatalf("DSR(%v, %v): %v", c.income, c.commitments, err)
			}
			if got != c.commitments/c.income {
				t.Errorf("DSR(%v, %v) = %v, want %v", c.income, c.commitments, got, c.commitments/c.income)
			}
		}
	})

	t.Run("MonotonicInCommitments", func(t *testing.T) {
		prev := -1.0
		for c := 0.0; c <= 20000; c += 250 {
			got, _ := DSR(10000, c)
			if got < prev {
				t.Fatalf("DSR decreased at commitments=%v: %v < %v", c, got, prev)
			}
			prev = got
		}
	})

	t.Run("NonIncreasingInIncome", func(t *testing.T) {
		prev := math.MaxFloat64
		for i := 500.0; i <= 50000; i += 500 {
			got, _ := DSR(i, 3000)
			if got > prev {
				t.Fatalf("DSR increased at income=%v: %v > %v", i, got, prev)
			}
			prev = got
		}
	})

	t.Run("ZeroIncome", func(t *testing.T) {
		got, err := DSR(0, 1000)
		if !errors.Is(err, domain.ErrDivisionByZero) {
			t.Fatalf("expected ErrDivisionByZero, got %v", err)
		}
		if math.IsInf(got, 0) || math.IsNaN(got) {
			t.Errorf("expected finite value, got %v", got)
		}
	})

	t.Run("NegativeInputsClamped", func(t *testing.T) {
		got, err := DSR(1000, -50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 0 {
			t.Errorf("expected 0 for negative commitments, got %v", got)
		}
	})
}

func TestNetCashflowAndDSCR(t *testing.T) {
	t.Run("ScenarioC", func(t *testing.T) {
		rev := series(months[:3], 45000, 50000, 55000)
		exp := series(months[:3], 30000, 28000, 32000)

		net, err := NetCashflow(rev, exp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(net-20000) > 1e-9 {
			t.Fatalf("expected net cashflow 20000, got %v", net)
		}

		dscr, err := DSCR(net, 10000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(dscr-2.0) > eps {
			t.Errorf("expected DSCR 2.0, got %v", dscr)
		}
	})

	t.Run("FewerThanTwelvePeriods", func(t *testing.T) {
		net, err := NetCashflow(series(months[:1], 1000), series(months[:1], 400))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if net != 600 {
			t.Errorf("expected 600, got %v", net)
		}
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		_, err := NetCashflow(nil, nil)
		if !errors.Is(err, domain.ErrDataGap) {
			t.Errorf("expected ErrDataGap, got %v", err)
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := NetCashflow(series(months[:2], 1, 2), series(months[:1], 1))
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != "expenses" {
			t.Errorf("expected validation error on expenses, got %v", err)
		}
	})

	t.Run("PeriodMisaligned", func(t *testing.T) {
		_, err := NetCashflow(series(months[:2], 1, 2), series(months[1:3], 1, 2))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("ZeroInstalment", func(t *testing.T) {
		_, err := DSCR(5000, 0)
		if !errors.Is(err, domain.ErrDivisionByZero) {
			t.Errorf("expected ErrDivisionByZero, got %v", err)
		}
	})

	t.Run("NegativeCashflowIsZeroCoverage", func(t *testing.T) {
		dscr, err := DSCR(-2500, 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dscr != 0 {
			t.Errorf("expected 0, got %v", dscr)
		}
	})
}

func TestCashflowVariance(t *testing.T) {
	rev := series(months[:4], 10000, 12000, 10000, 12000)
	exp := series(months[:4], 5000, 5000, 5000, 5000)

	got, err := CashflowVariance(rev, exp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// net = 5000, 7000, 5000, 7000; mean 6000; sample std-dev 1154.70
	want := 1154.7005383792516 / 6000
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}

	single, err := CashflowVariance(series(months[:1], 100), series(months[:1], 50))
	if err != nil || single != 0 {
		t.Errorf("expected 0 for a single period, got %v (%v)", single, err)
	}
}

func TestCalculator(t *testing.T) {
	calc := NewCalculator(domain.DefaultPolicy())

	t.Run("Individual", func(t *testing.T) {
		p := &domain.ApplicantProfile{MonthlyIncome: 8000, MonthlyCommitments: 2000}
		r, err := calc.Individual(p, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.DSR != 0.25 {
			t.Errorf("expected DSR 0.25, got %v", r.DSR)
		}
		if math.Abs(r.FOIR-0.175) > eps {
			t.Errorf("expected FOIR 0.175, got %v", r.FOIR)
		}
		if r.Disposable != 6000 {
			t.Errorf("expected disposable 6000, got %v", r.Disposable)
		}
	})

	t.Run("CommitmentsOverride", func(t *testing.T) {
		p := &domain.ApplicantProfile{MonthlyIncome: 8000, MonthlyCommitments: 2000}
		override := 4000.0
		r, _ := calc.Individual(p, &override)
		if r.DSR != 0.5 {
			t.Errorf("expected DSR 0.5 with override, got %v", r.DSR)
		}
		if p.MonthlyCommitments != 2000 {
			t.Error("profile must not be mutated")
		}
	})

	t.Run("OverCommittedIsValid", func(t *testing.T) {
		p := &domain.ApplicantProfile{MonthlyIncome: 3000, MonthlyCommitments: 4500}
		r, err := calc.Individual(p, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.DSR != 1.5 || r.Disposable != -1500 {
			t.Errorf("unexpected ratios: %+v", r)
		}
	})

	t.Run("ConfigurableWeight", func(t *testing.T) {
		c := Calculator{FOIRWeight: 1.0}
		p := &domain.ApplicantProfile{MonthlyIncome: 10000, MonthlyCommitments: 3000}
		r, _ := c.Individual(p, nil)
		if r.FOIR != r.DSR {
			t.Errorf("weight 1.0 should make FOIR equal DSR, got %v vs %v", r.FOIR, r.DSR)
		}
	})

	t.Run("BusinessZeroInstalmentKeepsCashflow", func(t *testing.T) {
		p := &domain.BusinessProfile{
			Revenue:  series(months[:2], 1000, 1000),
			Expenses: series(months[:2], 400, 400),
		}
		r, err := calc.Business(p, 0)
		if !errors.Is(err, domain.ErrDivisionByZero) {
			t.Fatalf("expected ErrDivisionByZero, got %v", err)
		}
		if r.NetCashflow != 600 {
			t.Errorf("expected net cashflow 600, got %v", r.NetCashflow)
		}
	})
}
