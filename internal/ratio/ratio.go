// Package ratio computes serviceability ratios (DSR, FOIR, DSCR).
//
// All functions are pure. A zero denominator is reported as
// domain.ErrDivisionByZero and never produces Inf or NaN; what to substitute
// is the caller's decision.
package ratio

import (
	"fmt"
	"math"

	"github.com/opensource-finance/loanscore/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// DSR is commitments / income.
func DSR(income, commitments float64) (float64, error) {
	return divide(nonNegative(commitments), nonNegative(income), "monthlyIncome")
}

// FOIR is (commitments * weight) / income.
func FOIR(income, commitments, weight float64) (float64, error) {
	return divide(nonNegative(commitments)*nonNegative(weight), nonNegative(income), "monthlyIncome")
}

// DSCR is net cashflow / instalment. A negative cashflow covers nothing and
// yields 0.
func DSCR(netCashflow, instalment float64) (float64, error) {
	return divide(nonNegative(netCashflow), nonNegative(instalment), "instalment")
}

// NetCashflow is mean(revenue) - mean(expenses) over whatever periods are
// present. The two series must be the same length with matching periods.
func NetCashflow(revenue, expenses []domain.PeriodAmount) (float64, error) {
	if err := checkSeries(revenue, expenses); err != nil {
		return 0, err
	}
	return stat.Mean(amounts(revenue), nil) - stat.Mean(amounts(expenses), nil), nil
}

// CashflowVariance is the coefficient of variation of per-period net
// cashflow (std-dev / |mean|). Fewer than two periods gives 0.
func CashflowVariance(revenue, expenses []domain.PeriodAmount) (float64, error) {
	if err := checkSeries(revenue, expenses); err != nil {
		return 0, err
	}
	if len(revenue) < 2 {
		return 0, nil
	}

	net := make([]float64, len(revenue))
	for i := range revenue {
		net[i] = revenue[i].Amount - expenses[i].Amount
	}

	mean := stat.Mean(net, nil)
	if mean == 0 {
		return 0, fmt.Errorf("%w: mean net cashflow", domain.ErrDivisionByZero)
	}
	return stat.StdDev(net, nil) / math.Abs(mean), nil
}

func checkSeries(revenue, expenses []domain.PeriodAmount) error {
	if len(revenue) == 0 || len(expenses) == 0 {
		return fmt.Errorf("%w: revenue and expense history are required", domain.ErrDataGap)
	}
	if len(revenue) != len(expenses) {
		return domain.Invalid("expenses", "has %d periods, revenue has %d", len(expenses), len(revenue))
	}
	for i := range revenue {
		if revenue[i].Period != expenses[i].Period {
			return domain.Invalid("expenses", "period %q at index %d does not match revenue period %q",
				expenses[i].Period, i, revenue[i].Period)
		}
	}
	return nil
}

func amounts(series []domain.PeriodAmount) []float64 {
	out := make([]float64, len(series))
	for i, e := range series {
		out[i] = e.Amount
	}
	return out
}

func divide(num, den float64, name string) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%w: %s is zero", domain.ErrDivisionByZero, name)
	}
	return num / den, nil
}

// nonNegative clamps negatives and NaN to zero.
func nonNegative(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}
