// Package amortization implements fixed-rate instalment arithmetic.
//
// The calculation uses:
//
//	monthlyRate = annualRatePct / 100 / 12
//	EMI         = P * r / (1 - (1+r)^-n)    (r > 0)
//	EMI         = P / n                     (r = 0)
//
// MaxPrincipal is the same formula solved for P. The negative exponent keeps
// long tenures finite: as n grows the instalment tends to P * r.
// Everything is computed at full float64 precision; rounding to the currency
// minor unit belongs to the presentation layer.
package amortization

import (
	"math"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// MonthlyRate converts an annual nominal percentage to a monthly rate.
func MonthlyRate(annualRatePct float64) float64 {
	return annualRatePct / 100 / 12
}

// EMI returns the fixed monthly instalment for principal over tenureMonths.
func EMI(principal, annualRatePct float64, tenureMonths int) (float64, error) {
	if err := checkTerms(annualRatePct, tenureMonths); err != nil {
		return 0, err
	}
	if principal < 0 || !finite(principal) {
		return 0, domain.Invalid("principal", "must be a finite non-negative amount")
	}

	n := float64(tenureMonths)
	r := MonthlyRate(annualRatePct)
	if r == 0 {
		return principal / n, nil
	}

	return principal * r / (1 - math.Pow(1+r, -n)), nil
}

// MaxPrincipal returns the largest principal whose EMI equals targetEMI.
// A non-positive target affords nothing.
func MaxPrincipal(targetEMI, annualRatePct float64, tenureMonths int) (float64, error) {
	if err := checkTerms(annualRatePct, tenureMonths); err != nil {
		return 0, err
	}
	if math.IsNaN(targetEMI) || math.IsInf(targetEMI, 1) {
		return 0, domain.Invalid("targetEMI", "must be finite")
	}
	if targetEMI <= 0 {
		return 0, nil
	}

	n := float64(tenureMonths)
	r := MonthlyRate(annualRatePct)
	if r == 0 {
		return targetEMI * n, nil
	}

	return targetEMI * (1 - math.Pow(1+r, -n)) / r, nil
}

// Summarize returns instalment and totals for a proposal.
func Summarize(p domain.LoanProposal) (domain.LoanSummary, error) {
	emi, err := EMI(p.Principal, p.AnnualRatePct, p.TenureMonths)
	if err != nil {
		return domain.LoanSummary{}, err
	}
	total := emi * float64(p.TenureMonths)
	return domain.LoanSummary{
		Instalment:    emi,
		TotalPayment:  total,
		TotalInterest: total - p.Principal,
	}, nil
}

func checkTerms(annualRatePct float64, tenureMonths int) error {
	if tenureMonths <= 0 {
		return domain.Invalid("tenureMonths", "must be positive")
	}
	if annualRatePct < 0 || !finite(annualRatePct) {
		return domain.Invalid("annualRatePct", "must be a finite non-negative rate")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
