package ratio

import (
	"github.com/opensource-finance/loanscore/internal/domain"
)

// Calculator applies the policy FOIR weight.
type Calculator struct {
	FOIRWeight float64
}

// NewCalculator creates a calculator from policy.
func NewCalculator(policy domain.Policy) Calculator {
	return Calculator{FOIRWeight: policy.FOIRWeight}
}

// IndividualRatios are the ratios of an individual applicant.
type IndividualRatios struct {
	DSR        float64
	FOIR       float64
	Disposable float64
}

// Individual computes DSR and FOIR. commitmentsOverride, when non-nil,
// replaces the profile's commitments (e.g. commitments plus a proposed
// instalment). On a zero income the error is domain.ErrDivisionByZero and
// Disposable is still filled in.
func (c Calculator) Individual(p *domain.ApplicantProfile, commitmentsOverride *float64) (IndividualRatios, error) {
	commitments := p.MonthlyCommitments
	if commitmentsOverride != nil {
		commitments = *commitmentsOverride
	}

	r := IndividualRatios{Disposable: p.MonthlyIncome - commitments}

	dsr, err := DSR(p.MonthlyIncome, commitments)
	if err != nil {
		return r, err
	}
	foir, err := FOIR(p.MonthlyIncome, commitments, c.FOIRWeight)
	if err != nil {
		return r, err
	}

	r.DSR = dsr
	r.FOIR = foir
	return r, nil
}

// BusinessRatios are the ratios of a business applicant.
type BusinessRatios struct {
	NetCashflow float64
	DSCR        float64
}

// Business computes net cashflow and, for a positive instalment, DSCR.
// Errors: domain.ErrDataGap for empty history, a validation error for
// misaligned series, domain.ErrDivisionByZero for a zero instalment (with
// NetCashflow filled in).
func (c Calculator) Business(p *domain.BusinessProfile, instalment float64) (BusinessRatios, error) {
	var r BusinessRatios

	net, err := NetCashflow(p.Revenue, p.Expenses)
	if err != nil {
		return r, err
	}
	r.NetCashflow = net

	dscr, err := DSCR(net, instalment)
	if err != nil {
		return r, err
	}
	r.DSCR = dscr
	return r, nil
}
