package amortization

import (
	"github.com/opensource-finance/loanscore/internal/domain"
)

// Entry is one period of an amortization schedule.
type Entry struct {
	Period           int     `json:"period"`
	Instalment       float64 `json:"instalment"`
	Principal        float64 `json:"principal"`
	Interest         float64 `json:"interest"`
	RemainingBalance float64 `json:"remainingBalance"`
}

// Schedule computes the full repayment schedule of a proposal. The last
// period absorbs floating-point drift so the balance ends at exactly zero.
func Schedule(p domain.LoanProposal) ([]Entry, error) {
	emi, err := EMI(p.Principal, p.AnnualRatePct, p.TenureMonths)
	if err != nil {
		return nil, err
	}

	r := MonthlyRate(p.AnnualRatePct)
	remaining := p.Principal
	schedule := make([]Entry, 0, p.TenureMonths)

	for period := 1; period <= p.TenureMonths; period++ {
		interest := remaining * r
		principalPart := emi - interest
		instalment := emi

		if period == p.TenureMonths {
			principalPart = remaining
			instalment = principalPart + interest
		}

		remaining -= principalPart
		if remaining < 0 || period == p.TenureMonths {
			remaining = 0
		}

		schedule = append(schedule, Entry{
			Period:           period,
			Instalment:       instalment,
			Principal:        principalPart,
			Interest:         interest,
			RemainingBalance: remaining,
		})
	}

	return schedule, nil
}
