package scoring

import (
	"math"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// trendTolerance absorbs float noise when comparing odds.
const trendTolerance = 1e-9

// Compare contrasts a simulation with the applicant's stored evaluation.
func Compare(stored, simulated *domain.Evaluation) domain.Comparison {
	c := domain.Comparison{
		StoredEvaluationID: stored.ID,
		StoredOdds:         stored.Assessment.Odds.Value,
		SimulatedOdds:      simulated.Assessment.Odds.Value,
		MaxLoanDelta:       simulated.Capacity.MaxLoanAmount - stored.Capacity.MaxLoanAmount,
	}
	c.OddsDelta = c.SimulatedOdds - c.StoredOdds

	switch {
	case math.Abs(c.OddsDelta) <= trendTolerance:
		c.OddsDelta = 0
		c.Trend = domain.TrendUnchanged
	case c.OddsDelta > 0:
		c.Trend = domain.TrendImproved
	default:
		c.Trend = domain.TrendReduced
	}
	return c
}
