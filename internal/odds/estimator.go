// Package odds estimates approval odds from a transparent rule table.
package odds

import (
	"fmt"
	"math"

	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/rules"
)

// Odds band lower bounds.
const (
	BandHighMin     = 85.0
	BandModerateMin = 60.0
	BandLowMin      = 40.0
)

// Estimator turns a tier baseline plus rule adjustments into approval odds.
type Estimator struct {
	tierOdds [4]float64
	engine   *rules.Engine
}

// NewEstimator loads the policy's odds rules, or DefaultRules when the
// policy carries none, into engine.
func NewEstimator(policy domain.Policy, engine *rules.Engine) (*Estimator, error) {
	table := policy.OddsRules
	if len(table) == 0 {
		table = DefaultRules()
	}
	if err := engine.LoadRules(table); err != nil {
		return nil, fmt.Errorf("failed to load odds rules: %w", err)
	}
	return &Estimator{tierOdds: policy.TierOdds, engine: engine}, nil
}

// Rules returns the active rule table.
func (e *Estimator) Rules() []domain.OddsRule {
	return e.engine.Rules()
}

// Baseline returns the starting odds for tier.
func (e *Estimator) Baseline(tier domain.Tier) float64 {
	if !tier.IsValid() {
		return e.tierOdds[domain.TierD-1]
	}
	return e.tierOdds[tier-1]
}

// Estimate applies every matching rule to the tier baseline. The result is
// always within [0, 100].
func (e *Estimator) Estimate(tier domain.Tier, in rules.Input) (domain.ApprovalOdds, error) {
	baseline := e.Baseline(tier)
	in.Tier = tier

	results, err := e.engine.Evaluate(in)
	if err != nil {
		return domain.ApprovalOdds{}, err
	}

	value := baseline
	var adjustments []domain.OddsAdjustment
	for _, r := range results {
		if !r.Matched || r.Delta == 0 {
			continue
		}
		value += r.Delta
		adjustments = append(adjustments, domain.OddsAdjustment{
			RuleID: r.RuleID,
			Delta:  r.Delta,
			Reason: r.Reason,
		})
	}

	value = Clamp(value)
	return domain.ApprovalOdds{
		Value:       value,
		Baseline:    baseline,
		Band:        Band(value),
		Adjustments: adjustments,
	}, nil
}

// Clamp bounds v to [0, 100]. NaN clamps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// Band labels an odds value.
func Band(v float64) string {
	switch {
	case v >= BandHighMin:
		return domain.OddsBandHigh
	case v >= BandModerateMin:
		return domain.OddsBandModerate
	case v >= BandLowMin:
		return domain.OddsBandLow
	}
	return domain.OddsBandVeryLow
}
