package domain

// Policy holds every bank-policy constant used by the scoring core.
// DefaultPolicy returns the observed values; tenants override them through
// configuration rather than at call sites.
type Policy struct {
	// FOIRWeight is the share of commitments counted toward FOIR.
	FOIRWeight float64 `json:"foirWeight"`

	// Upper bounds of the Excellent, Good and Fair bands (lower is better).
	DSRBands  [3]float64 `json:"dsrBands"`
	FOIRBands [3]float64 `json:"foirBands"`

	// Lower bounds of the Excellent, Good and Fair bands (higher is better).
	ScoreBands [3]int     `json:"scoreBands"`
	DSCRBands  [3]float64 `json:"dscrBands"`

	// WorstCaseRatio replaces DSR/FOIR when income is zero.
	WorstCaseRatio float64 `json:"worstCaseRatio"`

	// InstalmentShare caps an individual's instalment as a share of
	// disposable income.
	InstalmentShare float64 `json:"instalmentShare"`

	// TargetDSCR caps a business instalment at net cashflow / TargetDSCR.
	TargetDSCR float64 `json:"targetDscr"`

	// Terms used to size capacity when no proposal is supplied.
	ReferenceRatePct      float64 `json:"referenceRatePct"`
	ReferenceTenureMonths int     `json:"referenceTenureMonths"`

	IndividualTenure TenureBounds `json:"individualTenure"`
	BusinessTenure   TenureBounds `json:"businessTenure"`

	// TierOdds is the baseline approval odds per tier, indexed A-D.
	TierOdds [4]float64 `json:"tierOdds"`

	// OddsRules replaces the built-in odds rule table when non-empty.
	OddsRules []OddsRule `json:"oddsRules,omitempty"`

	Match MatchPolicy `json:"match"`
}

// MatchPolicy configures product ranking.
type MatchPolicy struct {
	OddsWeight   float64 `json:"oddsWeight"`
	AmountWeight float64 `json:"amountWeight"`
	RateWeight   float64 `json:"rateWeight"`

	// Odds deducted for a single product when the request exceeds it.
	OverAmountPenalty float64 `json:"overAmountPenalty"`
	OverTenurePenalty float64 `json:"overTenurePenalty"`

	// TopN bounds; 0 means unbounded.
	TopNIndividual int `json:"topNIndividual"`
	TopNBusiness   int `json:"topNBusiness"`
}

// OddsRule is one row of the approval-odds rule table. Expression is a CEL
// boolean evaluated against the assessment; Delta is added when it holds.
type OddsRule struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Kind        ProfileKind `json:"kind"`
	Expression  string      `json:"expression"`
	Delta       float64     `json:"delta"`
	Enabled     bool        `json:"enabled"`
}

// Baseline approval odds per tier.
const (
	OddsTierA = 85.0
	OddsTierB = 70.0
	OddsTierC = 50.0
	OddsTierD = 30.0
)

// DefaultPolicy returns the consolidated policy constants.
func DefaultPolicy() Policy {
	return Policy{
		FOIRWeight:            0.7,
		DSRBands:              [3]float64{0.30, 0.40, 0.50},
		FOIRBands:             [3]float64{0.50, 0.60, 0.70},
		ScoreBands:            [3]int{700, 650, 600},
		DSCRBands:             [3]float64{1.5, 1.25, 1.0},
		WorstCaseRatio:        1.0,
		InstalmentShare:       0.70,
		TargetDSCR:            1.25,
		ReferenceRatePct:      7.0,
		ReferenceTenureMonths: 60,
		IndividualTenure:      TenureBounds{Min: 1},
		BusinessTenure:        TenureBounds{Min: 12, Max: 120},
		TierOdds:              [4]float64{OddsTierA, OddsTierB, OddsTierC, OddsTierD},
		Match: MatchPolicy{
			OddsWeight:        0.60,
			AmountWeight:      0.25,
			RateWeight:        0.15,
			OverAmountPenalty: 15,
			OverTenurePenalty: 10,
			TopNIndividual:    5,
			TopNBusiness:      0,
		},
	}
}

// Tenure returns the tenure bounds for kind.
func (p *Policy) Tenure(kind ProfileKind) TenureBounds {
	if kind == KindBusiness {
		return p.BusinessTenure
	}
	return p.IndividualTenure
}

// TopN returns the match list bound for kind.
func (p *Policy) TopN(kind ProfileKind) int {
	if kind == KindBusiness {
		return p.Match.TopNBusiness
	}
	return p.Match.TopNIndividual
}

// Validate checks that the policy is internally consistent.
func (p *Policy) Validate() error {
	if !(p.FOIRWeight > 0 && p.FOIRWeight <= 1) {
		return Invalid("policy.foirWeight", "must be within (0, 1]")
	}
	if !(p.DSRBands[0] < p.DSRBands[1] && p.DSRBands[1] < p.DSRBands[2]) {
		return Invalid("policy.dsrBands", "must be strictly ascending")
	}
	if !(p.FOIRBands[0] < p.FOIRBands[1] && p.FOIRBands[1] < p.FOIRBands[2]) {
		return Invalid("policy.foirBands", "must be strictly ascending")
	}
	if !(p.ScoreBands[0] > p.ScoreBands[1] && p.ScoreBands[1] > p.ScoreBands[2]) {
		return Invalid("policy.scoreBands", "must be strictly descending")
	}
	if !(p.DSCRBands[0] > p.DSCRBands[1] && p.DSCRBands[1] > p.DSCRBands[2]) {
		return Invalid("policy.dscrBands", "must be strictly descending")
	}
	if !(p.InstalmentShare > 0 && p.InstalmentShare <= 1) {
		return Invalid("policy.instalmentShare", "must be within (0, 1]")
	}
	if p.TargetDSCR <= 0 {
		return Invalid("policy.targetDscr", "must be positive")
	}
	if p.ReferenceRatePct < 0 || p.ReferenceTenureMonths <= 0 {
		return Invalid("policy.referenceTerms", "rate must be >= 0 and tenure positive")
	}
	if p.IndividualTenure.Min < 1 || p.BusinessTenure.Min < 1 {
		return Invalid("policy.tenure", "minimum tenure must be at least 1 month")
	}
	for i, v := range p.TierOdds {
		if v < 0 || v > 100 {
			return Invalid("policy.tierOdds", "tier %s odds must be within 0-100", Tier(i+1).Letter())
		}
	}
	m := p.Match
	if m.OddsWeight < 0 || m.AmountWeight < 0 || m.RateWeight < 0 {
		return Invalid("policy.match", "weights must not be negative")
	}
	if sum := m.OddsWeight + m.AmountWeight + m.RateWeight; sum < 0.999 || sum > 1.001 {
		return Invalid("policy.match", "weights must sum to 1")
	}
	if m.TopNIndividual < 0 || m.TopNBusiness < 0 {
		return Invalid("policy.match", "topN must not be negative")
	}
	return nil
}
