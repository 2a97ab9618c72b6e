package grading

import (
	"github.com/opensource-finance/loanscore/internal/domain"
)

// Grader applies the policy bands.
type Grader struct {
	policy domain.Policy
}

// NewGrader creates a grader.
func NewGrader(policy domain.Policy) *Grader {
	return &Grader{policy: policy}
}

// IndividualSignals are the inputs of an individual grade.
type IndividualSignals struct {
	DSR    float64
	FOIR   float64
	Bucket int
	Score  *int
}

// GradeIndividual combines the per-signal statuses worst-status-wins over
// {DSR, FOIR, bucket, score}. An absent score is left out of the combination.
func (g *Grader) GradeIndividual(s IndividualSignals) (domain.RiskGrade, domain.SignalStatuses) {
	statuses := domain.SignalStatuses{
		DSR:    RatioStatus(s.DSR, g.policy.DSRBands),
		FOIR:   RatioStatus(s.FOIR, g.policy.FOIRBands),
		Bucket: BucketStatus(s.Bucket),
	}
	if s.Score != nil {
		statuses.Score = ScoreStatus(*s.Score, g.policy.ScoreBands)
	}

	overall := Worst(statuses.DSR, statuses.FOIR, statuses.Bucket, statuses.Score)
	return domain.RiskGrade{
		Tier:   domain.TierForStatus(overall),
		Status: overall,
	}, statuses
}

// BusinessSignals are the inputs of a business grade.
type BusinessSignals struct {
	BRR   int
	Score *int

	// DSCR is nil when it could not be computed.
	DSCR        *float64
	DSCRDataGap bool
}

// GradeBusiness takes the grade directly from the business risk rating. DSCR
// and score are reported alongside and never override it.
func (g *Grader) GradeBusiness(s BusinessSignals) (domain.RiskGrade, domain.SignalStatuses) {
	var statuses domain.SignalStatuses
	switch {
	case s.DSCRDataGap:
		statuses.DSCR = domain.StatusInsufficientData
	case s.DSCR != nil:
		statuses.DSCR = DSCRStatus(*s.DSCR, g.policy.DSCRBands)
	}
	if s.Score != nil {
		statuses.Score = ScoreStatus(*s.Score, g.policy.ScoreBands)
	}

	tier := TierForBRR(s.BRR)
	return domain.RiskGrade{
		Tier:   tier,
		Status: statusForTier(tier),
		BRR:    s.BRR,
	}, statuses
}

// TierForBRR maps the 1-7 business risk rating onto four tiers:
// 1-2 A, 3-4 B, 5-6 C, 7 D.
func TierForBRR(brr int) domain.Tier {
	switch {
	case brr <= 2:
		return domain.TierA
	case brr <= 4:
		return domain.TierB
	case brr <= 6:
		return domain.TierC
	}
	return domain.TierD
}

func statusForTier(t domain.Tier) domain.Status {
	switch t {
	case domain.TierA:
		return domain.StatusExcellent
	case domain.TierB:
		return domain.StatusGood
	case domain.TierC:
		return domain.StatusFair
	}
	return domain.StatusPoor
}
