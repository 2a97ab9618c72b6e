package rules

import (
	"github.com/opensource-finance/loanscore/internal/domain"
)

// Input is the flat view of an applicant exposed to CEL expressions.
// Fields that do not apply to the applicant's kind stay at their zero value.
type Input struct {
	Kind domain.ProfileKind

	Income       float64
	Commitments  float64
	Disposable   float64
	Employment   domain.EmploymentStatus
	DSR          float64
	FOIR         float64
	ResultingDSR float64
	BureauBucket int
	BureauScore  *int

	Tier domain.Tier
	BRR  int

	NetCashflow      float64
	DSCR             float64
	DSCRStatus       domain.Status
	CashflowVariance float64
	IndustryRisk     domain.IndustryRisk
	CGCEligible      bool

	Proposal   *domain.LoanProposal
	Instalment float64
	MaxLoan    float64
}

// Activation returns the CEL variable bindings.
func (in Input) Activation() map[string]any {
	var score int64
	if in.BureauScore != nil {
		score = int64(*in.BureauScore)
	}

	var grade string
	if in.Tier.IsValid() {
		grade = in.Tier.Letter()
	}

	var principal, rate float64
	var tenure int64
	if in.Proposal != nil {
		principal = in.Proposal.Principal
		rate = in.Proposal.AnnualRatePct
		tenure = int64(in.Proposal.TenureMonths)
	}

	return map[string]any{
		"kind":              string(in.Kind),
		"income":            in.Income,
		"commitments":       in.Commitments,
		"disposable":        in.Disposable,
		"employment":        string(in.Employment),
		"dsr":               in.DSR,
		"foir":              in.FOIR,
		"resulting_dsr":     in.ResultingDSR,
		"bureau_bucket":     int64(in.BureauBucket),
		"has_score":         in.BureauScore != nil,
		"bureau_score":      score,
		"tier":              int64(in.Tier),
		"grade":             grade,
		"brr":               int64(in.BRR),
		"net_cashflow":      in.NetCashflow,
		"dscr":              in.DSCR,
		"dscr_status":       string(in.DSCRStatus),
		"cashflow_variance": in.CashflowVariance,
		"industry_risk":     string(in.IndustryRisk),
		"cgc_eligible":      in.CGCEligible,
		"has_proposal":      in.Proposal != nil,
		"principal":         principal,
		"rate":              rate,
		"tenure":            tenure,
		"instalment":        in.Instalment,
		"max_loan":          in.MaxLoan,
	}
}
