// Package scoring wires ratios, grading, amortization, odds and product
// matching into one evaluation of an applicant.
//
// A Pipeline is a pure function of its inputs: it reads no clock, performs
// no I/O and never mutates the profile, proposal or catalog it is given.
// Stored and simulated evaluations differ only in their Mode tag.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/grading"
	"github.com/opensource-finance/loanscore/internal/matching"
	"github.com/opensource-finance/loanscore/internal/odds"
	"github.com/opensource-finance/loanscore/internal/ratio"
	"github.com/opensource-finance/loanscore/internal/rules"
)

// Pipeline evaluates applicants under one policy.
type Pipeline struct {
	policy    domain.Policy
	calc      ratio.Calculator
	grader    *grading.Grader
	estimator *odds.Estimator
	matcher   *matching.Matcher
}

// NewPipeline validates policy and loads its odds rules into a fork of
// engine. Pipelines built from the same engine never share a rule table.
func NewPipeline(policy domain.Policy, engine *rules.Engine) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("rules engine is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	engine = engine.Fork()

	estimator, err := odds.NewEstimator(policy, engine)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		policy:    policy,
		calc:      ratio.NewCalculator(policy),
		grader:    grading.NewGrader(policy),
		estimator: estimator,
		matcher:   matching.NewMatcher(policy.Match, engine),
	}, nil
}

// Policy returns the policy the pipeline was built with.
func (p *Pipeline) Policy() domain.Policy {
	return p.policy
}

// Rules returns the active odds rule table.
func (p *Pipeline) Rules() []domain.OddsRule {
	return p.estimator.Rules()
}

// EvaluateIndividual produces the stored evaluation of an individual.
// proposal is optional.
func (p *Pipeline) EvaluateIndividual(profile *domain.ApplicantProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct) (*domain.Evaluation, error) {
	return p.individual(profile, proposal, catalog, domain.ModeStored)
}

// SimulateIndividual evaluates a hypothetical proposal. The result is
// identical to EvaluateIndividual on the same inputs apart from Mode.
func (p *Pipeline) SimulateIndividual(profile *domain.ApplicantProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct) (*domain.Evaluation, error) {
	if proposal == nil {
		return nil, domain.Invalid("proposal", "is required")
	}
	return p.individual(profile, proposal, catalog, domain.ModeSimulation)
}

// EvaluateBusiness produces the stored evaluation of a business.
// proposal is optional; without it DSCR is not computed.
func (p *Pipeline) EvaluateBusiness(profile *domain.BusinessProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct) (*domain.Evaluation, error) {
	return p.business(profile, proposal, catalog, domain.ModeStored)
}

// SimulateBusiness evaluates a hypothetical business proposal.
func (p *Pipeline) SimulateBusiness(profile *domain.BusinessProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct) (*domain.Evaluation, error) {
	if proposal == nil {
		return nil, domain.Invalid("proposal", "is required")
	}
	return p.business(profile, proposal, catalog, domain.ModeSimulation)
}

func (p *Pipeline) individual(profile *domain.ApplicantProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct, mode domain.EvaluationMode) (*domain.Evaluation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	proposal, loan, err := p.prepare(proposal, domain.KindIndividual)
	if err != nil {
		return nil, err
	}

	assessment := domain.RiskAssessment{Kind: domain.KindIndividual}

	base, err := p.calc.Individual(profile, nil)
	if err != nil {
		if !errors.Is(err, domain.ErrDivisionByZero) {
			return nil, err
		}
		base.DSR = p.policy.WorstCaseRatio
		base.FOIR = p.policy.WorstCaseRatio
		assessment.Flags = append(assessment.Flags, domain.FlagIncomeZero)
	}
	assessment.DSR = base.DSR
	assessment.FOIR = ptr(base.FOIR)
	assessment.DisposableIncome = ptr(base.Disposable)

	resulting := base.DSR
	if loan != nil {
		withLoan := profile.MonthlyCommitments + loan.Instalment
		after, err := p.calc.Individual(profile, &withLoan)
		switch {
		case err == nil:
			resulting = after.DSR
		case errors.Is(err, domain.ErrDivisionByZero):
			resulting = p.policy.WorstCaseRatio
		default:
			return nil, err
		}
		assessment.ResultingDSR = ptr(resulting)
	} else {
		assessment.Flags = append(assessment.Flags, domain.FlagNoProposal)
	}

	assessment.Grade, assessment.Statuses = p.grader.GradeIndividual(grading.IndividualSignals{
		DSR:    base.DSR,
		FOIR:   base.FOIR,
		Bucket: profile.BureauBucket,
		Score:  profile.BureauScore,
	})

	capacity, err := p.capacity(base.Disposable*p.policy.InstalmentShare, proposal)
	if err != nil {
		return nil, err
	}

	in := rules.Input{
		Kind:         domain.KindIndividual,
		Income:       profile.MonthlyIncome,
		Commitments:  profile.MonthlyCommitments,
		Disposable:   base.Disposable,
		Employment:   profile.EmploymentStatus,
		DSR:          base.DSR,
		FOIR:         base.FOIR,
		ResultingDSR: resulting,
		BureauBucket: profile.BureauBucket,
		BureauScore:  profile.BureauScore,
		Proposal:     proposal,
		MaxLoan:      capacity.MaxLoanAmount,
	}
	if loan != nil {
		in.Instalment = loan.Instalment
	}

	return p.finish(profile.ID, mode, &assessment, capacity, proposal, loan, in, catalog)
}

func (p *Pipeline) business(profile *domain.BusinessProfile, proposal *domain.LoanProposal, catalog []domain.LoanProduct, mode domain.EvaluationMode) (*domain.Evaluation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	proposal, loan, err := p.prepare(proposal, domain.KindBusiness)
	if err != nil {
		return nil, err
	}

	assessment := domain.RiskAssessment{Kind: domain.KindBusiness}
	var instalment float64
	if loan != nil {
		instalment = loan.Instalment
	} else {
		assessment.Flags = append(assessment.Flags, domain.FlagNoProposal)
	}

	signals := grading.BusinessSignals{BRR: profile.RiskRating, Score: profile.BureauScore}
	var net float64

	ratios, err := p.calc.Business(profile, instalment)
	switch {
	case err == nil:
		net = ratios.NetCashflow
		assessment.NetCashflow = ptr(net)
		assessment.DSCR = ptr(ratios.DSCR)
		signals.DSCR = assessment.DSCR
	case errors.Is(err, domain.ErrDataGap):
		signals.DSCRDataGap = true
		assessment.Flags = append(assessment.Flags, domain.FlagCashflowDataGap)
	case errors.Is(err, domain.ErrDivisionByZero):
		// No instalment to cover; net cashflow is still known.
		net = ratios.NetCashflow
		assessment.NetCashflow = ptr(net)
	default:
		return nil, err
	}
	if assessment.NetCashflow != nil && net < 0 {
		assessment.Flags = append(assessment.Flags, domain.FlagNegativeCashflow)
	}

	variance, err := p.cashflowVariance(profile)
	if err != nil {
		return nil, err
	}
	assessment.CashflowVariance = variance

	assessment.Grade, assessment.Statuses = p.grader.GradeBusiness(signals)

	maxInstalment := 0.0
	if !signals.DSCRDataGap {
		maxInstalment = net / p.policy.TargetDSCR
	}
	capacity, err := p.capacity(maxInstalment, proposal)
	if err != nil {
		return nil, err
	}

	in := rules.Input{
		Kind:         domain.KindBusiness,
		BureauScore:  profile.BureauScore,
		BRR:          profile.RiskRating,
		NetCashflow:  net,
		DSCRStatus:   assessment.Statuses.DSCR,
		IndustryRisk: profile.IndustryRisk,
		CGCEligible:  profile.CGCEligible,
		Proposal:     proposal,
		Instalment:   instalment,
		MaxLoan:      capacity.MaxLoanAmount,
	}
	if assessment.DSCR != nil {
		in.DSCR = *assessment.DSCR
	}
	if variance != nil {
		in.CashflowVariance = *variance
	}

	return p.finish(profile.ID, mode, &assessment, capacity, proposal, loan, in, catalog)
}

// prepare validates an optional proposal and returns a private copy with its
// repayment summary.
func (p *Pipeline) prepare(proposal *domain.LoanProposal, kind domain.ProfileKind) (*domain.LoanProposal, *domain.LoanSummary, error) {
	if proposal == nil {
		return nil, nil, nil
	}
	if err := proposal.Validate(p.policy.Tenure(kind)); err != nil {
		return nil, nil, err
	}

	own := *proposal
	loan, err := amortization.Summarize(own)
	if err != nil {
		return nil, nil, err
	}
	return &own, &loan, nil
}

// capacity solves the largest principal affordable at maxInstalment, on the
// proposal's terms or the policy reference terms.
func (p *Pipeline) capacity(maxInstalment float64, proposal *domain.LoanProposal) (domain.Capacity, error) {
	c := domain.Capacity{
		MaxInstalment: math.Max(0, maxInstalment),
		RatePct:       p.policy.ReferenceRatePct,
		TenureMonths:  p.policy.ReferenceTenureMonths,
	}
	if proposal != nil {
		c.RatePct = proposal.AnnualRatePct
		c.TenureMonths = proposal.TenureMonths
	}

	maxLoan, err := amortization.MaxPrincipal(c.MaxInstalment, c.RatePct, c.TenureMonths)
	if err != nil {
		return c, fmt.Errorf("capacity: %w", err)
	}
	c.MaxLoanAmount = maxLoan
	return c, nil
}

// cashflowVariance prefers the supplied variance. A derived variance over a
// zero mean is treated as the worst-case ratio; a data gap leaves it unset.
func (p *Pipeline) cashflowVariance(profile *domain.BusinessProfile) (*float64, error) {
	if profile.CashflowVariance != nil {
		return ptr(*profile.CashflowVariance), nil
	}

	v, err := ratio.CashflowVariance(profile.Revenue, profile.Expenses)
	switch {
	case err == nil:
		return ptr(v), nil
	case errors.Is(err, domain.ErrDataGap):
		return nil, nil
	case errors.Is(err, domain.ErrDivisionByZero):
		return ptr(p.policy.WorstCaseRatio), nil
	}
	return nil, err
}

func (p *Pipeline) finish(
	applicantID string,
	mode domain.EvaluationMode,
	assessment *domain.RiskAssessment,
	capacity domain.Capacity,
	proposal *domain.LoanProposal,
	loan *domain.LoanSummary,
	in rules.Input,
	catalog []domain.LoanProduct,
) (*domain.Evaluation, error) {
	approval, err := p.estimator.Estimate(assessment.Grade.Tier, in)
	if err != nil {
		return nil, fmt.Errorf("odds: %w", err)
	}
	assessment.Odds = approval
	in.Tier = assessment.Grade.Tier

	matches, err := p.matcher.Match(catalog, matching.Request{
		Kind:       assessment.Kind,
		Assessment: assessment,
		Capacity:   capacity,
		Proposal:   proposal,
		Input:      in,
		Limit:      p.policy.TopN(assessment.Kind),
	})
	if err != nil {
		return nil, fmt.Errorf("matching: %w", err)
	}

	return &domain.Evaluation{
		ApplicantID: applicantID,
		Mode:        mode,
		Kind:        assessment.Kind,
		Proposal:    proposal,
		Loan:        loan,
		Assessment:  *assessment,
		Capacity:    capacity,
		Matches:     matches,
	}, nil
}

func ptr(v float64) *float64 {
	return &v
}
