// Package matching ranks a lender catalog for one assessed applicant.
package matching

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/odds"
	"github.com/opensource-finance/loanscore/internal/ratio"
	"github.com/opensource-finance/loanscore/internal/rules"
)

// Ineligibility and eligibility reasons.
const (
	ReasonEligible       = "eligible"
	ReasonOverAmount     = "requested amount exceeds product maximum"
	ReasonOverTenure     = "requested tenure exceeds product maximum"
	ReasonGradeTooLow    = "grade below product minimum"
	ReasonNoCapacity     = "no borrowing capacity"
	ReasonCriteriaFailed = "product criteria not met"
)

// Request is everything the matcher needs about one applicant.
type Request struct {
	Kind       domain.ProfileKind
	Assessment *domain.RiskAssessment
	Capacity   domain.Capacity
	Proposal   *domain.LoanProposal

	// Input is the applicant view the product criteria are evaluated on.
	Input rules.Input

	// Limit bounds the result; 0 means unbounded.
	Limit int
}

// Matcher scores products with the policy weights.
type Matcher struct {
	policy domain.MatchPolicy
	engine *rules.Engine
}

// NewMatcher creates a matcher. engine evaluates product criteria.
func NewMatcher(policy domain.MatchPolicy, engine *rules.Engine) *Matcher {
	return &Matcher{policy: policy, engine: engine}
}

// Match returns one entry per enabled catalog product serving req.Kind,
// ineligible products included, sorted by match score descending and then
// by RateMinPct, BankID, Name and ID ascending.
func (m *Matcher) Match(catalog []domain.LoanProduct, req Request) ([]domain.ProductMatch, error) {
	products := make([]domain.LoanProduct, 0, len(catalog))
	for _, p := range catalog {
		if p.Enabled && p.Serves(req.Kind) {
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return []domain.ProductMatch{}, nil
	}

	lowest, highest := rateRange(products)
	amount := requestedAmount(req)

	matches := make([]domain.ProductMatch, 0, len(products))
	for _, p := range products {
		match, err := m.rate(p, req, amount, lowest, highest)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.Product.RateMinPct != b.Product.RateMinPct {
			return a.Product.RateMinPct < b.Product.RateMinPct
		}
		if a.Product.BankID != b.Product.BankID {
			return a.Product.BankID < b.Product.BankID
		}
		if a.Product.Name != b.Product.Name {
			return a.Product.Name < b.Product.Name
		}
		return a.Product.ID < b.Product.ID
	})

	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (m *Matcher) rate(p domain.LoanProduct, req Request, amount, lowest, highest float64) (domain.ProductMatch, error) {
	match := domain.ProductMatch{Product: p}

	// A product-specific FOIR weight replaces the policy one for this
	// product only; the grade keeps the policy FOIR.
	in := req.Input
	if p.FOIRWeight != nil && req.Kind == domain.KindIndividual {
		if foir, err := ratio.FOIR(in.Income, in.Commitments, *p.FOIRWeight); err == nil {
			in.FOIR = foir
			match.FOIR = &foir
		}
	}

	switch {
	case !req.Assessment.Grade.Tier.Meets(p.MinGrade):
		match.Reason = ReasonGradeTooLow
		return match, nil
	case req.Capacity.MaxLoanAmount <= 0:
		match.Reason = ReasonNoCapacity
		return match, nil
	}

	if p.Criteria != "" {
		ok, err := m.engine.Check(p.Criteria, in)
		if err != nil {
			return match, fmt.Errorf("product %s criteria: %w", p.ID, err)
		}
		if !ok {
			match.Reason = ReasonCriteriaFailed
			return match, nil
		}
	}

	match.Eligible = true
	match.Reason = ReasonEligible

	productOdds := req.Assessment.Odds.Value
	if amount > p.MaxAmount {
		productOdds -= m.policy.OverAmountPenalty
		match.Reason = ReasonOverAmount
	}
	if req.Proposal != nil && req.Proposal.TenureMonths > p.MaxTenureMonths {
		productOdds -= m.policy.OverTenurePenalty
		match.Reason = ReasonOverTenure
	}
	match.ApprovalOdds = odds.Clamp(productOdds)

	match.MatchScore = m.policy.OddsWeight*match.ApprovalOdds +
		m.policy.AmountWeight*AmountProximity(p.MaxAmount, amount)*100 +
		m.policy.RateWeight*RateCompetitiveness(p.RateMinPct, lowest, highest)*100

	tenure := req.Capacity.TenureMonths
	if req.Proposal != nil {
		tenure = req.Proposal.TenureMonths
	}
	if tenure > p.MaxTenureMonths {
		tenure = p.MaxTenureMonths
	}
	if emi, err := amortization.EMI(math.Min(amount, p.MaxAmount), p.RateMinPct, tenure); err == nil {
		match.EstimatedInstalment = emi
	}

	return match, nil
}

// AmountProximity is 1 when the requested amount equals the product maximum
// and falls toward 0 as they diverge.
func AmountProximity(maxAmount, requested float64) float64 {
	if maxAmount <= 0 || requested <= 0 {
		return 0
	}
	return 1 - math.Abs(maxAmount-requested)/math.Max(maxAmount, requested)
}

// RateCompetitiveness places rateMin within the catalog's [lowest, highest]
// minimum rates: 1 for the cheapest, 0 for the dearest, 1 when all are equal.
func RateCompetitiveness(rateMin, lowest, highest float64) float64 {
	if highest <= lowest {
		return 1
	}
	return (highest - rateMin) / (highest - lowest)
}

func rateRange(products []domain.LoanProduct) (lowest, highest float64) {
	lowest, highest = products[0].RateMinPct, products[0].RateMinPct
	for _, p := range products[1:] {
		lowest = math.Min(lowest, p.RateMinPct)
		highest = math.Max(highest, p.RateMinPct)
	}
	return lowest, highest
}

func requestedAmount(req Request) float64 {
	if req.Proposal != nil {
		return req.Proposal.Principal
	}
	return req.Capacity.MaxLoanAmount
}
