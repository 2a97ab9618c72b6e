package domain

import "math"

// LoanProposal is a requested (or hypothetical) loan.
type LoanProposal struct {
	Principal     float64 `json:"principal"`
	AnnualRatePct float64 `json:"annualRatePct"`
	TenureMonths  int     `json:"tenureMonths"`
}

// TenureBounds is a bank-policy tenure range. Max 0 means unbounded.
type TenureBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether months falls within the bounds.
func (b TenureBounds) Contains(months int) bool {
	if months < b.Min {
		return false
	}
	return b.Max <= 0 || months <= b.Max
}

// Validate rejects non-positive terms and tenures outside bounds.
func (p *LoanProposal) Validate(bounds TenureBounds) error {
	if p == nil {
		return Invalid("proposal", "is required")
	}
	if p.Principal <= 0 || !finite(p.Principal) {
		return Invalid("principal", "must be a positive finite amount")
	}
	if p.AnnualRatePct <= 0 || !finite(p.AnnualRatePct) {
		return Invalid("annualRatePct", "must be a positive finite rate")
	}
	if p.TenureMonths <= 0 {
		return Invalid("tenureMonths", "must be positive")
	}
	if !bounds.Contains(p.TenureMonths) {
		if bounds.Max > 0 {
			return Invalid("tenureMonths", "must be within %d-%d months", bounds.Min, bounds.Max)
		}
		return Invalid("tenureMonths", "must be at least %d months", bounds.Min)
	}
	return nil
}

// LoanProduct is one entry of a lender's catalog.
type LoanProduct struct {
	ID              string      `json:"id"`
	BankID          string      `json:"bankId"`
	Name            string      `json:"name"`
	Kind            ProfileKind `json:"kind"`
	RateMinPct      float64     `json:"rateMinPct"`
	RateMaxPct      float64     `json:"rateMaxPct"`
	MaxAmount       float64     `json:"maxAmount"`
	MaxTenureMonths int         `json:"maxTenureMonths"`

	// MinGrade is the worst grade the product still accepts.
	MinGrade Tier `json:"minGrade"`

	// FOIRWeight overrides Policy.FOIRWeight for this product's criteria
	// and reported FOIR.
	FOIRWeight *float64 `json:"foirWeight,omitempty"`

	// Criteria is an optional CEL expression evaluated against the
	// applicant, e.g. `employment != "unemployed" && income >= 3000.0`.
	Criteria string `json:"criteria,omitempty"`

	Enabled bool `json:"enabled"`
}

// Validate checks catalog invariants.
func (p *LoanProduct) Validate() error {
	if p.ID == "" {
		return Invalid("id", "is required")
	}
	if p.BankID == "" {
		return Invalid("bankId", "is required")
	}
	if p.Name == "" {
		return Invalid("name", "is required")
	}
	switch p.Kind {
	case KindIndividual, KindBusiness, KindAny:
	default:
		return Invalid("kind", "unknown value %q", p.Kind)
	}
	if p.RateMinPct < 0 || p.RateMaxPct < p.RateMinPct || !finite(p.RateMinPct) || !finite(p.RateMaxPct) {
		return Invalid("rateMinPct", "rate range must satisfy 0 <= min <= max")
	}
	if p.MaxAmount <= 0 || !finite(p.MaxAmount) {
		return Invalid("maxAmount", "must be positive")
	}
	if p.MaxTenureMonths <= 0 {
		return Invalid("maxTenureMonths", "must be positive")
	}
	if !p.MinGrade.IsValid() {
		return Invalid("minGrade", "must be one of A-D")
	}
	if w := p.FOIRWeight; w != nil && (*w <= 0 || *w > 1 || math.IsNaN(*w)) {
		return Invalid("foirWeight", "must be within (0, 1]")
	}
	return nil
}

// Serves reports whether the product is offered to the given profile kind.
func (p *LoanProduct) Serves(kind ProfileKind) bool {
	return p.Kind == KindAny || p.Kind == kind
}

// ProductMatch is a ranked catalog entry for one applicant.
type ProductMatch struct {
	Product             LoanProduct `json:"product"`
	Eligible            bool        `json:"eligible"`
	ApprovalOdds        float64     `json:"approvalOdds"`
	MatchScore          float64     `json:"matchScore"`
	EstimatedInstalment float64     `json:"estimatedInstalment"`
	Reason              string      `json:"reason"`

	// FOIR is recomputed with the product's own weight when it sets one.
	FOIR *float64 `json:"foir,omitempty"`
}

// Capacity is what the applicant can afford under policy.
type Capacity struct {
	MaxInstalment float64 `json:"maxInstalment"`
	MaxLoanAmount float64 `json:"maxLoanAmount"`

	// Terms the capacity was solved for.
	RatePct      float64 `json:"ratePct"`
	TenureMonths int     `json:"tenureMonths"`
}

// LoanSummary describes the repayment of a proposal.
type LoanSummary struct {
	Instalment    float64 `json:"instalment"`
	TotalPayment  float64 `json:"totalPayment"`
	TotalInterest float64 `json:"totalInterest"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
