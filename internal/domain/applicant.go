package domain

// ProfileKind distinguishes individual applicants from SME borrowers.
type ProfileKind string

const (
	KindIndividual ProfileKind = "individual"
	KindBusiness   ProfileKind = "business"

	// KindAny is only meaningful on loan products.
	KindAny ProfileKind = "any"
)

// EmploymentStatus of an individual applicant.
type EmploymentStatus string

const (
	EmploymentSalaried     EmploymentStatus = "salaried"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentContract     EmploymentStatus = "contract"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentRetired      EmploymentStatus = "retired"
)

// IsValid reports whether s is a known employment status.
func (s EmploymentStatus) IsValid() bool {
	switch s {
	case EmploymentSalaried, EmploymentSelfEmployed, EmploymentContract, EmploymentUnemployed, EmploymentRetired:
		return true
	}
	return false
}

// IndustryRisk is the sector risk level of a business.
type IndustryRisk string

const (
	IndustryRiskLow    IndustryRisk = "low"
	IndustryRiskMedium IndustryRisk = "medium"
	IndustryRiskHigh   IndustryRisk = "high"
)

// IsValid reports whether r is a known industry risk level.
func (r IndustryRisk) IsValid() bool {
	switch r {
	case IndustryRiskLow, IndustryRiskMedium, IndustryRiskHigh:
		return true
	}
	return false
}

// ApplicantProfile is an individual borrower as delivered by the data layer.
// Commitments above income are allowed; they simply grade poorly.
type ApplicantProfile struct {
	ID                 string           `json:"id"`
	MonthlyIncome      float64          `json:"monthlyIncome"`
	MonthlyCommitments float64          `json:"monthlyCommitments"`
	EmploymentStatus   EmploymentStatus `json:"employmentStatus"`

	// Bureau signals are opaque inputs. Bucket 0 is best.
	BureauBucket int  `json:"bureauBucket"`
	BureauScore  *int `json:"bureauScore,omitempty"`

	// BaselineOdds is the odds figure the upstream system last showed.
	// Informational only; never used in scoring.
	BaselineOdds float64 `json:"baselineOdds,omitempty"`
}

// Validate checks the profile for malformed fields.
func (p *ApplicantProfile) Validate() error {
	if p == nil {
		return Invalid("profile", "is required")
	}
	if p.MonthlyIncome < 0 || !finite(p.MonthlyIncome) {
		return Invalid("monthlyIncome", "must be a finite non-negative amount")
	}
	if p.MonthlyCommitments < 0 || !finite(p.MonthlyCommitments) {
		return Invalid("monthlyCommitments", "must be a finite non-negative amount")
	}
	if p.EmploymentStatus == "" {
		return Invalid("employmentStatus", "is required")
	}
	if !p.EmploymentStatus.IsValid() {
		return Invalid("employmentStatus", "unknown value %q", p.EmploymentStatus)
	}
	if p.BureauBucket < 0 {
		return Invalid("bureauBucket", "must not be negative")
	}
	if p.BureauScore != nil && *p.BureauScore < 0 {
		return Invalid("bureauScore", "must not be negative")
	}
	if !(p.BaselineOdds >= 0 && p.BaselineOdds <= 100) {
		return Invalid("baselineOdds", "must be within 0-100")
	}
	return nil
}

// PeriodAmount is one entry of a monthly series.
type PeriodAmount struct {
	Period string  `json:"period"` // e.g. "2025-01"
	Amount float64 `json:"amount"`
}

// BusinessProfile is an SME borrower.
type BusinessProfile struct {
	ID       string         `json:"id"`
	Revenue  []PeriodAmount `json:"revenue"`
	Expenses []PeriodAmount `json:"expenses"`

	// RiskRating is the BRR ordinal, 1 (best) to 7 (worst).
	RiskRating  int  `json:"riskRating"`
	BureauScore *int `json:"bureauScore,omitempty"`

	// CashflowVariance is derived from the series when omitted.
	CashflowVariance *float64     `json:"cashflowVariance,omitempty"`
	IndustryRisk     IndustryRisk `json:"industryRisk"`
	CGCEligible      bool         `json:"cgcEligible"`
}

// Validate checks the profile for malformed fields. Empty series are not a
// validation failure; the ratio calculator reports them as a data gap.
func (p *BusinessProfile) Validate() error {
	if p == nil {
		return Invalid("profile", "is required")
	}
	if p.RiskRating < MinRiskRating || p.RiskRating > MaxRiskRating {
		return Invalid("riskRating", "must be within %d-%d", MinRiskRating, MaxRiskRating)
	}
	if !p.IndustryRisk.IsValid() {
		return Invalid("industryRisk", "unknown value %q", p.IndustryRisk)
	}
	if v := p.CashflowVariance; v != nil && (*v < 0 || !finite(*v)) {
		return Invalid("cashflowVariance", "must be a finite non-negative value")
	}
	if p.BureauScore != nil && *p.BureauScore < 0 {
		return Invalid("bureauScore", "must not be negative")
	}
	for i, e := range p.Revenue {
		if e.Amount < 0 || !finite(e.Amount) {
			return Invalid("revenue", "entry %d is negative or not finite", i)
		}
	}
	for i, e := range p.Expenses {
		if e.Amount < 0 || !finite(e.Amount) {
			return Invalid("expenses", "entry %d is negative or not finite", i)
		}
	}
	return nil
}

// BRR bounds.
const (
	MinRiskRating = 1
	MaxRiskRating = 7
)
