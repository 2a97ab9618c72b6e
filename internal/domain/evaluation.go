package domain

import (
	"time"
)

// EvaluationMode tags an evaluation as the applicant's stored record or a
// throwaway what-if.
type EvaluationMode string

const (
	ModeStored     EvaluationMode = "stored"
	ModeSimulation EvaluationMode = "simulation"
)

// Evaluation is the complete output of the scoring pipeline.
type Evaluation struct {
	// Host-assigned, stored evaluations only.
	ID        string     `json:"id,omitempty"`
	TenantID  string     `json:"tenantId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	ApplicantID string         `json:"applicantId"`
	Mode        EvaluationMode `json:"mode"`
	Kind        ProfileKind    `json:"kind"`

	Proposal *LoanProposal `json:"proposal,omitempty"`
	Loan     *LoanSummary  `json:"loan,omitempty"`

	Assessment RiskAssessment `json:"assessment"`
	Capacity   Capacity       `json:"capacity"`
	Matches    []ProductMatch `json:"matches"`

	Metadata *EvaluationMetadata `json:"metadata,omitempty"`
}

// EvaluationMetadata contains processing information added by the host.
// TraceID and TotalMs are set on stored evaluations only.
type EvaluationMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	TotalMs       int64  `json:"totalMs,omitempty"`
	ProductsRated int    `json:"productsRated"`
	RulesApplied  int    `json:"rulesApplied"`
	EngineVersion string `json:"engineVersion"`
}

// Trend labels for a simulation compared with the stored evaluation.
const (
	TrendImproved  = "improved"
	TrendUnchanged = "unchanged"
	TrendReduced   = "reduced"
)

// Comparison contrasts a simulation with the stored evaluation.
type Comparison struct {
	StoredEvaluationID string  `json:"storedEvaluationId,omitempty"`
	StoredOdds         float64 `json:"storedOdds"`
	SimulatedOdds      float64 `json:"simulatedOdds"`
	OddsDelta          float64 `json:"oddsDelta"`
	MaxLoanDelta       float64 `json:"maxLoanDelta"`
	Trend              string  `json:"trend"`
}
