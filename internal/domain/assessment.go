package domain

import (
	"fmt"
	"strings"
)

// Status is a qualitative rating of a single signal.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"

	// StatusInsufficientData marks a signal that could not be computed.
	// It is never folded into Poor.
	StatusInsufficientData Status = "insufficient_data"
)

// Rank orders statuses from best (1) to worst (4). Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusExcellent:
		return 1
	case StatusGood:
		return 2
	case StatusFair:
		return 3
	case StatusPoor:
		return 4
	}
	return 0
}

// Tier is the overall risk tier, 1 (best) to 4 (worst), shown as A-D.
type Tier int

const (
	TierA Tier = iota + 1
	TierB
	TierC
	TierD
)

// IsValid reports whether t is one of A-D.
func (t Tier) IsValid() bool {
	return t >= TierA && t <= TierD
}

// Letter returns the letter grade.
func (t Tier) Letter() string {
	if !t.IsValid() {
		return "?"
	}
	return string(rune('A' + int(t) - 1))
}

// Meets reports whether t is at least as good as min.
func (t Tier) Meets(min Tier) bool {
	return t <= min
}

// TierForStatus maps a graded status onto a tier.
func TierForStatus(s Status) Tier {
	switch s {
	case StatusExcellent:
		return TierA
	case StatusGood:
		return TierB
	case StatusFair:
		return TierC
	}
	return TierD
}

// MarshalText encodes the letter grade; an unset tier encodes as "".
func (t Tier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return []byte{}, nil
	}
	return []byte(t.Letter()), nil
}

// UnmarshalText accepts "A"-"D" (any case) or "1"-"4".
func (t *Tier) UnmarshalText(b []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(b)))
	if s == "" {
		*t = 0
		return nil
	}
	if len(s) == 1 {
		switch {
		case s[0] >= 'A' && s[0] <= 'D':
			*t = Tier(s[0]-'A') + TierA
			return nil
		case s[0] >= '1' && s[0] <= '4':
			*t = Tier(s[0] - '0')
			return nil
		}
	}
	return fmt.Errorf("invalid grade %q", string(b))
}

// RiskGrade is the combined grade of an applicant.
type RiskGrade struct {
	Tier   Tier   `json:"tier"`
	Status Status `json:"status"`

	// BRR is the supplied business risk rating (business only).
	BRR int `json:"brr,omitempty"`
}

// SignalStatuses are the per-signal statuses behind a grade.
type SignalStatuses struct {
	DSR    Status `json:"dsr,omitempty"`
	FOIR   Status `json:"foir,omitempty"`
	Bucket Status `json:"bucket,omitempty"`
	Score  Status `json:"score,omitempty"`
	DSCR   Status `json:"dscr,omitempty"`
}

// OddsAdjustment is one rule that moved the approval odds.
type OddsAdjustment struct {
	RuleID string  `json:"ruleId"`
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

// Odds band labels.
const (
	OddsBandHigh     = "high"
	OddsBandModerate = "moderate"
	OddsBandLow      = "low"
	OddsBandVeryLow  = "very_low"
)

// ApprovalOdds is the heuristic 0-100 approval likelihood.
type ApprovalOdds struct {
	Value       float64          `json:"value"`
	Baseline    float64          `json:"baseline"`
	Band        string           `json:"band"`
	Adjustments []OddsAdjustment `json:"adjustments,omitempty"`
}

// Assessment flags record recovered conditions.
const (
	FlagIncomeZero       = "income_zero"
	FlagCashflowDataGap  = "cashflow_data_gap"
	FlagNoProposal       = "no_proposal"
	FlagNegativeCashflow = "negative_cashflow"
)

// RiskAssessment is the scored view of an applicant.
type RiskAssessment struct {
	Kind ProfileKind `json:"kind"`

	DSR  float64  `json:"dsr"`
	FOIR *float64 `json:"foir,omitempty"`
	DSCR *float64 `json:"dscr,omitempty"`

	// ResultingDSR is the DSR after adding the proposed instalment.
	ResultingDSR *float64 `json:"resultingDsr,omitempty"`

	DisposableIncome *float64 `json:"disposableIncome,omitempty"`
	NetCashflow      *float64 `json:"netCashflow,omitempty"`
	CashflowVariance *float64 `json:"cashflowVariance,omitempty"`

	Statuses SignalStatuses `json:"statuses"`
	Grade    RiskGrade      `json:"grade"`
	Odds     ApprovalOdds   `json:"odds"`

	Flags []string `json:"flags,omitempty"`
}

// HasFlag reports whether flag was recorded.
func (a *RiskAssessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
