package odds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// Individual rule thresholds. Resulting DSR bands are upper-inclusive.
const (
	DSRSevereAbove   = 0.40
	DSRElevatedAbove = 0.35
	DSRModerateAbove = 0.30

	DSRSeverePenalty   = -20.0
	DSRElevatedPenalty = -10.0
	DSRModeratePenalty = -5.0
	UnemployedPenalty  = -15.0
)

// Business rule thresholds.
const (
	DSCRShortfallBelow = 1.0
	DSCRThinBelow      = 1.25
	DSCRStrongAtLeast  = 2.0
	VolatileAbove      = 0.30

	DSCRShortfallPenalty    = -30.0
	DSCRThinPenalty         = -15.0
	DSCRStrongBonus         = 5.0
	HighIndustryPenalty     = -10.0
	VolatileCashflowPenalty = -5.0
	CGCBonus                = 5.0
	DSCRDataGapPenalty      = -10.0
)

// Rule IDs of the built-in table.
const (
	RuleDSRSevere     = "ind-dsr-severe"
	RuleDSRElevated   = "ind-dsr-elevated"
	RuleDSRModerate   = "ind-dsr-moderate"
	RuleUnemployed    = "ind-unemployed"
	RuleDSCRShortfall = "biz-dscr-shortfall"
	RuleDSCRThin      = "biz-dscr-thin"
	RuleDSCRStrong    = "biz-dscr-improved"
	RuleHighIndustry  = "biz-industry-high"
	RuleVolatile      = "biz-cashflow-volatile"
	RuleCGC           = "biz-cgc-eligible"
	RuleDSCRDataGap   = "biz-dscr-insufficient"
)

// DefaultRules returns the built-in odds rule table.
func DefaultRules() []domain.OddsRule {
	individual := func(id, desc, expr string, delta float64) domain.OddsRule {
		return domain.OddsRule{ID: id, Description: desc, Kind: domain.KindIndividual, Expression: expr, Delta: delta, Enabled: true}
	}
	business := func(id, desc, expr string, delta float64) domain.OddsRule {
		return domain.OddsRule{ID: id, Description: desc, Kind: domain.KindBusiness, Expression: expr, Delta: delta, Enabled: true}
	}

	return []domain.OddsRule{
		individual(RuleDSRSevere,
			fmt.Sprintf("resulting DSR above %s", pct(DSRSevereAbove)),
			fmt.Sprintf("has_proposal && resulting_dsr > %s", lit(DSRSevereAbove)),
			DSRSeverePenalty),
		individual(RuleDSRElevated,
			fmt.Sprintf("resulting DSR above %s", pct(DSRElevatedAbove)),
			fmt.Sprintf("has_proposal && resulting_dsr > %s && resulting_dsr <= %s", lit(DSRElevatedAbove), lit(DSRSevereAbove)),
			DSRElevatedPenalty),
		individual(RuleDSRModerate,
			fmt.Sprintf("resulting DSR above %s", pct(DSRModerateAbove)),
			fmt.Sprintf("has_proposal && resulting_dsr > %s && resulting_dsr <= %s", lit(DSRModerateAbove), lit(DSRElevatedAbove)),
			DSRModeratePenalty),
		individual(RuleUnemployed,
			"applicant is unemployed",
			fmt.Sprintf("employment == %q", domain.EmploymentUnemployed),
			UnemployedPenalty),

		business(RuleDSCRShortfall,
			fmt.Sprintf("DSCR below %s", lit(DSCRShortfallBelow)),
			fmt.Sprintf("has_proposal && dscr_status != %q && dscr < %s", domain.StatusInsufficientData, lit(DSCRShortfallBelow)),
			DSCRShortfallPenalty),
		business(RuleDSCRThin,
			fmt.Sprintf("DSCR below %s", lit(DSCRThinBelow)),
			fmt.Sprintf("has_proposal && dscr_status != %q && dscr >= %s && dscr < %s", domain.StatusInsufficientData, lit(DSCRShortfallBelow), lit(DSCRThinBelow)),
			DSCRThinPenalty),
		business(RuleDSCRStrong,
			fmt.Sprintf("DSCR improved to %s or more", lit(DSCRStrongAtLeast)),
			fmt.Sprintf("has_proposal && dscr_status != %q && dscr >= %s", domain.StatusInsufficientData, lit(DSCRStrongAtLeast)),
			DSCRStrongBonus),
		business(RuleHighIndustry,
			"high risk industry",
			fmt.Sprintf("industry_risk == %q", domain.IndustryRiskHigh),
			HighIndustryPenalty),
		business(RuleVolatile,
			fmt.Sprintf("cashflow variance above %s", pct(VolatileAbove)),
			fmt.Sprintf("cashflow_variance > %s", lit(VolatileAbove)),
			VolatileCashflowPenalty),
		business(RuleCGC,
			"eligible for credit guarantee cover",
			"cgc_eligible",
			CGCBonus),
		business(RuleDSCRDataGap,
			"cashflow history missing",
			fmt.Sprintf("dscr_status == %q", domain.StatusInsufficientData),
			DSCRDataGapPenalty),
	}
}

// lit formats v as a CEL double literal.
func lit(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', -1, 64) + "%"
}
