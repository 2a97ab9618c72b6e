package api

import (
	"net/http"
	"strconv"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/service"
	"github.com/shopspring/decimal"
)

// Currency figures leave the API rounded half away from zero to 2 places;
// ratios and odds are left as computed.
const currencyPlaces = 2

// Match list paging for business evaluations.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination describes one page of matches.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// EvaluationResponse is an evaluation as returned over HTTP.
type EvaluationResponse struct {
	*domain.Evaluation
	Pagination *Pagination `json:"pagination,omitempty"`
}

// SimulationResponse adds the comparison with the stored evaluation.
type SimulationResponse struct {
	*domain.Evaluation
	Comparison *domain.Comparison `json:"comparison,omitempty"`
	Pagination *Pagination        `json:"pagination,omitempty"`
}

// AmortizationResponse is a repayment plan with rounded figures.
type AmortizationResponse struct {
	Proposal domain.LoanProposal  `json:"proposal"`
	Summary  domain.LoanSummary   `json:"summary"`
	Schedule []amortization.Entry `json:"schedule"`
}

func money(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(currencyPlaces).Float64()
	return f
}

func moneyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	m := money(*v)
	return &m
}

// present copies eval with currency rounded and, for business evaluations,
// the match list cut to the requested page.
func present(r *http.Request, eval *domain.Evaluation) (*domain.Evaluation, *Pagination) {
	out := *eval

	out.Assessment.DisposableIncome = moneyPtr(eval.Assessment.DisposableIncome)
	out.Assessment.NetCashflow = moneyPtr(eval.Assessment.NetCashflow)
	out.Capacity.MaxInstalment = money(eval.Capacity.MaxInstalment)
	out.Capacity.MaxLoanAmount = money(eval.Capacity.MaxLoanAmount)
	if eval.Loan != nil {
		loan := roundSummary(*eval.Loan)
		out.Loan = &loan
	}

	matches := eval.Matches
	var page *Pagination
	if eval.Kind == domain.KindBusiness {
		matches, page = paginate(r, matches)
	}
	out.Matches = make([]domain.ProductMatch, len(matches))
	for i, m := range matches {
		m.EstimatedInstalment = money(m.EstimatedInstalment)
		out.Matches[i] = m
	}
	return &out, page
}

func presentAmortization(plan *service.Amortization) AmortizationResponse {
	resp := AmortizationResponse{
		Proposal: plan.Proposal,
		Summary:  roundSummary(plan.Summary),
		Schedule: make([]amortization.Entry, len(plan.Schedule)),
	}
	for i, e := range plan.Schedule {
		resp.Schedule[i] = amortization.Entry{
			Period:           e.Period,
			Instalment:       money(e.Instalment),
			Principal:        money(e.Principal),
			Interest:         money(e.Interest),
			RemainingBalance: money(e.RemainingBalance),
		}
	}
	return resp
}

func roundSummary(s domain.LoanSummary) domain.LoanSummary {
	return domain.LoanSummary{
		Instalment:    money(s.Instalment),
		TotalPayment:  money(s.TotalPayment),
		TotalInterest: money(s.TotalInterest),
	}
}

// paginate reads page and pageSize from the query. Out-of-range values fall
// back to the defaults; a page past the end is empty.
func paginate(r *http.Request, matches []domain.ProductMatch) ([]domain.ProductMatch, *Pagination) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	size := queryInt(r, "pageSize", defaultPageSize)
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	p := &Pagination{Page: page, PageSize: size, Total: len(matches)}
	start := (page - 1) * size
	if start >= len(matches) {
		return nil, p
	}
	end := min(start+size, len(matches))
	return matches[start:end], p
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}
