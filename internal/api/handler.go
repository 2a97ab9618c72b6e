package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/repository"
	"github.com/opensource-finance/loanscore/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, version string) *Handler {
	return &Handler{svc: svc, version: version}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := h.svc.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the backing stores answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// PutApplicant handles PUT /v1/applicants/{id}.
func (h *Handler) PutApplicant(w http.ResponseWriter, r *http.Request) {
	var p domain.ApplicantProfile
	if !decode(w, r, &p) {
		return
	}
	if !matchPathID(w, r, &p.ID) {
		return
	}
	if err := h.svc.SaveApplicant(r.Context(), GetTenantID(r.Context()), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetApplicant handles GET /v1/applicants/{id}.
func (h *Handler) GetApplicant(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Applicant(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutBusiness handles PUT /v1/businesses/{id}.
func (h *Handler) PutBusiness(w http.ResponseWriter, r *http.Request) {
	var p domain.BusinessProfile
	if !decode(w, r, &p) {
		return
	}
	if !matchPathID(w, r, &p.ID) {
		return
	}
	if err := h.svc.SaveBusiness(r.Context(), GetTenantID(r.Context()), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetBusiness handles GET /v1/businesses/{id}.
func (h *Handler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Business(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProducts handles GET /v1/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": nonNil(products),
		"count":    len(products),
	})
}

// CreateProduct handles POST /v1/products. Saving an existing ID replaces
// the product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.LoanProduct
	if !decode(w, r, &p) {
		return
	}
	if err := h.svc.SaveProduct(r.Context(), GetTenantID(r.Context()), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ReloadProducts handles POST /v1/products/reload.
func (h *Handler) ReloadProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ReloadCatalog(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "catalog reloaded",
		"count":   len(products),
	})
}

// EvaluateIndividual handles POST /v1/individual/evaluate.
func (h *Handler) EvaluateIndividual(w http.ResponseWriter, r *http.Request) {
	var req service.IndividualRequest
	if !decode(w, r, &req) {
		return
	}
	eval, err := h.svc.EvaluateIndividual(r.Context(), GetTenantID(r.Context()), req)
	h.writeEvaluation(w, r, eval, err)
}

// EvaluateBusiness handles POST /v1/business/evaluate.
func (h *Handler) EvaluateBusiness(w http.ResponseWriter, r *http.Request) {
	var req service.BusinessRequest
	if !decode(w, r, &req) {
		return
	}
	eval, err := h.svc.EvaluateBusiness(r.Context(), GetTenantID(r.Context()), req)
	h.writeEvaluation(w, r, eval, err)
}

// SimulateIndividual handles POST /v1/individual/simulate.
func (h *Handler) SimulateIndividual(w http.ResponseWriter, r *http.Request) {
	var req service.IndividualRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SimulateIndividual(r.Context(), GetTenantID(r.Context()), req)
	h.writeSimulation(w, r, res, err)
}

// SimulateBusiness handles POST /v1/business/simulate.
func (h *Handler) SimulateBusiness(w http.ResponseWriter, r *http.Request) {
	var req service.BusinessRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SimulateBusiness(r.Context(), GetTenantID(r.Context()), req)
	h.writeSimulation(w, r, res, err)
}

// GetEvaluation handles GET /v1/evaluations/{id}.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, err := h.svc.Evaluation(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	h.writeEvaluation(w, r, eval, err)
}

// Amortize handles POST /v1/amortization.
func (h *Handler) Amortize(w http.ResponseWriter, r *http.Request) {
	var p domain.LoanProposal
	if !decode(w, r, &p) {
		return
	}
	plan, err := h.svc.Amortize(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentAmortization(plan))
}

// ListRules handles GET /v1/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": nonNil(rules),
		"count": len(rules),
	})
}

// ReloadRules handles POST /v1/rules/reload.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ReloadRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(rules),
	})
}

func (h *Handler) writeEvaluation(w http.ResponseWriter, r *http.Request, eval *domain.Evaluation, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, page := present(r, eval)
	writeJSON(w, http.StatusOK, EvaluationResponse{Evaluation: out, Pagination: page})
}

func (h *Handler) writeSimulation(w http.ResponseWriter, r *http.Request, res *service.SimulationResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, page := present(r, res.Evaluation)
	writeJSON(w, http.StatusOK, SimulationResponse{Evaluation: out, Comparison: res.Comparison, Pagination: page})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON request body"})
		return false
	}
	return true
}

// matchPathID fills an empty body ID from the path and rejects a mismatch.
func matchPathID(w http.ResponseWriter, r *http.Request, id *string) bool {
	pathID := chi.URLParam(r, "id")
	if *id == "" {
		*id = pathID
	}
	if *id != pathID {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body id does not match path", Field: "id"})
		return false
	}
	return true
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, service.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
