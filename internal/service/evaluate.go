package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/loanscore/internal/amortization"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/scoring"
	"go.opentelemetry.io/otel/attribute"
)

// IndividualRequest selects a stored applicant by ID or carries the profile
// inline. Proposal is optional for stored evaluations.
type IndividualRequest struct {
	ApplicantID string                   `json:"applicantId,omitempty"`
	Profile     *domain.ApplicantProfile `json:"profile,omitempty"`
	Proposal    *domain.LoanProposal     `json:"proposal,omitempty"`
}

// BusinessRequest is the business counterpart of IndividualRequest.
type BusinessRequest struct {
	ApplicantID string                  `json:"applicantId,omitempty"`
	Profile     *domain.BusinessProfile `json:"profile,omitempty"`
	Proposal    *domain.LoanProposal    `json:"proposal,omitempty"`
}

// SimulationResult is a what-if evaluation and, when the applicant has a
// stored evaluation, how it compares.
type SimulationResult struct {
	Evaluation *domain.Evaluation `json:"evaluation"`
	Comparison *domain.Comparison `json:"comparison,omitempty"`
}

// Amortization is the repayment plan of a proposal.
type Amortization struct {
	Proposal domain.LoanProposal  `json:"proposal"`
	Summary  domain.LoanSummary   `json:"summary"`
	Schedule []amortization.Entry `json:"schedule"`
}

// EvaluateIndividual scores an individual, persists the result as the
// applicant's stored evaluation and announces it. An inline profile is
// stored as well.
func (s *Service) EvaluateIndividual(ctx context.Context, tenantID string, req IndividualRequest) (eval *domain.Evaluation, err error) {
	ctx, span := startSpan(ctx, "service.EvaluateIndividual", tenantID,
		attribute.String("evaluation.kind", string(domain.KindIndividual)),
		attribute.String("evaluation.mode", string(domain.ModeStored)),
	)
	defer func() { endSpan(span, err) }()
	start := s.now()

	profile, err := s.resolveApplicant(ctx, tenantID, req.ApplicantID, req.Profile, true)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	eval, err = s.Pipeline().EvaluateIndividual(profile, req.Proposal, catalog)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, tenantID, eval, start, catalog); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("evaluation.id", eval.ID))
	return eval, nil
}

// EvaluateBusiness scores a business and persists the stored evaluation.
func (s *Service) EvaluateBusiness(ctx context.Context, tenantID string, req BusinessRequest) (eval *domain.Evaluation, err error) {
	ctx, span := startSpan(ctx, "service.EvaluateBusiness", tenantID,
		attribute.String("evaluation.kind", string(domain.KindBusiness)),
		attribute.String("evaluation.mode", string(domain.ModeStored)),
	)
	defer func() { endSpan(span, err) }()
	start := s.now()

	profile, err := s.resolveBusiness(ctx, tenantID, req.ApplicantID, req.Profile, true)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	eval, err = s.Pipeline().EvaluateBusiness(profile, req.Proposal, catalog)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, tenantID, eval, start, catalog); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("evaluation.id", eval.ID))
	return eval, nil
}

// SimulateIndividual evaluates a hypothetical proposal. Nothing is stored.
func (s *Service) SimulateIndividual(ctx context.Context, tenantID string, req IndividualRequest) (res *SimulationResult, err error) {
	ctx, span := startSpan(ctx, "service.SimulateIndividual", tenantID,
		attribute.String("evaluation.kind", string(domain.KindIndividual)),
		attribute.String("evaluation.mode", string(domain.ModeSimulation)),
	)
	defer func() { endSpan(span, err) }()

	profile, err := s.resolveApplicant(ctx, tenantID, req.ApplicantID, req.Profile, false)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	eval, err := s.Pipeline().SimulateIndividual(profile, req.Proposal, catalog)
	if err != nil {
		return nil, err
	}
	return s.simulated(ctx, tenantID, eval, catalog)
}

// SimulateBusiness evaluates a hypothetical business proposal.
func (s *Service) SimulateBusiness(ctx context.Context, tenantID string, req BusinessRequest) (res *SimulationResult, err error) {
	ctx, span := startSpan(ctx, "service.SimulateBusiness", tenantID,
		attribute.String("evaluation.kind", string(domain.KindBusiness)),
		attribute.String("evaluation.mode", string(domain.ModeSimulation)),
	)
	defer func() { endSpan(span, err) }()

	profile, err := s.resolveBusiness(ctx, tenantID, req.ApplicantID, req.Profile, false)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	eval, err := s.Pipeline().SimulateBusiness(profile, req.Proposal, catalog)
	if err != nil {
		return nil, err
	}
	return s.simulated(ctx, tenantID, eval, catalog)
}

// Reevaluate refreshes the stored evaluation of a saved profile, carrying
// forward the proposal of the previous stored evaluation.
func (s *Service) Reevaluate(ctx context.Context, tenantID string, kind domain.ProfileKind, id string) (*domain.Evaluation, error) {
	prev, err := s.Latest(ctx, tenantID, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var proposal *domain.LoanProposal
	if prev != nil && prev.Kind == kind {
		proposal = prev.Proposal
	}

	switch kind {
	case domain.KindIndividual:
		return s.EvaluateIndividual(ctx, tenantID, IndividualRequest{ApplicantID: id, Proposal: proposal})
	case domain.KindBusiness:
		return s.EvaluateBusiness(ctx, tenantID, BusinessRequest{ApplicantID: id, Proposal: proposal})
	}
	return nil, domain.Invalid("kind", "unknown value %q", kind)
}

// Evaluation returns a stored evaluation by ID.
func (s *Service) Evaluation(ctx context.Context, tenantID, id string) (*domain.Evaluation, error) {
	if s.store != nil {
		eval, err := s.store.Evaluation(ctx, tenantID, id)
		if err != nil {
			slog.WarnContext(ctx, "evaluation cache read failed", "evaluation_id", id, "error", err)
		}
		if eval != nil {
			return eval, nil
		}
	}
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	return s.repo.GetEvaluation(ctx, tenantID, id)
}

// Latest returns the applicant's most recent stored evaluation.
func (s *Service) Latest(ctx context.Context, tenantID, applicantID string) (*domain.Evaluation, error) {
	if s.store != nil {
		eval, err := s.store.Latest(ctx, tenantID, applicantID)
		if err != nil {
			slog.WarnContext(ctx, "evaluation cache read failed", "applicant_id", applicantID, "error", err)
		}
		if eval != nil {
			return eval, nil
		}
	}
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	return s.repo.LatestEvaluation(ctx, tenantID, applicantID)
}

// Amortize builds the repayment schedule of a proposal.
func (s *Service) Amortize(p domain.LoanProposal) (*Amortization, error) {
	if err := p.Validate(domain.TenureBounds{Min: 1}); err != nil {
		return nil, err
	}
	summary, err := amortization.Summarize(p)
	if err != nil {
		return nil, err
	}
	schedule, err := amortization.Schedule(p)
	if err != nil {
		return nil, err
	}
	return &Amortization{Proposal: p, Summary: summary, Schedule: schedule}, nil
}

func (s *Service) resolveApplicant(ctx context.Context, tenantID, id string, inline *domain.ApplicantProfile, save bool) (*domain.ApplicantProfile, error) {
	if inline == nil {
		if id == "" {
			return nil, domain.Invalid("applicantId", "applicantId or profile is required")
		}
		return s.Applicant(ctx, tenantID, id)
	}

	profile := *inline
	if err := reconcileID(&profile.ID, id); err != nil {
		return nil, err
	}
	if !save {
		return &profile, nil
	}
	if profile.ID == "" {
		return nil, domain.Invalid("applicantId", "is required for stored evaluations")
	}
	if s.repo != nil {
		if err := s.SaveApplicant(ctx, tenantID, &profile); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

func (s *Service) resolveBusiness(ctx context.Context, tenantID, id string, inline *domain.BusinessProfile, save bool) (*domain.BusinessProfile, error) {
	if inline == nil {
		if id == "" {
			return nil, domain.Invalid("applicantId", "applicantId or profile is required")
		}
		return s.Business(ctx, tenantID, id)
	}

	profile := *inline
	if err := reconcileID(&profile.ID, id); err != nil {
		return nil, err
	}
	if !save {
		return &profile, nil
	}
	if profile.ID == "" {
		return nil, domain.Invalid("applicantId", "is required for stored evaluations")
	}
	if s.repo != nil {
		if err := s.SaveBusiness(ctx, tenantID, &profile); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

func reconcileID(profileID *string, requested string) error {
	switch {
	case requested == "":
	case *profileID == "":
		*profileID = requested
	case *profileID != requested:
		return domain.Invalid("applicantId", "does not match profile id %q", *profileID)
	}
	return nil
}

// persist stamps a stored evaluation, saves it, caches it and announces it.
func (s *Service) persist(ctx context.Context, tenantID string, eval *domain.Evaluation, start time.Time, catalog []domain.LoanProduct) error {
	created := s.now()
	eval.ID = s.newID()
	eval.TenantID = tenantID
	eval.CreatedAt = &created
	s.stamp(ctx, eval, start, catalog)

	if s.repo != nil {
		if err := s.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			return fmt.Errorf("failed to save evaluation: %w", err)
		}
	}
	if s.store != nil {
		if err := s.store.PutEvaluation(ctx, tenantID, eval); err != nil {
			slog.WarnContext(ctx, "evaluation cache write failed", "evaluation_id", eval.ID, "error", err)
		}
	}
	s.publish(ctx, tenantID, eval)

	slog.InfoContext(ctx, "evaluation stored",
		"evaluation_id", eval.ID,
		"tenant_id", tenantID,
		"applicant_id", eval.ApplicantID,
		"kind", eval.Kind,
		"grade", eval.Assessment.Grade.Tier.Letter(),
		"odds", eval.Assessment.Odds.Value,
		"duration_ms", eval.Metadata.TotalMs,
	)
	return nil
}

// simulated attaches only input-derived metadata, so identical simulations
// encode to identical bytes. The trace ID still travels in the response
// headers.
func (s *Service) simulated(ctx context.Context, tenantID string, eval *domain.Evaluation, catalog []domain.LoanProduct) (*SimulationResult, error) {
	eval.Metadata = metadata(eval, catalog)
	res := &SimulationResult{Evaluation: eval}

	if eval.ApplicantID == "" || s.repo == nil {
		return res, nil
	}
	stored, err := s.Latest(ctx, tenantID, eval.ApplicantID)
	switch {
	case errors.Is(err, ErrNotFound):
		return res, nil
	case err != nil:
		return nil, err
	}
	if stored.Kind == eval.Kind {
		c := scoring.Compare(stored, eval)
		res.Comparison = &c
	}
	return res, nil
}

func (s *Service) stamp(ctx context.Context, eval *domain.Evaluation, start time.Time, catalog []domain.LoanProduct) {
	eval.Metadata = metadata(eval, catalog)
	eval.Metadata.TraceID = traceID(ctx)
	eval.Metadata.TotalMs = s.now().Sub(start).Milliseconds()
}

func metadata(eval *domain.Evaluation, catalog []domain.LoanProduct) *domain.EvaluationMetadata {
	rated := 0
	for i := range catalog {
		if catalog[i].Enabled && catalog[i].Serves(eval.Kind) {
			rated++
		}
	}
	return &domain.EvaluationMetadata{
		ProductsRated: rated,
		RulesApplied:  len(eval.Assessment.Odds.Adjustments),
		EngineVersion: EngineVersion,
	}
}
