// Package service hosts the scoring pipeline: it resolves profiles and the
// tenant catalog, stamps and persists stored evaluations, and announces
// them on the event bus. Both the HTTP API and the async worker go through
// it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/loanscore/internal/cache"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/repository"
	"github.com/opensource-finance/loanscore/internal/rules"
	"github.com/opensource-finance/loanscore/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion is stamped on every evaluation.
const EngineVersion = "loanscore-1.0"

var (
	// ErrNotFound is returned when a profile or evaluation does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrUnavailable is returned when a backing component is missing.
	ErrUnavailable = errors.New("service unavailable")
)

var tracer = otel.Tracer("loanscore-service")

// Service coordinates the repository, cache, bus and scoring pipeline.
type Service struct {
	repo   domain.Repository
	store  *cache.Store
	bus    domain.EventBus
	engine *rules.Engine

	pipeline   atomic.Pointer[scoring.Pipeline]
	policyFile string

	now   func() time.Time
	newID func() string
}

// Options configure a Service.
type Options struct {
	Policy domain.Policy

	// PolicyFile is re-read by ReloadRules when set.
	PolicyFile string
}

// New builds a Service. repo, store and bus may be nil; operations that
// need a missing component fail with ErrUnavailable, and evaluations are
// then neither persisted nor announced.
func New(repo domain.Repository, store *cache.Store, bus domain.EventBus, engine *rules.Engine, opts Options) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("rules engine is required")
	}

	p, err := scoring.NewPipeline(opts.Policy, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	s := &Service{
		repo:       repo,
		store:      store,
		bus:        bus,
		engine:     engine,
		policyFile: opts.PolicyFile,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	s.pipeline.Store(p)
	return s, nil
}

// Pipeline returns the active pipeline.
func (s *Service) Pipeline() *scoring.Pipeline {
	return s.pipeline.Load()
}

// Policy returns the active policy.
func (s *Service) Policy() domain.Policy {
	return s.pipeline.Load().Policy()
}

// Rules returns the active odds rule table.
func (s *Service) Rules() []domain.OddsRule {
	return s.pipeline.Load().Rules()
}

// ReloadRules rebuilds the pipeline from the policy file, or from the
// current policy when no file is configured, with the policy environment
// overrides applied on top. A bad file leaves the running pipeline untouched.
func (s *Service) ReloadRules(ctx context.Context) ([]domain.OddsRule, error) {
	policy := s.Policy()
	if s.policyFile != "" {
		loaded, err := domain.LoadPolicyFile(s.policyFile)
		if err != nil {
			return nil, err
		}
		policy = *loaded
	}
	if err := domain.ApplyPolicyEnv(&policy); err != nil {
		return nil, err
	}

	p, err := scoring.NewPipeline(policy, s.engine)
	if err != nil {
		return nil, err
	}
	s.pipeline.Store(p)

	slog.InfoContext(ctx, "odds rules reloaded",
		"count", len(p.Rules()),
		"policy_file", s.policyFile,
	)
	return p.Rules(), nil
}

// Ping checks the repository and the bus.
func (s *Service) Ping(ctx context.Context) error {
	if s.repo != nil {
		if err := s.repo.Ping(ctx); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Ping(ctx); err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
	}
	return nil
}

// publish announces a stored evaluation. Failures are logged only; the
// evaluation is already persisted.
func (s *Service) publish(ctx context.Context, tenantID string, eval *domain.Evaluation) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode evaluation", "evaluation_id", eval.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicEvaluationCompleted, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish evaluation",
			"evaluation_id", eval.ID,
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

func (s *Service) requireRepo() error {
	if s.repo == nil {
		return fmt.Errorf("%w: repository not configured", ErrUnavailable)
	}
	return nil
}

func startSpan(ctx context.Context, name, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant.id", tenantID))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type traceKey struct{}

// WithTraceID attaches a request trace ID used when no span is recording.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func traceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
