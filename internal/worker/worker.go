// Package worker keeps stored evaluations fresh: it consumes profile
// updates from the EventBus, stores the profile and re-runs the stored
// evaluation.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// Scorer is the part of the service the worker drives.
type Scorer interface {
	SaveApplicant(ctx context.Context, tenantID string, p *domain.ApplicantProfile) error
	SaveBusiness(ctx context.Context, tenantID string, p *domain.BusinessProfile) error
	Reevaluate(ctx context.Context, tenantID string, kind domain.ProfileKind, id string) (*domain.Evaluation, error)
}

// Worker processes profile updates asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	scorer Scorer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits processing to these tenants; empty means all.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, scorer Scorer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		scorer: scorer,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to applicant and business updates.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID, domain.TopicApplicantUpdated, w.handleApplicant); err != nil {
			return err
		}
		if err := w.subscribe(tenantID, domain.TopicBusinessUpdated, w.handleBusiness); err != nil {
			return err
		}
	}

	slog.Info("workers started", "tenants", tenants)
	return nil
}

func (w *Worker) subscribe(tenantID, topic string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s for tenant %s: %w", topic, tenantID, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Debug("worker subscribed", "tenant_id", tenantID, "topic", topic)
	return nil
}

func (w *Worker) handleApplicant(ctx context.Context, msg *domain.Message) error {
	var profile domain.ApplicantProfile
	if err := json.Unmarshal(msg.Payload, &profile); err != nil {
		slog.Error("failed to parse applicant update", "message_id", msg.ID, "error", err)
		return err
	}
	if err := w.scorer.SaveApplicant(ctx, msg.TenantID, &profile); err != nil {
		return fmt.Errorf("save applicant %s: %w", profile.ID, err)
	}
	return w.reevaluate(ctx, msg, domain.KindIndividual, profile.ID)
}

func (w *Worker) handleBusiness(ctx context.Context, msg *domain.Message) error {
	var profile domain.BusinessProfile
	if err := json.Unmarshal(msg.Payload, &profile); err != nil {
		slog.Error("failed to parse business update", "message_id", msg.ID, "error", err)
		return err
	}
	if err := w.scorer.SaveBusiness(ctx, msg.TenantID, &profile); err != nil {
		return fmt.Errorf("save business %s: %w", profile.ID, err)
	}
	return w.reevaluate(ctx, msg, domain.KindBusiness, profile.ID)
}

func (w *Worker) reevaluate(ctx context.Context, msg *domain.Message, kind domain.ProfileKind, id string) error {
	start := time.Now()

	eval, err := w.scorer.Reevaluate(ctx, msg.TenantID, kind, id)
	if err != nil {
		return fmt.Errorf("reevaluate %s %s: %w", kind, id, err)
	}

	slog.Info("profile re-evaluated",
		"message_id", msg.ID,
		"tenant_id", msg.TenantID,
		"applicant_id", id,
		"kind", kind,
		"evaluation_id", eval.ID,
		"grade", eval.Assessment.Grade.Tier.Letter(),
		"odds", eval.Assessment.Odds.Value,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes everything.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
