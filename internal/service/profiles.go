package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// SaveApplicant validates and stores an individual profile.
func (s *Service) SaveApplicant(ctx context.Context, tenantID string, p *domain.ApplicantProfile) error {
	if err := s.requireRepo(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		return domain.Invalid("id", "is required")
	}
	return s.repo.SaveApplicant(ctx, tenantID, p)
}

// Applicant loads an individual profile.
func (s *Service) Applicant(ctx context.Context, tenantID, id string) (*domain.ApplicantProfile, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	return s.repo.GetApplicant(ctx, tenantID, id)
}

// SaveBusiness validates and stores a business profile.
func (s *Service) SaveBusiness(ctx context.Context, tenantID string, p *domain.BusinessProfile) error {
	if err := s.requireRepo(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		return domain.Invalid("id", "is required")
	}
	return s.repo.SaveBusiness(ctx, tenantID, p)
}

// Business loads a business profile.
func (s *Service) Business(ctx context.Context, tenantID, id string) (*domain.BusinessProfile, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	return s.repo.GetBusiness(ctx, tenantID, id)
}

// Catalog returns the tenant's loan products, served from cache when
// possible.
func (s *Service) Catalog(ctx context.Context, tenantID string) ([]domain.LoanProduct, error) {
	if s.store != nil {
		products, ok, err := s.store.Catalog(ctx, tenantID)
		if err != nil {
			slog.WarnContext(ctx, "catalog cache read failed", "tenant_id", tenantID, "error", err)
		}
		if ok {
			return products, nil
		}
	}

	if s.repo == nil {
		return nil, nil
	}
	stored, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]domain.LoanProduct, len(stored))
	for i, p := range stored {
		products[i] = *p
	}

	if s.store != nil {
		if err := s.store.PutCatalog(ctx, tenantID, products); err != nil {
			slog.WarnContext(ctx, "catalog cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return products, nil
}

// SaveProduct validates a product, including its criteria expression, and
// stores it. The cached catalog is dropped.
func (s *Service) SaveProduct(ctx context.Context, tenantID string, p *domain.LoanProduct) error {
	if err := s.requireRepo(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Criteria != "" {
		if err := s.engine.ValidateCriteria(p.Criteria); err != nil {
			return domain.Invalid("criteria", "%v", err)
		}
	}

	if err := s.repo.SaveProduct(ctx, tenantID, p); err != nil {
		return err
	}
	s.invalidateCatalog(ctx, tenantID)

	slog.InfoContext(ctx, "product saved",
		"tenant_id", tenantID,
		"product_id", p.ID,
		"bank_id", p.BankID,
	)
	return nil
}

// ReloadCatalog drops the cached catalog and reads it again.
func (s *Service) ReloadCatalog(ctx context.Context, tenantID string) ([]domain.LoanProduct, error) {
	s.invalidateCatalog(ctx, tenantID)
	return s.Catalog(ctx, tenantID)
}

func (s *Service) invalidateCatalog(ctx context.Context, tenantID string) {
	if s.store == nil {
		return
	}
	if err := s.store.InvalidateCatalog(ctx, tenantID); err != nil {
		slog.WarnContext(ctx, "catalog cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}
