package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/loanscore/internal/domain"
)

const (
	catalogKey       = "catalog"
	evaluationPrefix = "eval:"
	latestPrefix     = "latest:"
)

// Store gives typed JSON access to the tenant catalog and stored
// evaluations over any domain.Cache. Cache failures are reported but a
// miss is never an error.
type Store struct {
	cache         domain.Cache
	catalogTTL    time.Duration
	evaluationTTL time.Duration
}

// NewStore wraps c with the TTLs from cfg.
func NewStore(c domain.Cache, cfg domain.CacheConfig) *Store {
	catalogTTL := cfg.CatalogTTL
	if catalogTTL <= 0 {
		catalogTTL = 10 * time.Minute
	}
	evaluationTTL := cfg.LocalTTL
	if evaluationTTL <= 0 {
		evaluationTTL = 5 * time.Minute
	}
	return &Store{cache: c, catalogTTL: catalogTTL, evaluationTTL: evaluationTTL}
}

// Catalog returns the cached catalog; ok is false on a miss.
func (s *Store) Catalog(ctx context.Context, tenantID string) (products []domain.LoanProduct, ok bool, err error) {
	ok, err = s.get(ctx, tenantID, catalogKey, &products)
	return products, ok, err
}

// PutCatalog caches the tenant catalog.
func (s *Store) PutCatalog(ctx context.Context, tenantID string, products []domain.LoanProduct) error {
	return s.put(ctx, tenantID, catalogKey, products, s.catalogTTL)
}

// InvalidateCatalog drops the cached catalog so the next read reloads it.
func (s *Store) InvalidateCatalog(ctx context.Context, tenantID string) error {
	return s.cache.Delete(ctx, tenantID, catalogKey)
}

// Evaluation returns a cached stored evaluation or nil.
func (s *Store) Evaluation(ctx context.Context, tenantID, id string) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	ok, err := s.get(ctx, tenantID, evaluationPrefix+id, &eval)
	if !ok || err != nil {
		return nil, err
	}
	return &eval, nil
}

// Latest returns the cached latest stored evaluation of an applicant or nil.
func (s *Store) Latest(ctx context.Context, tenantID, applicantID string) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	ok, err := s.get(ctx, tenantID, latestPrefix+applicantID, &eval)
	if !ok || err != nil {
		return nil, err
	}
	return &eval, nil
}

// PutEvaluation caches a stored evaluation by ID and as its applicant's
// latest. Simulations are refused.
func (s *Store) PutEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if eval.Mode != domain.ModeStored {
		return fmt.Errorf("refusing to cache %s evaluation", eval.Mode)
	}
	if err := s.put(ctx, tenantID, evaluationPrefix+eval.ID, eval, s.evaluationTTL); err != nil {
		return err
	}
	return s.put(ctx, tenantID, latestPrefix+eval.ApplicantID, eval, s.evaluationTTL)
}

// InvalidateLatest drops the cached latest evaluation of an applicant.
func (s *Store) InvalidateLatest(ctx context.Context, tenantID, applicantID string) error {
	return s.cache.Delete(ctx, tenantID, latestPrefix+applicantID)
}

func (s *Store) get(ctx context.Context, tenantID, key string, dst any) (bool, error) {
	data, err := s.cache.Get(ctx, tenantID, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, tenantID, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return s.cache.Set(ctx, tenantID, key, data, ttl)
}
