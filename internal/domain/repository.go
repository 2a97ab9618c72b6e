// Package domain defines the core interfaces and types for Loanscore.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Applicant profiles, upserted by ID
	SaveApplicant(ctx context.Context, tenantID string, p *ApplicantProfile) error
	GetApplicant(ctx context.Context, tenantID string, id string) (*ApplicantProfile, error)

	// Business profiles, upserted by ID
	SaveBusiness(ctx context.Context, tenantID string, p *BusinessProfile) error
	GetBusiness(ctx context.Context, tenantID string, id string) (*BusinessProfile, error)

	// Loan product catalog
	SaveProduct(ctx context.Context, tenantID string, p *LoanProduct) error
	ListProducts(ctx context.Context, tenantID string) ([]*LoanProduct, error)

	// Stored evaluations. Simulations are never accepted.
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)
	LatestEvaluation(ctx context.Context, tenantID string, applicantID string) (*Evaluation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
