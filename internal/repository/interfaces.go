package repository

import (
	"context"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// IdentityRepositoryInterface defines operations for the enrolled identity registry
type IdentityRepositoryInterface interface {
	FindByFilenameFragment(ctx context.Context, fragment string) (*domain.EnrolledIdentity, error)
	GetByID(ctx context.Context, id int64) (*domain.EnrolledIdentity, error)
	List(ctx context.Context) ([]domain.EnrolledIdentity, error)
	Create(ctx context.Context, identity *domain.EnrolledIdentity) error
	Update(ctx context.Context, identity *domain.EnrolledIdentity) error
	Delete(ctx context.Context, id int64) error
}

// VisitRepositoryInterface defines operations for the append-only visit log
type VisitRepositoryInterface interface {
	Insert(ctx context.Context, visit *domain.VisitRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.VisitRecord, error)
	CountUnknown(ctx context.Context) (int, error)
}

// EmbeddingRepositoryInterface defines operations for the gallery embedding cache
type EmbeddingRepositoryInterface interface {
	Get(ctx context.Context, key EmbeddingKey) ([]float32, error)
	Upsert(ctx context.Context, key EmbeddingKey, embedding []float32) error
	DeleteExcept(ctx context.Context, filenames []string) (int64, error)
}

var (
	_ IdentityRepositoryInterface  = (*IdentityRepository)(nil)
	_ VisitRepositoryInterface     = (*VisitRepository)(nil)
	_ EmbeddingRepositoryInterface = (*EmbeddingRepository)(nil)
)
