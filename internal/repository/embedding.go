package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingKey identifies a cached reference embedding. A changed file
// (digest) or embedding model misses the cache.
type EmbeddingKey struct {
	Filename string
	Digest   string
	Model    string
}

// EmbeddingRepository caches gallery reference embeddings in
// gallery_embeddings, one row per gallery file.
type EmbeddingRepository struct {
	pool PgxPool
}

func NewEmbeddingRepository(pool PgxPool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// Get returns the cached embedding, or nil on a miss.
func (r *EmbeddingRepository) Get(ctx context.Context, key EmbeddingKey) ([]float32, error) {
	query := `
		SELECT embedding
		FROM gallery_embeddings
		WHERE filename = $1 AND digest = $2 AND model = $3
	`

	var embedding *pgvector.Vector
	err := r.pool.QueryRow(ctx, query, key.Filename, key.Digest, key.Model).Scan(&embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery embedding: %w", err)
	}

	if embedding == nil {
		return nil, nil
	}
	return embedding.Slice(), nil
}

func (r *EmbeddingRepository) Upsert(ctx context.Context, key EmbeddingKey, embedding []float32) error {
	query := `
		INSERT INTO gallery_embeddings (filename, digest, model, embedding, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (filename) DO UPDATE
		SET digest = EXCLUDED.digest, model = EXCLUDED.model, embedding = EXCLUDED.embedding, updated_at = NOW()
	`

	vec := pgvector.NewVector(embedding)
	if _, err := r.pool.Exec(ctx, query, key.Filename, key.Digest, key.Model, vec); err != nil {
		return fmt.Errorf("upsert gallery embedding: %w", err)
	}

	return nil
}

// DeleteExcept drops cache rows for files not in filenames.
func (r *EmbeddingRepository) DeleteExcept(ctx context.Context, filenames []string) (int64, error) {
	query := `
		DELETE FROM gallery_embeddings
		WHERE NOT (filename = ANY($1))
	`

	if filenames == nil {
		filenames = []string{}
	}

	result, err := r.pool.Exec(ctx, query, filenames)
	if err != nil {
		return 0, fmt.Errorf("prune gallery embeddings: %w", err)
	}

	return result.RowsAffected(), nil
}
