package repository

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	DefaultVisitLimit = 50
	MaxVisitLimit     = 500
)

// VisitRepository appends to the visits table. Rows are never updated.
type VisitRepository struct {
	pool PgxPool
}

func NewVisitRepository(pool PgxPool) *VisitRepository {
	return &VisitRepository{pool: pool}
}

// Insert commits one visit in its own transaction and fills ID and
// Timestamp. Failures are rolled back and reported as ErrPersistence.
func (r *VisitRepository) Insert(ctx context.Context, visit *domain.VisitRecord) error {
	query := `
		INSERT INTO visits (face_id, person_name, confidence, is_allowed, timestamp)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, timestamp
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ErrPersistence.WithError(fmt.Errorf("begin visit tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, query,
		visit.FaceID,
		visit.PersonName,
		visit.ConfidenceDisplay,
		visit.IsAllowed,
	).Scan(&visit.ID, &visit.Timestamp)
	if err != nil {
		return domain.ErrPersistence.WithError(fmt.Errorf("insert visit: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ErrPersistence.WithError(fmt.Errorf("commit visit: %w", err))
	}

	return nil
}

// ListRecent returns the newest visits first.
func (r *VisitRepository) ListRecent(ctx context.Context, limit int) ([]domain.VisitRecord, error) {
	query := `
		SELECT id, face_id, person_name, confidence, is_allowed, timestamp
		FROM visits
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, clampLimit(limit, DefaultVisitLimit, MaxVisitLimit))
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]domain.VisitRecord, 0)
	for rows.Next() {
		var v domain.VisitRecord
		if err := rows.Scan(&v.ID, &v.FaceID, &v.PersonName, &v.ConfidenceDisplay, &v.IsAllowed, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}

	return visits, nil
}

// CountUnknown counts visits without a registered identity.
func (r *VisitRepository) CountUnknown(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM visits WHERE face_id IS NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unknown visits: %w", err)
	}

	return count, nil
}
