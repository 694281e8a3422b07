package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// IdentityRepository stores enrolled identities in the faces table.
type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// FindByFilenameFragment returns the identity whose image path contains
// fragment. A row stored exactly at faces/<fragment> wins over substring
// hits; ties go to the lowest id. A miss returns nil without error.
func (r *IdentityRepository) FindByFilenameFragment(ctx context.Context, fragment string) (*domain.EnrolledIdentity, error) {
	query := `
		SELECT id, name, image, is_allowed, created_at, updated_at
		FROM faces
		WHERE image = $2 OR strpos(image, $1) > 0
		ORDER BY image = $2 DESC, id
		LIMIT 1
	`

	exact := domain.GalleryPathPrefix + fragment
	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, fragment, exact))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity by filename: %w", err)
	}

	return identity, nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*domain.EnrolledIdentity, error) {
	query := `
		SELECT id, name, image, is_allowed, created_at, updated_at
		FROM faces
		WHERE id = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by id: %w", err)
	}

	return identity, nil
}

func (r *IdentityRepository) List(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	query := `
		SELECT id, name, image, is_allowed, created_at, updated_at
		FROM faces
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.EnrolledIdentity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

func (r *IdentityRepository) Create(ctx context.Context, identity *domain.EnrolledIdentity) error {
	query := `
		INSERT INTO faces (name, image, is_allowed, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		identity.Name,
		identity.GalleryPath,
		identity.IsAllowed,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdentityExists
		}
		return fmt.Errorf("create identity: %w", err)
	}

	return nil
}

func (r *IdentityRepository) Update(ctx context.Context, identity *domain.EnrolledIdentity) error {
	query := `
		UPDATE faces
		SET name = $2, image = $3, is_allowed = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		identity.ID,
		identity.Name,
		identity.GalleryPath,
		identity.IsAllowed,
	).Scan(&identity.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrIdentityNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdentityExists
		}
		return fmt.Errorf("update identity: %w", err)
	}

	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM faces
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}

func scanIdentity(row pgx.Row) (*domain.EnrolledIdentity, error) {
	var identity domain.EnrolledIdentity
	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.GalleryPath,
		&identity.IsAllowed,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
