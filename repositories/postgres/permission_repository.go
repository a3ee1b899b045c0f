package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"go.uber.org/zap"
)

// PermissionRepository implements the repositories.PermissionRepository interface
type PermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB, logger *zap.Logger) repositories.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the permission if its name is unknown and returns the stored row
func (r *PermissionRepository) Upsert(ctx context.Context, permission *models.Permission) (*models.Permission, error) {
	query := `
		INSERT INTO permissions (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, name, description
	`

	stored := &models.Permission{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		permission.ID,
		permission.Name,
		permission.Description,
	).Scan(&stored.ID, &stored.Name, &stored.Description)
	if err != nil {
		return nil, classify("upsert permission", err)
	}

	return stored, nil
}

// ListByNames returns permissions matching names, or all when names is empty
func (r *PermissionRepository) ListByNames(ctx context.Context, names []string) ([]*models.Permission, error) {
	query := `SELECT id, name, description FROM permissions ORDER BY name ASC`
	args := []interface{}{}
	if len(names) > 0 {
		query = `
			SELECT id, name, description
			FROM permissions
			WHERE name = ANY($1)
			ORDER BY name ASC
		`
		args = append(args, pq.Array(names))
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list permissions", err)
	}
	defer rows.Close()

	permissions := make([]*models.Permission, 0)
	for rows.Next() {
		p := &models.Permission{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}

	return permissions, nil
}

// Assign links a permission to a role
func (r *PermissionRepository) Assign(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return classify("assign permission", err)
	}

	return nil
}
