package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"go.uber.org/zap"
)

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := `
		SELECT id, name, description, created_at
		FROM roles
		WHERE id = $1
	`

	role := &models.Role{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.CreatedAt,
	)
	if err != nil {
		return nil, classify("get role", err)
	}

	return role, nil
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `
		SELECT id, name, description, created_at
		FROM roles
		WHERE name = $1
	`

	role := &models.Role{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, name).Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.CreatedAt,
	)
	if err != nil {
		return nil, classify("get role by name", err)
	}

	return role, nil
}

// List returns all roles ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `
		SELECT id, name, description, created_at
		FROM roles
		ORDER BY name ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list roles", err)
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		role := &models.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

// Upsert inserts the role if its name is unknown and returns the stored row.
// An existing role keeps its ID; only the description is refreshed.
func (r *RoleRepository) Upsert(ctx context.Context, role *models.Role) (*models.Role, error) {
	query := `
		INSERT INTO roles (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, name, description, created_at
	`

	stored := &models.Role{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		role.CreatedAt,
	).Scan(&stored.ID, &stored.Name, &stored.Description, &stored.CreatedAt)
	if err != nil {
		return nil, classify("upsert role", err)
	}

	r.logger.Debug("role upserted", zap.String("name", stored.Name))
	return stored, nil
}
