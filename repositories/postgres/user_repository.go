package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"go.uber.org/zap"
)

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `
	u.id, u.email, u.name, u.password_hash, u.role_id, r.name,
	u.enterprise_id, u.phone_prefix, u.phone_number, u.email_fluvia,
	u.created_at, u.updated_at`

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, role_id, enterprise_id,
			phone_prefix, phone_number, email_fluvia, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.RoleID,
		user.EnterpriseID,
		user.PhonePrefix,
		user.PhoneNumber,
		user.EmailFluvia,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return classify("create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
	`
	return r.getOne(ctx, "get user", query, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.email = $1
	`
	return r.getOne(ctx, "get user by email", query, email)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.RoleID,
		&user.RoleName,
		&user.EnterpriseID,
		&user.PhonePrefix,
		&user.PhoneNumber,
		&user.EmailFluvia,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, classify(op, err)
	}

	return user, nil
}

// LockByID takes a row lock on the user; concurrent session issuance for the
// same user serializes behind it.
func (r *UserRepository) LockByID(ctx context.Context, id uuid.UUID) error {
	query := `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	var locked uuid.UUID
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, id).Scan(&locked); err != nil {
		return classify("lock user", err)
	}
	return nil
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2,
		    name = $3,
		    password_hash = $4,
		    phone_prefix = $5,
		    phone_number = $6,
		    email_fluvia = $7,
		    updated_at = $8
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.PhonePrefix,
		user.PhoneNumber,
		user.EmailFluvia,
		user.UpdatedAt,
	)
	if err != nil {
		return classify("update user", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("update user %s: %w", user.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("user updated", zap.String("id", user.ID.String()))
	return nil
}
