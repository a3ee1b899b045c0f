package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"go.uber.org/zap"
)

// RefreshTokenRepository implements the repositories.RefreshTokenRepository interface
type RefreshTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB, logger *zap.Logger) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a refresh token record
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.RevokedAt,
		token.CreatedAt,
	)
	if err != nil {
		return classify("create refresh token", err)
	}

	r.logger.Debug("refresh token stored",
		zap.String("jti", token.ID.String()),
		zap.String("user_id", token.UserID.String()),
	)
	return nil
}

// GetByID retrieves a refresh token by jti
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	return r.getOne(ctx, "get refresh token", query, id)
}

// GetByIDForUpdate retrieves a refresh token and locks the row until the
// surrounding transaction ends
func (r *RefreshTokenRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`
	return r.getOne(ctx, "lock refresh token", query, id)
}

func (r *RefreshTokenRepository) getOne(ctx context.Context, op, query string, id uuid.UUID) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, classify(op, err)
	}
	return token, nil
}

// Revoke marks a single token revoked. Returns false when it was already revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, classify("revoke refresh token", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// RevokeAllForUser revokes every live token of the user
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, classify("revoke user refresh tokens", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Debug("refresh tokens revoked",
			zap.String("user_id", userID.String()),
			zap.Int64("count", rowsAffected),
		)
	}
	return rowsAffected, nil
}
