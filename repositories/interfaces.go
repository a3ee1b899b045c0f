package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned Transaction's Context carries
	// the transaction so repositories called with it join the same scope.
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID, including its role name
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by exact email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// LockByID takes a row lock on the user for the rest of the transaction
	LockByID(ctx context.Context, id uuid.UUID) error

	// Update persists name, email, password hash and contact fields
	Update(ctx context.Context, user *models.User) error
}

// RoleRepository handles role catalog reads and provisioning
type RoleRepository interface {
	// GetByID retrieves a role by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)

	// GetByName retrieves a role by its unique name
	GetByName(ctx context.Context, name string) (*models.Role, error)

	// List returns all roles ordered by name
	List(ctx context.Context) ([]*models.Role, error)

	// Upsert creates the role when its name is unknown and returns the stored row
	Upsert(ctx context.Context, role *models.Role) (*models.Role, error)
}

// PermissionRepository handles the permission catalog
type PermissionRepository interface {
	// Upsert creates the permission when its name is unknown and returns the stored row
	Upsert(ctx context.Context, permission *models.Permission) (*models.Permission, error)

	// ListByNames returns the permissions whose names are in names; an empty
	// slice returns the full catalog
	ListByNames(ctx context.Context, names []string) ([]*models.Permission, error)

	// Assign links a permission to a role; assigning twice is a no-op
	Assign(ctx context.Context, roleID, permissionID uuid.UUID) error
}

// RefreshTokenRepository handles refresh token session records
type RefreshTokenRepository interface {
	// Create inserts a new refresh token record
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByID retrieves a refresh token by its jti
	GetByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)

	// GetByIDForUpdate retrieves a refresh token and locks its row
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)

	// Revoke sets revoked_at on a non-revoked token. Revoking an already
	// revoked token changes nothing and reports false.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// RevokeAllForUser revokes every non-revoked token of the user and
	// returns how many rows changed
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	Roles         RoleRepository
	Permissions   PermissionRepository
	RefreshTokens RefreshTokenRepository
}
