package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account registered with the auth service.
// PasswordHash is never serialized; use AuthUser for anything leaving the service.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	RoleID       uuid.UUID `json:"role_id" db:"role_id"`
	RoleName     string    `json:"role_name,omitempty" db:"-"` // populated by joins on roles
	EnterpriseID *string   `json:"enterprise_id" db:"enterprise_id"`
	PhonePrefix  *string   `json:"phone_prefix" db:"phone_prefix"`
	PhoneNumber  *string   `json:"phone_number" db:"phone_number"`
	EmailFluvia  *string   `json:"email_fluvia" db:"email_fluvia"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, name, passwordHash string, roleID uuid.UUID, enterpriseID *string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		RoleID:       roleID,
		EnterpriseID: enterpriseID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsUnscoped reports whether the account belongs to no tenant (super-admin).
func (u *User) IsUnscoped() bool {
	return u.EnterpriseID == nil
}

// BelongsTo reports whether the user is scoped to the given tenant.
func (u *User) BelongsTo(enterpriseID string) bool {
	return u.EnterpriseID != nil && *u.EnterpriseID == enterpriseID
}

// AuthUser is the sanitized profile returned to callers.
type AuthUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RoleID       string    `json:"roleId"`
	RoleName     string    `json:"roleName,omitempty"`
	EnterpriseID *string   `json:"enterpriseId"`
	PhonePrefix  *string   `json:"phonePrefix"`
	PhoneNumber  *string   `json:"phoneNumber"`
	EmailFluvia  *string   `json:"emailFluvia"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToAuthUser strips credential material from the user.
func (u *User) ToAuthUser() AuthUser {
	return AuthUser{
		ID:           u.ID.String(),
		Email:        u.Email,
		Name:         u.Name,
		RoleID:       u.RoleID.String(),
		RoleName:     u.RoleName,
		EnterpriseID: u.EnterpriseID,
		PhonePrefix:  u.PhonePrefix,
		PhoneNumber:  u.PhoneNumber,
		EmailFluvia:  u.EmailFluvia,
		CreatedAt:    u.CreatedAt,
	}
}
