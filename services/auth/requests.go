package auth

import (
	"github.com/maingoo/auth-service/models"
)

// RegisterRequest is the payload of auth.register
type RegisterRequest struct {
	Email        string  `json:"email" validate:"required,email,max=255"`
	Password     string  `json:"password" validate:"required,min=8,max=4096"`
	Name         string  `json:"name" validate:"required,max=255"`
	RoleID       string  `json:"roleId" validate:"required,uuid"`
	EnterpriseID *string `json:"enterpriseId,omitempty" validate:"omitempty,max=255"`
	PhonePrefix  *string `json:"phonePrefix,omitempty" validate:"omitempty,max=8"`
	PhoneNumber  *string `json:"phoneNumber,omitempty" validate:"omitempty,max=32"`
	EmailFluvia  *string `json:"emailFluvia,omitempty" validate:"omitempty,email,max=255"`
}

// LoginRequest is the payload of auth.login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=4096"`
}

// RefreshRequest is the payload of auth.refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// VerifyRequest is the payload of auth.verify
type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// ProfileRequest is the payload of auth.getProfile. EnterpriseID, when set,
// is the tenant the caller expects the user to belong to.
type ProfileRequest struct {
	UserID       string  `json:"userId" validate:"required,uuid"`
	EnterpriseID *string `json:"enterpriseId,omitempty" validate:"omitempty,max=255"`
}

// UpdateUserData holds the fields a user may change. Nil phone fields are
// left untouched; an empty string clears them.
type UpdateUserData struct {
	CurrentPassword string  `json:"currentPassword" validate:"required,max=4096"`
	Name            string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Email           string  `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Password        string  `json:"password,omitempty" validate:"omitempty,min=8,max=4096"`
	PhonePrefix     *string `json:"phonePrefix,omitempty" validate:"omitempty,max=8"`
	PhoneNumber     *string `json:"phoneNumber,omitempty" validate:"omitempty,max=32"`
}

// UpdateUserRequest is the payload of auth.updateUser
type UpdateUserRequest struct {
	UserID       string         `json:"userId" validate:"required,uuid"`
	EnterpriseID *string        `json:"enterpriseId,omitempty" validate:"omitempty,max=255"`
	Data         UpdateUserData `json:"data"`
}

// RoleByNameRequest is the payload of auth.getRoleByName
type RoleByNameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// Tokens is an issued access/refresh pair. The expiry fields echo the
// configured spellings (e.g. "15m", "7d").
type Tokens struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        string `json:"expiresIn"`
	RefreshExpiresIn string `json:"refreshExpiresIn"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User   models.AuthUser `json:"user"`
	Tokens Tokens          `json:"tokens"`
}

// UserResponse is returned by profile, update and verify
type UserResponse struct {
	User models.AuthUser `json:"user"`
}

// RoleSummary is one entry of the role list
type RoleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleRef is the result of a role lookup by name
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status string `json:"status"`
}
