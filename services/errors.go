package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maingoo/auth-service/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeInvalidToken       ErrorType = "invalid_token"
	ErrorTypeTokenRevoked       ErrorType = "token_revoked"
	ErrorTypeTokenExpired       ErrorType = "token_expired"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeInternal           ErrorType = "internal"
)

// Status returns the HTTP-style status code reported for the error type
func (t ErrorType) Status() int {
	switch t {
	case ErrorTypeValidation, ErrorTypeInvalidCredentials:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeInvalidToken, ErrorTypeTokenRevoked, ErrorTypeTokenExpired:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Status returns the status code for the error's type
func (e *DomainError) Status() int {
	return e.Type.Status()
}

// WithDetail returns a copy of the error carrying an extra detail.
// Sentinels stay untouched.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Domain error variables

var (
	// Validation Errors
	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "Invalid input", nil)
	ErrInvalidRole      = NewDomainError(ErrorTypeValidation, "Invalid role", nil)
	ErrNoFieldsToUpdate = NewDomainError(ErrorTypeValidation, "No fields to update", nil)
	ErrInvalidPassword  = NewDomainError(ErrorTypeValidation, "Invalid password", nil)

	// Conflict Errors
	ErrEmailTaken = NewDomainError(ErrorTypeConflict, "Email already registered", nil)

	// Credential Errors
	ErrInvalidCredentials = NewDomainError(ErrorTypeInvalidCredentials, "Invalid credentials", nil)

	// Token Errors
	ErrInvalidToken = NewDomainError(ErrorTypeInvalidToken, "Invalid token", nil)
	ErrTokenRevoked = NewDomainError(ErrorTypeTokenRevoked, "Token revoked", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeTokenExpired, "Token expired", nil)

	// Not Found Errors
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "User not found", nil)
	ErrRoleNotFound = NewDomainError(ErrorTypeNotFound, "Role not found", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "Forbidden", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "Internal server error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// FromStorage classifies a repository error. Domain errors pass through
// unchanged; unclassified errors become internal.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch {
	case errors.Is(err, repositories.ErrDuplicate):
		return NewDomainError(ErrorTypeConflict, "Resource already exists", err)
	case errors.Is(err, repositories.ErrForeignKey), errors.Is(err, repositories.ErrInvalidData):
		return NewDomainError(ErrorTypeValidation, "Invalid input", err)
	case errors.Is(err, repositories.ErrNotFound):
		return NewDomainError(ErrorTypeNotFound, "Resource not found", err)
	default:
		return NewDomainError(ErrorTypeInternal, "Internal server error", err)
	}
}
