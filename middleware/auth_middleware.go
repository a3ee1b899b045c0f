package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/services/auth"
	"github.com/maingoo/auth-service/utils"
	"go.uber.org/zap"
)

// TokenVerifier checks an access token and resolves its user (see auth.Service.Verify)
type TokenVerifier interface {
	Verify(ctx context.Context, req auth.VerifyRequest) (*auth.UserResponse, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// accessTokenCookieName is checked when no Authorization header is sent
const accessTokenCookieName = "access_token"

// RequireAuth is a middleware that requires a valid access token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Debug("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		resp, err := m.verifier.Verify(ctx, auth.VerifyRequest{Token: token})
		if err != nil {
			m.writeVerifyError(w, requestID, err)
			return
		}

		user := resp.User
		ctx = WithUser(ctx, &user)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeVerifyError reports token failures with their own type (invalid_token,
// token_expired, forbidden, ...). Unexpected errors become 500.
func (m *AuthMiddleware) writeVerifyError(w http.ResponseWriter, requestID string, err error) {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) || domainErr.Type == services.ErrorTypeInternal {
		m.logger.Error("token verification failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.ErrInternal.Message)
		return
	}

	m.logger.Debug("token rejected",
		zap.String("request_id", requestID),
		zap.String("error_type", string(domainErr.Type)))
	_ = utils.WriteError(w, domainErr.Status(), string(domainErr.Type), domainErr.Message, domainErr.Details)
}

// extractToken extracts the access token from the Authorization header
// ("Bearer TOKEN") or the access_token cookie. The header takes precedence.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(accessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
