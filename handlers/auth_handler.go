package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maingoo/auth-service/internal/observability"
	"github.com/maingoo/auth-service/middleware"
	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/services/auth"
	"github.com/maingoo/auth-service/utils"
	"go.uber.org/zap"
)

const (
	transportName = "http"

	// maxBodyBytes bounds every JSON request body
	maxBodyBytes = 1 << 20
)

// AuthService is the engine behind the HTTP endpoints (see auth.Service)
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
	Refresh(ctx context.Context, req auth.RefreshRequest) (*auth.AuthResponse, error)
	Profile(ctx context.Context, req auth.ProfileRequest) (*auth.UserResponse, error)
	Update(ctx context.Context, req auth.UpdateUserRequest) (*auth.UserResponse, error)
	Verify(ctx context.Context, req auth.VerifyRequest) (*auth.UserResponse, error)
	GetRoles(ctx context.Context) ([]auth.RoleSummary, error)
	GetRoleByName(ctx context.Context, req auth.RoleByNameRequest) (*auth.RoleRef, error)
	Health(ctx context.Context) auth.HealthResponse
}

// AuthHandler exposes the auth operations over HTTP
type AuthHandler struct {
	service AuthService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. metrics may be nil.
func NewAuthHandler(service AuthService, metrics *observability.Metrics, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleRegister handles POST /api/v1/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	handleJSON(h, w, r, "register", http.StatusCreated, h.service.Register)
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	handleJSON(h, w, r, "login", http.StatusOK, h.service.Login)
}

// HandleRefresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	handleJSON(h, w, r, "refresh", http.StatusOK, h.service.Refresh)
}

// HandleVerify handles POST /api/v1/auth/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	handleJSON(h, w, r, "verify", http.StatusOK, h.service.Verify)
}

// HandleGetRoles handles GET /api/v1/auth/roles
func (h *AuthHandler) HandleGetRoles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	roles, err := h.service.GetRoles(r.Context())
	h.respond(w, "getRoles", start, http.StatusOK, roles, err)
}

// HandleGetRoleByName handles GET /api/v1/auth/roles/{name}
func (h *AuthHandler) HandleGetRoleByName(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	role, err := h.service.GetRoleByName(r.Context(), auth.RoleByNameRequest{Name: chi.URLParam(r, "name")})
	h.respond(w, "getRoleByName", start, http.StatusOK, role, err)
}

// HandleGetMe handles GET /api/v1/auth/me
// Requires RequireAuth upstream
func (h *AuthHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	resp, err := h.service.Profile(r.Context(), auth.ProfileRequest{
		UserID:       user.ID,
		EnterpriseID: user.EnterpriseID,
	})
	h.respond(w, "getProfile", start, http.StatusOK, resp, err)
}

// HandleUpdateMe handles PUT /api/v1/auth/me
// Requires RequireAuth upstream; the body carries the fields to change and
// the current password
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var data auth.UpdateUserData
	if err := decodeBody(w, r, &data); err != nil {
		h.respond(w, "updateUser", start, http.StatusOK, nil, err)
		return
	}

	resp, err := h.service.Update(r.Context(), auth.UpdateUserRequest{
		UserID:       user.ID,
		EnterpriseID: user.EnterpriseID,
		Data:         data,
	})
	h.respond(w, "updateUser", start, http.StatusOK, resp, err)
}

// HandleHealth handles GET /api/v1/auth/health
func (h *AuthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.respond(w, "health", start, http.StatusOK, h.service.Health(r.Context()), nil)
}

// respond writes result or err and records the operation
func (h *AuthHandler) respond(w http.ResponseWriter, op string, start time.Time, status int, result interface{}, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(services.ErrorTypeInternal)
		if t := services.GetErrorType(err); t != "" {
			outcome = string(t)
		}
	}
	h.metrics.ObserveOperation(transportName, op, outcome, time.Since(start))

	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if writeErr := utils.WriteJSON(w, status, utils.SuccessResponse{Data: result}); writeErr != nil {
		h.logger.Error("failed to write response", zap.String("operation", op), zap.Error(writeErr))
	}
}

// handleJSON decodes the body into Req, runs fn and writes its result
func handleJSON[Req any, Resp any](h *AuthHandler, w http.ResponseWriter, r *http.Request, op string, status int, fn func(context.Context, Req) (Resp, error)) {
	start := time.Now()

	var req Req
	if err := decodeBody(w, r, &req); err != nil {
		h.respond(w, op, start, status, nil, err)
		return
	}

	resp, err := fn(r.Context(), req)
	h.respond(w, op, start, status, resp, err)
}

// decodeBody reads a single JSON object of at most maxBodyBytes
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "Malformed request body", err)
	}
	return nil
}
