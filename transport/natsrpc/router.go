package natsrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/maingoo/auth-service/internal/observability"
	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/services/auth"
	"github.com/maingoo/auth-service/utils"
	"go.uber.org/zap"
)

// Request subjects served by the auth service
const (
	SubjectRegister      = "auth.register"
	SubjectLogin         = "auth.login"
	SubjectRefresh       = "auth.refresh"
	SubjectProfile       = "auth.getProfile"
	SubjectUpdateUser    = "auth.updateUser"
	SubjectVerify        = "auth.verify"
	SubjectGetRoles      = "auth.getRoles"
	SubjectGetRoleByName = "auth.getRoleByName"
	SubjectHealth        = "auth.health.check"
)

const transportName = "nats"

// Engine is the set of operations exposed over the bus (see auth.Service)
type Engine interface {
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

// HandlerFunc handles one decoded request
type HandlerFunc func(ctx context.Context, data []byte) (interface{}, error)

// Reply is the envelope of every response: Data on success, Error otherwise
type Reply struct {
	Data  interface{}      `json:"data,omitempty"`
	Error *utils.ErrorBody `json:"error,omitempty"`
}

// Router maps subjects to engine operations and encodes replies
type Router struct {
	routes  map[string]HandlerFunc
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRouter creates a Router serving every auth subject. metrics may be nil.
func NewRouter(engine Engine, metrics *observability.Metrics, logger *zap.Logger) *Router {
	r := &Router{
		routes:  make(map[string]HandlerFunc),
		metrics: metrics,
		logger:  logger,
	}

	r.Handle(SubjectRegister, bind(engine.Register))
	r.Handle(SubjectLogin, bind(engine.Login))
	r.Handle(SubjectRefresh, bind(engine.Refresh))
	r.Handle(SubjectProfile, bind(engine.Profile))
	r.Handle(SubjectUpdateUser, bind(engine.Update))
	r.Handle(SubjectVerify, bind(engine.Verify))
	r.Handle(SubjectGetRoleByName, bind(engine.GetRoleByName))
	r.Handle(SubjectGetRoles, func(ctx context.Context, _ []byte) (interface{}, error) {
		return engine.GetRoles(ctx)
	})
	r.Handle(SubjectHealth, func(ctx context.Context, _ []byte) (interface{}, error) {
		return engine.Health(ctx), nil
	})

	return r
}

// Handle registers handler for subject, replacing any previous one
func (r *Router) Handle(subject string, handler HandlerFunc) {
	r.routes[subject] = handler
}

// Subjects returns the registered subjects in lexical order
func (r *Router) Subjects() []string {
	subjects := make([]string, 0, len(r.routes))
	for subject := range r.routes {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Dispatch runs the handler for subject and returns the encoded reply.
// It never fails: every error, including a handler panic, becomes an error reply.
func (r *Router) Dispatch(ctx context.Context, subject string, data []byte) (reply []byte) {
	start := time.Now()
	outcome := "success"

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked",
				zap.String("subject", subject),
				zap.Any("panic", p),
				zap.Stack("stack"))
			outcome = string(services.ErrorTypeInternal)
			reply = r.encode(nil, services.ErrInternal)
		}
		r.metrics.ObserveOperation(transportName, subject, outcome, time.Since(start))
	}()

	handler, ok := r.routes[subject]
	if !ok {
		err := services.NewDomainError(services.ErrorTypeNotFound, fmt.Sprintf("No handler for subject '%s'", subject), nil)
		outcome = string(err.Type)
		return r.encode(nil, err)
	}

	result, err := handler(ctx, data)
	if err != nil {
		outcome = string(errorType(err))
		if outcome == string(services.ErrorTypeInternal) {
			r.logger.Error("request failed", zap.String("subject", subject), zap.Error(err))
		} else {
			r.logger.Debug("request rejected",
				zap.String("subject", subject),
				zap.String("error_type", outcome))
		}
	}
	return r.encode(result, err)
}

func (r *Router) encode(result interface{}, err error) []byte {
	reply := Reply{Data: result}
	if err != nil {
		body := ErrorBody(err)
		reply = Reply{Error: &body}
	}

	data, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		r.logger.Error("failed to encode reply", zap.Error(marshalErr))
		data, _ = json.Marshal(Reply{Error: &utils.ErrorBody{
			Status:  services.ErrorTypeInternal.Status(),
			Type:    string(services.ErrorTypeInternal),
			Message: services.ErrInternal.Message,
		}})
	}
	return data
}

// ErrorBody converts err into the reply error object. Errors outside the
// domain taxonomy are reported as internal without their text.
func ErrorBody(err error) utils.ErrorBody {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		domainErr = services.ErrInternal
	}
	return utils.ErrorBody{
		Status:  domainErr.Status(),
		Type:    string(domainErr.Type),
		Message: domainErr.Message,
		Details: domainErr.Details,
	}
}

func errorType(err error) services.ErrorType {
	if t := services.GetErrorType(err); t != "" {
		return t
	}
	return services.ErrorTypeInternal
}

// bind adapts a typed engine operation into a HandlerFunc
func bind[Req any, Resp any](fn func(context.Context, Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, data []byte) (interface{}, error) {
		var req Req
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

// envelope is the framing some bus clients put around the payload
type envelope struct {
	Pattern json.RawMessage `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// decode unmarshals a request payload. An empty payload decodes to the zero
// request; a {"pattern", "data"} frame is unwrapped first.
func decode(data []byte, v interface{}) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var frame envelope
	if err := json.Unmarshal(data, &frame); err == nil && len(frame.Pattern) > 0 && len(frame.Data) > 0 {
		data = frame.Data
	}

	if err := json.Unmarshal(data, v); err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "Malformed request payload", err)
	}
	return nil
}
