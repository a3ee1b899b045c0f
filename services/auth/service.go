package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/maingoo/auth-service/config"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/password"
	"github.com/maingoo/auth-service/repositories"
	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/services/events"
	"github.com/maingoo/auth-service/token"
	"github.com/maingoo/auth-service/utils"
	"go.uber.org/zap"
)

// RoleCatalog resolves roles (see roles.Catalog)
type RoleCatalog interface {
	List(ctx context.Context) ([]*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
}

// TokenCodec signs and verifies JWTs (see token.Codec)
type TokenCodec interface {
	Sign(claims token.Claims, opts token.SignOptions) (string, error)
	Verify(tokenStr string, opts token.VerifyOptions) (*token.Claims, error)
}

// EventEmitter queues best-effort domain events (see events.Emitter)
type EventEmitter interface {
	Emit(event events.Event) bool
}

// Service is the credential and session lifecycle engine. Every mutating
// flow runs in a single transaction; issuing a token pair revokes all other
// active refresh tokens of the user, so a user holds at most one.
type Service struct {
	users   repositories.UserRepository
	tokens  repositories.RefreshTokenRepository
	txMgr   repositories.TransactionManager
	roles   RoleCatalog
	hasher  password.Hasher
	codec   TokenCodec
	jwt     config.JWTConfig
	emitter EventEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new Service instance. emitter may be nil.
func NewService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	roles RoleCatalog,
	hasher password.Hasher,
	codec TokenCodec,
	jwtCfg config.JWTConfig,
	emitter EventEmitter,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:   repos.Users,
		tokens:  repos.RefreshTokens,
		txMgr:   txMgr,
		roles:   roles,
		hasher:  hasher,
		codec:   codec,
		jwt:     jwtCfg,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Register creates an account and opens its first session
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		return nil, services.ErrInvalidRole
	}

	var created *models.User
	resp, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*AuthResponse, error) {
		if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
			return nil, services.ErrEmailTaken
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}

		role, err := s.roles.GetByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrInvalidRole
			}
			return nil, err
		}

		digest, err := s.hashPassword(req.Password)
		if err != nil {
			return nil, err
		}

		user := models.NewUser(req.Email, req.Name, digest, role.ID, nonEmpty(req.EnterpriseID))
		user.PhonePrefix = nonEmpty(req.PhonePrefix)
		user.PhoneNumber = nonEmpty(req.PhoneNumber)
		user.EmailFluvia = nonEmpty(req.EmailFluvia)
		user.CreatedAt = s.now().UTC()
		user.UpdatedAt = user.CreatedAt

		if err := s.users.Create(ctx, user); err != nil {
			switch {
			case errors.Is(err, repositories.ErrDuplicate):
				return nil, services.ErrEmailTaken
			case errors.Is(err, repositories.ErrForeignKey):
				return nil, services.ErrInvalidRole
			}
			return nil, err
		}
		user.RoleName = role.Name

		tokens, err := s.issueTokenPair(ctx, user)
		if err != nil {
			return nil, err
		}

		created = user
		return &AuthResponse{User: user.ToAuthUser(), Tokens: *tokens}, nil
	})
	if err != nil {
		return nil, s.fail("register", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", created.ID.String()),
		zap.String("role_id", created.RoleID.String()))

	if s.emitter != nil {
		s.emitter.Emit(events.NewUserCreated(created))
	}

	return resp, nil
}

// Login authenticates by email and password and rotates the session.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*AuthResponse, error) {
		user, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				s.hasher.VerifyDummy(req.Password)
				return nil, services.ErrInvalidCredentials
			}
			return nil, err
		}

		if !s.hasher.Verify(user.PasswordHash, req.Password) {
			return nil, services.ErrInvalidCredentials
		}
		if err := s.upgradePasswordHash(ctx, user, req.Password); err != nil {
			return nil, err
		}

		tokens, err := s.issueTokenPair(ctx, user)
		if err != nil {
			return nil, err
		}
		return &AuthResponse{User: user.ToAuthUser(), Tokens: *tokens}, nil
	})
	if err != nil {
		return nil, s.fail("login", err)
	}

	s.logger.Debug("user logged in", zap.String("user_id", resp.User.ID))
	return resp, nil
}

// upgradePasswordHash re-hashes a verified password whose stored digest was
// produced with weaker parameters than the current ones
func (s *Service) upgradePasswordHash(ctx context.Context, user *models.User, plaintext string) error {
	upgrade, err := s.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored password digest unreadable",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		return nil
	}
	if !upgrade {
		return nil
	}

	digest, err := s.hashPassword(plaintext)
	if err != nil {
		return err
	}
	user.PasswordHash = digest
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to store upgraded password hash: %w", err)
	}

	s.logger.Info("password hash upgraded", zap.String("user_id", user.ID.String()))
	return nil
}

// Refresh redeems a refresh token exactly once and issues a new pair
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	claims, err := s.codec.Verify(req.RefreshToken, s.refreshVerifyOptions())
	if err != nil {
		s.logger.Debug("refresh token rejected", zap.Error(err))
		return nil, services.ErrInvalidToken
	}
	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, services.ErrInvalidToken
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	resp, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*AuthResponse, error) {
		// User row first, then the token row: the same order issuance uses.
		if err := s.users.LockByID(ctx, subject); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}

		record, err := s.tokens.GetByIDForUpdate(ctx, jti)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrInvalidToken
			}
			return nil, err
		}

		now := s.now().UTC()
		if record.IsRevoked() {
			return nil, services.ErrTokenRevoked
		}
		if record.IsExpired(now) {
			return nil, services.ErrTokenExpired
		}
		if record.UserID != subject || !s.hasher.Verify(record.TokenHash, req.RefreshToken) {
			return nil, services.ErrInvalidToken
		}

		user, err := s.users.GetByID(ctx, record.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrUserNotFound
			}
			return nil, err
		}

		revoked, err := s.tokens.Revoke(ctx, record.ID, now)
		if err != nil {
			return nil, err
		}
		if !revoked {
			return nil, services.ErrTokenRevoked
		}

		tokens, err := s.issueTokenPair(ctx, user)
		if err != nil {
			return nil, err
		}
		return &AuthResponse{User: user.ToAuthUser(), Tokens: *tokens}, nil
	})
	if err != nil {
		return nil, s.fail("refresh", err)
	}

	return resp, nil
}

// Verify validates an access token and returns the current profile of its
// subject. A tenant claim must match the stored tenant.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*UserResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	claims, err := s.codec.Verify(req.Token, s.accessVerifyOptions())
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, services.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, s.fail("verify", err)
	}

	if tenant := nonEmpty(claims.EnterpriseID); tenant != nil && !user.BelongsTo(*tenant) {
		return nil, services.ErrForbidden
	}

	return &UserResponse{User: user.ToAuthUser()}, nil
}

// Profile returns the user, optionally checking it belongs to a tenant
func (s *Service) Profile(ctx context.Context, req ProfileRequest) (*UserResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	user, err := s.loadScoped(ctx, uuid.MustParse(req.UserID), req.EnterpriseID)
	if err != nil {
		return nil, s.fail("profile", err)
	}
	return &UserResponse{User: user.ToAuthUser()}, nil
}

// Update changes profile or credential fields after re-checking the current
// password, then revokes every active session of the user.
func (s *Service) Update(ctx context.Context, req UpdateUserRequest) (*UserResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	userID := uuid.MustParse(req.UserID)
	data := req.Data

	resp, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*UserResponse, error) {
		if err := s.users.LockByID(ctx, userID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrUserNotFound
			}
			return nil, err
		}

		user, err := s.loadScoped(ctx, userID, req.EnterpriseID)
		if err != nil {
			return nil, err
		}

		if !s.hasher.Verify(user.PasswordHash, data.CurrentPassword) {
			return nil, services.ErrInvalidCredentials
		}

		changed := false
		if data.Name != "" {
			user.Name = data.Name
			changed = true
		}
		if data.Email != "" {
			if data.Email != user.Email {
				existing, err := s.users.GetByEmail(ctx, data.Email)
				if err == nil && existing.ID != user.ID {
					return nil, services.ErrEmailTaken
				}
				if err != nil && !errors.Is(err, repositories.ErrNotFound) {
					return nil, err
				}
			}
			user.Email = data.Email
			changed = true
		}
		if data.Password != "" {
			digest, err := s.hashPassword(data.Password)
			if err != nil {
				return nil, err
			}
			user.PasswordHash = digest
			changed = true
		}
		if data.PhonePrefix != nil {
			user.PhonePrefix = nonEmpty(data.PhonePrefix)
			changed = true
		}
		if data.PhoneNumber != nil {
			user.PhoneNumber = nonEmpty(data.PhoneNumber)
			changed = true
		}
		if !changed {
			return nil, services.ErrNoFieldsToUpdate
		}

		now := s.now().UTC()
		user.UpdatedAt = now
		if err := s.users.Update(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, services.ErrEmailTaken
			}
			return nil, err
		}

		revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID, now)
		if err != nil {
			return nil, err
		}
		s.logger.Info("user updated",
			zap.String("user_id", user.ID.String()),
			zap.Bool("password_changed", data.Password != ""),
			zap.Int64("sessions_revoked", revoked))

		return &UserResponse{User: user.ToAuthUser()}, nil
	})
	if err != nil {
		return nil, s.fail("update", err)
	}
	return resp, nil
}

// GetRoles lists the role catalog ordered by name
func (s *Service) GetRoles(ctx context.Context) ([]RoleSummary, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, s.fail("get roles", err)
	}

	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, RoleSummary{
			ID:          role.ID.String(),
			Name:        role.Name,
			Description: role.Description,
		})
	}
	return summaries, nil
}

// GetRoleByName resolves a role by its unique name
func (s *Service) GetRoleByName(ctx context.Context, req RoleByNameRequest) (*RoleRef, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	role, err := s.roles.GetByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, fmt.Sprintf("Role '%s' not found", req.Name), nil)
		}
		return nil, s.fail("get role by name", err)
	}
	return &RoleRef{ID: role.ID.String(), Name: role.Name}, nil
}

// Health reports liveness of the engine
func (s *Service) Health(ctx context.Context) HealthResponse {
	return HealthResponse{Status: "ok"}
}

// issueTokenPair must run inside the caller's transaction
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*Tokens, error) {
	if err := s.users.LockByID(ctx, user.ID); err != nil {
		return nil, err
	}

	claims := token.Claims{
		Email:        user.Email,
		RoleID:       user.RoleID.String(),
		EnterpriseID: user.EnterpriseID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID.String(),
		},
	}

	accessToken, err := s.codec.Sign(claims, token.SignOptions{
		Secret:   s.jwt.AccessSecret,
		TTL:      s.jwt.AccessTTL,
		Issuer:   s.jwt.Issuer,
		Audience: s.jwt.Audience,
	})
	if err != nil {
		return nil, services.WrapInternal("failed to sign access token", err)
	}

	jti := uuid.New()
	refreshToken, err := s.codec.Sign(claims, token.SignOptions{
		Secret:   s.jwt.RefreshSecret,
		TTL:      s.jwt.RefreshTTL,
		Issuer:   s.jwt.Issuer,
		Audience: s.jwt.Audience,
		ID:       jti.String(),
	})
	if err != nil {
		return nil, services.WrapInternal("failed to sign refresh token", err)
	}

	digest, err := s.hasher.Hash(refreshToken)
	if err != nil {
		return nil, services.WrapInternal("failed to hash refresh token", err)
	}

	now := s.now().UTC()
	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, now); err != nil {
		return nil, err
	}

	record := models.NewRefreshToken(jti, user.ID, digest, now.Add(s.jwt.RefreshTTL))
	record.CreatedAt = now
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        s.jwt.AccessExpiresIn,
		RefreshExpiresIn: s.jwt.RefreshExpiresIn,
	}, nil
}

// loadScoped fetches the user and enforces the expected tenant, if any
func (s *Service) loadScoped(ctx context.Context, id uuid.UUID, enterpriseID *string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, err
	}

	if tenant := nonEmpty(enterpriseID); tenant != nil && !user.BelongsTo(*tenant) {
		return nil, services.ErrForbidden
	}
	return user, nil
}

func (s *Service) hashPassword(plaintext string) (string, error) {
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrInvalidPassword) {
			return "", services.ErrInvalidPassword
		}
		return "", services.WrapInternal("failed to hash password", err)
	}
	return digest, nil
}

func (s *Service) accessVerifyOptions() token.VerifyOptions {
	return token.VerifyOptions{Secret: s.jwt.AccessSecret, Issuer: s.jwt.Issuer, Audience: s.jwt.Audience}
}

func (s *Service) refreshVerifyOptions() token.VerifyOptions {
	return token.VerifyOptions{Secret: s.jwt.RefreshSecret, Issuer: s.jwt.Issuer, Audience: s.jwt.Audience}
}

// fail classifies err and logs anything that surfaces as internal. The
// caller only ever sees the generic internal message.
func (s *Service) fail(op string, err error) error {
	err = services.FromStorage(err)
	if !services.IsInternalError(err) {
		return err
	}

	s.logger.Error("auth operation failed", zap.String("operation", op), zap.Error(err))
	return services.NewDomainError(services.ErrorTypeInternal, services.ErrInternal.Message, err)
}

// validate runs struct validation and reports failures as a validation error
// carrying the offending fields
func validate(req interface{}) error {
	err := utils.ValidateStruct(req)
	if err == nil {
		return nil
	}

	domainErr := services.NewDomainError(services.ErrorTypeValidation, "Validation failed", err)
	for field, msg := range utils.GetValidationFields(err) {
		domainErr = domainErr.WithDetail(field, msg)
	}
	return domainErr
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
