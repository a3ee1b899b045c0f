package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/maingoo/auth-service/config"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/password"
	"github.com/maingoo/auth-service/repositories"
	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/services/events"
	"github.com/maingoo/auth-service/services/roles"
	"github.com/maingoo/auth-service/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "correct-horse-battery"

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessSecret:     "access-secret-0123456789abcdef",
		AccessExpiresIn:  "15m",
		AccessTTL:        15 * time.Minute,
		RefreshSecret:    "refresh-secret-0123456789abcdef",
		RefreshExpiresIn: "7d",
		RefreshTTL:       7 * 24 * time.Hour,
		Issuer:           "maingoo",
		Audience:         "maingoo-clients",
	}
}

type harness struct {
	svc      *Service
	store    *memStore
	repos    *repositories.Repositories
	hasher   password.Hasher
	emitter  *recordingEmitter
	codec    *token.Codec
	admin    *models.Role
	employee *models.Role
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	admin := store.addRole(models.RoleAdmin, "Full access")
	employee := store.addRole(models.RoleEmployee, "Read-only access")

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)

	repos := &repositories.Repositories{
		Users:         &memUserRepo{store: store},
		Roles:         &memRoleRepo{store: store},
		RefreshTokens: &memTokenRepo{store: store},
	}
	h := &harness{
		store:    store,
		repos:    repos,
		hasher:   hasher,
		emitter:  &recordingEmitter{},
		codec:    token.NewCodec(),
		admin:    admin,
		employee: employee,
	}
	h.svc = h.build(repos, h.codec)
	return h
}

func (h *harness) build(repos *repositories.Repositories, codec TokenCodec) *Service {
	catalog := roles.NewCatalog(repos.Roles, roles.NewCache(16, time.Minute), zap.NewNop())
	return NewService(repos, &memTxManager{store: h.store}, catalog, h.hasher, codec, testJWTConfig(), h.emitter, zap.NewNop())
}

func (h *harness) register(t *testing.T, email string, enterpriseID *string) *AuthResponse {
	t.Helper()

	resp, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:        email,
		Password:     testPassword,
		Name:         "Test User",
		RoleID:       h.employee.ID.String(),
		EnterpriseID: enterpriseID,
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) refreshClaims(t *testing.T, refreshToken string) *token.Claims {
	t.Helper()

	cfg := testJWTConfig()
	claims, err := h.codec.Verify(refreshToken, token.VerifyOptions{
		Secret:   cfg.RefreshSecret,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	})
	require.NoError(t, err)
	return claims
}

func (h *harness) active(t *testing.T, userID string) int {
	t.Helper()
	return h.store.activeTokens(uuid.MustParse(userID), time.Now())
}

func strPtr(s string) *string {
	return &s
}

func domainError(t *testing.T, err error) *services.DomainError {
	t.Helper()

	var domainErr *services.DomainError
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %v", err)
	return domainErr
}

// failingCodec fails to sign refresh tokens
type failingCodec struct {
	TokenCodec
}

func (c failingCodec) Sign(claims token.Claims, opts token.SignOptions) (string, error) {
	if opts.ID != "" {
		return "", errors.New("signer unavailable")
	}
	return c.TokenCodec.Sign(claims, opts)
}

// racingUserRepo never sees existing emails, as if a concurrent insert won
type racingUserRepo struct {
	*memUserRepo
}

func (r racingUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, repositories.ErrNotFound
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	tenant := strPtr("ent-1")

	resp, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:        "ann@example.com",
		Password:     testPassword,
		Name:         "Ann",
		RoleID:       h.employee.ID.String(),
		EnterpriseID: tenant,
		PhonePrefix:  strPtr("+57"),
		PhoneNumber:  strPtr("3001234567"),
	})
	require.NoError(t, err)

	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.Equal(t, "Ann", resp.User.Name)
	assert.Equal(t, h.employee.ID.String(), resp.User.RoleID)
	assert.Equal(t, models.RoleEmployee, resp.User.RoleName)
	assert.Equal(t, "ent-1", *resp.User.EnterpriseID)
	assert.Equal(t, "+57", *resp.User.PhonePrefix)
	assert.Nil(t, resp.User.EmailFluvia)

	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
	assert.Equal(t, "15m", resp.Tokens.ExpiresIn)
	assert.Equal(t, "7d", resp.Tokens.RefreshExpiresIn)
	assert.Equal(t, 1, h.active(t, resp.User.ID))

	t.Run("access token carries identity and tenant", func(t *testing.T) {
		cfg := testJWTConfig()
		claims, err := h.codec.Verify(resp.Tokens.AccessToken, token.VerifyOptions{
			Secret:   cfg.AccessSecret,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
		})
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.Subject)
		assert.Equal(t, "ann@example.com", claims.Email)
		assert.Equal(t, h.employee.ID.String(), claims.RoleID)
		assert.Equal(t, "ent-1", *claims.EnterpriseID)
		assert.Empty(t, claims.ID)
	})

	t.Run("refresh token jti is the persisted record", func(t *testing.T) {
		claims := h.refreshClaims(t, resp.Tokens.RefreshToken)
		record, ok := h.store.token(uuid.MustParse(claims.ID))
		require.True(t, ok)
		assert.Equal(t, resp.User.ID, record.UserID.String())
		assert.NotEqual(t, resp.Tokens.RefreshToken, record.TokenHash)
		assert.True(t, h.hasher.Verify(record.TokenHash, resp.Tokens.RefreshToken))
	})

	t.Run("user created event emitted", func(t *testing.T) {
		emitted := h.emitter.emitted()
		require.Len(t, emitted, 1)
		assert.Equal(t, events.SubjectUserCreated, emitted[0].Subject)
		payload := emitted[0].Payload.(events.UserCreated)
		assert.Equal(t, resp.User.ID, payload.UserID)
		assert.Equal(t, "ent-1", *payload.EnterpriseID)
	})
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ann@example.com", nil)

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:    "ann@example.com",
		Password: testPassword,
		Name:     "Other Ann",
		RoleID:   h.employee.ID.String(),
	})
	assert.True(t, services.IsConflictError(err))
	assert.Equal(t, "Email already registered", domainError(t, err).Message)
	assert.Equal(t, 1, h.store.userCount())
	assert.Len(t, h.emitter.emitted(), 1)
}

func TestRegister_DuplicateEmailRace(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ann@example.com", nil)

	repos := *h.repos
	repos.Users = racingUserRepo{memUserRepo: &memUserRepo{store: h.store}}
	svc := h.build(&repos, h.codec)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ann@example.com",
		Password: testPassword,
		Name:     "Other Ann",
		RoleID:   h.employee.ID.String(),
	})
	assert.True(t, services.IsConflictError(err))
	assert.Equal(t, 1, h.store.userCount())
}

func TestRegister_InvalidRole(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:    "ann@example.com",
		Password: testPassword,
		Name:     "Ann",
		RoleID:   uuid.NewString(),
	})
	assert.True(t, services.IsValidationError(err))
	assert.Equal(t, "Invalid role", domainError(t, err).Message)
	assert.Zero(t, h.store.userCount())
}

func TestRegister_ValidationFailure(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:    "not-an-email",
		Password: "short",
		RoleID:   "nope",
	})
	require.True(t, services.IsValidationError(err))

	details := services.GetErrorDetails(err)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "roleId")
	assert.Zero(t, h.store.userCount())
}

func TestRegister_RollsBackOnIssueFailure(t *testing.T) {
	h := newHarness(t)
	svc := h.build(h.repos, failingCodec{TokenCodec: h.codec})

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ann@example.com",
		Password: testPassword,
		Name:     "Ann",
		RoleID:   h.employee.ID.String(),
	})
	require.True(t, services.IsInternalError(err))
	assert.Equal(t, "Internal server error", domainError(t, err).Message)
	assert.Zero(t, h.store.userCount())
	assert.Empty(t, h.emitter.emitted())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)

	resp, err := h.svc.Login(context.Background(), LoginRequest{Email: "ann@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)
	assert.Equal(t, models.RoleEmployee, resp.User.RoleName)
	assert.Equal(t, 1, h.active(t, resp.User.ID))

	t.Run("previous refresh token is revoked", func(t *testing.T) {
		claims := h.refreshClaims(t, registered.Tokens.RefreshToken)
		record, ok := h.store.token(uuid.MustParse(claims.ID))
		require.True(t, ok)
		assert.True(t, record.IsRevoked())
	})

	t.Run("repeated logins keep one active session", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := h.svc.Login(context.Background(), LoginRequest{Email: "ann@example.com", Password: testPassword})
			require.NoError(t, err)
			assert.Equal(t, 1, h.active(t, resp.User.ID))
		}
	})
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)

	_, wrongPassword := h.svc.Login(context.Background(), LoginRequest{Email: "ann@example.com", Password: "wrong-password"})
	_, unknownEmail := h.svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: testPassword})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.ErrorIs(t, wrongPassword, services.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, services.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, domainError(t, wrongPassword).Status(), domainError(t, unknownEmail).Status())

	// A failed login does not touch the existing session.
	assert.Equal(t, 1, h.active(t, registered.User.ID))
}

func TestLogin_UpgradesWeakPasswordHash(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)
	userID := uuid.MustParse(registered.User.ID)
	weakDigest := h.store.passwordHash(userID)
	require.Contains(t, weakDigest, "m=8192,t=1,p=1")

	stronger, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	h.hasher = stronger
	h.svc = h.build(h.repos, h.codec)

	_, err = h.svc.Login(context.Background(), LoginRequest{Email: "ann@example.com", Password: testPassword})
	require.NoError(t, err)

	upgraded := h.store.passwordHash(userID)
	assert.NotEqual(t, weakDigest, upgraded)
	assert.Contains(t, upgraded, "m=8192,t=2,p=1")
	assert.True(t, stronger.Verify(upgraded, testPassword))

	t.Run("current digest is left alone", func(t *testing.T) {
		_, err := h.svc.Login(context.Background(), LoginRequest{Email: "ann@example.com", Password: testPassword})
		require.NoError(t, err)
		assert.Equal(t, upgraded, h.store.passwordHash(userID))
	})

	t.Run("wrong password does not upgrade", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "bob@example.com", nil)
		userID := uuid.MustParse(registered.User.ID)
		before := h.store.passwordHash(userID)
		h.hasher = stronger
		h.svc = h.build(h.repos, h.codec)

		_, err := h.svc.Login(context.Background(), LoginRequest{Email: "bob@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		assert.Equal(t, before, h.store.passwordHash(userID))
	})
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", strPtr("ent-1"))

	resp, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: registered.Tokens.RefreshToken})
	require.NoError(t, err)

	assert.Equal(t, registered.User.ID, resp.User.ID)
	assert.NotEqual(t, registered.Tokens.RefreshToken, resp.Tokens.RefreshToken)
	assert.Equal(t, 1, h.active(t, resp.User.ID))

	oldClaims := h.refreshClaims(t, registered.Tokens.RefreshToken)
	newClaims := h.refreshClaims(t, resp.Tokens.RefreshToken)
	assert.NotEqual(t, oldClaims.ID, newClaims.ID)

	old, _ := h.store.token(uuid.MustParse(oldClaims.ID))
	assert.True(t, old.IsRevoked())

	t.Run("replaying a redeemed token fails as revoked", func(t *testing.T) {
		_, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: registered.Tokens.RefreshToken})
		assert.ErrorIs(t, err, services.ErrTokenRevoked)
		assert.Equal(t, 1, h.active(t, resp.User.ID))
	})

	t.Run("new token is redeemable", func(t *testing.T) {
		_, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: resp.Tokens.RefreshToken})
		assert.NoError(t, err)
	})
}

func TestRefresh_ConcurrentRedemption(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: registered.Tokens.RefreshToken})
		}(i)
	}
	wg.Wait()

	succeeded, revoked := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrTokenRevoked):
			revoked++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, revoked)
	assert.Equal(t, 1, h.active(t, registered.User.ID))
}

func TestRefresh_Expired(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)

	claims := h.refreshClaims(t, registered.Tokens.RefreshToken)
	h.store.setTokenExpiry(uuid.MustParse(claims.ID), time.Now().Add(-time.Minute))

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: registered.Tokens.RefreshToken})
	assert.ErrorIs(t, err, services.ErrTokenExpired)
}

func TestRefresh_InvalidTokens(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", nil)
	cfg := testJWTConfig()
	userClaims := token.Claims{
		Email:            registered.User.Email,
		RoleID:           registered.User.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: registered.User.ID},
	}

	sign := func(codec *token.Codec, opts token.SignOptions) string {
		signed, err := codec.Sign(userClaims, opts)
		require.NoError(t, err)
		return signed
	}
	refreshOpts := func(id string) token.SignOptions {
		return token.SignOptions{
			Secret:   cfg.RefreshSecret,
			TTL:      time.Hour,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			ID:       id,
		}
	}
	pastCodec := token.NewCodecWithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.jwt"},
		{name: "access token presented as refresh", token: registered.Tokens.AccessToken},
		{name: "missing jti", token: sign(h.codec, refreshOpts(""))},
		{name: "jti not a uuid", token: sign(h.codec, refreshOpts("abc"))},
		{name: "unknown jti", token: sign(h.codec, refreshOpts(uuid.NewString()))},
		{name: "expired signature", token: sign(pastCodec, refreshOpts(uuid.NewString()))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: tt.token})
			assert.ErrorIs(t, err, services.ErrInvalidToken)
			assert.Equal(t, 401, domainError(t, err).Status())
		})
	}

	t.Run("forged token reusing a live jti", func(t *testing.T) {
		claims := h.refreshClaims(t, registered.Tokens.RefreshToken)
		forged := sign(h.codec, refreshOpts(claims.ID))

		_, err := h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: forged})
		assert.ErrorIs(t, err, services.ErrInvalidToken)
		assert.Equal(t, 1, h.active(t, registered.User.ID))
	})
}

func TestVerify(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", strPtr("ent-1"))
	cfg := testJWTConfig()
	accessOpts := token.SignOptions{Secret: cfg.AccessSecret, TTL: time.Minute, Issuer: cfg.Issuer, Audience: cfg.Audience}

	signFor := func(subject string, enterpriseID *string) string {
		signed, err := h.codec.Sign(token.Claims{
			Email:            registered.User.Email,
			RoleID:           registered.User.RoleID,
			EnterpriseID:     enterpriseID,
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		}, accessOpts)
		require.NoError(t, err)
		return signed
	}

	t.Run("valid access token", func(t *testing.T) {
		resp, err := h.svc.Verify(context.Background(), VerifyRequest{Token: registered.Tokens.AccessToken})
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, resp.User.ID)
		assert.Equal(t, models.RoleEmployee, resp.User.RoleName)
	})

	t.Run("no tenant claim", func(t *testing.T) {
		_, err := h.svc.Verify(context.Background(), VerifyRequest{Token: signFor(registered.User.ID, nil)})
		assert.NoError(t, err)
	})

	t.Run("mismatched tenant claim", func(t *testing.T) {
		_, err := h.svc.Verify(context.Background(), VerifyRequest{Token: signFor(registered.User.ID, strPtr("ent-2"))})
		assert.ErrorIs(t, err, services.ErrForbidden)
		assert.Equal(t, 403, domainError(t, err).Status())
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, err := h.svc.Verify(context.Background(), VerifyRequest{Token: signFor(uuid.NewString(), nil)})
		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := h.svc.Verify(context.Background(), VerifyRequest{Token: registered.Tokens.RefreshToken})
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := h.svc.Verify(context.Background(), VerifyRequest{})
		assert.True(t, services.IsValidationError(err))
	})
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	scoped := h.register(t, "ann@example.com", strPtr("ent-1"))
	unscoped := h.register(t, "root@example.com", nil)

	tests := []struct {
		name         string
		userID       string
		enterpriseID *string
		wantErr      error
	}{
		{name: "no expected tenant", userID: scoped.User.ID},
		{name: "matching tenant", userID: scoped.User.ID, enterpriseID: strPtr("ent-1")},
		{name: "empty tenant is ignored", userID: scoped.User.ID, enterpriseID: strPtr("")},
		{name: "other tenant", userID: scoped.User.ID, enterpriseID: strPtr("ent-2"), wantErr: services.ErrForbidden},
		{name: "unscoped user with expected tenant", userID: unscoped.User.ID, enterpriseID: strPtr("ent-1"), wantErr: services.ErrForbidden},
		{name: "unknown user", userID: uuid.NewString(), wantErr: services.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.svc.Profile(context.Background(), ProfileRequest{UserID: tt.userID, EnterpriseID: tt.enterpriseID})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.userID, resp.User.ID)
		})
	}

	t.Run("malformed user id", func(t *testing.T) {
		_, err := h.svc.Profile(context.Background(), ProfileRequest{UserID: "42"})
		assert.True(t, services.IsValidationError(err))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong current password leaves sessions intact", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "ann@example.com", nil)

		_, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: registered.User.ID,
			Data:   UpdateUserData{CurrentPassword: "wrong-password", Name: "Annie"},
		})
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		assert.Equal(t, 1, h.active(t, registered.User.ID))

		profile, err := h.svc.Profile(ctx, ProfileRequest{UserID: registered.User.ID})
		require.NoError(t, err)
		assert.Equal(t, "Test User", profile.User.Name)
	})

	t.Run("no fields to update", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "ann@example.com", nil)

		_, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: registered.User.ID,
			Data:   UpdateUserData{CurrentPassword: testPassword},
		})
		assert.True(t, services.IsValidationError(err))
		assert.Equal(t, "No fields to update", domainError(t, err).Message)
		assert.Equal(t, 1, h.active(t, registered.User.ID))
	})

	t.Run("new password revokes every session", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "ann@example.com", nil)

		resp, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: registered.User.ID,
			Data:   UpdateUserData{CurrentPassword: testPassword, Password: "new-password-123"},
		})
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, resp.User.ID)
		assert.Zero(t, h.active(t, registered.User.ID))

		_, err = h.svc.Refresh(ctx, RefreshRequest{RefreshToken: registered.Tokens.RefreshToken})
		assert.ErrorIs(t, err, services.ErrTokenRevoked)

		_, err = h.svc.Login(ctx, LoginRequest{Email: "ann@example.com", Password: testPassword})
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		_, err = h.svc.Login(ctx, LoginRequest{Email: "ann@example.com", Password: "new-password-123"})
		assert.NoError(t, err)
	})

	t.Run("profile fields", func(t *testing.T) {
		h := newHarness(t)
		resp, err := h.svc.Register(ctx, RegisterRequest{
			Email:       "ann@example.com",
			Password:    testPassword,
			Name:        "Ann",
			RoleID:      h.employee.ID.String(),
			PhonePrefix: strPtr("+57"),
		})
		require.NoError(t, err)

		updated, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: resp.User.ID,
			Data: UpdateUserData{
				CurrentPassword: testPassword,
				Name:            "Annie",
				Email:           "annie@example.com",
				PhonePrefix:     strPtr(""),
				PhoneNumber:     strPtr("3001234567"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Annie", updated.User.Name)
		assert.Equal(t, "annie@example.com", updated.User.Email)
		assert.Nil(t, updated.User.PhonePrefix)
		assert.Equal(t, "3001234567", *updated.User.PhoneNumber)
		assert.Equal(t, models.RoleEmployee, updated.User.RoleName)
		assert.Zero(t, h.active(t, resp.User.ID))
	})

	t.Run("email taken", func(t *testing.T) {
		h := newHarness(t)
		h.register(t, "bob@example.com", nil)
		registered := h.register(t, "ann@example.com", nil)

		_, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: registered.User.ID,
			Data:   UpdateUserData{CurrentPassword: testPassword, Email: "bob@example.com"},
		})
		assert.True(t, services.IsConflictError(err))
		assert.Equal(t, 1, h.active(t, registered.User.ID))
	})

	t.Run("tenant scoping", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "ann@example.com", strPtr("ent-1"))

		_, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID:       registered.User.ID,
			EnterpriseID: strPtr("ent-2"),
			Data:         UpdateUserData{CurrentPassword: testPassword, Name: "Annie"},
		})
		assert.ErrorIs(t, err, services.ErrForbidden)

		_, err = h.svc.Update(ctx, UpdateUserRequest{
			UserID: uuid.NewString(),
			Data:   UpdateUserData{CurrentPassword: testPassword, Name: "Annie"},
		})
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})

	t.Run("missing current password", func(t *testing.T) {
		h := newHarness(t)
		registered := h.register(t, "ann@example.com", nil)

		_, err := h.svc.Update(ctx, UpdateUserRequest{
			UserID: registered.User.ID,
			Data:   UpdateUserData{Name: "Annie"},
		})
		require.True(t, services.IsValidationError(err))
		assert.Contains(t, services.GetErrorDetails(err), "data.currentPassword")
	})
}

func TestRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("list ordered by name", func(t *testing.T) {
		list, err := h.svc.GetRoles(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, RoleSummary{ID: h.admin.ID.String(), Name: "admin", Description: "Full access"}, list[0])
		assert.Equal(t, "employee", list[1].Name)
	})

	t.Run("lookup by name", func(t *testing.T) {
		ref, err := h.svc.GetRoleByName(ctx, RoleByNameRequest{Name: "admin"})
		require.NoError(t, err)
		assert.Equal(t, &RoleRef{ID: h.admin.ID.String(), Name: "admin"}, ref)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := h.svc.GetRoleByName(ctx, RoleByNameRequest{Name: "ghost"})
		assert.True(t, services.IsNotFoundError(err))
		assert.Equal(t, "Role 'ghost' not found", domainError(t, err).Message)
	})
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, HealthResponse{Status: "ok"}, h.svc.Health(context.Background()))
}
