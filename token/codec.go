package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// wrong algorithm, expired, wrong issuer or audience, malformed input.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by access and refresh tokens. ID (jti) is set on refresh tokens only.
type Claims struct {
	Email        string  `json:"email"`
	RoleID       string  `json:"roleId"`
	EnterpriseID *string `json:"enterpriseId"`
	jwt.RegisteredClaims
}

// SignOptions select the key and registered claims for one token
type SignOptions struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
	ID       string
}

// VerifyOptions select the key and the expected issuer/audience
type VerifyOptions struct {
	Secret   string
	Issuer   string
	Audience string
}

// Codec signs and verifies HS256 tokens
type Codec struct {
	now func() time.Time
}

// NewCodec creates a codec using the wall clock
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// NewCodecWithClock creates a codec reading time from now
func NewCodecWithClock(now func() time.Time) *Codec {
	return &Codec{now: now}
}

// Sign stamps iss, aud, iat, exp (and jti when opts.ID is set) onto a copy of claims
func (c *Codec) Sign(claims Claims, opts SignOptions) (string, error) {
	if opts.Secret == "" {
		return "", errors.New("signing secret is empty")
	}
	if opts.TTL <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := c.now()
	claims.Issuer = opts.Issuer
	claims.Audience = jwt.ClaimStrings{opts.Audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(opts.TTL))
	claims.ID = opts.ID

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(opts.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks algorithm, signature, expiry, issuer and audience
func (c *Codec) Verify(tokenStr string, opts VerifyOptions) (*Claims, error) {
	if tokenStr == "" || opts.Secret == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(opts.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
