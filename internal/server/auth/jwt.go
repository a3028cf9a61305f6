// Package auth issues and validates the signed tokens handed to clients and
// hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carries the registered claims plus the caller's role and the token
// type, so a refresh token is never accepted where an access token is expected.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
	Type TokenType   `json:"typ"`
}

func (c *Claims) UserID() string { return c.Subject }

// RefreshTokenGrant is a freshly signed refresh token together with the
// values that get persisted for it.
type RefreshTokenGrant struct {
	Token     string
	ID        string
	Hash      string
	ExpiresAt time.Time
}

type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now for issuing and validating.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithLeeway tolerates clock skew on the time-based claims only.
func WithLeeway(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.leeway = d }
}

func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// Leeway is the clock skew Validate tolerates on time-based claims.
func (i *Issuer) Leeway() time.Duration { return i.leeway }

func (i *Issuer) IssueAccessToken(user *models.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)
	token, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: user.Role,
		Type: TokenTypeAccess,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (i *Issuer) IssueRefreshToken(user *models.User) (*RefreshTokenGrant, error) {
	now := i.now()
	exp := now.Add(i.refreshTTL)
	id := uuid.NewString()
	token, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: user.Role,
		Type: TokenTypeRefresh,
	})
	if err != nil {
		return nil, err
	}
	return &RefreshTokenGrant{
		Token:     token,
		ID:        id,
		Hash:      common.HashToken(token),
		ExpiresAt: exp,
	}, nil
}

func (i *Issuer) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Validate checks signature, expiry and type. The returned error is one of
// common.ErrTokenExpired, common.ErrTokenMalformed or common.ErrTokenInvalid.
func (i *Issuer) Validate(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, common.ErrTokenMalformed
		default:
			return nil, common.ErrTokenInvalid
		}
	}

	if !token.Valid || claims.Type != want || claims.Subject == "" {
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}
