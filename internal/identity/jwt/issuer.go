// Package jwt issues and verifies HS256 access tokens for staff sessions.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/identity"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuerName = "submanage"

// claims is the token payload. The subject is the staff id and the JWT id
// is what logout revokes.
type claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

// Issuer implements identity.TokenIssuer.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer signing with secret. Tokens live for ttl.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt: token ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for user.
func (i *Issuer) Issue(user *domain.StaffUser, now time.Time) (identity.IssuedToken, error) {
	id := uuid.NewString()
	expiresAt := now.Add(i.ttl).Truncate(time.Second)

	c := claims{
		Role: string(user.Role),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   user.ID,
			ID:        id,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return identity.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}

	return identity.IssuedToken{Token: signed, ID: id, ExpiresAt: expiresAt.UTC()}, nil
}

// Parse verifies the signature and expiry of token and returns its claims.
func (i *Issuer) Parse(token string) (identity.Claims, error) {
	var c claims
	parsed, err := jwtlib.ParseWithClaims(token, &c, func(_ *jwtlib.Token) (any, error) {
		return i.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(issuerName),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(i.now),
	)
	if err != nil {
		return identity.Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return identity.Claims{}, errors.New("parse token: invalid token")
	}

	role := domain.Role(c.Role)
	if c.Subject == "" || c.ID == "" || !role.IsValid() {
		return identity.Claims{}, errors.New("parse token: incomplete claims")
	}

	return identity.Claims{
		UserID:    c.Subject,
		Role:      role,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}, nil
}
