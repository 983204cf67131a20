// Package identity authenticates staff members and turns access tokens into
// sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
)

// UserStore reads staff accounts.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.StaffUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffUser, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID    string
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// IssuedToken is a signed access token.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	Issue(user *domain.StaffUser, now time.Time) (IssuedToken, error)
	Parse(token string) (Claims, error)
}

// RevocationStore remembers logged-out token ids until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("submanage-dummy-password"), bcrypt.MinCost)

// Service implements identity business logic.
type Service struct {
	users   UserStore
	tokens  TokenIssuer
	revoked RevocationStore
	now     func() time.Time
}

// NewService creates a new identity service.
func NewService(users UserStore, tokens TokenIssuer, revoked RevocationStore) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		revoked: revoked,
		now:     time.Now,
	}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        *domain.StaffUser `json:"user"`
}

// Login verifies the password and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get staff user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		ctxlog.FromContext(ctx).Info("login failed", "staff_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token, err := s.tokens.Issue(user, now)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now.UTC()); err != nil {
		slog.Warn("failed to record last login", "staff_id", user.ID, "error", err)
	} else {
		at := now.UTC()
		user.LastLogin = &at
	}

	return &LoginResult{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
		User:        user,
	}, nil
}

// Me returns the account behind session.
func (s *Service) Me(ctx context.Context, session access.Session) (*domain.StaffUser, error) {
	if err := session.Check(s.now()); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, session.ActorID)
}

// Logout revokes the session's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, session access.Session) error {
	if err := session.Check(s.now()); err != nil {
		return err
	}
	if session.TokenID == "" {
		return nil
	}
	if err := s.revoked.Revoke(ctx, session.TokenID, session.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// ValidateToken verifies token and returns the session it grants.
func (s *Service) ValidateToken(ctx context.Context, token string) (access.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return access.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return access.Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return access.Session{}, ErrTokenRevoked
	}

	session := access.Session{
		ActorID:   claims.UserID,
		Role:      claims.Role,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}
	if err := session.Check(s.now()); err != nil {
		return access.Session{}, err
	}

	// The stored role wins over the one signed into the token.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return access.Session{}, ErrAccountGone
		}
		return access.Session{}, fmt.Errorf("get staff user: %w", err)
	}
	session.Role = user.Role

	return session, nil
}
