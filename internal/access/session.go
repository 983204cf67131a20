package access

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/submanage/internal/domain"
)

// Errors returned by session checks.
var (
	ErrNoSession      = fmt.Errorf("no session: %w", domain.ErrUnauthorized)
	ErrSessionExpired = fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	ErrForbidden      = fmt.Errorf("insufficient permissions: %w", domain.ErrForbidden)
)

// Session identifies the staff member performing a request.
// It is built from a validated access token and passed explicitly to services.
type Session struct {
	ActorID   string
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// Check fails if the session is empty or expired at now.
func (s Session) Check(now time.Time) error {
	if s.ActorID == "" {
		return ErrNoSession
	}
	if !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// Can reports whether the session role may perform action.
func (s Session) Can(action Action) bool {
	return Authorize(s.Role, action)
}

// Require checks expiry and then the permission table.
func (s Session) Require(action Action, now time.Time) error {
	if err := s.Check(now); err != nil {
		return err
	}
	if !s.Can(action) {
		return fmt.Errorf("%s: %w", action, ErrForbidden)
	}
	return nil
}

type ctxKey struct{}

// WithSession stores the session in ctx. Used by the HTTP auth middleware only;
// services receive the session as an argument.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
