package identity

import (
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
)

// Identity module errors.
var (
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid access token: %w", domain.ErrUnauthorized)
	ErrTokenRevoked       = fmt.Errorf("access token has been revoked: %w", domain.ErrUnauthorized)
	ErrAccountGone        = fmt.Errorf("staff account no longer exists: %w", domain.ErrUnauthorized)
)
