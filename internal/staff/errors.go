package staff

import (
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
)

// Staff module errors.
var (
	ErrStaffNotFound = fmt.Errorf("staff user not found: %w", domain.ErrNotFound)
	ErrEmailExists   = fmt.Errorf("email already in use: %w", domain.ErrConflict)
	ErrSelfDelete    = fmt.Errorf("cannot delete your own account: %w", domain.ErrInvalidOperation)
	ErrLastAdmin     = fmt.Errorf("at least one admin must remain: %w", domain.ErrInvalidOperation)
	ErrInvalidRole   = fmt.Errorf("invalid role: %w", domain.ErrValidation)
	ErrMissingField  = fmt.Errorf("missing required field: %w", domain.ErrValidation)
)

func txFailed(step string, err error) error {
	return fmt.Errorf("%s: %w: %w", step, domain.ErrTransactionFailed, err)
}
