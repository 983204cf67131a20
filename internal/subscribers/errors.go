package subscribers

import (
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
)

// Subscribers module errors.
var (
	ErrSubscriberNotFound = fmt.Errorf("subscriber not found: %w", domain.ErrNotFound)
	ErrEmailExists        = fmt.Errorf("subscriber email already in use: %w", domain.ErrConflict)
	ErrDuplicatePayment   = fmt.Errorf("payment with this transaction id already recorded: %w", domain.ErrConflict)
	ErrInvalidPlan        = fmt.Errorf("invalid plan: %w", domain.ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("invalid status: %w", domain.ErrValidation)
	ErrInvalidChannel     = fmt.Errorf("invalid channel: %w", domain.ErrValidation)
	ErrInvalidSort        = fmt.Errorf("invalid sort field: %w", domain.ErrValidation)
	ErrMissingField       = fmt.Errorf("missing required field: %w", domain.ErrValidation)
	ErrEmptyMessage       = fmt.Errorf("either template_id or message is required: %w", domain.ErrValidation)
	ErrSummariesDisabled  = fmt.Errorf("note summaries are disabled: %w", domain.ErrInvalidOperation)
)

func txFailed(step string, err error) error {
	return fmt.Errorf("%s: %w: %w", step, domain.ErrTransactionFailed, err)
}
