package notifications

import (
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
)

// Notifications module errors.
var (
	ErrChannelUnavailable = fmt.Errorf("channel is not configured: %w", domain.ErrInvalidOperation)
	ErrUnknownTemplate    = fmt.Errorf("unknown message template: %w", domain.ErrValidation)
	ErrNoRecipient        = fmt.Errorf("subscriber has no address for this channel: %w", domain.ErrValidation)
)
