// Package audit records and lists staff actions against subscribers and accounts.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for audit log storage.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error
	List(ctx context.Context, filter Filter) ([]domain.AuditLog, int, error)
}

// Filter narrows an audit log listing. Empty fields match everything.
type Filter struct {
	StaffID      string
	SubscriberID string
	Action       domain.AuditAction
	Limit        int
	Offset       int
}

// NewEntry builds an audit row. staffID is empty for system actions.
func NewEntry(staffID string, subscriberID *string, action domain.AuditAction, details any) (*domain.AuditLog, error) {
	raw := json.RawMessage(`{}`)
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
		raw = b
	}

	return &domain.AuditLog{
		StaffID:      staffID,
		SubscriberID: subscriberID,
		Action:       action,
		Details:      raw,
	}, nil
}
