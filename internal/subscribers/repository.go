// Package subscribers manages subscriber records, their payments and
// communications, and the guarded subscriber deletion cascade.
package subscribers

import (
	"context"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/notifications"
	"github.com/jackc/pgx/v5"
)

// Sort fields accepted by List.
const (
	SortEndDate   = "end_date"
	SortCreatedAt = "created_at"
	SortFullName  = "full_name"
)

// ListFilter narrows and orders a subscriber listing.
type ListFilter struct {
	Status domain.SubscriberStatus
	// Search matches name, email or phone number, case-insensitively.
	Search string
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}

// Repository defines the interface for subscriber storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Subscriber, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Subscriber, int, error)
	ListCommunications(ctx context.Context, subscriberID string) ([]domain.Communication, error)
	ListPayments(ctx context.Context, subscriberID string) ([]domain.Payment, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscriber) error
	// LockTx loads the subscriber with a row lock held until tx ends.
	LockTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Subscriber, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscriber) error
	DeleteCommunicationsTx(ctx context.Context, tx pgx.Tx, subscriberID string) (int64, error)
	DeletePaymentsTx(ctx context.Context, tx pgx.Tx, subscriberID string) (int64, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id string) error
	CreatePaymentTx(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	CreateCommunicationTx(ctx context.Context, tx pgx.Tx, comm *domain.Communication) error
}

// AuditRecorder writes audit rows inside a caller's transaction.
type AuditRecorder interface {
	CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error
}

// Messenger delivers a rendered message over a channel.
type Messenger interface {
	Supports(channel domain.Channel) bool
	Send(ctx context.Context, channel domain.Channel, msg notifications.Message) error
}

// Renderer turns a template id into a subject and body for a channel.
type Renderer interface {
	Render(id string, channel domain.Channel, data notifications.TemplateData) (subject, body string, err error)
}

// Summarizer condenses free-form notes.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
