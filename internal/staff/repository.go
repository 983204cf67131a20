// Package staff manages operator accounts and their guarded deletion.
package staff

import (
	"context"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for staff account storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffUser, error)
	List(ctx context.Context) ([]domain.StaffUser, error)
	CountAdmins(ctx context.Context) (int, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, user *domain.StaffUser) error
	UpdateTx(ctx context.Context, tx pgx.Tx, user *domain.StaffUser) error
	// LockTx loads the account with a row lock held until tx ends.
	LockTx(ctx context.Context, tx pgx.Tx, id string) (*domain.StaffUser, error)
	// LockAdminsTx locks every Admin row and returns how many there are.
	LockAdminsTx(ctx context.Context, tx pgx.Tx) (int, error)
	ReassignSubscribersTx(ctx context.Context, tx pgx.Tx, fromID, toID string) (int64, error)
	DeleteAuditLogsTx(ctx context.Context, tx pgx.Tx, staffID string) (int64, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id string) error
}

// AuditRecorder writes audit rows inside a caller's transaction.
type AuditRecorder interface {
	CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error
}
