// Package postgres provides PostgreSQL implementation of the audit repository.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/submanage/internal/audit"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements audit.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts an audit row inside tx. An empty StaffID is stored as NULL.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error {
	query := `
		INSERT INTO audit_logs (staff_id, subscriber_id, action, details)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		entry.StaffID, entry.SubscriberID, entry.Action, entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns matching audit rows newest first, with the unpaginated total.
func (r *Repository) List(ctx context.Context, filter audit.Filter) ([]domain.AuditLog, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.StaffID != "" {
		args = append(args, filter.StaffID)
		where = append(where, fmt.Sprintf("staff_id = $%d", len(args)))
	}
	if filter.SubscriberID != "" {
		args = append(args, filter.SubscriberID)
		where = append(where, fmt.Sprintf("subscriber_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT id, COALESCE(staff_id::text, ''), subscriber_id::text, action, details, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.StaffID, &e.SubscriberID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit logs: %w", err)
	}

	return entries, total, nil
}
