// Package postgres provides PostgreSQL storage for lifecycle sweeps and aggregates.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriberColumns = `id, full_name, email, phone_number, plan, start_date, end_date, status, notes, created_by, created_at, updated_at`

// Repository implements lifecycle.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// ListAll returns every subscriber ordered by end date.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.db.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY end_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return collectSubscribers(rows)
}

// LockSweepCandidatesTx locks every subscriber a sweep may move.
func (r *Repository) LockSweepCandidatesTx(ctx context.Context, tx pgx.Tx) ([]domain.Subscriber, error) {
	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE status IN ($1, $2, $3)
		ORDER BY end_date, id
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query, domain.StatusActive, domain.StatusTrial, domain.StatusExpiring)
	if err != nil {
		return nil, fmt.Errorf("lock sweep candidates: %w", err)
	}
	return collectSubscribers(rows)
}

// SetStatusTx updates a subscriber's status within a transaction.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, id string, status domain.SubscriberStatus) error {
	result, err := tx.Exec(ctx, `UPDATE subscribers SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set subscriber status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscriber %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func collectSubscribers(rows pgx.Rows) ([]domain.Subscriber, error) {
	defer rows.Close()

	subs := make([]domain.Subscriber, 0)
	for rows.Next() {
		var s domain.Subscriber
		err := rows.Scan(
			&s.ID, &s.FullName, &s.Email, &s.PhoneNumber, &s.Plan, &s.StartDate, &s.EndDate,
			&s.Status, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}
