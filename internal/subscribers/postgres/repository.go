// Package postgres provides PostgreSQL implementation of the subscribers repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/submanage/internal/domain"
	pgutil "github.com/bissquit/submanage/internal/pkg/postgres"
	"github.com/bissquit/submanage/internal/subscribers"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriberColumns = `id, full_name, email, phone_number, plan, start_date, end_date, status, notes, created_by, created_at, updated_at`

var sortColumns = map[string]string{
	subscribers.SortEndDate:   "end_date",
	subscribers.SortCreatedAt: "created_at",
	subscribers.SortFullName:  "lower(full_name)",
}

// Repository implements subscribers.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var s domain.Subscriber
	err := row.Scan(
		&s.ID, &s.FullName, &s.Email, &s.PhoneNumber, &s.Plan, &s.StartDate, &s.EndDate,
		&s.Status, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscribers.ErrSubscriberNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a subscriber by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err != nil && !errors.Is(err, subscribers.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, err
}

// List returns one page of matching subscribers and the unpaginated total.
func (r *Repository) List(ctx context.Context, filter subscribers.ListFilter) ([]domain.Subscriber, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR phone_number ILIKE $%d)", n, n, n))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM subscribers "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscribers
		%s
		ORDER BY %s %s, id
		LIMIT $%d OFFSET $%d
	`, subscriberColumns, clause, column, direction, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate subscribers: %w", err)
	}

	return subs, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListCommunications returns a subscriber's communications, newest first.
func (r *Repository) ListCommunications(ctx context.Context, subscriberID string) ([]domain.Communication, error) {
	query := `
		SELECT id, subscriber_id, channel, message, status, sent_at, COALESCE(created_by::text, '')
		FROM communications
		WHERE subscriber_id = $1
		ORDER BY sent_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	comms := make([]domain.Communication, 0)
	for rows.Next() {
		var c domain.Communication
		if err := rows.Scan(&c.ID, &c.SubscriberID, &c.Channel, &c.Message, &c.Status, &c.SentAt, &c.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan communication: %w", err)
		}
		comms = append(comms, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communications: %w", err)
	}
	return comms, nil
}

// ListPayments returns a subscriber's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, subscriberID string) ([]domain.Payment, error) {
	query := `
		SELECT id, subscriber_id, transaction_id, amount, currency, paid_at, method, created_at
		FROM payments
		WHERE subscriber_id = $1
		ORDER BY paid_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SubscriberID, &p.TransactionID, &p.Amount, &p.Currency, &p.PaidAt, &p.Method, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateTx inserts a subscriber within a transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscriber) error {
	query := `
		INSERT INTO subscribers (full_name, email, phone_number, plan, start_date, end_date, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		sub.FullName, sub.Email, sub.PhoneNumber, sub.Plan, sub.StartDate, sub.EndDate,
		sub.Status, sub.Notes, sub.CreatedBy,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return subscribers.ErrEmailExists
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// LockTx loads a subscriber with FOR UPDATE.
func (r *Repository) LockTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(tx.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1 FOR UPDATE`, id))
	if err != nil && !errors.Is(err, subscribers.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("lock subscriber: %w", err)
	}
	return s, err
}

// UpdateTx writes every mutable column within a transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscriber) error {
	query := `
		UPDATE subscribers
		SET full_name = $2, email = $3, phone_number = $4, plan = $5, start_date = $6,
		    end_date = $7, status = $8, notes = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		sub.ID, sub.FullName, sub.Email, sub.PhoneNumber, sub.Plan, sub.StartDate,
		sub.EndDate, sub.Status, sub.Notes,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscribers.ErrSubscriberNotFound
		}
		if pgutil.IsUniqueViolation(err) {
			return subscribers.ErrEmailExists
		}
		return fmt.Errorf("update subscriber: %w", err)
	}
	return nil
}

// DeleteCommunicationsTx removes a subscriber's communications.
func (r *Repository) DeleteCommunicationsTx(ctx context.Context, tx pgx.Tx, subscriberID string) (int64, error) {
	result, err := tx.Exec(ctx, `DELETE FROM communications WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("delete communications: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeletePaymentsTx removes a subscriber's payments.
func (r *Repository) DeletePaymentsTx(ctx context.Context, tx pgx.Tx, subscriberID string) (int64, error) {
	result, err := tx.Exec(ctx, `DELETE FROM payments WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteTx removes a subscriber within a transaction.
func (r *Repository) DeleteTx(ctx context.Context, tx pgx.Tx, id string) error {
	result, err := tx.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscribers.ErrSubscriberNotFound
	}
	return nil
}

// CreatePaymentTx inserts a payment within a transaction.
func (r *Repository) CreatePaymentTx(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (subscriber_id, transaction_id, amount, currency, paid_at, method)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		payment.SubscriberID, payment.TransactionID, payment.Amount, payment.Currency, payment.PaidAt, payment.Method,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return subscribers.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// CreateCommunicationTx inserts a communication within a transaction.
func (r *Repository) CreateCommunicationTx(ctx context.Context, tx pgx.Tx, comm *domain.Communication) error {
	query := `
		INSERT INTO communications (subscriber_id, channel, message, status, sent_at, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		comm.SubscriberID, comm.Channel, comm.Message, comm.Status, comm.SentAt, comm.CreatedBy,
	).Scan(&comm.ID)
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}
	return nil
}
