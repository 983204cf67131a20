// Package postgres provides PostgreSQL implementation of the staff repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	pgutil "github.com/bissquit/submanage/internal/pkg/postgres"
	"github.com/bissquit/submanage/internal/staff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const staffColumns = `id, email, name, role, password_hash, avatar, last_login, created_at, updated_at`

// Repository implements staff.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanStaff(row pgx.Row) (*domain.StaffUser, error) {
	var u domain.StaffUser
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash,
		&u.Avatar, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, staff.ErrStaffNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID retrieves an account by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.StaffUser, error) {
	u, err := scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, staff.ErrStaffNotFound) {
		return nil, fmt.Errorf("get staff user: %w", err)
	}
	return u, err
}

// GetByEmail retrieves an account by case-insensitive email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.StaffUser, error) {
	u, err := scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE lower(email) = lower($1)`, email))
	if err != nil && !errors.Is(err, staff.ErrStaffNotFound) {
		return nil, fmt.Errorf("get staff user by email: %w", err)
	}
	return u, err
}

// List returns all accounts ordered by name.
func (r *Repository) List(ctx context.Context) ([]domain.StaffUser, error) {
	rows, err := r.db.Query(ctx, `SELECT `+staffColumns+` FROM staff_users ORDER BY name, email`)
	if err != nil {
		return nil, fmt.Errorf("list staff users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.StaffUser, 0)
	for rows.Next() {
		u, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff users: %w", err)
	}
	return users, nil
}

// CountAdmins returns the number of Admin accounts.
func (r *Repository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM staff_users WHERE role = 'Admin'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// UpdateLastLogin stamps a successful login.
func (r *Repository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE staff_users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return staff.ErrStaffNotFound
	}
	return nil
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateTx inserts an account within a transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, user *domain.StaffUser) error {
	query := `
		INSERT INTO staff_users (email, name, role, password_hash, avatar)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		user.Email, user.Name, user.Role, user.PasswordHash, user.Avatar,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return staff.ErrEmailExists
		}
		return fmt.Errorf("insert staff user: %w", err)
	}
	return nil
}

// UpdateTx writes every mutable column within a transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, user *domain.StaffUser) error {
	query := `
		UPDATE staff_users
		SET email = $2, name = $3, role = $4, password_hash = $5, avatar = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.Avatar,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return staff.ErrStaffNotFound
		}
		if pgutil.IsUniqueViolation(err) {
			return staff.ErrEmailExists
		}
		return fmt.Errorf("update staff user: %w", err)
	}
	return nil
}

// LockTx loads an account with FOR UPDATE. A concurrent deletion of the
// same row blocks here and then sees ErrStaffNotFound.
func (r *Repository) LockTx(ctx context.Context, tx pgx.Tx, id string) (*domain.StaffUser, error) {
	u, err := scanStaff(tx.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE id = $1 FOR UPDATE`, id))
	if err != nil && !errors.Is(err, staff.ErrStaffNotFound) {
		return nil, fmt.Errorf("lock staff user: %w", err)
	}
	return u, err
}

// LockAdminsTx locks all Admin rows and counts them.
func (r *Repository) LockAdminsTx(ctx context.Context, tx pgx.Tx) (int, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM staff_users WHERE role = 'Admin' FOR UPDATE`)
	if err != nil {
		return 0, fmt.Errorf("lock admins: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate admins: %w", err)
	}
	return n, nil
}

// ReassignSubscribersTx moves subscriber ownership from one account to another.
func (r *Repository) ReassignSubscribersTx(ctx context.Context, tx pgx.Tx, fromID, toID string) (int64, error) {
	result, err := tx.Exec(ctx,
		`UPDATE subscribers SET created_by = $2, updated_at = NOW() WHERE created_by = $1`,
		fromID, toID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassign subscribers: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteAuditLogsTx removes audit rows attributed to staffID.
func (r *Repository) DeleteAuditLogsTx(ctx context.Context, tx pgx.Tx, staffID string) (int64, error) {
	result, err := tx.Exec(ctx, `DELETE FROM audit_logs WHERE staff_id = $1`, staffID)
	if err != nil {
		return 0, fmt.Errorf("delete audit logs: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteTx removes an account within a transaction.
func (r *Repository) DeleteTx(ctx context.Context, tx pgx.Tx, id string) error {
	result, err := tx.Exec(ctx, `DELETE FROM staff_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete staff user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return staff.ErrStaffNotFound
	}
	return nil
}
