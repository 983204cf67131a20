package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/audit"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
	"github.com/bissquit/submanage/internal/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultAvatarURL = "https://i.pravatar.cc/150?u="

// Service implements staff business logic.
type Service struct {
	repo     Repository
	audit    AuditRecorder
	now      func() time.Time
	hashCost int
}

// NewService creates a new staff service.
func NewService(repo Repository, audit AuditRecorder) *Service {
	return &Service{
		repo:     repo,
		audit:    audit,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// CreateInput contains data for creating a staff account.
type CreateInput struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
	Avatar   string
}

// UpdateInput contains the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Email    *string
	Name     *string
	Avatar   *string
	Password *string
	Role     *domain.Role
}

// List returns every staff account.
func (s *Service) List(ctx context.Context, session access.Session) ([]domain.StaffUser, error) {
	if err := session.Require(access.ActionStaffRead, s.now()); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Get returns one account. Staff may always read their own.
func (s *Service) Get(ctx context.Context, session access.Session, id string) (*domain.StaffUser, error) {
	if err := session.Check(s.now()); err != nil {
		return nil, err
	}
	if id != session.ActorID && !session.Can(access.ActionStaffRead) {
		return nil, fmt.Errorf("%s: %w", access.ActionStaffRead, access.ErrForbidden)
	}
	return s.repo.GetByID(ctx, id)
}

// Create adds a staff account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, session access.Session, input CreateInput) (*domain.StaffUser, error) {
	if err := session.Require(access.ActionStaffCreate, s.now()); err != nil {
		return nil, err
	}

	user, err := s.newUser(input)
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateTx(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("create staff user: %w", err)
	}

	if err := s.record(ctx, tx, session.ActorID, domain.AuditStaffCreated, map[string]string{
		"staff_id": user.ID,
		"email":    user.Email,
		"role":     string(user.Role),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return user, nil
}

// Update edits an account. Staff may change their own name, email, avatar
// and password; role changes and edits of other accounts need staff:update.
func (s *Service) Update(ctx context.Context, session access.Session, id string, input UpdateInput) (*domain.StaffUser, error) {
	if err := session.Check(s.now()); err != nil {
		return nil, err
	}
	if id != session.ActorID || input.Role != nil {
		if !session.Can(access.ActionStaffUpdate) {
			return nil, fmt.Errorf("%s: %w", access.ActionStaffUpdate, access.ErrForbidden)
		}
	}
	if input.Role != nil && !input.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	user, err := s.repo.LockTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, 5)

	if input.Role != nil && *input.Role != user.Role {
		if user.Role == domain.RoleAdmin {
			admins, err := s.repo.LockAdminsTx(ctx, tx)
			if err != nil {
				return nil, fmt.Errorf("count admins: %w", err)
			}
			if admins <= 1 {
				return nil, ErrLastAdmin
			}
		}
		user.Role = *input.Role
		changed = append(changed, "role")
	}
	if input.Email != nil {
		user.Email = strings.TrimSpace(*input.Email)
		changed = append(changed, "email")
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
		changed = append(changed, "name")
	}
	if input.Avatar != nil {
		user.Avatar = *input.Avatar
		changed = append(changed, "avatar")
	}
	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
		changed = append(changed, "password")
	}

	if err := s.repo.UpdateTx(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("update staff user: %w", err)
	}

	if err := s.record(ctx, tx, session.ActorID, domain.AuditStaffUpdated, map[string]interface{}{
		"staff_id": user.ID,
		"fields":   changed,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return user, nil
}

// DeleteStaffUser removes targetID after handing its subscribers to the
// acting admin and purging its audit rows. The whole cascade is atomic.
func (s *Service) DeleteStaffUser(ctx context.Context, session access.Session, targetID string) error {
	if err := session.Check(s.now()); err != nil {
		return err
	}

	// The stored role is authoritative, the token role may be stale.
	actor, err := s.repo.GetByID(ctx, session.ActorID)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return fmt.Errorf("acting account no longer exists: %w", access.ErrForbidden)
		}
		return fmt.Errorf("load acting account: %w", err)
	}
	if !access.Authorize(actor.Role, access.ActionStaffDelete) {
		return fmt.Errorf("%s: %w", access.ActionStaffDelete, access.ErrForbidden)
	}

	if actor.ID == targetID {
		return ErrSelfDelete
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return txFailed("begin transaction", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	target, err := s.repo.LockTx(ctx, tx, targetID)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return err
		}
		return txFailed("lock staff user", err)
	}

	reassigned, err := s.repo.ReassignSubscribersTx(ctx, tx, target.ID, actor.ID)
	if err != nil {
		return txFailed("reassign subscribers", err)
	}

	purged, err := s.repo.DeleteAuditLogsTx(ctx, tx, target.ID)
	if err != nil {
		return txFailed("delete audit logs", err)
	}

	if err := s.repo.DeleteTx(ctx, tx, target.ID); err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return err
		}
		return txFailed("delete staff user", err)
	}

	if err := s.record(ctx, tx, actor.ID, domain.AuditStaffDeleted, map[string]interface{}{
		"staff_id":               target.ID,
		"email":                  target.Email,
		"reassigned_subscribers": reassigned,
		"deleted_audit_logs":     purged,
	}); err != nil {
		return txFailed("record audit log", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return txFailed("commit transaction", err)
	}

	metrics.CascadeDeletions.WithLabelValues("subscriber", "reassigned").Add(float64(reassigned))
	metrics.CascadeDeletions.WithLabelValues("audit_log", "deleted").Add(float64(purged))
	metrics.CascadeDeletions.WithLabelValues("staff_user", "deleted").Inc()

	ctxlog.FromContext(ctx).Info("staff user deleted",
		"staff_id", target.ID,
		"reassigned_subscribers", reassigned,
		"deleted_audit_logs", purged,
	)

	return nil
}

// EnsureAdmin creates an Admin account when none exists yet.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	admins, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		return false, nil
	}

	user, err := s.newUser(CreateInput{
		Email:    email,
		Name:     name,
		Role:     domain.RoleAdmin,
		Password: password,
	})
	if err != nil {
		return false, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateTx(ctx, tx, user); err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("bootstrap admin created", "email", user.Email, "staff_id", user.ID)
	return true, nil
}

func (s *Service) newUser(input CreateInput) (*domain.StaffUser, error) {
	if !input.Role.IsValid() {
		return nil, ErrInvalidRole
	}

	email := strings.TrimSpace(input.Email)
	name := strings.TrimSpace(input.Name)
	if err := requireFields(map[string]string{
		"email":    email,
		"name":     name,
		"password": input.Password,
	}); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	avatar := input.Avatar
	if avatar == "" {
		avatar = defaultAvatarURL + url.QueryEscape(email)
	}

	return &domain.StaffUser{
		Email:        email,
		Name:         name,
		Role:         input.Role,
		PasswordHash: string(hash),
		Avatar:       avatar,
	}, nil
}

// validateUpdate rejects fields that are present but blank once trimmed.
func validateUpdate(input UpdateInput) error {
	fields := make(map[string]string, 3)
	if input.Email != nil {
		fields["email"] = strings.TrimSpace(*input.Email)
	}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Password != nil {
		fields["password"] = *input.Password
	}
	return requireFields(fields)
}

func requireFields(fields map[string]string) error {
	for _, key := range []string{"email", "name", "password"} {
		if value, ok := fields[key]; ok && value == "" {
			return fmt.Errorf("%s: %w", key, ErrMissingField)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, actorID string, action domain.AuditAction, details interface{}) error {
	entry, err := audit.NewEntry(actorID, nil, action, details)
	if err != nil {
		return err
	}
	if err := s.audit.CreateTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	return nil
}
