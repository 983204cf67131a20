package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/audit"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/lifecycle"
	"github.com/bissquit/submanage/internal/notifications"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
	"github.com/bissquit/submanage/internal/pkg/metrics"
	"github.com/jackc/pgx/v5"
)

// Pagination limits for subscriber listings.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Options wires the optional collaborators of the service.
type Options struct {
	ExpiringWindow time.Duration
	Messenger      Messenger
	Renderer       Renderer
	Summarizer     Summarizer
}

// Service implements subscriber business logic.
type Service struct {
	repo       Repository
	audit      AuditRecorder
	messenger  Messenger
	renderer   Renderer
	summarizer Summarizer
	window     time.Duration
	now        func() time.Time
}

// NewService creates a new subscriber service.
func NewService(repo Repository, audit AuditRecorder, opts Options) *Service {
	window := opts.ExpiringWindow
	if window <= 0 {
		window = lifecycle.DefaultExpiringWindow
	}
	return &Service{
		repo:       repo,
		audit:      audit,
		messenger:  opts.Messenger,
		renderer:   opts.Renderer,
		summarizer: opts.Summarizer,
		window:     window,
		now:        time.Now,
	}
}

// View is a subscriber annotated with its display bucket.
type View struct {
	domain.Subscriber
	Bucket lifecycle.Bucket `json:"bucket"`
}

// Page is one page of a subscriber listing.
type Page struct {
	Items []View `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// CreateInput contains data for creating a subscriber.
// A zero StartDate means now; an empty Status means Active.
type CreateInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	Plan        domain.Plan
	StartDate   time.Time
	Status      domain.SubscriberStatus
	Notes       string
}

// UpdateInput contains the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	FullName    *string
	Email       *string
	PhoneNumber *string
	Plan        *domain.Plan
	StartDate   *time.Time
	Status      *domain.SubscriberStatus
	Notes       *string
}

// PaymentInput contains data for recording a payment.
type PaymentInput struct {
	TransactionID *string
	Amount        float64
	Currency      string
	PaidAt        time.Time
	Method        string
}

// MessageInput selects a template or a literal message for one channel.
// Message wins over TemplateID when both are set.
type MessageInput struct {
	Channel    domain.Channel
	TemplateID string
	Message    string
}

// ListParams are the caller-facing listing parameters. Page is 1-based.
type ListParams struct {
	Status domain.SubscriberStatus
	Search string
	Sort   string
	Order  string
	Page   int
	Limit  int
}

func (s *Service) view(sub domain.Subscriber, now time.Time) View {
	return View{Subscriber: sub, Bucket: lifecycle.Classify(sub.Status, sub.EndDate, now, s.window)}
}

// List returns one page of subscribers. The default order is newest first.
func (s *Service) List(ctx context.Context, session access.Session, params ListParams) (*Page, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersRead, now); err != nil {
		return nil, err
	}

	filter, page, err := buildFilter(params)
	if err != nil {
		return nil, err
	}

	subs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	items := make([]View, 0, len(subs))
	for _, sub := range subs {
		items = append(items, s.view(sub, now))
	}

	return &Page{Items: items, Total: total, Page: page, Limit: filter.Limit}, nil
}

func buildFilter(params ListParams) (ListFilter, int, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return ListFilter{}, 0, ErrInvalidStatus
	}

	filter := ListFilter{
		Status: params.Status,
		Search: strings.TrimSpace(params.Search),
		Sort:   params.Sort,
		Limit:  params.Limit,
	}

	switch filter.Sort {
	case "":
		filter.Sort = SortCreatedAt
		filter.Desc = true
	case SortEndDate, SortCreatedAt, SortFullName:
	default:
		return ListFilter{}, 0, ErrInvalidSort
	}

	switch strings.ToLower(params.Order) {
	case "":
	case "asc":
		filter.Desc = false
	case "desc":
		filter.Desc = true
	default:
		return ListFilter{}, 0, fmt.Errorf("invalid order %q: %w", params.Order, domain.ErrValidation)
	}

	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	filter.Offset = (page - 1) * filter.Limit

	return filter, page, nil
}

// Get returns a subscriber with its communications and payments.
func (s *Service) Get(ctx context.Context, session access.Session, id string) (*View, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersRead, now); err != nil {
		return nil, err
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	comms, err := s.repo.ListCommunications(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	sub.Communications = comms
	sub.Payments = payments

	v := s.view(*sub, now)
	return &v, nil
}

// Create adds a subscriber owned by the acting staff member. The end date
// is always derived from the start date and plan.
func (s *Service) Create(ctx context.Context, session access.Session, input CreateInput) (*View, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersCreate, now); err != nil {
		return nil, err
	}

	sub := &domain.Subscriber{
		FullName:    strings.TrimSpace(input.FullName),
		Email:       strings.TrimSpace(input.Email),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Plan:        input.Plan,
		StartDate:   input.StartDate,
		Status:      input.Status,
		Notes:       input.Notes,
		CreatedBy:   session.ActorID,
	}
	if sub.StartDate.IsZero() {
		sub.StartDate = now
	}
	if sub.Status == "" {
		sub.Status = domain.StatusActive
	}
	if err := validate(sub); err != nil {
		return nil, err
	}
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = lifecycle.ComputeEndDate(sub.StartDate, sub.Plan)

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.repo.CreateTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	if err := s.record(ctx, tx, session.ActorID, &sub.ID, domain.AuditSubscriberCreated, map[string]interface{}{
		"email":    sub.Email,
		"plan":     sub.Plan,
		"status":   sub.Status,
		"end_date": sub.EndDate,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	v := s.view(*sub, now)
	return &v, nil
}

// Update edits a subscriber. Unless the resulting status is Cancelled the
// end date is recomputed from the (possibly new) start date and plan.
// A Cancelled subscriber keeps its stored end date.
func (s *Service) Update(ctx context.Context, session access.Session, id string, input UpdateInput) (*View, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersUpdate, now); err != nil {
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

	sub, err := s.repo.LockTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	before := *sub

	changed := applyUpdate(sub, input)
	if err := validate(sub); err != nil {
		return nil, err
	}

	if sub.Status != domain.StatusCancelled {
		sub.StartDate = sub.StartDate.UTC()
		sub.EndDate = lifecycle.ComputeEndDate(sub.StartDate, sub.Plan)
	}

	if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("update subscriber: %w", err)
	}

	details := map[string]interface{}{"fields": changed}
	if before.Status != sub.Status {
		details["status_from"] = before.Status
		details["status_to"] = sub.Status
	}
	if !before.EndDate.Equal(sub.EndDate) {
		details["end_date"] = sub.EndDate
	}
	if err := s.record(ctx, tx, session.ActorID, &sub.ID, domain.AuditSubscriberUpdated, details); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	v := s.view(*sub, now)
	return &v, nil
}

func applyUpdate(sub *domain.Subscriber, input UpdateInput) []string {
	changed := make([]string, 0, 7)
	if input.FullName != nil {
		sub.FullName = strings.TrimSpace(*input.FullName)
		changed = append(changed, "full_name")
	}
	if input.Email != nil {
		sub.Email = strings.TrimSpace(*input.Email)
		changed = append(changed, "email")
	}
	if input.PhoneNumber != nil {
		sub.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
		changed = append(changed, "phone_number")
	}
	if input.Plan != nil {
		sub.Plan = *input.Plan
		changed = append(changed, "plan")
	}
	if input.StartDate != nil {
		sub.StartDate = *input.StartDate
		changed = append(changed, "start_date")
	}
	if input.Status != nil {
		sub.Status = *input.Status
		changed = append(changed, "status")
	}
	if input.Notes != nil {
		sub.Notes = *input.Notes
		changed = append(changed, "notes")
	}
	return changed
}

// validate rejects unknown plans and statuses and missing identity fields.
// lifecycle.ComputeEndDate would silently fall back to 30 days for an
// unknown plan, so plans are checked here first.
func validate(sub *domain.Subscriber) error {
	if sub.FullName == "" {
		return fmt.Errorf("full_name: %w", ErrMissingField)
	}
	if sub.Email == "" {
		return fmt.Errorf("email: %w", ErrMissingField)
	}
	if !sub.Plan.IsValid() {
		return fmt.Errorf("%q: %w", sub.Plan, ErrInvalidPlan)
	}
	if !sub.Status.IsValid() {
		return fmt.Errorf("%q: %w", sub.Status, ErrInvalidStatus)
	}
	return nil
}

// DeleteSubscriber removes a subscriber together with its communications
// and payments, children first. The cascade is atomic.
func (s *Service) DeleteSubscriber(ctx context.Context, session access.Session, id string) error {
	if err := session.Require(access.ActionSubscribersDelete, s.now()); err != nil {
		return err
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

	sub, err := s.repo.LockTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, ErrSubscriberNotFound) {
			return err
		}
		return txFailed("lock subscriber", err)
	}

	comms, err := s.repo.DeleteCommunicationsTx(ctx, tx, sub.ID)
	if err != nil {
		return txFailed("delete communications", err)
	}

	payments, err := s.repo.DeletePaymentsTx(ctx, tx, sub.ID)
	if err != nil {
		return txFailed("delete payments", err)
	}

	if err := s.repo.DeleteTx(ctx, tx, sub.ID); err != nil {
		if errors.Is(err, ErrSubscriberNotFound) {
			return err
		}
		return txFailed("delete subscriber", err)
	}

	// The row is gone, so the audit entry carries the id in its details only.
	if err := s.record(ctx, tx, session.ActorID, nil, domain.AuditSubscriberDeleted, map[string]interface{}{
		"subscriber_id":          sub.ID,
		"email":                  sub.Email,
		"deleted_communications": comms,
		"deleted_payments":       payments,
	}); err != nil {
		return txFailed("record audit log", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return txFailed("commit transaction", err)
	}

	metrics.CascadeDeletions.WithLabelValues("communication", "deleted").Add(float64(comms))
	metrics.CascadeDeletions.WithLabelValues("payment", "deleted").Add(float64(payments))
	metrics.CascadeDeletions.WithLabelValues("subscriber", "deleted").Inc()

	ctxlog.FromContext(ctx).Info("subscriber deleted",
		"subscriber_id", sub.ID,
		"deleted_communications", comms,
		"deleted_payments", payments,
	)

	return nil
}

// AddPayment appends a payment to a subscriber.
func (s *Service) AddPayment(ctx context.Context, session access.Session, id string, input PaymentInput) (*domain.Payment, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersUpdate, now); err != nil {
		return nil, err
	}

	if input.Amount < 0 {
		return nil, fmt.Errorf("amount must not be negative: %w", domain.ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter code: %w", domain.ErrValidation)
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
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

	sub, err := s.repo.LockTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		SubscriberID:  sub.ID,
		TransactionID: input.TransactionID,
		Amount:        input.Amount,
		Currency:      currency,
		PaidAt:        paidAt.UTC(),
		Method:        strings.TrimSpace(input.Method),
	}
	if err := s.repo.CreatePaymentTx(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	if err := s.record(ctx, tx, session.ActorID, &sub.ID, domain.AuditPaymentRecorded, map[string]interface{}{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return payment, nil
}

// SendMessage renders and delivers a message to a subscriber and records
// the attempt. A delivery failure is recorded with status failed and the
// communication is still returned.
func (s *Service) SendMessage(ctx context.Context, session access.Session, id string, input MessageInput) (*domain.Communication, error) {
	now := s.now()
	if err := session.Require(access.ActionSubscribersSendMessage, now); err != nil {
		return nil, err
	}

	if !input.Channel.IsValid() {
		return nil, fmt.Errorf("%q: %w", input.Channel, ErrInvalidChannel)
	}
	if s.messenger == nil || !s.messenger.Supports(input.Channel) {
		return nil, fmt.Errorf("%s: %w", input.Channel, notifications.ErrChannelUnavailable)
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	to := notifications.Recipient(sub, input.Channel)
	if to == "" {
		return nil, fmt.Errorf("%s: %w", input.Channel, notifications.ErrNoRecipient)
	}

	subject, body, err := s.compose(sub, input, now)
	if err != nil {
		return nil, err
	}

	status := domain.CommunicationSent
	if err := s.messenger.Send(ctx, input.Channel, notifications.Message{
		SubscriberID: sub.ID,
		To:           to,
		Subject:      subject,
		Body:         body,
	}); err != nil {
		status = domain.CommunicationFailed
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

	// The subscriber may have been deleted while the message was in flight.
	if _, err := s.repo.LockTx(ctx, tx, sub.ID); err != nil {
		return nil, err
	}

	comm := &domain.Communication{
		SubscriberID: sub.ID,
		Channel:      input.Channel,
		Message:      body,
		Status:       status,
		SentAt:       now.UTC(),
		CreatedBy:    session.ActorID,
	}
	if err := s.repo.CreateCommunicationTx(ctx, tx, comm); err != nil {
		return nil, fmt.Errorf("record communication: %w", err)
	}

	if err := s.record(ctx, tx, session.ActorID, &sub.ID, domain.AuditMessageSent, map[string]interface{}{
		"communication_id": comm.ID,
		"channel":          comm.Channel,
		"template_id":      input.TemplateID,
		"status":           comm.Status,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return comm, nil
}

func (s *Service) compose(sub *domain.Subscriber, input MessageInput, now time.Time) (subject, body string, err error) {
	if msg := strings.TrimSpace(input.Message); msg != "" {
		return "", msg, nil
	}
	if input.TemplateID == "" {
		return "", "", ErrEmptyMessage
	}
	if s.renderer == nil {
		return "", "", fmt.Errorf("%s: %w", input.TemplateID, notifications.ErrUnknownTemplate)
	}
	return s.renderer.Render(input.TemplateID, input.Channel, notifications.NewTemplateData(sub, now))
}

// SummarizeNotes returns a summary of notes, or of the stored notes when
// notes is empty. The summary is not persisted.
func (s *Service) SummarizeNotes(ctx context.Context, session access.Session, id, notes string) (string, error) {
	if err := session.Require(access.ActionSubscribersUpdate, s.now()); err != nil {
		return "", err
	}
	if s.summarizer == nil {
		return "", ErrSummariesDisabled
	}

	if strings.TrimSpace(notes) == "" {
		sub, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		notes = sub.Notes
	}

	summary, err := s.summarizer.Summarize(ctx, notes)
	if err != nil {
		return "", fmt.Errorf("summarize notes: %w", err)
	}
	return summary, nil
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, actorID string, subscriberID *string, action domain.AuditAction, details interface{}) error {
	entry, err := audit.NewEntry(actorID, subscriberID, action, details)
	if err != nil {
		return err
	}
	if err := s.audit.CreateTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	return nil
}
