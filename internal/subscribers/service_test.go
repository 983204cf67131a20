package subscribers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/lifecycle"
	"github.com/bissquit/submanage/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// state is the mutable data behind mockRepository. Transactions snapshot it
// on begin and restore it on rollback.
type state struct {
	subs     map[string]domain.Subscriber
	comms    []domain.Communication
	payments []domain.Payment
	audit    []domain.AuditLog
}

func (s state) clone() state {
	c := state{
		subs:     make(map[string]domain.Subscriber, len(s.subs)),
		comms:    append([]domain.Communication(nil), s.comms...),
		payments: append([]domain.Payment(nil), s.payments...),
		audit:    append([]domain.AuditLog(nil), s.audit...),
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	return c
}

// mockRepository implements Repository for testing.
type mockRepository struct {
	state
	failOn     string
	nextID     int
	lastFilter ListFilter
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: state{subs: make(map[string]domain.Subscriber)}}
}

func (m *mockRepository) addSubscriber(sub domain.Subscriber) {
	m.subs[sub.ID] = sub
}

func (m *mockRepository) fail(step string) error {
	if m.failOn == step {
		return fmt.Errorf("injected failure at %s", step)
	}
	return nil
}

func (m *mockRepository) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// fakeTx implements the parts of pgx.Tx the service uses.
type fakeTx struct {
	pgx.Tx
	repo     *mockRepository
	snapshot state
	closed   bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if err := t.repo.fail("commit"); err != nil {
		t.repo.state = t.snapshot
		return err
	}
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.repo.state = t.snapshot
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*domain.Subscriber, error) {
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return &s, nil
}

func (m *mockRepository) List(_ context.Context, filter ListFilter) ([]domain.Subscriber, int, error) {
	m.lastFilter = filter
	subs := make([]domain.Subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.FullName), strings.ToLower(filter.Search)) {
			continue
		}
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	total := len(subs)
	if filter.Offset >= len(subs) {
		return []domain.Subscriber{}, total, nil
	}
	subs = subs[filter.Offset:]
	if len(subs) > filter.Limit {
		subs = subs[:filter.Limit]
	}
	return subs, total, nil
}

func (m *mockRepository) ListCommunications(_ context.Context, subscriberID string) ([]domain.Communication, error) {
	out := make([]domain.Communication, 0)
	for _, c := range m.comms {
		if c.SubscriberID == subscriberID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) ListPayments(_ context.Context, subscriberID string) ([]domain.Payment, error) {
	out := make([]domain.Payment, 0)
	for _, p := range m.payments {
		if p.SubscriberID == subscriberID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	if err := m.fail("begin"); err != nil {
		return nil, err
	}
	return &fakeTx{repo: m, snapshot: m.state.clone()}, nil
}

func (m *mockRepository) CreateTx(_ context.Context, _ pgx.Tx, sub *domain.Subscriber) error {
	for _, s := range m.subs {
		if s.Email == sub.Email {
			return ErrEmailExists
		}
	}
	sub.ID = m.id("sub")
	m.subs[sub.ID] = *sub
	return nil
}

func (m *mockRepository) LockTx(ctx context.Context, _ pgx.Tx, id string) (*domain.Subscriber, error) {
	if err := m.fail("lock"); err != nil {
		return nil, err
	}
	return m.GetByID(ctx, id)
}

func (m *mockRepository) UpdateTx(_ context.Context, _ pgx.Tx, sub *domain.Subscriber) error {
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrSubscriberNotFound
	}
	m.subs[sub.ID] = *sub
	return nil
}

func (m *mockRepository) DeleteCommunicationsTx(_ context.Context, _ pgx.Tx, subscriberID string) (int64, error) {
	kept := m.comms[:0:0]
	var n int64
	for _, c := range m.comms {
		if c.SubscriberID == subscriberID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.comms = kept
	if err := m.fail("delete_communications"); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *mockRepository) DeletePaymentsTx(_ context.Context, _ pgx.Tx, subscriberID string) (int64, error) {
	kept := m.payments[:0:0]
	var n int64
	for _, p := range m.payments {
		if p.SubscriberID == subscriberID {
			n++
			continue
		}
		kept = append(kept, p)
	}
	m.payments = kept
	if err := m.fail("delete_payments"); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *mockRepository) DeleteTx(_ context.Context, _ pgx.Tx, id string) error {
	if err := m.fail("delete_subscriber"); err != nil {
		return err
	}
	if _, ok := m.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *mockRepository) CreatePaymentTx(_ context.Context, _ pgx.Tx, payment *domain.Payment) error {
	if payment.TransactionID != nil {
		for _, p := range m.payments {
			if p.TransactionID != nil && *p.TransactionID == *payment.TransactionID {
				return ErrDuplicatePayment
			}
		}
	}
	payment.ID = m.id("pay")
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *mockRepository) CreateCommunicationTx(_ context.Context, _ pgx.Tx, comm *domain.Communication) error {
	comm.ID = m.id("comm")
	m.comms = append(m.comms, *comm)
	return nil
}

// mockAudit appends to the repository state so rollbacks undo it.
type mockAudit struct {
	repo *mockRepository
}

func (a *mockAudit) CreateTx(_ context.Context, _ pgx.Tx, entry *domain.AuditLog) error {
	if err := a.repo.fail("audit"); err != nil {
		return err
	}
	a.repo.audit = append(a.repo.audit, *entry)
	return nil
}

type mockMessenger struct {
	channels []domain.Channel
	sent     []notifications.Message
	err      error
}

func (m *mockMessenger) Supports(channel domain.Channel) bool {
	for _, c := range m.channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (m *mockMessenger) Send(_ context.Context, _ domain.Channel, msg notifications.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockSummarizer struct {
	got     string
	summary string
	err     error
}

func (m *mockSummarizer) Summarize(_ context.Context, text string) (string, error) {
	m.got = text
	return m.summary, m.err
}

func newTestService(repo *mockRepository, opts Options) *Service {
	svc := NewService(repo, &mockAudit{repo: repo}, opts)
	svc.now = func() time.Time { return testNow }
	return svc
}

func sessionFor(id string, role domain.Role) access.Session {
	return access.Session{ActorID: id, Role: role, ExpiresAt: testNow.Add(time.Hour)}
}

func seeded(id string) domain.Subscriber {
	start := testNow.AddDate(0, 0, -10)
	return domain.Subscriber{
		ID:          id,
		FullName:    "Jane " + id,
		Email:       id + "@example.com",
		PhoneNumber: "+1555" + id,
		Plan:        domain.PlanOneMonth,
		StartDate:   start,
		EndDate:     lifecycle.ComputeEndDate(start, domain.PlanOneMonth),
		Status:      domain.StatusActive,
		Notes:       "prefers email",
		CreatedBy:   "admin",
	}
}

func TestDeleteSubscriber_CascadeLeavesNoOrphans(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	repo.addSubscriber(seeded("s2"))
	repo.comms = []domain.Communication{
		{ID: "c1", SubscriberID: "s1"},
		{ID: "c2", SubscriberID: "s1"},
		{ID: "c3", SubscriberID: "s2"},
	}
	repo.payments = []domain.Payment{
		{ID: "p1", SubscriberID: "s1"},
		{ID: "p2", SubscriberID: "s2"},
	}
	svc := newTestService(repo, Options{})

	// Act
	err := svc.DeleteSubscriber(context.Background(), sessionFor("admin", domain.RoleAdmin), "s1")

	// Assert
	require.NoError(t, err)
	assert.NotContains(t, repo.subs, "s1")
	for _, c := range repo.comms {
		assert.NotEqual(t, "s1", c.SubscriberID)
	}
	for _, p := range repo.payments {
		assert.NotEqual(t, "s1", p.SubscriberID)
	}
	assert.Len(t, repo.comms, 1)
	assert.Len(t, repo.payments, 1)

	require.Len(t, repo.audit, 1)
	entry := repo.audit[0]
	assert.Equal(t, domain.AuditSubscriberDeleted, entry.Action)
	assert.Equal(t, "admin", entry.StaffID)
	assert.Nil(t, entry.SubscriberID)
	assert.JSONEq(t,
		`{"subscriber_id":"s1","email":"s1@example.com","deleted_communications":2,"deleted_payments":1}`,
		string(entry.Details))
}

func TestDeleteSubscriber_Errors(t *testing.T) {
	tests := []struct {
		name    string
		session access.Session
		id      string
		wantErr error
	}{
		{name: "support is forbidden", session: sessionFor("sup", domain.RoleSupport), id: "s1", wantErr: domain.ErrForbidden},
		{name: "missing subscriber", session: sessionFor("admin", domain.RoleAdmin), id: "nope", wantErr: domain.ErrNotFound},
		{
			name:    "expired session",
			session: access.Session{ActorID: "admin", Role: domain.RoleAdmin, ExpiresAt: testNow.Add(-time.Second)},
			id:      "s1",
			wantErr: domain.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.addSubscriber(seeded("s1"))
			repo.comms = []domain.Communication{{ID: "c1", SubscriberID: "s1"}}
			svc := newTestService(repo, Options{})

			err := svc.DeleteSubscriber(context.Background(), tt.session, tt.id)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, repo.subs, "s1")
			assert.Len(t, repo.comms, 1)
			assert.Empty(t, repo.audit)
		})
	}
}

func TestDeleteSubscriber_Atomicity(t *testing.T) {
	for _, step := range []string{"begin", "lock", "delete_communications", "delete_payments", "delete_subscriber", "audit", "commit"} {
		t.Run(step, func(t *testing.T) {
			repo := newMockRepository()
			repo.addSubscriber(seeded("s1"))
			repo.comms = []domain.Communication{{ID: "c1", SubscriberID: "s1"}, {ID: "c2", SubscriberID: "s1"}}
			repo.payments = []domain.Payment{{ID: "p1", SubscriberID: "s1"}}
			repo.failOn = step
			svc := newTestService(repo, Options{})

			err := svc.DeleteSubscriber(context.Background(), sessionFor("admin", domain.RoleAdmin), "s1")

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTransactionFailed)
			assert.Equal(t, domain.KindTransactionFailed, domain.KindOf(err))
			assert.Contains(t, repo.subs, "s1")
			assert.Len(t, repo.comms, 2)
			assert.Len(t, repo.payments, 1)
			assert.Empty(t, repo.audit)
		})
	}
}

func TestCreate_DerivesEndDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, Options{})
	start := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	view, err := svc.Create(context.Background(), sessionFor("sup", domain.RoleSupport), CreateInput{
		FullName:  " John Smith ",
		Email:     "john@example.com",
		Plan:      domain.PlanThreeMonths,
		StartDate: start,
	})

	require.NoError(t, err)
	assert.Equal(t, "John Smith", view.FullName)
	assert.Equal(t, time.Date(2024, 3, 31, 9, 30, 0, 0, time.UTC), view.EndDate)
	assert.Equal(t, domain.StatusActive, view.Status)
	assert.Equal(t, "sup", view.CreatedBy)
	assert.Equal(t, lifecycle.BucketExpired, view.Bucket)

	require.Len(t, repo.audit, 1)
	assert.Equal(t, domain.AuditSubscriberCreated, repo.audit[0].Action)
	require.NotNil(t, repo.audit[0].SubscriberID)
	assert.Equal(t, view.ID, *repo.audit[0].SubscriberID)
}

func TestCreate_DefaultsStartToNow(t *testing.T) {
	svc := newTestService(newMockRepository(), Options{})

	view, err := svc.Create(context.Background(), sessionFor("sup", domain.RoleSupport), CreateInput{
		FullName: "Trial User",
		Email:    "trial@example.com",
		Plan:     domain.PlanOneMonth,
		Status:   domain.StatusTrial,
	})

	require.NoError(t, err)
	assert.Equal(t, testNow, view.StartDate)
	assert.Equal(t, testNow.AddDate(0, 0, 30), view.EndDate)
	assert.Equal(t, lifecycle.BucketTrial, view.Bucket)
}

func TestCreate_Validation(t *testing.T) {
	valid := CreateInput{FullName: "A", Email: "a@example.com", Plan: domain.PlanOneMonth}

	tests := []struct {
		name    string
		mutate  func(*CreateInput)
		wantErr error
	}{
		{name: "unknown plan", mutate: func(in *CreateInput) { in.Plan = "2m" }, wantErr: ErrInvalidPlan},
		{name: "empty plan", mutate: func(in *CreateInput) { in.Plan = "" }, wantErr: ErrInvalidPlan},
		{name: "unknown status", mutate: func(in *CreateInput) { in.Status = "Paused" }, wantErr: ErrInvalidStatus},
		{name: "missing name", mutate: func(in *CreateInput) { in.FullName = "  " }, wantErr: ErrMissingField},
		{name: "missing email", mutate: func(in *CreateInput) { in.Email = "" }, wantErr: ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			svc := newTestService(repo, Options{})
			input := valid
			tt.mutate(&input)

			_, err := svc.Create(context.Background(), sessionFor("sup", domain.RoleSupport), input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, repo.subs)
		})
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	svc := newTestService(repo, Options{})

	_, err := svc.Create(context.Background(), sessionFor("sup", domain.RoleSupport), CreateInput{
		FullName: "Dup", Email: "s1@example.com", Plan: domain.PlanOneMonth,
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, repo.subs, 1)
	assert.Empty(t, repo.audit)
}

func TestUpdate_EndDate(t *testing.T) {
	newStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	yearly := domain.PlanOneYear
	cancelled := domain.StatusCancelled

	tests := []struct {
		name    string
		input   UpdateInput
		wantEnd func(orig domain.Subscriber) time.Time
	}{
		{
			name:  "plan change recomputes",
			input: UpdateInput{Plan: &yearly},
			wantEnd: func(orig domain.Subscriber) time.Time {
				return orig.StartDate.AddDate(0, 0, 365)
			},
		},
		{
			name:  "start change recomputes",
			input: UpdateInput{StartDate: &newStart},
			wantEnd: func(domain.Subscriber) time.Time {
				return newStart.AddDate(0, 0, 30)
			},
		},
		{
			name:  "cancelled keeps stored end date",
			input: UpdateInput{Plan: &yearly, Status: &cancelled},
			wantEnd: func(orig domain.Subscriber) time.Time {
				return orig.EndDate
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			orig := seeded("s1")
			repo.addSubscriber(orig)
			svc := newTestService(repo, Options{})

			view, err := svc.Update(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.wantEnd(orig), view.EndDate)
			assert.Equal(t, tt.wantEnd(orig), repo.subs["s1"].EndDate)
			require.Len(t, repo.audit, 1)
			assert.Equal(t, domain.AuditSubscriberUpdated, repo.audit[0].Action)
		})
	}
}

func TestUpdate_RejectsInvalidPlan(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	svc := newTestService(repo, Options{})
	bad := domain.Plan("7d")

	_, err := svc.Update(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", UpdateInput{Plan: &bad})

	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.Equal(t, domain.PlanOneMonth, repo.subs["s1"].Plan)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(newMockRepository(), Options{})
	name := "x"

	_, err := svc.Update(context.Background(), sessionFor("sup", domain.RoleSupport), "missing", UpdateInput{FullName: &name})

	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestList_Params(t *testing.T) {
	tests := []struct {
		name       string
		params     ListParams
		wantFilter ListFilter
		wantPage   int
		wantErr    error
	}{
		{
			name:       "defaults to newest first",
			params:     ListParams{},
			wantFilter: ListFilter{Sort: SortCreatedAt, Desc: true, Limit: DefaultLimit},
			wantPage:   1,
		},
		{
			name:       "explicit sort ascending",
			params:     ListParams{Sort: SortEndDate, Page: 3, Limit: 10},
			wantFilter: ListFilter{Sort: SortEndDate, Limit: 10, Offset: 20},
			wantPage:   3,
		},
		{
			name:       "descending by name with status and search",
			params:     ListParams{Status: domain.StatusExpiring, Search: " jane ", Sort: SortFullName, Order: "DESC"},
			wantFilter: ListFilter{Status: domain.StatusExpiring, Search: "jane", Sort: SortFullName, Desc: true, Limit: DefaultLimit},
			wantPage:   1,
		},
		{
			name:       "limit clamped",
			params:     ListParams{Limit: 5000},
			wantFilter: ListFilter{Sort: SortCreatedAt, Desc: true, Limit: MaxLimit},
			wantPage:   1,
		},
		{name: "bad sort", params: ListParams{Sort: "email"}, wantErr: ErrInvalidSort},
		{name: "bad order", params: ListParams{Order: "sideways"}, wantErr: domain.ErrValidation},
		{name: "bad status", params: ListParams{Status: "Paused"}, wantErr: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.addSubscriber(seeded("s1"))
			svc := newTestService(repo, Options{})

			page, err := svc.List(context.Background(), sessionFor("sup", domain.RoleSupport), tt.params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilter, repo.lastFilter)
			assert.Equal(t, tt.wantPage, page.Page)
		})
	}
}

func TestList_AnnotatesBuckets(t *testing.T) {
	repo := newMockRepository()
	soon := seeded("a")
	soon.EndDate = testNow.Add(48 * time.Hour)
	gone := seeded("b")
	gone.EndDate = testNow.Add(-time.Hour)
	repo.addSubscriber(soon)
	repo.addSubscriber(gone)
	svc := newTestService(repo, Options{ExpiringWindow: 72 * time.Hour})

	page, err := svc.List(context.Background(), sessionFor("sup", domain.RoleSupport), ListParams{})

	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, lifecycle.BucketExpiring, page.Items[0].Bucket)
	assert.Equal(t, lifecycle.BucketExpired, page.Items[1].Bucket)
	// Reads never rewrite the stored status.
	assert.Equal(t, domain.StatusActive, repo.subs["b"].Status)
}

func TestGet_IncludesHistory(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	repo.comms = []domain.Communication{{ID: "c1", SubscriberID: "s1"}, {ID: "c2", SubscriberID: "other"}}
	repo.payments = []domain.Payment{{ID: "p1", SubscriberID: "s1"}}
	svc := newTestService(repo, Options{})

	view, err := svc.Get(context.Background(), sessionFor("sup", domain.RoleSupport), "s1")

	require.NoError(t, err)
	require.Len(t, view.Communications, 1)
	assert.Equal(t, "c1", view.Communications[0].ID)
	require.Len(t, view.Payments, 1)
}

func TestAddPayment(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	svc := newTestService(repo, Options{})
	txID := "tx-1"

	payment, err := svc.AddPayment(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", PaymentInput{
		TransactionID: &txID,
		Amount:        12.99,
		Currency:      "usd",
		Method:        "card",
	})

	require.NoError(t, err)
	assert.Equal(t, "USD", payment.Currency)
	assert.Equal(t, testNow, payment.PaidAt)
	require.Len(t, repo.audit, 1)
	assert.Equal(t, domain.AuditPaymentRecorded, repo.audit[0].Action)

	_, err = svc.AddPayment(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", PaymentInput{
		TransactionID: &txID, Amount: 1, Currency: "USD",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, repo.payments, 1)
	assert.Len(t, repo.audit, 1)
}

func TestAddPayment_Validation(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	svc := newTestService(repo, Options{})
	session := sessionFor("sup", domain.RoleSupport)

	_, err := svc.AddPayment(context.Background(), session, "s1", PaymentInput{Amount: -1, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddPayment(context.Background(), session, "s1", PaymentInput{Amount: 1, Currency: "DOLLARS"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddPayment(context.Background(), session, "missing", PaymentInput{Amount: 1, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type stubRenderer struct{}

func (stubRenderer) Render(id string, channel domain.Channel, data notifications.TemplateData) (string, string, error) {
	if id != notifications.TemplateRenewalUrgent {
		return "", "", notifications.ErrUnknownTemplate
	}
	return "Renew", fmt.Sprintf("%s via %s, %d days left", data.FirstName, channel, data.DaysLeft), nil
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		input      MessageInput
		sendErr    error
		wantTo     string
		wantBody   string
		wantStatus domain.CommunicationStatus
	}{
		{
			name:       "email template",
			input:      MessageInput{Channel: domain.ChannelEmail, TemplateID: notifications.TemplateRenewalUrgent},
			wantTo:     "s1@example.com",
			wantBody:   "Jane via Email, 20 days left",
			wantStatus: domain.CommunicationSent,
		},
		{
			name:       "sms override",
			input:      MessageInput{Channel: domain.ChannelSMS, TemplateID: "ignored", Message: "Call us"},
			wantTo:     "+1555s1",
			wantBody:   "Call us",
			wantStatus: domain.CommunicationSent,
		},
		{
			name:       "delivery failure is recorded",
			input:      MessageInput{Channel: domain.ChannelWhatsApp, Message: "Hi"},
			sendErr:    errors.New("gateway down"),
			wantBody:   "Hi",
			wantStatus: domain.CommunicationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.addSubscriber(seeded("s1"))
			messenger := &mockMessenger{
				channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelWhatsApp},
				err:      tt.sendErr,
			}
			svc := newTestService(repo, Options{Messenger: messenger, Renderer: stubRenderer{}})

			comm, err := svc.SendMessage(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, comm.Status)
			assert.Equal(t, tt.wantBody, comm.Message)
			assert.Equal(t, "sup", comm.CreatedBy)
			require.Len(t, repo.comms, 1)
			require.Len(t, repo.audit, 1)
			assert.Equal(t, domain.AuditMessageSent, repo.audit[0].Action)
			if tt.sendErr == nil {
				require.Len(t, messenger.sent, 1)
				assert.Equal(t, tt.wantTo, messenger.sent[0].To)
			}
		})
	}
}

func TestSendMessage_Errors(t *testing.T) {
	noPhone := seeded("s2")
	noPhone.PhoneNumber = ""

	tests := []struct {
		name    string
		id      string
		input   MessageInput
		wantErr error
	}{
		{name: "invalid channel", id: "s1", input: MessageInput{Channel: "Fax", Message: "x"}, wantErr: ErrInvalidChannel},
		{name: "channel not configured", id: "s1", input: MessageInput{Channel: domain.ChannelWhatsApp, Message: "x"}, wantErr: notifications.ErrChannelUnavailable},
		{name: "no phone number", id: "s2", input: MessageInput{Channel: domain.ChannelSMS, Message: "x"}, wantErr: notifications.ErrNoRecipient},
		{name: "nothing to send", id: "s1", input: MessageInput{Channel: domain.ChannelEmail}, wantErr: ErrEmptyMessage},
		{name: "unknown template", id: "s1", input: MessageInput{Channel: domain.ChannelEmail, TemplateID: "nope"}, wantErr: notifications.ErrUnknownTemplate},
		{name: "missing subscriber", id: "nope", input: MessageInput{Channel: domain.ChannelEmail, Message: "x"}, wantErr: ErrSubscriberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.addSubscriber(seeded("s1"))
			repo.addSubscriber(noPhone)
			messenger := &mockMessenger{channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}}
			svc := newTestService(repo, Options{Messenger: messenger, Renderer: stubRenderer{}})

			_, err := svc.SendMessage(context.Background(), sessionFor("sup", domain.RoleSupport), tt.id, tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, messenger.sent)
			assert.Empty(t, repo.comms)
		})
	}
}

func TestSummarizeNotes(t *testing.T) {
	repo := newMockRepository()
	repo.addSubscriber(seeded("s1"))
	summ := &mockSummarizer{summary: "short"}
	svc := newTestService(repo, Options{Summarizer: summ})
	session := sessionFor("sup", domain.RoleSupport)

	got, err := svc.SummarizeNotes(context.Background(), session, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "short", got)
	assert.Equal(t, "prefers email", summ.got)

	_, err = svc.SummarizeNotes(context.Background(), session, "s1", "unsaved draft")
	require.NoError(t, err)
	assert.Equal(t, "unsaved draft", summ.got)
	assert.Equal(t, "prefers email", repo.subs["s1"].Notes)
}

func TestSummarizeNotes_Disabled(t *testing.T) {
	svc := newTestService(newMockRepository(), Options{})

	_, err := svc.SummarizeNotes(context.Background(), sessionFor("sup", domain.RoleSupport), "s1", "x")

	assert.ErrorIs(t, err, ErrSummariesDisabled)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}
