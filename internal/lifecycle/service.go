package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/audit"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ErrTransactionFailed is returned when a sweep cannot be committed.
var ErrTransactionFailed = fmt.Errorf("lifecycle sweep failed: %w", domain.ErrTransactionFailed)

// Repository defines the storage needed by the lifecycle service.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	ListAll(ctx context.Context) ([]domain.Subscriber, error)
	// LockSweepCandidatesTx returns and locks every Active, Trial and Expiring subscriber.
	LockSweepCandidatesTx(ctx context.Context, tx pgx.Tx) ([]domain.Subscriber, error)
	SetStatusTx(ctx context.Context, tx pgx.Tx, id string, status domain.SubscriberStatus) error
}

// AuditRecorder writes audit rows inside a caller's transaction.
type AuditRecorder interface {
	CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error
}

// Trigger names what started a sweep.
type Trigger string

// Sweep triggers.
const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Options configures the service. Zero values select the defaults.
type Options struct {
	ExpiringWindow time.Duration
	WatchLimit     int
}

// Service runs status sweeps and computes dashboard aggregates.
type Service struct {
	repo       Repository
	audit      AuditRecorder
	window     time.Duration
	watchLimit int
	now        func() time.Time
}

// NewService creates a new lifecycle service.
func NewService(repo Repository, audit AuditRecorder, opts Options) *Service {
	if opts.ExpiringWindow <= 0 {
		opts.ExpiringWindow = DefaultExpiringWindow
	}
	if opts.WatchLimit <= 0 {
		opts.WatchLimit = DefaultWatchLimit
	}
	return &Service{
		repo:       repo,
		audit:      audit,
		window:     opts.ExpiringWindow,
		watchLimit: opts.WatchLimit,
		now:        time.Now,
	}
}

// StatusChange is one status moved by a sweep.
type StatusChange struct {
	SubscriberID string                  `json:"subscriber_id"`
	From         domain.SubscriberStatus `json:"from"`
	To           domain.SubscriberStatus `json:"to"`
}

// SweepResult summarizes a sweep run.
type SweepResult struct {
	Checked int            `json:"checked"`
	Changes []StatusChange `json:"changes"`
	RanAt   time.Time      `json:"ran_at"`
}

// Dashboard is the overview shown to staff.
type Dashboard struct {
	Total                   int          `json:"total"`
	Counts                  StatusCounts `json:"counts"`
	MonthlyRecurringRevenue float64      `json:"monthly_recurring_revenue"`
	Watch                   []WatchEntry `json:"watch"`
	GeneratedAt             time.Time    `json:"generated_at"`
}

// Revenue breaks monthly recurring revenue down by plan.
type Revenue struct {
	MonthlyRecurringRevenue float64                 `json:"monthly_recurring_revenue"`
	ByPlan                  map[domain.Plan]float64 `json:"by_plan"`
	PayingSubscribers       int                     `json:"paying_subscribers"`
	GeneratedAt             time.Time               `json:"generated_at"`
}

// Sweep moves subscribers whose end date has come close or passed. It is
// the manual trigger and requires lifecycle:sweep.
func (s *Service) Sweep(ctx context.Context, session access.Session) (*SweepResult, error) {
	if err := session.Require(access.ActionLifecycleSweep, s.now()); err != nil {
		return nil, err
	}
	return s.sweep(ctx, session.ActorID, TriggerManual)
}

// SweepScheduled runs a sweep on behalf of the system. Audit rows carry no staff id.
func (s *Service) SweepScheduled(ctx context.Context) (*SweepResult, error) {
	return s.sweep(ctx, "", TriggerScheduled)
}

func (s *Service) sweep(ctx context.Context, actorID string, trigger Trigger) (*SweepResult, error) {
	start := time.Now()
	now := s.now()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		recordSweep(trigger, "error", time.Since(start))
		return nil, fmt.Errorf("begin transaction: %v: %w", err, ErrTransactionFailed)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	result, err := s.applyTransitions(ctx, tx, actorID, trigger, now)
	if err != nil {
		recordSweep(trigger, "error", time.Since(start))
		return nil, fmt.Errorf("%v: %w", err, ErrTransactionFailed)
	}

	if err := tx.Commit(ctx); err != nil {
		recordSweep(trigger, "error", time.Since(start))
		return nil, fmt.Errorf("commit transaction: %v: %w", err, ErrTransactionFailed)
	}

	recordSweep(trigger, "success", time.Since(start))
	for _, c := range result.Changes {
		recordTransition(c.From, c.To)
	}

	slog.Info("lifecycle sweep completed",
		"trigger", trigger,
		"checked", result.Checked,
		"changed", len(result.Changes),
	)

	return result, nil
}

func (s *Service) applyTransitions(ctx context.Context, tx pgx.Tx, actorID string, trigger Trigger, now time.Time) (*SweepResult, error) {
	candidates, err := s.repo.LockSweepCandidatesTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("lock candidates: %w", err)
	}

	result := &SweepResult{
		Checked: len(candidates),
		Changes: make([]StatusChange, 0),
		RanAt:   now,
	}

	for _, sub := range candidates {
		next, changed := Transition(sub.Status, sub.EndDate, now, s.window)
		if !changed {
			continue
		}

		if err := s.repo.SetStatusTx(ctx, tx, sub.ID, next); err != nil {
			return nil, fmt.Errorf("set status of %s: %w", sub.ID, err)
		}

		subscriberID := sub.ID
		entry, err := audit.NewEntry(actorID, &subscriberID, domain.AuditStatusTransitioned, map[string]interface{}{
			"from":     sub.Status,
			"to":       next,
			"end_date": sub.EndDate,
			"trigger":  trigger,
		})
		if err != nil {
			return nil, err
		}
		if err := s.audit.CreateTx(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("record transition of %s: %w", sub.ID, err)
		}

		result.Changes = append(result.Changes, StatusChange{
			SubscriberID: sub.ID,
			From:         sub.Status,
			To:           next,
		})
	}

	return result, nil
}

// Dashboard returns status counts, MRR and the watch list.
func (s *Service) Dashboard(ctx context.Context, session access.Session) (*Dashboard, error) {
	now := s.now()
	if err := session.Require(access.ActionDashboardView, now); err != nil {
		return nil, err
	}

	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	return &Dashboard{
		Total:                   len(subs),
		Counts:                  CountByStatus(subs),
		MonthlyRecurringRevenue: MonthlyRecurringRevenue(subs),
		Watch:                   WatchList(subs, now, s.window, s.watchLimit),
		GeneratedAt:             now,
	}, nil
}

// Revenue returns MRR with a per-plan breakdown. Requires metrics:view.
func (s *Service) Revenue(ctx context.Context, session access.Session) (*Revenue, error) {
	now := s.now()
	if err := session.Require(access.ActionMetricsView, now); err != nil {
		return nil, err
	}

	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	return &Revenue{
		MonthlyRecurringRevenue: MonthlyRecurringRevenue(subs),
		ByPlan:                  RevenueByPlan(subs),
		PayingSubscribers:       countPaying(subs),
		GeneratedAt:             now,
	}, nil
}

func countPaying(subs []domain.Subscriber) int {
	var n int
	for _, sub := range subs {
		if sub.Status.IsRevenueGenerating() {
			n++
		}
	}
	return n
}
