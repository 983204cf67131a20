package lifecycle

import (
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sub(id string, plan domain.Plan, status domain.SubscriberStatus, end time.Time) domain.Subscriber {
	return domain.Subscriber{ID: id, Plan: plan, Status: status, EndDate: end}
}

func TestCountByStatus(t *testing.T) {
	now := time.Now()
	subs := []domain.Subscriber{
		sub("1", domain.PlanOneMonth, domain.StatusActive, now),
		sub("2", domain.PlanOneMonth, domain.StatusActive, now),
		sub("3", domain.PlanOneMonth, domain.StatusTrial, now),
	}

	counts := CountByStatus(subs)

	assert.Len(t, counts, len(domain.Statuses))
	assert.Equal(t, 2, counts[domain.StatusActive])
	assert.Equal(t, 1, counts[domain.StatusTrial])
	assert.Equal(t, 0, counts[domain.StatusCancelled])
}

func TestMonthlyRecurringRevenue(t *testing.T) {
	now := time.Now()
	subs := []domain.Subscriber{
		sub("1", domain.PlanOneMonth, domain.StatusActive, now),      // 12.99
		sub("2", domain.PlanThreeMonths, domain.StatusExpiring, now), // 11.666...
		sub("3", domain.PlanSixMonths, domain.StatusTrial, now),      // 10.833...
		sub("4", domain.PlanOneYear, domain.StatusActive, now),       // 8.3325
		sub("5", domain.PlanOneYear, domain.StatusExpired, now),
		sub("6", domain.PlanOneMonth, domain.StatusCancelled, now),
	}

	assert.InDelta(t, 43.82, MonthlyRecurringRevenue(subs), 0.0001)
	assert.Zero(t, MonthlyRecurringRevenue(nil))
}

func TestWatchList(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	subs := []domain.Subscriber{
		sub("active", domain.PlanOneMonth, domain.StatusActive, now.Add(-10*day)),
		sub("e3", domain.PlanOneMonth, domain.StatusExpiring, now.Add(3*day)),
		sub("x1", domain.PlanOneMonth, domain.StatusExpired, now.Add(-5*day)),
		sub("e1", domain.PlanOneMonth, domain.StatusExpiring, now.Add(1*day)),
		sub("cancel", domain.PlanOneMonth, domain.StatusCancelled, now.Add(-20*day)),
		sub("x2", domain.PlanOneMonth, domain.StatusExpired, now.Add(-2*day)),
		sub("e9", domain.PlanOneMonth, domain.StatusExpiring, now.Add(9*day)),
		sub("e5", domain.PlanOneMonth, domain.StatusExpiring, now.Add(5*day)),
	}

	entries := WatchList(subs, now, DefaultExpiringWindow, DefaultWatchLimit)

	require.Len(t, entries, DefaultWatchLimit)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Subscriber.ID)
	}
	assert.Equal(t, []string{"x1", "x2", "e1", "e3", "e5"}, ids)
	assert.Equal(t, BucketExpired, entries[0].Bucket)
	assert.Equal(t, BucketExpiring, entries[2].Bucket)
}

func TestWatchList_NoLimit(t *testing.T) {
	now := time.Now()
	subs := []domain.Subscriber{
		sub("a", domain.PlanOneMonth, domain.StatusExpiring, now.Add(time.Hour)),
		sub("b", domain.PlanOneMonth, domain.StatusExpired, now.Add(-time.Hour)),
	}

	assert.Len(t, WatchList(subs, now, DefaultExpiringWindow, 0), 2)
	assert.Empty(t, WatchList(nil, now, DefaultExpiringWindow, 5))
}

func TestRevenueByPlan(t *testing.T) {
	now := time.Now()
	subs := []domain.Subscriber{
		sub("1", domain.PlanOneMonth, domain.StatusActive, now),
		sub("2", domain.PlanOneMonth, domain.StatusTrial, now),
		sub("3", domain.PlanThreeMonths, domain.StatusExpiring, now),
		sub("4", domain.PlanOneYear, domain.StatusCancelled, now),
		sub("5", domain.Plan("2w"), domain.StatusActive, now),
	}

	byPlan := RevenueByPlan(subs)

	assert.Len(t, byPlan, len(domain.Plans))
	assert.InDelta(t, 25.98, byPlan[domain.PlanOneMonth], 0.001)
	assert.InDelta(t, 11.67, byPlan[domain.PlanThreeMonths], 0.001)
	assert.Zero(t, byPlan[domain.PlanSixMonths])
	assert.Zero(t, byPlan[domain.PlanOneYear])
}
