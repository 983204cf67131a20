package lifecycle

import (
	"math"
	"sort"
	"time"

	"github.com/bissquit/submanage/internal/domain"
)

// DefaultWatchLimit is the size of the "subscribers to watch" list.
const DefaultWatchLimit = 5

// monthlyPrice is the per-month revenue contributed by each plan.
var monthlyPrice = map[domain.Plan]float64{
	domain.PlanOneMonth:    12.99,
	domain.PlanThreeMonths: 35.00 / 3,
	domain.PlanSixMonths:   65.00 / 6,
	domain.PlanOneYear:     99.99 / 12,
}

// MonthlyPrice returns the per-month revenue of plan, zero for unknown plans.
func MonthlyPrice(plan domain.Plan) float64 {
	return monthlyPrice[plan]
}

// StatusCounts holds the number of subscribers per stored status.
type StatusCounts map[domain.SubscriberStatus]int

// CountByStatus tallies subscribers by stored status. Every status is present
// in the result, including those with zero subscribers.
func CountByStatus(subs []domain.Subscriber) StatusCounts {
	counts := make(StatusCounts, len(domain.Statuses))
	for _, s := range domain.Statuses {
		counts[s] = 0
	}
	for _, sub := range subs {
		if sub.Status.IsValid() {
			counts[sub.Status]++
		}
	}
	return counts
}

// MonthlyRecurringRevenue sums the per-month price of every revenue
// generating subscriber, rounded to cents.
func MonthlyRecurringRevenue(subs []domain.Subscriber) float64 {
	var total float64
	for _, sub := range subs {
		if sub.Status.IsRevenueGenerating() {
			total += MonthlyPrice(sub.Plan)
		}
	}
	return math.Round(total*100) / 100
}

// RevenueByPlan splits MRR by plan. Every plan is present, rounded to cents.
func RevenueByPlan(subs []domain.Subscriber) map[domain.Plan]float64 {
	byPlan := make(map[domain.Plan]float64, len(domain.Plans))
	for _, p := range domain.Plans {
		byPlan[p] = 0
	}
	for _, sub := range subs {
		if sub.Status.IsRevenueGenerating() && sub.Plan.IsValid() {
			byPlan[sub.Plan] += MonthlyPrice(sub.Plan)
		}
	}
	for p, v := range byPlan {
		byPlan[p] = math.Round(v*100) / 100
	}
	return byPlan
}

// WatchEntry is a subscriber on the watch list with its display bucket.
type WatchEntry struct {
	Subscriber domain.Subscriber `json:"subscriber"`
	Bucket     Bucket            `json:"bucket"`
}

// WatchList returns Expiring and Expired subscribers ordered by end date,
// soonest first, capped at limit.
func WatchList(subs []domain.Subscriber, now time.Time, window time.Duration, limit int) []WatchEntry {
	watched := make([]domain.Subscriber, 0)
	for _, sub := range subs {
		if sub.Status == domain.StatusExpiring || sub.Status == domain.StatusExpired {
			watched = append(watched, sub)
		}
	}

	sort.SliceStable(watched, func(i, j int) bool {
		return watched[i].EndDate.Before(watched[j].EndDate)
	})

	if limit > 0 && len(watched) > limit {
		watched = watched[:limit]
	}

	entries := make([]WatchEntry, 0, len(watched))
	for _, sub := range watched {
		entries = append(entries, WatchEntry{
			Subscriber: sub,
			Bucket:     Classify(sub.Status, sub.EndDate, now, window),
		})
	}
	return entries
}
