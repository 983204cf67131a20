// Package lifecycle derives subscription end dates and display buckets from
// plan, status and end date.
package lifecycle

import (
	"time"

	"github.com/bissquit/submanage/internal/domain"
)

// DefaultExpiringWindow is how far ahead of end_date a subscriber is
// highlighted as expiring.
const DefaultExpiringWindow = 7 * 24 * time.Hour

// fallbackDays is used for plan codes outside the fixed set.
const fallbackDays = 30

var planDays = map[domain.Plan]int{
	domain.PlanOneMonth:    30,
	domain.PlanThreeMonths: 90,
	domain.PlanSixMonths:   180,
	domain.PlanOneYear:     365,
}

// PlanDays returns the duration of plan in days.
// Unknown plans report 30 days and ok=false.
func PlanDays(plan domain.Plan) (days int, ok bool) {
	days, ok = planDays[plan]
	if !ok {
		return fallbackDays, false
	}
	return days, true
}

// ComputeEndDate returns start + duration(plan) as a UTC instant.
//
// Days are counted as fixed 24h spans so the time of day is preserved and
// the result does not depend on the server's local zone or on DST.
// Unknown plan codes silently fall back to 30 days; callers that accept
// user input must check Plan.IsValid first.
func ComputeEndDate(start time.Time, plan domain.Plan) time.Time {
	days, _ := PlanDays(plan)
	return start.UTC().Add(time.Duration(days) * 24 * time.Hour)
}

// Bucket is a display classification. It is derived on read and never stored.
type Bucket string

// Display buckets.
const (
	BucketActive    Bucket = "active"
	BucketExpiring  Bucket = "expiring"
	BucketExpired   Bucket = "expired"
	BucketCancelled Bucket = "cancelled"
	BucketTrial     Bucket = "trial"
)

// Classify maps a stored status and end date to a display bucket at now.
// Subscribers whose end date is within window are highlighted as expiring,
// those whose end date has passed as expired.
func Classify(status domain.SubscriberStatus, endDate, now time.Time, window time.Duration) Bucket {
	switch {
	case status == domain.StatusCancelled:
		return BucketCancelled
	case status == domain.StatusExpired:
		return BucketExpired
	case !endDate.After(now):
		return BucketExpired
	case endDate.Sub(now) <= window:
		return BucketExpiring
	case status == domain.StatusTrial:
		return BucketTrial
	case status == domain.StatusExpiring:
		return BucketExpiring
	}
	return BucketActive
}

// Transition is the sweep transform. It returns the status a subscriber
// should move to at now and whether that differs from the current one.
// Cancelled and Expired never change.
func Transition(status domain.SubscriberStatus, endDate, now time.Time, window time.Duration) (domain.SubscriberStatus, bool) {
	switch status {
	case domain.StatusActive, domain.StatusTrial, domain.StatusExpiring:
	default:
		return status, false
	}

	if !endDate.After(now) {
		return domain.StatusExpired, true
	}

	if status != domain.StatusExpiring && endDate.Sub(now) <= window {
		return domain.StatusExpiring, true
	}

	return status, false
}
