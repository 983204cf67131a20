package lifecycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestComputeEndDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		plan domain.Plan
		want time.Time
	}{
		{domain.PlanOneMonth, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{domain.PlanThreeMonths, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{domain.PlanSixMonths, time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC)},
		{domain.PlanOneYear, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.True(t, tt.want.Equal(ComputeEndDate(start, tt.plan)))
		})
	}
}

func TestComputeEndDate_PreservesTimeOfDay(t *testing.T) {
	start := time.Date(2024, 3, 15, 17, 42, 9, 0, time.UTC)

	got := ComputeEndDate(start, domain.PlanOneMonth)

	assert.Equal(t, time.Date(2024, 4, 14, 17, 42, 9, 0, time.UTC), got)
}

func TestComputeEndDate_NormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2024, 1, 1, 2, 0, 0, 0, zone)

	got := ComputeEndDate(start, domain.PlanOneMonth)

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2024, 1, 30, 23, 0, 0, 0, time.UTC), got)
}

func TestComputeEndDate_UnknownPlanFallsBack(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeEndDate(start, domain.Plan("2m"))

	assert.Equal(t, ComputeEndDate(start, domain.PlanOneMonth), got)
	days, ok := PlanDays("2m")
	assert.False(t, ok)
	assert.Equal(t, 30, days)
}

func TestComputeEndDate_Deterministic(t *testing.T) {
	start := time.Date(2023, 10, 29, 1, 30, 0, 0, time.UTC)
	for _, plan := range domain.Plans {
		assert.Equal(t, ComputeEndDate(start, plan), ComputeEndDate(start, plan))
		days, ok := PlanDays(plan)
		assert.True(t, ok)
		assert.Equal(t, time.Duration(days)*24*time.Hour, ComputeEndDate(start, plan).Sub(start))
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	window := DefaultExpiringWindow

	far := now.Add(30 * 24 * time.Hour)
	soon := now.Add(3 * 24 * time.Hour)
	edge := now.Add(window)
	past := now.Add(-time.Hour)

	tests := []struct {
		status  domain.SubscriberStatus
		endDate time.Time
		want    Bucket
	}{
		{domain.StatusActive, far, BucketActive},
		{domain.StatusActive, soon, BucketExpiring},
		{domain.StatusActive, edge, BucketExpiring},
		{domain.StatusActive, edge.Add(time.Second), BucketActive},
		{domain.StatusActive, past, BucketExpired},
		{domain.StatusActive, now, BucketExpired},
		{domain.StatusTrial, far, BucketTrial},
		{domain.StatusTrial, soon, BucketExpiring},
		{domain.StatusTrial, past, BucketExpired},
		{domain.StatusExpiring, far, BucketExpiring},
		{domain.StatusExpiring, past, BucketExpired},
		{domain.StatusExpired, far, BucketExpired},
		{domain.StatusCancelled, past, BucketCancelled},
		{domain.StatusCancelled, soon, BucketCancelled},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s ends in %s", tt.status, tt.endDate.Sub(now))
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.endDate, now, window))
		})
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	window := DefaultExpiringWindow

	far := now.Add(30 * 24 * time.Hour)
	soon := now.Add(2 * 24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name        string
		status      domain.SubscriberStatus
		endDate     time.Time
		wantStatus  domain.SubscriberStatus
		wantChanged bool
	}{
		{"active far", domain.StatusActive, far, domain.StatusActive, false},
		{"active soon", domain.StatusActive, soon, domain.StatusExpiring, true},
		{"active past", domain.StatusActive, past, domain.StatusExpired, true},
		{"trial soon", domain.StatusTrial, soon, domain.StatusExpiring, true},
		{"trial past", domain.StatusTrial, past, domain.StatusExpired, true},
		{"expiring soon", domain.StatusExpiring, soon, domain.StatusExpiring, false},
		{"expiring far", domain.StatusExpiring, far, domain.StatusExpiring, false},
		{"expiring past", domain.StatusExpiring, past, domain.StatusExpired, true},
		{"expired far", domain.StatusExpired, far, domain.StatusExpired, false},
		{"cancelled past", domain.StatusCancelled, past, domain.StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Transition(tt.status, tt.endDate, now, window)
			assert.Equal(t, tt.wantStatus, got)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}
