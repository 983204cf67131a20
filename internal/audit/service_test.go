package audit

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	entries    []domain.AuditLog
	lastFilter Filter
}

func (m *mockRepo) CreateTx(_ context.Context, _ pgx.Tx, entry *domain.AuditLog) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockRepo) List(_ context.Context, filter Filter) ([]domain.AuditLog, int, error) {
	m.lastFilter = filter
	return m.entries, len(m.entries), nil
}

func session(role domain.Role) access.Session {
	return access.Session{ActorID: "actor", Role: role, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestService_List(t *testing.T) {
	t.Run("support is forbidden", func(t *testing.T) {
		svc := NewService(&mockRepo{})

		_, err := svc.List(context.Background(), session(domain.RoleSupport), Filter{})

		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("limits are clamped", func(t *testing.T) {
		repo := &mockRepo{entries: []domain.AuditLog{{ID: "1"}}}
		svc := NewService(repo)

		page, err := svc.List(context.Background(), session(domain.RoleAdmin), Filter{Limit: 1000, Offset: -3})

		require.NoError(t, err)
		assert.Equal(t, MaxLimit, repo.lastFilter.Limit)
		assert.Equal(t, 0, repo.lastFilter.Offset)
		assert.Equal(t, 1, page.Total)
	})

	t.Run("default limit", func(t *testing.T) {
		repo := &mockRepo{}
		svc := NewService(repo)

		_, err := svc.List(context.Background(), session(domain.RoleAdmin), Filter{StaffID: "s"})

		require.NoError(t, err)
		assert.Equal(t, DefaultLimit, repo.lastFilter.Limit)
		assert.Equal(t, "s", repo.lastFilter.StaffID)
	})
}

func TestNewEntry(t *testing.T) {
	subID := "sub-1"

	entry, err := NewEntry("staff-1", &subID, domain.AuditSubscriberDeleted, map[string]int{"payments": 2})

	require.NoError(t, err)
	assert.Equal(t, "staff-1", entry.StaffID)
	assert.Equal(t, &subID, entry.SubscriberID)
	assert.JSONEq(t, `{"payments":2}`, string(entry.Details))

	empty, err := NewEntry("", nil, domain.AuditStatusTransitioned, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty.Details))
}
