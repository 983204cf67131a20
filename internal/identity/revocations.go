package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocations is an in-process RevocationStore for single-instance
// deployments without Redis. Entries are dropped once their token expires.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty store.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke marks tokenID revoked until until.
func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
		}
	}
	if now.Before(until) {
		m.entries[tokenID] = until
	}
	return nil
}

// IsRevoked reports whether tokenID is revoked.
func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[tokenID]
	return ok && m.now().Before(exp), nil
}
