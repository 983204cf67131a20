package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/submanage/internal/access"
	"github.com/bissquit/submanage/internal/domain"
)

// Pagination limits for audit listings.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Service implements audit log business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Page is one page of audit entries.
type Page struct {
	Items  []domain.AuditLog `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// List returns audit entries newest first.
func (s *Service) List(ctx context.Context, session access.Session, filter Filter) (*Page, error) {
	if err := session.Require(access.ActionAuditRead, s.now()); err != nil {
		return nil, err
	}

	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	return &Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
