// Package access holds the static role/permission table and the explicit
// session object passed to every guarded operation.
package access

import "github.com/bissquit/submanage/internal/domain"

// Action is a guarded operation.
type Action string

// Actions.
const (
	ActionSubscribersRead        Action = "subscribers:read"
	ActionSubscribersCreate      Action = "subscribers:create"
	ActionSubscribersUpdate      Action = "subscribers:update"
	ActionSubscribersDelete      Action = "subscribers:delete"
	ActionSubscribersImport      Action = "subscribers:import"
	ActionSubscribersExport      Action = "subscribers:export"
	ActionSubscribersSendMessage Action = "subscribers:sendMessage"

	ActionStaffRead   Action = "staff:read"
	ActionStaffCreate Action = "staff:create"
	ActionStaffUpdate Action = "staff:update"
	ActionStaffDelete Action = "staff:delete"

	ActionSettingsRead   Action = "settings:read"
	ActionSettingsUpdate Action = "settings:update"

	ActionDashboardView  Action = "dashboard:view"
	ActionMetricsView    Action = "metrics:view"
	ActionAuditRead      Action = "audit:read"
	ActionLifecycleSweep Action = "lifecycle:sweep"
)

var (
	adminOnly   = []domain.Role{domain.RoleAdmin}
	adminAndSup = []domain.Role{domain.RoleAdmin, domain.RoleSupport}
)

// permissions is the single source of truth for role checks.
var permissions = map[Action][]domain.Role{
	ActionSubscribersRead:        adminAndSup,
	ActionSubscribersCreate:      adminAndSup,
	ActionSubscribersUpdate:      adminAndSup,
	ActionSubscribersDelete:      adminOnly,
	ActionSubscribersImport:      adminOnly,
	ActionSubscribersExport:      adminAndSup,
	ActionSubscribersSendMessage: adminAndSup,

	ActionStaffRead:   adminOnly,
	ActionStaffCreate: adminOnly,
	ActionStaffUpdate: adminOnly,
	ActionStaffDelete: adminOnly,

	ActionSettingsRead:   adminOnly,
	ActionSettingsUpdate: adminOnly,

	ActionDashboardView:  adminAndSup,
	ActionMetricsView:    adminOnly,
	ActionAuditRead:      adminOnly,
	ActionLifecycleSweep: adminOnly,
}

// Authorize reports whether role may perform action.
// Unknown actions and unknown roles are denied.
func Authorize(role domain.Role, action Action) bool {
	for _, r := range permissions[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Actions returns every action in the permission table.
func Actions() []Action {
	actions := make([]Action, 0, len(permissions))
	for a := range permissions {
		actions = append(actions, a)
	}
	return actions
}
