package domain

import "time"

// Role is a staff role.
type Role string

// Staff roles.
const (
	RoleAdmin   Role = "Admin"
	RoleSupport Role = "Support"
)

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSupport
}

// StaffUser is an operator account. PasswordHash is never serialized.
type StaffUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	Avatar       string     `json:"avatar"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
