package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of intranet roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTravailleur Role = "travailleur"
	RoleClient      Role = "client"
)

// ParseRole converts a stored role name into a Role.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleTravailleur, RoleClient:
		return r, nil
	default:
		return "", fmt.Errorf("auth: unknown role %q", raw)
	}
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus converts a stored status into a Status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusInactive:
		return s, nil
	default:
		return "", fmt.Errorf("auth: unknown status %q", raw)
	}
}

// Principal is the authenticated actor evaluated by the policy engine.
type Principal struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Status Status `json:"status"`
}

// IsActive reports whether the account may act at all.
func (p Principal) IsActive() bool {
	return p.Status == StatusActive
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User represents a stored account with its credential hash.
type User struct {
	Principal
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
