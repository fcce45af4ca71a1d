package model

import (
	"fmt"
	"strconv"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// ActorID returns the stable id recorded in createdBy/approvedBy fields.
func (u *User) ActorID() string {
	return strconv.FormatInt(u.ID, 10)
}

// Role is the capability tag attached to every caller.
type Role string

// Roles.
const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleSupervisor:
		return true
	}
	return false
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum Role) bool {
	levels := map[Role]int{
		RoleSupervisor: 3,
		RoleOperator:   2,
		RoleViewer:     1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// Actor is the authenticated caller context handed to the core.
type Actor struct {
	ID   string
	Role Role
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
