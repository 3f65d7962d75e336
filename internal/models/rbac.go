// Package models defines data structures for the QualiTrack application.
// This file contains the role-based access control entities: users, roles
// and permissions. A role carries an integer authority level; levels at or
// above ProtectedRoleLevel mark administrative roles with hard protection
// rules (see the authz package).
package models

import "time"

// ProtectedRoleLevel is the authority threshold at and above which a role
// is protected: such roles cannot be deleted or have their permission set
// edited, and users holding them cannot be deleted or demoted by another
// principal.
const ProtectedRoleLevel = 80

// User represents a system user account.
//
// Database Table: users
// Security Note: PasswordHash should never be exposed in API responses or logs
type User struct {
	ID           int       `db:"id"`            // Primary key, auto-increment
	Email        string    `db:"email"`         // Unique, used for login
	Name         string    `db:"name"`          // Display name
	PasswordHash string    `db:"password_hash"` // bcrypt hashed password
	Active       bool      `db:"active"`        // Account enabled flag
	CreatedAt    time.Time `db:"created_at"`    // Account creation timestamp
}

// Role represents a named authority within the organization.
// Roles aggregate permissions and carry a 0-100 authority level
// (higher = more authority).
//
// Database Table: roles
// Invariant: roles with Level >= ProtectedRoleLevel are protected
type Role struct {
	ID          int          `db:"id"`           // Primary key
	Name        string       `db:"name"`         // Unique machine name (e.g. "quality_admin")
	DisplayName string       `db:"display_name"` // Human-readable name
	Level       int          `db:"level"`        // Authority level, 0-100
	IsSystem    bool         `db:"is_system"`    // Seeded at install time, not user-created
	CreatedAt   time.Time    `db:"created_at"`   // Creation timestamp
	Permissions []Permission `db:"-"`            // Loaded via role_permissions join
}

// Protected reports whether the role falls under the hard protection rule.
func (r Role) Protected() bool {
	return r.Level >= ProtectedRoleLevel
}

// Permission represents a single grantable action, named "resource:action"
// (e.g. "record:approve", "template:create").
//
// Database Table: permissions
type Permission struct {
	ID          int    `db:"id"`           // Primary key
	Name        string `db:"name"`         // "resource:action", unique
	Resource    string `db:"resource"`     // Resource component
	Action      string `db:"action"`       // Action component
	DisplayName string `db:"display_name"` // Human-readable description
}

// UserRole maps a user to a role. Many-to-many relationship.
//
// Database Table: user_roles (composite primary key)
type UserRole struct {
	UserID    int       `db:"user_id"`    // Foreign key to users
	RoleID    int       `db:"role_id"`    // Foreign key to roles
	CreatedAt time.Time `db:"created_at"` // When the role was granted
}

// UserWithRoles extends User with the roles loaded for display and for
// building the request principal.
type UserWithRoles struct {
	User
	Roles []Role
}

// MaxRoleLevel returns the highest authority level among the user's roles,
// or 0 when the user holds none.
func (u UserWithRoles) MaxRoleLevel() int {
	max := 0
	for _, r := range u.Roles {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}
