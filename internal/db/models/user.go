// user.go defines the User model and the role hierarchy used for authorization.
package models

import "time"

// User roles, from least to most privileged.
const (
	RoleStaff   = "STAFF"   // inventory data entry
	RoleAuditor = "AUDITOR" // read access to the audit trail and exports
	RoleAdmin   = "ADMIN"   // everything, including reverts and user management
)

// User represents an application user account
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Role         string    `db:"role"`
	PasswordHash string    `db:"password_hash" json:"-"` // never serialized
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// HasRole reports whether the user's role is one of the given roles.
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
