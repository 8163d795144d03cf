package model

import (
	"strings"
	"time"
)

// UserRole represents the role of a user in the system
type UserRole string

const (
	UserRoleCandidate     UserRole = "candidate"      // Applies to jobs
	UserRoleRecruiter     UserRole = "recruiter"      // Posts jobs, moves applications
	UserRoleHiringManager UserRole = "hiring_manager" // Moves applications, reads history
)

// IsValid reports whether r is one of the known roles
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleCandidate, UserRoleRecruiter, UserRoleHiringManager:
		return true
	}
	return false
}

// ParseUserRole normalizes user input into a role
func ParseUserRole(s string) (UserRole, bool) {
	r := UserRole(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// User represents a user account
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Hash      *string   `json:"-"` // Never expose password hash
	Role      UserRole  `json:"role"`
	CompanyID *string   `json:"company_id,omitempty"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

// IsRecruiter returns true if the user can post and manage jobs
func (u *User) IsRecruiter() bool {
	return u.Role == UserRoleRecruiter
}

// CanMoveApplications returns true if the user may change application stages
func (u *User) CanMoveApplications() bool {
	return u.Role == UserRoleRecruiter || u.Role == UserRoleHiringManager
}

// TokenClaims represents extracted JWT claims
type TokenClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}
