package domain

import (
	"time"
)

// Role constants define the allowed user roles.
const (
	RoleAdmin     = "admin"
	RoleAgent     = "agent"
	RoleRequester = "requester"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleAdmin, RoleAgent, RoleRequester}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// User is an account able to authenticate. PasswordHash is nil for accounts
// that only sign in through an external identity provider.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash *string    `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`

	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	TwoFactorSecret      *string    `json:"-"`
	TwoFactorBackupCodes *string    `json:"-"`
	TwoFactorEnabledAt   *time.Time `json:"two_factor_enabled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TwoFactorState is the enrollment state of a user's second factor.
type TwoFactorState string

const (
	TwoFactorDisabled     TwoFactorState = "disabled"
	TwoFactorPendingSetup TwoFactorState = "pending_setup"
	TwoFactorEnabled      TwoFactorState = "enabled"
)

// TwoFactorState derives the enrollment state from the stored fields.
func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	case u.TwoFactorSecret != nil && *u.TwoFactorSecret != "":
		return TwoFactorPendingSetup
	default:
		return TwoFactorDisabled
	}
}

