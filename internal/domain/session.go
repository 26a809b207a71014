package domain

import "time"

// LoginOutcome is the result of a successful first-factor login: either an
// *AuthSession or a *TwoFactorChallenge. The set of implementations is closed.
type LoginOutcome interface {
	loginOutcome()
}

// AuthSession is a fully established session.
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TwoFactorChallenge means the password was accepted but a second factor is
// required. No tokens have been issued.
type TwoFactorChallenge struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (*AuthSession) loginOutcome()        {}
func (*TwoFactorChallenge) loginOutcome() {}

// TwoFactorSetup is returned when a user begins enrollment.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	QRURI  string `json:"qr_uri"`
}

// TwoFactorStatus summarises a user's second factor.
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	PendingSetup         bool       `json:"pending_setup"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}
