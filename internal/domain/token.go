package domain

import (
	"fmt"
	"time"
)

// Revocation reasons recorded on refresh tokens.
const (
	RevokedReasonReplaced         = "Replaced by new token"
	RevokedReasonReuseDetected    = "Token reuse detected"
	RevokedReasonByUser           = "Revoked by user"
	RevokedReasonByAdministrator  = "Revoked by administrator"
	RevokedReasonTwoFactorDisable = "Two-factor authentication disabled"
)

// SessionCapReason is the revocation reason used when the oldest session is
// evicted to stay within max active sessions.
func SessionCapReason(max int) string {
	return fmt.Sprintf("Exceeded maximum active sessions (%d)", max)
}

// RefreshToken is one issued refresh credential. Only the SHA-256 hash of
// the bearer string is stored; ReplacedByTokenHash points at the hash of the
// token that superseded this one. Records are never deleted and RevokedAt is
// set at most once.
type RefreshToken struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	TokenHash           string     `json:"-"`
	ExpiresAt           time.Time  `json:"expires_at"`
	CreatedAt           time.Time  `json:"created_at"`
	RevokedAt           *time.Time `json:"revoked_at,omitempty"`
	ReplacedByTokenHash *string    `json:"-"`
	RevokedReason       *string    `json:"revoked_reason,omitempty"`
}

// IsExpired reports whether now is past the token's expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsRevoked reports whether the token has been revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token is neither expired nor revoked.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked()
}
