package repository

import (
	"context"
	"time"

	"github.com/hickoryhq/hickory/internal/domain"
)

// UserRepository defines the user persistence operations the auth core needs.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email, ignoring case.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateLastLogin records a completed login.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// SetPendingTwoFactor stores a not-yet-confirmed secret. Returns
	// apperrors.ErrConflict if two-factor is already enabled.
	SetPendingTwoFactor(ctx context.Context, id, secret string) error

	// EnableTwoFactor turns two-factor on, only if it is still off and the
	// pending secret still equals secret. Returns apperrors.ErrConflict otherwise.
	EnableTwoFactor(ctx context.Context, id, secret, backupCodes string, at time.Time) error

	// ResetBackupCodes replaces the whole backup code list, only if two-factor
	// is still enabled with secret. Returns apperrors.ErrConflict otherwise.
	ResetBackupCodes(ctx context.Context, id, secret, backupCodes string) error

	// ClearTwoFactor nulls every two-factor column of the user.
	ClearTwoFactor(ctx context.Context, id string) error

	// ReplaceBackupCodes swaps the serialized backup code hashes only if the
	// stored value still equals expected. Returns apperrors.ErrConflict otherwise.
	ReplaceBackupCodes(ctx context.Context, id, expected, updated string) error
}

// RefreshTokenRepository persists refresh token records. Records are never
// deleted and a revocation is never undone.
type RefreshTokenRepository interface {
	// Create stores a new token record. A duplicate hash yields apperrors.ErrAlreadyExists.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetByTokenHash finds a record by the hash of its bearer string.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// ListActiveByUser returns the user's unrevoked, unexpired tokens, oldest first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)

	// Revoke revokes one token if it is not already revoked. Returns
	// apperrors.ErrConflict when it already was.
	Revoke(ctx context.Context, id, reason string, at time.Time) error

	// RevokeAllActive revokes every active token of the user and returns how many.
	RevokeAllActive(ctx context.Context, userID, reason string, at time.Time) (int64, error)

	// Rotate atomically revokes oldID as replaced by next and inserts next.
	// Returns apperrors.ErrConflict if oldID was revoked concurrently.
	Rotate(ctx context.Context, oldID string, next *domain.RefreshToken, at time.Time) error
}

// CodeReplayStore remembers which TOTP time steps a user has already spent.
type CodeReplayStore interface {
	// MarkUsed records step for userID and reports whether it was unused.
	MarkUsed(ctx context.Context, userID string, step int64, ttl time.Duration) (bool, error)
}
