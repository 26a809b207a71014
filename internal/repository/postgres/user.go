package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/pkg/database"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

const userColumns = `id, email, name, role, password_hash, is_active, last_login_at,
	two_factor_enabled, two_factor_secret, two_factor_backup_codes, two_factor_enabled_at,
	created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (id, email, name, role, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.Role,
		u.PasswordHash,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by email address, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// UpdateLastLogin sets last_login_at.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) (err error) {
	query := `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateLastLogin", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// SetPendingTwoFactor writes a pending secret while two-factor is off.
func (r *UserRepository) SetPendingTwoFactor(ctx context.Context, id, secret string) (err error) {
	query := `
		UPDATE users
		SET two_factor_secret = $2,
		    two_factor_backup_codes = NULL,
		    two_factor_enabled_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND NOT two_factor_enabled`

	ctx, end := database.TraceQuery(ctx, "SetPendingTwoFactor", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, secret)
	if err != nil {
		return fmt.Errorf("set pending two-factor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// EnableTwoFactor is a compare-and-set from pending setup to enabled.
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id, secret, backupCodes string, at time.Time) (err error) {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE,
		    two_factor_backup_codes = $3,
		    two_factor_enabled_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND NOT two_factor_enabled AND two_factor_secret = $2`

	ctx, end := database.TraceQuery(ctx, "EnableTwoFactor", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, secret, backupCodes, at)
	if err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ResetBackupCodes overwrites the backup codes of an enrollment that still
// uses secret.
func (r *UserRepository) ResetBackupCodes(ctx context.Context, id, secret, backupCodes string) (err error) {
	query := `
		UPDATE users
		SET two_factor_backup_codes = $3, updated_at = NOW()
		WHERE id = $1 AND two_factor_enabled AND two_factor_secret = $2`

	ctx, end := database.TraceQuery(ctx, "ResetBackupCodes", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, secret, backupCodes)
	if err != nil {
		return fmt.Errorf("reset backup codes: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ClearTwoFactor disables two-factor and drops the secret and codes.
func (r *UserRepository) ClearTwoFactor(ctx context.Context, id string) (err error) {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE,
		    two_factor_secret = NULL,
		    two_factor_backup_codes = NULL,
		    two_factor_enabled_at = NULL,
		    updated_at = NOW()
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "ClearTwoFactor", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clear two-factor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// ReplaceBackupCodes is a compare-and-set on two_factor_backup_codes.
func (r *UserRepository) ReplaceBackupCodes(ctx context.Context, id, expected, updated string) (err error) {
	query := `
		UPDATE users
		SET two_factor_backup_codes = $3, updated_at = NOW()
		WHERE id = $1 AND two_factor_enabled AND two_factor_backup_codes = $2`

	ctx, end := database.TraceQuery(ctx, "ReplaceBackupCodes", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, expected, updated)
	if err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, operation, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() { end(err) }()

	var u domain.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.PasswordHash,
		&u.IsActive,
		&u.LastLoginAt,
		&u.TwoFactorEnabled,
		&u.TwoFactorSecret,
		&u.TwoFactorBackupCodes,
		&u.TwoFactorEnabledAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
