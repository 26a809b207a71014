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

const refreshTokenColumns = `id, user_id, token_hash, expires_at, created_at,
	revoked_at, replaced_by_token_hash, revoked_reason`

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5)`

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateRefreshToken", insertRefreshToken)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, insertRefreshToken, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "GetRefreshToken", query)
	defer func() { end(err) }()

	t, err := scanRefreshToken(r.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return t, nil
}

// ListActiveByUser returns the user's active tokens ordered by creation time.
func (r *RefreshTokenRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) (_ []domain.RefreshToken, err error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at >= $2
		ORDER BY created_at ASC, id ASC`

	ctx, end := database.TraceQuery(ctx, "ListActiveRefreshTokens", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("query active refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh token row: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh token rows: %w", err)
	}
	return tokens, nil
}

// Revoke revokes a single token unless it is already revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeRefreshToken", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, at, reason)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// RevokeAllActive revokes every unrevoked, unexpired token of the user.
func (r *RefreshTokenRepository) RevokeAllActive(ctx context.Context, userID, reason string, at time.Time) (_ int64, err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at >= $2`

	ctx, end := database.TraceQuery(ctx, "RevokeAllRefreshTokens", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Rotate revokes oldID as replaced by next and inserts next in one transaction.
// The revoke only applies to an unrevoked row, so of two concurrent rotations
// of the same token exactly one succeeds.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID string, next *domain.RefreshToken, at time.Time) (err error) {
	revoke := `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3, replaced_by_token_hash = $4
		WHERE id = $1 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", revoke)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, revoke, oldID, at, domain.RevokedReasonReplaced, next.TokenHash)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	if _, err = tx.Exec(ctx, insertRefreshToken, next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("insert rotated token: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.RevokedAt,
		&t.ReplacedByTokenHash,
		&t.RevokedReason,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
