package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickoryhq/hickory/internal/domain"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

func newRefreshTokenTestFixture(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRefreshTokenRepository(mock), mock
}

func sampleRefreshToken(id, hash string) *domain.RefreshToken {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.RefreshToken{
		ID:        id,
		UserID:    "u-1",
		TokenHash: hash,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		CreatedAt: now,
	}
}

func refreshTokenColumnNames() []string {
	return []string{
		"id", "user_id", "token_hash", "expires_at", "created_at",
		"revoked_at", "replaced_by_token_hash", "revoked_reason",
	}
}

func refreshTokenRows(tokens ...*domain.RefreshToken) *pgxmock.Rows {
	rows := pgxmock.NewRows(refreshTokenColumnNames())
	for _, t := range tokens {
		rows.AddRow(t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
			t.RevokedAt, t.ReplacedByTokenHash, t.RevokedReason)
	}
	return rows
}

// ---------------------------------------------------------------------------
// Create / Get
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Create(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	tok := sampleRefreshToken("t-1", "hash-1")
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), tok))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Create_DuplicateHash(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	tok := sampleRefreshToken("t-1", "hash-1")
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt).
		WillReturnError(fmt.Errorf("duplicate key (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), tok)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByTokenHash(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	tok := sampleRefreshToken("t-1", "hash-1")
	revokedAt := tok.CreatedAt.Add(time.Minute)
	tok.RevokedAt = &revokedAt
	tok.ReplacedByTokenHash = strPtr("hash-2")
	tok.RevokedReason = strPtr(domain.RevokedReasonReplaced)

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash =").
		WithArgs("hash-1").
		WillReturnRows(refreshTokenRows(tok))

	got, err := repo.GetByTokenHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)
	assert.True(t, got.IsRevoked())
	require.NotNil(t, got.ReplacedByTokenHash)
	assert.Equal(t, "hash-2", *got.ReplacedByTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByTokenHash_NotFound(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash =").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByTokenHash(context.Background(), "nope")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_ListActiveByUser(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	first := sampleRefreshToken("t-1", "hash-1")
	second := sampleRefreshToken("t-2", "hash-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	mock.ExpectQuery("WHERE user_id = \\$1 AND revoked_at IS NULL AND expires_at >= \\$2").
		WithArgs("u-1", now).
		WillReturnRows(refreshTokenRows(first, second))

	got, err := repo.ListActiveByUser(context.Background(), "u-1", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, "t-2", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_ListActiveByUser_QueryError(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("FROM refresh_tokens").
		WithArgs("u-1", now).
		WillReturnError(errors.New("timeout"))

	_, err := repo.ListActiveByUser(context.Background(), "u-1", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query active refresh tokens")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Revocation
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("t-1", at, domain.RevokedReasonByUser).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Revoke(context.Background(), "t-1", domain.RevokedReasonByUser, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke_AlreadyRevoked(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("t-1", at, domain.RevokedReasonByUser).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Revoke(context.Background(), "t-1", domain.RevokedReasonByUser, at)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAllActive(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	mock.ExpectExec("WHERE user_id = \\$1 AND revoked_at IS NULL").
		WithArgs("u-1", at, domain.RevokedReasonReuseDetected).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.RevokeAllActive(context.Background(), "u-1", domain.RevokedReasonReuseDetected, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Rotate
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Rotate_Success(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	next := sampleRefreshToken("t-2", "hash-2")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("t-1", at, domain.RevokedReasonReplaced, "hash-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.Rotate(context.Background(), "t-1", next, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_LostRace(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	next := sampleRefreshToken("t-2", "hash-2")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("t-1", at, domain.RevokedReasonReplaced, "hash-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "t-1", next, at)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_InsertFails(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	next := sampleRefreshToken("t-2", "hash-2")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("t-1", at, domain.RevokedReasonReplaced, "hash-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "t-1", next, at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert rotated token")
	assert.NoError(t, mock.ExpectationsWereMet())
}
