// Package service implements the login, two-factor and refresh orchestrators.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hickoryhq/hickory/internal/auth"
	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/internal/repository"
	"github.com/hickoryhq/hickory/internal/totp"
	applog "github.com/hickoryhq/hickory/pkg/logger"
)

const (
	// DefaultRefreshTokenLifetime is how long an issued refresh token lives.
	DefaultRefreshTokenLifetime = 30 * 24 * time.Hour

	// DefaultMaxActiveSessions bounds concurrent refresh tokens per user.
	DefaultMaxActiveSessions = 5

	// defaultReplayWindow covers the accepted step and one step either side.
	defaultReplayWindow = 90 * time.Second

	// backupCodeAttempts bounds the compare-and-set retries when consuming a backup code.
	backupCodeAttempts = 3
)

// Login methods reported in events and metrics.
const (
	methodPassword   = "password"
	methodTOTP       = "totp"
	methodBackupCode = "backup_code"
)

// EventPublisher emits authentication events. Failures are logged, never
// returned to the caller.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, user *domain.User, method string, at time.Time) error
	PublishTokenReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error
	PublishTwoFactorEnabled(ctx context.Context, user *domain.User) error
	PublishTwoFactorDisabled(ctx context.Context, user *domain.User) error
	PublishSessionsRevoked(ctx context.Context, userID, reason string, revoked int64) error
}

// Config tunes session handling.
type Config struct {
	RefreshTokenLifetime time.Duration
	MaxActiveSessions    int
	ReplayWindow         time.Duration
}

// AuthService coordinates credential checks, second factors and the refresh
// token state machine.
type AuthService struct {
	users    repository.UserRepository
	tokens   repository.RefreshTokenRepository
	replay   repository.CodeReplayStore
	issuer   *auth.TokenIssuer
	hasher   *auth.PasswordHasher
	totp     *totp.Engine
	events   EventPublisher
	cfg      Config
	logger   *slog.Logger
	security *slog.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService. replay and events may be nil.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	replay repository.CodeReplayStore,
	issuer *auth.TokenIssuer,
	hasher *auth.PasswordHasher,
	engine *totp.Engine,
	events EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *AuthService {
	if cfg.RefreshTokenLifetime <= 0 {
		cfg.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if cfg.MaxActiveSessions <= 0 {
		cfg.MaxActiveSessions = DefaultMaxActiveSessions
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = defaultReplayWindow
	}
	if events == nil {
		events = nopPublisher{}
	}

	return &AuthService{
		users:    users,
		tokens:   tokens,
		replay:   replay,
		issuer:   issuer,
		hasher:   hasher,
		totp:     engine,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		security: applog.Security(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishLoginSucceeded(context.Context, *domain.User, string, time.Time) error {
	return nil
}
func (nopPublisher) PublishTokenReuseDetected(context.Context, string, string, int64) error {
	return nil
}
func (nopPublisher) PublishTwoFactorEnabled(context.Context, *domain.User) error  { return nil }
func (nopPublisher) PublishTwoFactorDisabled(context.Context, *domain.User) error { return nil }
func (nopPublisher) PublishSessionsRevoked(context.Context, string, string, int64) error {
	return nil
}

func (s *AuthService) logPublishError(ctx context.Context, topic, userID string, err error) {
	if err == nil {
		return
	}
	s.logger.ErrorContext(ctx, "failed to publish auth event",
		slog.String("event", topic),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}
