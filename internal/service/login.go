package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hickoryhq/hickory/internal/auth"
	"github.com/hickoryhq/hickory/internal/domain"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

// Login checks an email and password. It returns an *domain.AuthSession, or
// a *domain.TwoFactorChallenge when the user has two-factor enabled, in which
// case no tokens are issued and last login is left untouched.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.LoginOutcome, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			loginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if !user.IsActive {
		loginAttempts.WithLabelValues("account_inactive").Inc()
		s.security.WarnContext(ctx, "login attempt on inactive account",
			slog.String("user_id", user.ID),
		)
		return nil, errAccountInactive
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		loginAttempts.WithLabelValues("invalid_credentials").Inc()
		s.security.InfoContext(ctx, "login failed",
			slog.String("user_id", user.ID),
			slog.String("reason", "invalid_credentials"),
		)
		return nil, errInvalidCredentials
	}

	if user.TwoFactorEnabled {
		loginAttempts.WithLabelValues("two_factor_required").Inc()
		s.logger.InfoContext(ctx, "two-factor challenge issued",
			slog.String("user_id", user.ID),
		)
		return &domain.TwoFactorChallenge{UserID: user.ID, Email: user.Email}, nil
	}

	session, err := s.completeLogin(ctx, user, methodPassword)
	if err != nil {
		return nil, err
	}
	loginAttempts.WithLabelValues("success").Inc()
	return session, nil
}

// completeLogin records the login, enforces the session cap and issues a
// fresh access and refresh token pair.
func (s *AuthService) completeLogin(ctx context.Context, user *domain.User, method string) (*domain.AuthSession, error) {
	now := s.now()

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &now

	if err := s.enforceSessionCap(ctx, user.ID, now); err != nil {
		return nil, err
	}

	session, record, err := s.issueSession(user, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if err := s.events.PublishLoginSucceeded(ctx, user, method, now); err != nil {
		s.logPublishError(ctx, "login_succeeded", user.ID, err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)

	return session, nil
}

// enforceSessionCap revokes the oldest active refresh token when the user is
// already at the maximum number of active sessions.
func (s *AuthService) enforceSessionCap(ctx context.Context, userID string, now time.Time) error {
	active, err := s.tokens.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(active) < s.cfg.MaxActiveSessions {
		return nil
	}

	oldest := active[0]
	reason := domain.SessionCapReason(s.cfg.MaxActiveSessions)
	if err := s.tokens.Revoke(ctx, oldest.ID, reason, now); err != nil {
		// Already revoked by a concurrent request; the slot is free either way.
		// Two logins racing here can both insert, leaving one token over the cap
		// until the next login trims it.
		if errors.Is(err, apperrors.ErrConflict) {
			return nil
		}
		return fmt.Errorf("revoke oldest session: %w", err)
	}

	sessionsRevoked.WithLabelValues("session_cap").Inc()
	s.logger.InfoContext(ctx, "oldest session revoked",
		slog.String("user_id", userID),
		slog.String("token_id", oldest.ID),
		slog.Int("active_sessions", len(active)),
	)
	return nil
}

// issueSession mints both tokens. The returned record holds only the hash of
// the refresh token and has not been persisted.
func (s *AuthService) issueSession(user *domain.User, now time.Time) (*domain.AuthSession, *domain.RefreshToken, error) {
	accessToken, expiresAt, err := s.issuer.GenerateAccessToken(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := &domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: auth.HashToken(refreshToken),
		ExpiresAt: now.Add(s.cfg.RefreshTokenLifetime),
		CreatedAt: now,
	}

	session := &domain.AuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		ExpiresAt:    expiresAt,
	}

	return session, record, nil
}
