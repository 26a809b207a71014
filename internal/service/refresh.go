package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hickoryhq/hickory/internal/auth"
	"github.com/hickoryhq/hickory/internal/domain"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

// Refresh exchanges an active refresh token for a new token pair and revokes
// the presented one. Presenting a revoked token revokes every active token of
// its owner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		refreshAttempts.WithLabelValues("invalid").Inc()
		return nil, errInvalidToken
	}

	record, user, err := s.lookupRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			refreshAttempts.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	if !user.IsActive {
		refreshAttempts.WithLabelValues("account_inactive").Inc()
		return nil, errAccountInactive
	}

	now := s.now()

	// Revocation is checked before expiry so an expired, rotated-away token
	// still triggers reuse detection.
	if record.IsRevoked() {
		s.handleReuse(ctx, record, now)
		return nil, errTokenNoLongerValid
	}
	if record.IsExpired(now) {
		refreshAttempts.WithLabelValues("expired").Inc()
		return nil, errTokenNoLongerValid
	}

	session, next, err := s.issueSession(user, now)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, record.ID, next, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race to a concurrent rotation of the same token.
			s.handleReuse(ctx, record, now)
			return nil, errTokenNoLongerValid
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	refreshAttempts.WithLabelValues("rotated").Inc()
	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
		slog.String("token_id", next.ID),
	)

	return session, nil
}

// Logout revokes the presented refresh token. Unknown, expired or already
// revoked tokens are accepted silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	record, err := s.tokens.GetByTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get refresh token: %w", err)
	}

	now := s.now()
	if !record.IsActive(now) {
		return nil
	}

	if err := s.tokens.Revoke(ctx, record.ID, domain.RevokedReasonByUser, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	sessionsRevoked.WithLabelValues("logout").Inc()
	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", record.UserID),
		slog.String("token_id", record.ID),
	)
	return nil
}

// RevokeAllSessions revokes every active refresh token of the user and
// returns how many were revoked.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, apperrors.NotFound("user", userID)
		}
		return 0, fmt.Errorf("get user: %w", err)
	}
	return s.revokeAll(ctx, userID, reason)
}

func (s *AuthService) revokeAll(ctx context.Context, userID, reason string) (int64, error) {
	n, err := s.tokens.RevokeAllActive(ctx, userID, reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	sessionsRevoked.WithLabelValues(revocationLabel(reason)).Add(float64(n))
	if err := s.events.PublishSessionsRevoked(ctx, userID, reason, n); err != nil {
		s.logPublishError(ctx, "sessions_revoked", userID, err)
	}

	s.security.InfoContext(ctx, "sessions revoked",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int64("revoked", n),
	)
	return n, nil
}

func (s *AuthService) lookupRefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshToken, *domain.User, error) {
	record, err := s.tokens.GetByTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, errInvalidToken
		}
		return nil, nil, fmt.Errorf("get refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, errInvalidToken
		}
		return nil, nil, fmt.Errorf("get token owner: %w", err)
	}

	return record, user, nil
}

// handleReuse revokes the owner's whole active token set after a dead token
// was presented. A failure here is logged as a security event; the caller
// still reports the token as no longer valid.
func (s *AuthService) handleReuse(ctx context.Context, record *domain.RefreshToken, now time.Time) {
	refreshAttempts.WithLabelValues("reuse_detected").Inc()

	n, err := s.tokens.RevokeAllActive(ctx, record.UserID, domain.RevokedReasonReuseDetected, now)
	if err != nil {
		s.security.ErrorContext(ctx, "failed to revoke sessions after refresh token reuse",
			slog.String("user_id", record.UserID),
			slog.String("token_id", record.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	sessionsRevoked.WithLabelValues("reuse_detected").Add(float64(n))
	s.security.WarnContext(ctx, "refresh token reuse detected",
		slog.String("user_id", record.UserID),
		slog.String("token_id", record.ID),
		slog.Int64("revoked", n),
	)

	if err := s.events.PublishTokenReuseDetected(ctx, record.UserID, record.ID, n); err != nil {
		s.logPublishError(ctx, "token_reuse_detected", record.UserID, err)
	}
}

func revocationLabel(reason string) string {
	switch reason {
	case domain.RevokedReasonByAdministrator:
		return "administrator"
	case domain.RevokedReasonTwoFactorDisable:
		return "two_factor_disabled"
	case domain.RevokedReasonByUser:
		return "user"
	case domain.RevokedReasonReuseDetected:
		return "reuse_detected"
	default:
		return "other"
	}
}
