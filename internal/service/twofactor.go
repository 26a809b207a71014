package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/internal/totp"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

// SetupTwoFactor generates a new pending secret for the user. Running it
// again before enabling replaces the pending secret.
func (s *AuthService) SetupTwoFactor(ctx context.Context, userID string) (*domain.TwoFactorSetup, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, errTwoFactorAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	if err := s.users.SetPendingTwoFactor(ctx, user.ID, secret); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, errTwoFactorAlreadyEnabled
		}
		return nil, fmt.Errorf("store pending totp secret: %w", err)
	}

	s.logger.InfoContext(ctx, "two-factor setup started",
		slog.String("user_id", user.ID),
	)

	return &domain.TwoFactorSetup{
		Secret: secret,
		QRURI:  s.totp.QRCodeURI(user.Email, secret),
	}, nil
}

// EnableTwoFactor confirms the pending secret with a code and returns the
// plaintext backup codes. They are not retrievable afterwards.
func (s *AuthService) EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, errTwoFactorAlreadyEnabled
	}
	if user.TwoFactorState() != domain.TwoFactorPendingSetup {
		return nil, errTwoFactorSetupRequired
	}

	if err := s.checkTOTP(ctx, user, code); err != nil {
		return nil, err
	}

	codes, hashed, err := newBackupCodes()
	if err != nil {
		return nil, err
	}

	// The secret must still be the one the code was checked against.
	if err := s.users.EnableTwoFactor(ctx, user.ID, *user.TwoFactorSecret, hashed, s.now()); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, errTwoFactorChanged
		}
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}

	if err := s.events.PublishTwoFactorEnabled(ctx, user); err != nil {
		s.logPublishError(ctx, "two_factor_enabled", user.ID, err)
	}
	s.security.InfoContext(ctx, "two-factor enabled",
		slog.String("user_id", user.ID),
	)

	return codes, nil
}

// DisableTwoFactor clears every two-factor field after re-checking the
// password, then revokes the user's sessions.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID, password string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return errTwoFactorNotEnabled
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.security.WarnContext(ctx, "two-factor disable rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", "invalid_credentials"),
		)
		return errInvalidCredentials
	}

	if err := s.users.ClearTwoFactor(ctx, user.ID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	if err := s.events.PublishTwoFactorDisabled(ctx, user); err != nil {
		s.logPublishError(ctx, "two_factor_disabled", user.ID, err)
	}
	s.security.InfoContext(ctx, "two-factor disabled",
		slog.String("user_id", user.ID),
	)

	// Two-factor is already off at this point, so a failed revoke does not
	// fail the request.
	if _, err := s.revokeAll(ctx, user.ID, domain.RevokedReasonTwoFactorDisable); err != nil {
		s.security.ErrorContext(ctx, "session revocation after two-factor disable failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// RegenerateBackupCodes replaces the stored backup codes with a fresh set and
// returns them in plaintext.
func (s *AuthService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, errTwoFactorNotEnabled
	}

	codes, hashed, err := newBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.users.ResetBackupCodes(ctx, user.ID, *user.TwoFactorSecret, hashed); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, errTwoFactorChanged
		}
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	s.security.InfoContext(ctx, "backup codes regenerated",
		slog.String("user_id", user.ID),
	)
	return codes, nil
}

// TwoFactorStatus reports the user's enrollment state.
func (s *AuthService) TwoFactorStatus(ctx context.Context, userID string) (*domain.TwoFactorStatus, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &domain.TwoFactorStatus{
		Enabled:      user.TwoFactorEnabled,
		PendingSetup: user.TwoFactorState() == domain.TwoFactorPendingSetup,
		EnabledAt:    user.TwoFactorEnabledAt,
	}
	if user.TwoFactorEnabled && user.TwoFactorBackupCodes != nil {
		status.BackupCodesRemaining = totp.CountBackupCodes(*user.TwoFactorBackupCodes)
	}
	return status, nil
}

// VerifyTwoFactor completes a login that was answered with a two-factor
// challenge. isBackupCode, when set, decides how code is checked; otherwise
// a code shaped like XXXX-XXXX is treated as a backup code.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, userID, code string, isBackupCode *bool) (*domain.AuthSession, error) {
	code = strings.TrimSpace(code)
	backup := totp.LooksLikeBackupCode(code)
	if isBackupCode != nil {
		backup = *isBackupCode
	}
	method := methodTOTP
	if backup {
		method = methodBackupCode
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			twoFactorVerifications.WithLabelValues(method, "invalid").Inc()
			return nil, errInvalidCode
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, errAccountInactive
	}
	if !user.TwoFactorEnabled {
		twoFactorVerifications.WithLabelValues(method, "invalid").Inc()
		return nil, errInvalidCode
	}

	if backup {
		user, err = s.consumeBackupCode(ctx, user, code)
	} else {
		err = s.checkTOTP(ctx, user, code)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			twoFactorVerifications.WithLabelValues(method, "invalid").Inc()
			s.security.InfoContext(ctx, "two-factor verification failed",
				slog.String("user_id", userID),
				slog.String("method", method),
			)
		}
		return nil, err
	}

	twoFactorVerifications.WithLabelValues(method, "success").Inc()
	return s.completeLogin(ctx, user, method)
}

// checkTOTP validates code against the user's secret and claims its time
// step so the same code cannot be used twice.
func (s *AuthService) checkTOTP(ctx context.Context, user *domain.User, code string) error {
	if user.TwoFactorSecret == nil {
		return errInvalidCode
	}
	step, ok := s.totp.MatchCode(*user.TwoFactorSecret, code)
	if !ok {
		return errInvalidCode
	}
	if s.replay == nil {
		return nil
	}

	fresh, err := s.replay.MarkUsed(ctx, user.ID, step, s.cfg.ReplayWindow)
	if err != nil {
		// Redis is non-critical; the code itself was valid.
		s.logger.WarnContext(ctx, "totp replay guard unavailable",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !fresh {
		s.security.WarnContext(ctx, "totp code replay rejected",
			slog.String("user_id", user.ID),
		)
		return errInvalidCode
	}
	return nil
}

// consumeBackupCode validates and removes one backup code using a
// compare-and-set on the stored hash list, re-reading the user on conflict.
func (s *AuthService) consumeBackupCode(ctx context.Context, user *domain.User, code string) (*domain.User, error) {
	for attempt := 0; attempt < backupCodeAttempts; attempt++ {
		if user.TwoFactorBackupCodes == nil {
			return nil, errInvalidCode
		}
		stored := *user.TwoFactorBackupCodes

		ok, updated := totp.ValidateBackupCode(code, stored)
		if !ok {
			return nil, errInvalidCode
		}

		err := s.users.ReplaceBackupCodes(ctx, user.ID, stored, updated)
		if err == nil {
			user.TwoFactorBackupCodes = &updated
			s.security.InfoContext(ctx, "backup code consumed",
				slog.String("user_id", user.ID),
				slog.Int("remaining", totp.CountBackupCodes(updated)),
			)
			return user, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("consume backup code: %w", err)
		}

		user, err = s.users.GetByID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("reload user: %w", err)
		}
		if !user.TwoFactorEnabled {
			return nil, errInvalidCode
		}
	}
	return nil, fmt.Errorf("consume backup code: %w", apperrors.ErrConflict)
}

func (s *AuthService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func newBackupCodes() ([]string, string, error) {
	codes, err := totp.GenerateBackupCodes(totp.DefaultBackupCodeCount)
	if err != nil {
		return nil, "", fmt.Errorf("generate backup codes: %w", err)
	}
	hashed, err := totp.HashBackupCodes(codes)
	if err != nil {
		return nil, "", err
	}
	return codes, hashed, nil
}
