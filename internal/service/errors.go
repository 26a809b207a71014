package service

import (
	"net/http"

	"github.com/hickoryhq/hickory/internal/domain"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

// Caller-facing failures. Each wraps its domain sentinel.
var (
	errInvalidCredentials = apperrors.New("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, domain.ErrInvalidCredentials)
	errAccountInactive    = apperrors.New("ACCOUNT_INACTIVE", "account is inactive", http.StatusForbidden, domain.ErrAccountInactive)
	errInvalidCode        = apperrors.New("INVALID_CODE", "invalid verification code", http.StatusUnauthorized, domain.ErrInvalidCode)
	errInvalidToken       = apperrors.New("INVALID_TOKEN", "invalid refresh token", http.StatusUnauthorized, domain.ErrInvalidToken)
	errTokenNoLongerValid = apperrors.New("TOKEN_NO_LONGER_VALID", "refresh token is no longer valid", http.StatusUnauthorized, domain.ErrTokenNoLongerValid)

	errTwoFactorAlreadyEnabled = apperrors.New("TWO_FACTOR_ALREADY_ENABLED", "two-factor authentication is already enabled", http.StatusConflict, domain.ErrTwoFactorAlreadyEnabled)
	errTwoFactorNotEnabled     = apperrors.New("TWO_FACTOR_NOT_ENABLED", "two-factor authentication is not enabled", http.StatusConflict, domain.ErrTwoFactorNotEnabled)
	errTwoFactorSetupRequired  = apperrors.New("TWO_FACTOR_SETUP_REQUIRED", "start two-factor setup first", http.StatusConflict, domain.ErrTwoFactorSetupRequired)
	errTwoFactorChanged        = apperrors.New("TWO_FACTOR_CHANGED", "two-factor settings changed, reload and retry", http.StatusConflict, apperrors.ErrConflict)
)
