package domain

import "errors"

// Authentication failure kinds. Callers match them with errors.Is.
var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrAccountInactive         = errors.New("account is inactive")
	ErrInvalidCode             = errors.New("invalid verification code")
	ErrInvalidToken            = errors.New("invalid refresh token")
	ErrTokenNoLongerValid      = errors.New("refresh token is no longer valid")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorSetupRequired  = errors.New("two-factor setup has not been started")
)
