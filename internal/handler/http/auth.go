package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/pkg/httputil"
	"github.com/hickoryhq/hickory/pkg/validator"
)

// maxBodyBytes caps request bodies on every auth endpoint.
const maxBodyBytes = 1 << 20

// AuthService is the orchestrator surface the HTTP layer drives.
type AuthService interface {
	Login(ctx context.Context, email, password string) (domain.LoginOutcome, error)
	VerifyTwoFactor(ctx context.Context, userID, code string, isBackupCode *bool) (*domain.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error)
	Logout(ctx context.Context, refreshToken string) error
	SetupTwoFactor(ctx context.Context, userID string) (*domain.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error)
	DisableTwoFactor(ctx context.Context, userID, password string) error
	RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error)
	TwoFactorStatus(ctx context.Context, userID string) (*domain.TwoFactorStatus, error)
	RevokeAllSessions(ctx context.Context, userID, reason string) (int64, error)
}

// AuthHandler handles HTTP requests for the public auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyTwoFactorRequest is the JSON request body for the second login step.
type VerifyTwoFactorRequest struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	Code         string `json:"code" validate:"required,otp_or_backup"`
	IsBackupCode *bool  `json:"is_backup_code,omitempty"`
}

// RefreshTokenRequest is the JSON request body for token refresh and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// --- Response types ---

// LoginResponse is either a full session or a two-factor challenge.
type LoginResponse struct {
	RequiresTwoFactor bool                `json:"requires_two_factor"`
	Session           *domain.AuthSession `json:"session,omitempty"`
	UserID            string              `json:"user_id,omitempty"`
	Email             string              `json:"email,omitempty"`
}

// --- Handlers ---

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	outcome, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var resp LoginResponse
	switch o := outcome.(type) {
	case *domain.AuthSession:
		resp.Session = o
	case *domain.TwoFactorChallenge:
		resp.RequiresTwoFactor = true
		resp.UserID = o.UserID
		resp.Email = o.Email
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// VerifyTwoFactor handles POST /api/v1/auth/2fa/verify
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := h.service.VerifyTwoFactor(r.Context(), req.UserID, req.Code, req.IsBackupCode)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeRequest decodes and validates a JSON body, writing a 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}
