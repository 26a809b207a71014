package http

import (
	"log/slog"
	"net/http"

	"github.com/hickoryhq/hickory/pkg/httputil"
	"github.com/hickoryhq/hickory/pkg/middleware"
)

// TwoFactorHandler handles the authenticated two-factor management endpoints.
type TwoFactorHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewTwoFactorHandler creates a new two-factor HTTP handler.
func NewTwoFactorHandler(svc AuthService, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{service: svc, logger: logger}
}

// EnableTwoFactorRequest is the JSON request body for confirming enrollment.
type EnableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,otp"`
}

// DisableTwoFactorRequest is the JSON request body for turning two-factor off.
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// BackupCodesResponse carries plaintext backup codes. They are shown once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Status handles GET /api/v1/auth/2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.TwoFactorStatus(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: status})
}

// Setup handles POST /api/v1/auth/2fa/setup
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.service.SetupTwoFactor(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: setup})
}

// Enable handles POST /api/v1/auth/2fa/enable
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req EnableTwoFactorRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	codes, err := h.service.EnableTwoFactor(r.Context(), middleware.UserIDFromContext(r.Context()), req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: BackupCodesResponse{BackupCodes: codes}})
}

// Disable handles POST /api/v1/auth/2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	var req DisableTwoFactorRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.DisableTwoFactor(r.Context(), middleware.UserIDFromContext(r.Context()), req.Password); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateBackupCodes handles POST /api/v1/auth/2fa/backup-codes
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.RegenerateBackupCodes(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: BackupCodesResponse{BackupCodes: codes}})
}
