package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/pkg/httputil"
	"github.com/hickoryhq/hickory/pkg/middleware"
)

// AdminHandler handles administrator session management.
type AdminHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(svc AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// RevokeSessionsResponse reports how many refresh tokens were revoked.
type RevokeSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}

// RevokeSessions handles DELETE /api/v1/admin/users/{id}/sessions
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	n, err := h.service.RevokeAllSessions(r.Context(), id.String(), domain.RevokedReasonByAdministrator)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "sessions revoked by administrator",
		slog.String("admin_id", middleware.UserIDFromContext(r.Context())),
		slog.String("user_id", id.String()),
		slog.Int64("revoked", n),
	)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: RevokeSessionsResponse{Revoked: n}})
}
