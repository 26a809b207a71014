package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hickoryhq/hickory/internal/auth"
	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/pkg/health"
	"github.com/hickoryhq/hickory/pkg/middleware"
)

// serviceName labels metrics and spans produced by the router.
const serviceName = "auth"

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Service   AuthService
	Issuer    *auth.TokenIssuer
	Health    *health.Handler
	Logger    *slog.Logger
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all auth service routes registered.
// ctx bounds the rate limiter's background eviction.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := cfg.Issuer.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(cfg.Service, logger)
	twoFactorHandler := NewTwoFactorHandler(cfg.Service, logger)
	adminHandler := NewAdminHandler(cfg.Service, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Public endpoints share one per-client bucket.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit, logger))

			r.Post("/login", authHandler.Login)
			r.Post("/2fa/verify", authHandler.VerifyTwoFactor)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/2fa/status", twoFactorHandler.Status)
			r.Post("/2fa/setup", twoFactorHandler.Setup)
			r.Post("/2fa/enable", twoFactorHandler.Enable)
			r.Post("/2fa/disable", twoFactorHandler.Disable)
			r.Post("/2fa/backup-codes", twoFactorHandler.RegenerateBackupCodes)
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))
		r.Use(middleware.RequestLogger(logger))

		r.Delete("/users/{id}/sessions", adminHandler.RevokeSessions)
	})

	return r
}
