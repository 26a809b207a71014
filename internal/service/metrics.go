package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hickory_auth_login_attempts_total",
			Help: "Total number of password login attempts by outcome",
		},
		[]string{"outcome"},
	)

	twoFactorVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hickory_auth_two_factor_verifications_total",
			Help: "Total number of second-factor verifications by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	refreshAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hickory_auth_refresh_attempts_total",
			Help: "Total number of refresh token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	sessionsRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hickory_auth_sessions_revoked_total",
			Help: "Total number of refresh tokens revoked by reason",
		},
		[]string{"reason"},
	)
)
