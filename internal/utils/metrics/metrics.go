package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreatedTotal counts successful session creations.
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_service_sessions_created_total",
		Help: "The total number of sessions created",
	})

	// SessionValidationsTotal counts validation outcomes by resulting state.
	SessionValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_session_validations_total",
		Help: "The total number of session validations by state",
	}, []string{"state"})

	// TokenRotationsTotal counts refresh token rotations by status.
	TokenRotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_token_rotations_total",
		Help: "The total number of refresh token rotations by status",
	}, []string{"status"})

	// TokensRevokedTotal counts access tokens added to the revocation list.
	TokensRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_service_tokens_revoked_total",
		Help: "The total number of access tokens revoked",
	})

	// SessionEvictionsTotal counts sessions evicted by the per-user limit.
	SessionEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_service_session_evictions_total",
		Help: "The total number of sessions evicted by the concurrency limit",
	})

	// ExpiredSessionsCleanedTotal counts sessions removed by cleanup sweeps.
	ExpiredSessionsCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_service_expired_sessions_cleaned_total",
		Help: "The total number of expired sessions removed by cleanup",
	})

	// RequestDuration observes HTTP request handling time.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_service_request_duration_seconds",
		Help:    "The request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
