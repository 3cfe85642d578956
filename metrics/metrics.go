// Package metrics provides Prometheus metrics for gym-session.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenCacheLookups counts token cache reads by outcome.
	TokenCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymsession",
			Name:      "token_cache_lookups_total",
			Help:      "Total number of token cache lookups",
		},
		[]string{"result"},
	)

	// SessionRefreshes counts provider session refreshes triggered by a 401.
	SessionRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymsession",
			Name:      "session_refresh_total",
			Help:      "Total number of session refresh attempts after 401",
		},
		[]string{"status"},
	)

	// AuthRetries counts requests resent after a successful refresh.
	AuthRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymsession",
			Name:      "auth_retries_total",
			Help:      "Total number of requests retried after refresh",
		},
		[]string{"outcome"},
	)

	// SessionInvalidations counts terminal auth failures.
	SessionInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gymsession",
			Name:      "session_invalidations_total",
			Help:      "Total number of forced sign-outs after failed refresh",
		},
	)

	// ProfileFetches counts profile loads by outcome.
	ProfileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymsession",
			Name:      "profile_fetch_total",
			Help:      "Total number of profile fetches",
		},
		[]string{"result"},
	)

	// APIRequestDuration measures backend round trips.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gymsession",
			Name:      "api_request_duration_seconds",
			Help:      "Duration of backend API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// RecordCacheLookup records a token cache lookup ("hit", "miss", "empty", "error", "cleared").
func RecordCacheLookup(result string) {
	TokenCacheLookups.WithLabelValues(result).Inc()
}

// RecordRefresh records a refresh attempt ("success" or "failure").
func RecordRefresh(status string) {
	SessionRefreshes.WithLabelValues(status).Inc()
}

// RecordRetry records the outcome of a post-refresh resend.
func RecordRetry(statusCode int) {
	outcome := "success"
	if statusCode >= 400 {
		outcome = "failure"
	}
	AuthRetries.WithLabelValues(outcome).Inc()
}

// RecordInvalidation records a forced sign-out.
func RecordInvalidation() {
	SessionInvalidations.Inc()
}

// RecordProfileFetch records a profile fetch ("found", "not_found", "error").
func RecordProfileFetch(result string) {
	ProfileFetches.WithLabelValues(result).Inc()
}

// RecordAPIRequest records a backend round trip.
func RecordAPIRequest(method string, statusCode int, duration float64) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	APIRequestDuration.WithLabelValues(method, status).Observe(duration)
}
