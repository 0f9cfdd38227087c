package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authentication Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "type"}, // success/failure, login/refresh/validate
	)

	TokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_total",
			Help: "Total number of tokens issued and rejected",
		},
		[]string{"type", "operation"}, // access/refresh, generated/rejected/revoked
	)

	// Session Metrics
	SessionOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_operations_total",
			Help: "Total number of session store operations",
		},
		[]string{"operation"}, // create, rotate, delete, evict
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of key-value store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "backend"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by component and reason",
		},
		[]string{"component", "reason"},
	)
)

// TrackStoreOperation times a session store or blacklist round trip
func TrackStoreOperation(operation, backend string) *prometheus.Timer {
	return prometheus.NewTimer(StoreOperationDuration.WithLabelValues(operation, backend))
}

// TrackAuthAttempt records authentication attempts
func TrackAuthAttempt(status, authType string) {
	AuthAttempts.WithLabelValues(status, authType).Inc()
}

// TrackSessionOperation increments the session operation counter
func TrackSessionOperation(operation string) {
	SessionOperations.WithLabelValues(operation).Inc()
}

// TrackError increments the error counter
func TrackError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
