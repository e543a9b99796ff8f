package common

import (
	"github.com/xraph/crucible/logger"
)

// =============================================================================
// METRICS AND LOGGING
// =============================================================================

// Logger defines the interface for structured logging
type Logger = logger.Logger

// LogField represents a structured log field
type LogField = logger.Field

// Metrics represents the metrics collection interface
type Metrics interface {
	// Counter operations
	Counter(name string, labels ...Label) Counter

	// Gauge operations
	Gauge(name string, labels ...Label) Gauge

	// Histogram operations
	Histogram(name string, labels ...Label) Histogram
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Inc()
	Add(value float64)
}

// Gauge represents a metric that can go up and down
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// Histogram represents a metric that samples observations
type Histogram interface {
	Observe(value float64)
}

// Label represents a metric label
type Label struct {
	Name  string
	Value string
}
