package logger

import (
	"go.uber.org/zap"
)

// Logger represents the logging interface
type Logger interface {
	// Logging levels
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// Context and enrichment
	With(fields ...Field) Logger
	Named(name string) Logger

	// Utilities
	Sync() error
}

// Field represents a structured log field
type Field interface {
	Key() string
	Value() interface{}
	// ZapField returns the underlying zap.Field for efficient conversion
	ZapField() zap.Field
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" env:"CRUCIBLE_LOG_LEVEL"`
	Format      string `yaml:"format" env:"CRUCIBLE_LOG_FORMAT"`
	Environment string `yaml:"environment" env:"CRUCIBLE_ENVIRONMENT"`
}
