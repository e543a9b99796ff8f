package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger implements the Logger interface using zap
type logger struct {
	zap *zap.Logger
}

// noopLogger implements Logger interface but does nothing
type noopLogger struct{}

// NewLogger creates a new logger with the given configuration
func NewLogger(config LoggingConfig) Logger {
	// Determine log level
	logLevel := zapcore.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		logLevel = zapcore.DebugLevel
	case "info":
		logLevel = zapcore.InfoLevel
	case "warn", "warning":
		logLevel = zapcore.WarnLevel
	case "error":
		logLevel = zapcore.ErrorLevel
	case "fatal":
		logLevel = zapcore.FatalLevel
	}

	// Configure logger based on environment
	var zapLogger *zap.Logger
	if config.Environment == "production" || config.Format == "json" {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(logLevel)
		zapLogger, _ = zapConfig.Build(zap.AddCallerSkip(1))
	} else {
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(logLevel)
		zapLogger, _ = zapConfig.Build(zap.AddCallerSkip(1))
	}

	return &logger{zap: zapLogger}
}

// NewDevelopmentLogger creates a development logger
func NewDevelopmentLogger() Logger {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zapLogger, _ := zapConfig.Build(zap.AddCallerSkip(1))
	return &logger{zap: zapLogger}
}

// NewProductionLogger creates a production logger
func NewProductionLogger() Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zapLogger, _ := config.Build(zap.AddCallerSkip(1))
	return &logger{zap: zapLogger}
}

// NewNoopLogger creates a logger that does nothing
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *logger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, toZapFields(fields)...)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, toZapFields(fields)...)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, toZapFields(fields)...)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, toZapFields(fields)...)
}

func (l *logger) Fatal(msg string, fields ...Field) {
	l.zap.Fatal(msg, toZapFields(fields)...)
}

func (l *logger) With(fields ...Field) Logger {
	return &logger{zap: l.zap.With(toZapFields(fields)...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{zap: l.zap.Named(name)}
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}

// toZapFields converts Field slice to zap.Field slice
func toZapFields(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = field.ZapField()
	}
	return zapFields
}

func (n *noopLogger) Debug(msg string, fields ...Field) {}
func (n *noopLogger) Info(msg string, fields ...Field)  {}
func (n *noopLogger) Warn(msg string, fields ...Field)  {}
func (n *noopLogger) Error(msg string, fields ...Field) {}
func (n *noopLogger) Fatal(msg string, fields ...Field) {}
func (n *noopLogger) With(fields ...Field) Logger       { return n }
func (n *noopLogger) Named(name string) Logger          { return n }
func (n *noopLogger) Sync() error                       { return nil }
