package intercept

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metadata"
)

// AuditConfig configures the audit interceptor.
type AuditConfig struct {
	Priority int
	Logger   common.Logger
	Tracer   trace.Tracer
}

// AuditInterceptor records every invocation of audited components: a
// structured log line with outcome and duration, and a trace span around
// the call.
type AuditInterceptor struct {
	priority int
	logger   common.Logger
	tracer   trace.Tracer
}

// NewAuditInterceptor creates an audit interceptor. A nil tracer defaults
// to the global tracer provider.
func NewAuditInterceptor(config AuditConfig) *AuditInterceptor {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer("crucible/intercept")
	}
	return &AuditInterceptor{
		priority: config.Priority,
		logger:   l,
		tracer:   tracer,
	}
}

func (a *AuditInterceptor) Name() string { return "audit" }

func (a *AuditInterceptor) Marker() string { return metadata.Audited.Name }

func (a *AuditInterceptor) Priority() int { return a.priority }

func (a *AuditInterceptor) Invoke(inv *Invocation, proceed Proceed) (any, error) {
	ctx, span := a.tracer.Start(inv.Context, inv.Component+"."+inv.Method,
		trace.WithAttributes(
			attribute.String("crucible.component", inv.Component),
			attribute.String("crucible.method", inv.Method),
		),
	)
	defer span.End()
	inv.Context = ctx

	start := time.Now()
	result, err := proceed()
	duration := time.Since(start)

	fields := []common.LogField{
		logger.String("component", inv.Component),
		logger.String("method", inv.Method),
		logger.Duration("duration", duration),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("audited call failed", append(fields, logger.Error(err))...)
	} else {
		a.logger.Info("audited call", fields...)
	}

	return result, err
}
