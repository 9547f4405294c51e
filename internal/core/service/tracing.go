package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/supply-share/internal/core/domain"
)

var tracer = otel.Tracer("github.com/rl1809/supply-share/internal/core/service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finishSpan marks only faults and contention as span errors; denials and
// rejections are ordinary outcomes.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		kind := domain.KindOf(err)
		span.SetAttributes(
			attribute.String("outcome", kind.String()),
			attribute.String("reason", domain.Reason(err)),
		)
		if kind == domain.KindInternal || kind == domain.KindBusy {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
