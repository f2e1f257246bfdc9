// Package tracing outbox 操作的 span 辅助；未初始化 TracerProvider 时为 no-op
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "memory-outbox"

// StartSendSpan 开始一次 Send
func StartSendSpan(ctx context.Context, memoryType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "outbox.send",
		trace.WithAttributes(attribute.String("memory.type", memoryType)),
	)
}

// StartFlushSpan 开始一次 Flush
func StartFlushSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "outbox.flush")
}

// EndSpan 记录错误（若有）并结束 span
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
