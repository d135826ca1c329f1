package otel

import (
	"context"
	"strconv"

	"imgdash/internal/logging"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogProcessor writes each finished span to the application log so
// traces are visible in /api/logs without a collector.
type SpanLogProcessor struct {
	logger *logging.Logger
}

func NewSpanLogProcessor(logger *logging.Logger) *SpanLogProcessor {
	return &SpanLogProcessor{logger: logger.Category("otel")}
}

func (processor *SpanLogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (processor *SpanLogProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if processor == nil || processor.logger == nil || !processor.logger.Enabled(logging.LevelDebug) {
		return
	}
	fields := map[string]string{
		"span":        span.Name(),
		"trace_id":    span.SpanContext().TraceID().String(),
		"span_id":     span.SpanContext().SpanID().String(),
		"duration_ms": strconv.FormatInt(span.EndTime().Sub(span.StartTime()).Milliseconds(), 10),
	}
	if span.Parent().IsValid() {
		fields["parent_span_id"] = span.Parent().SpanID().String()
	}
	if status := span.Status(); status.Code == codes.Error {
		fields["status"] = "error"
		if status.Description != "" {
			fields["status_message"] = status.Description
		}
	}
	processor.logger.Debug("span ended", fields)
}

func (processor *SpanLogProcessor) Shutdown(context.Context) error {
	return nil
}

func (processor *SpanLogProcessor) ForceFlush(context.Context) error {
	return nil
}
