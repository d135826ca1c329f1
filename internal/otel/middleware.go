package otel

import (
	"context"
	"net/http"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName          = "imgdash/api"
	SpanNameHTTPRequest = "http.request"
)

// APIErrorInfo describes an error response rendered by the API layer.
type APIErrorInfo struct {
	Status  int
	Code    string
	Message string
}

type apiErrorKey struct{}

// RecordAPIError attaches info to the request span started by HTTPMiddleware
// and adds an "api.error" event to whatever span is active in ctx.
func RecordAPIError(ctx context.Context, info APIErrorInfo) {
	if ctx == nil {
		return
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("api.error", trace.WithAttributes(
			attribute.Int("http.status_code", info.Status),
			attribute.String("error.code", info.Code),
		))
	}
	if tracker, ok := ctx.Value(apiErrorKey{}).(*APIErrorInfo); ok && tracker != nil {
		*tracker = info
	}
}

// HTTPMiddleware starts a server span per request, continuing any trace
// propagated in the request headers. The tracer is looked up on every
// request so a provider installed later is honoured.
func HTTPMiddleware(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracker := &APIErrorInfo{}
		ctx = context.WithValue(ctx, apiErrorKey{}, tracker)
		ctx, span := otelapi.Tracer(TracerName).Start(ctx, SpanNameHTTPRequest,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(requestAttributes(r)...),
		)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.response_size", recorder.bytes),
		)
		if status < http.StatusBadRequest && tracker.Status == 0 {
			return
		}
		errorType := errorTypeForStatus(status)
		if tracker.Code != "" {
			errorType = tracker.Code
		}
		span.SetAttributes(attribute.String("error.type", errorType))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, tracker.Message)
		}
	})
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.scheme", requestScheme(r)),
		attribute.String("http.target", r.URL.RequestURI()),
	}
	if r.Pattern != "" {
		attrs = append(attrs, attribute.String("http.route", r.Pattern))
	}
	return attrs
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (recorder *statusRecorder) WriteHeader(statusCode int) {
	if recorder.status == 0 {
		recorder.status = statusCode
	}
	recorder.ResponseWriter.WriteHeader(statusCode)
}

func (recorder *statusRecorder) Write(data []byte) (int, error) {
	if recorder.status == 0 {
		recorder.status = http.StatusOK
	}
	n, err := recorder.ResponseWriter.Write(data)
	recorder.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

func requestScheme(r *http.Request) string {
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func errorTypeForStatus(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "internal_error"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return ""
	}
}
