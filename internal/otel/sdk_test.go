package otel

import (
	"context"
	"io"
	"testing"

	"imgdash/internal/logging"

	otelapi "go.opentelemetry.io/otel"
)

func TestParseResourceAttributes(t *testing.T) {
	attrs := ParseResourceAttributes("env=dev, team = core ,invalid,=skip")
	if attrs["env"] != "dev" {
		t.Fatalf("expected env=dev, got %q", attrs["env"])
	}
	if attrs["team"] != "core" {
		t.Fatalf("expected team=core, got %q", attrs["team"])
	}
	if _, ok := attrs["invalid"]; ok {
		t.Fatalf("expected invalid attribute to be skipped")
	}
	if _, ok := attrs[""]; ok {
		t.Fatalf("expected empty key to be skipped")
	}
	if ParseResourceAttributes("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:4318":  "127.0.0.1:4318",
		"https://localhost:4318": "localhost:4318",
		"127.0.0.1:4318/":        "127.0.0.1:4318",
		"":                       "",
	}
	for input, expected := range cases {
		if got := normalizeEndpoint(input); got != expected {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestSetupSDKLogsFinishedSpans(t *testing.T) {
	previousProvider := otelapi.GetTracerProvider()
	previousPropagator := otelapi.GetTextMapPropagator()
	t.Cleanup(func() {
		otelapi.SetTracerProvider(previousProvider)
		otelapi.SetTextMapPropagator(previousPropagator)
	})

	buffer := logging.NewLogBuffer(20)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, io.Discard)
	shutdown, err := SetupSDK(context.Background(), SDKOptions{
		ServiceVersion: "test",
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("setup sdk: %v", err)
	}

	_, span := otelapi.Tracer("imgdash/test").Start(context.Background(), "unit.work")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	found := false
	for _, entry := range buffer.List() {
		if entry.Message == "span ended" && entry.Context["span"] == "unit.work" {
			found = true
			if entry.Context[logging.FieldCategory] != "otel" {
				t.Fatalf("expected otel category, got %q", entry.Context[logging.FieldCategory])
			}
		}
	}
	if !found {
		t.Fatalf("expected span log entry, got %+v", buffer.List())
	}
}
