package tracer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(ExporterNone, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupStdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(ExporterStdout, &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "llmstream.turn")
	span.SetAttributes(IntAttr("turn", 1), StringAttr("provider", "lorem"))
	SetOK(span)
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("llmstream.turn")) {
		t.Errorf("expected span name in exporter output, got %q", buf.String())
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetupUnsupportedExporter(t *testing.T) {
	if _, err := Setup("jaeger", nil); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestRecordError(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	_, span := StartSpan(context.Background(), "tool")
	RecordError(span, errors.New("boom"))
	span.End()
}
