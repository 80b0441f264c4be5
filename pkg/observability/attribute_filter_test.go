package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/rewind/pkg/observability"
)

func recordSpan(t *testing.T, logger *slog.Logger, attrs ...attribute.KeyValue) map[string]any {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "rewind.create")
	span.SetAttributes(attrs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	m := make(map[string]any, len(spans[0].Attributes))
	for _, a := range spans[0].Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}

func TestAttributeFilter_AllowsRewindKeys(t *testing.T) {
	t.Parallel()

	attrs := recordSpan(t, nil,
		attribute.String("checkpoint.kind", "full"),
		attribute.Int("checkpoint.files", 3),
		attribute.Int("restore.chain_length", 2),
		attribute.String("error.type", "io"),
		attribute.Bool("error", true),
	)

	assert.Equal(t, "full", attrs["checkpoint.kind"])
	assert.Equal(t, int64(3), attrs["checkpoint.files"])
	assert.Equal(t, int64(2), attrs["restore.chain_length"])
	assert.Equal(t, "io", attrs["error.type"])
	assert.Equal(t, true, attrs["error"])
}

func TestAttributeFilter_DropsProjectData(t *testing.T) {
	t.Parallel()

	attrs := recordSpan(t, nil,
		attribute.String("path", "secret/plan.txt"),
		attribute.String("project.root", "/home/me/work"),
		attribute.String("description", "before refactor"),
		attribute.String("http.method", "GET"),
	)

	assert.Empty(t, attrs)
}

func TestAttributeFilter_WarnsWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	recordSpan(t, logger, attribute.String("file", "a.txt"))

	assert.Contains(t, buf.String(), "span attribute dropped")
	assert.Contains(t, buf.String(), "key=file")
}
