package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ResourceFor exposes buildResource.
func ResourceFor(cfg Config) (*resource.Resource, error) {
	return buildResource(context.Background(), cfg)
}

// Sampled reports whether a root span started under the sampler chosen for
// cfg reaches the exporter.
func Sampled(cfg Config) bool {
	exporter := tracetest.NewInMemoryExporter()
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSyncer(exporter)}

	if sampler := samplerFor(cfg); sampler != nil {
		opts = append(opts, sdktrace.WithSampler(sampler))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	_, span := tp.Tracer("export-test").Start(context.Background(), "export")
	span.End()

	exported := len(exporter.GetSpans()) > 0

	return tp.Shutdown(context.Background()) == nil && exported
}
