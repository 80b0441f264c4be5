package observability

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportedPrefixes are the span attribute namespaces rewind exports.
var exportedPrefixes = []string{
	"rewind.",
	"checkpoint.",
	"restore.",
	"retention.",
	"watch.",
	"error.",
}

// redactedKeys hold project contents or locations and never leave the process.
var redactedKeys = []string{"path", "file", "project.root", "description"}

// attributeFilter forwards spans to the embedded processor with every
// attribute outside exportedPrefixes removed.
type attributeFilter struct {
	sdktrace.SpanProcessor

	logger *slog.Logger
}

// NewAttributeFilter wraps delegate so that only rewind span attributes are
// exported. A non-nil logger receives a warning for each dropped key.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{SpanProcessor: delegate, logger: logger}
}

// OnEnd implements [sdktrace.SpanProcessor].
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	kept := slices.DeleteFunc(slices.Clone(s.Attributes()), func(kv attribute.KeyValue) bool {
		return !f.exported(string(kv.Key))
	})

	f.SpanProcessor.OnEnd(redactedSpan{ReadOnlySpan: s, attrs: kept})
}

func (f *attributeFilter) exported(key string) bool {
	if key == "error" {
		return true
	}

	ok := !slices.Contains(redactedKeys, key) && slices.ContainsFunc(exportedPrefixes, func(prefix string) bool {
		return strings.HasPrefix(key, prefix)
	})

	if !ok && f.logger != nil {
		f.logger.WarnContext(context.Background(), "span attribute dropped", slog.String("key", key))
	}

	return ok
}

type redactedSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the exported attributes only.
func (s redactedSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
