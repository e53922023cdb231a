package capture

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/internal/observability"
)

const tracerName = "github.com/signalsfoundry/observatory-remote/internal/capture"

// startSpan opens a span for one orchestration step, tagged with the
// operation id when the context carries one.
func startSpan(ctx context.Context, name string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	if id := logging.OperationIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("operation_id", id))
	}
	attrs = append(attrs, extra...)
	return observability.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
