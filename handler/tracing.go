package handler

import (
	"context"

	"github.com/hupe1980/sessionmesh/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hupe1980/sessionmesh/handler"

// TracingHandler opens an OpenTelemetry span ("session.<op>") around the
// rest of the chain for every operation. Session operations carry no
// context, so spans are roots unless the provider links them otherwise.
type TracingHandler struct {
	tracer trace.Tracer
}

var _ core.Handler = (*TracingHandler)(nil)

// NewTracingHandler creates a TracingHandler using tp, or the global
// provider when tp is nil.
func NewTracingHandler(tp trace.TracerProvider) *TracingHandler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingHandler{tracer: tp.Tracer(tracerName)}
}

func (h *TracingHandler) start(op core.Op, attrs ...attribute.KeyValue) trace.Span {
	_, span := h.tracer.Start(context.Background(), "session."+op.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return span
}

func end(span trace.Span, ok bool) {
	span.SetAttributes(attribute.Bool("session.result", ok))
	if !ok {
		span.SetStatus(codes.Error, "session operation failed")
	}
	span.End()
}

// Create traces and delegates.
func (h *TracingHandler) Create(path, name string, next core.CreateNext) bool {
	span := h.start(core.OpCreate, attribute.String("session.path", path), attribute.String("session.name", name))
	ok := next.Create(path, name)
	end(span, ok)
	return ok
}

// Read traces and delegates.
func (h *TracingHandler) Read(id string, next core.ReadNext) string {
	span := h.start(core.OpRead, attribute.String("session.id", id))
	data := next.Read(id)
	span.SetAttributes(attribute.Int("session.bytes", len(data)))
	end(span, true)
	return data
}

// Write traces and delegates.
func (h *TracingHandler) Write(id, data string, next core.WriteNext) bool {
	span := h.start(core.OpWrite, attribute.String("session.id", id), attribute.Int("session.bytes", len(data)))
	ok := next.Write(id, data)
	end(span, ok)
	return ok
}

// Delete traces and delegates.
func (h *TracingHandler) Delete(id string, next core.DeleteNext) bool {
	span := h.start(core.OpDelete, attribute.String("session.id", id))
	ok := next.Delete(id)
	end(span, ok)
	return ok
}

// Clean traces and delegates.
func (h *TracingHandler) Clean(maxLifetime int, next core.CleanNext) bool {
	span := h.start(core.OpClean, attribute.Int("session.max_lifetime", maxLifetime))
	ok := next.Clean(maxLifetime)
	end(span, ok)
	return ok
}
