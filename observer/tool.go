package observer

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/ihubanov/sift"
)

// handler wraps a sift.Handler with traces, metrics, and log records.
type handler struct {
	inner sift.Handler
	inst  *Instruments
}

var _ sift.Handler = (*handler)(nil)

// WrapHandler returns a Handler that records a span, execution count,
// duration, and a log record for every Execute call.
func WrapHandler(h sift.Handler, inst *Instruments) sift.Handler {
	return &handler{inner: h, inst: inst}
}

func (h *handler) Definitions() []sift.ToolDefinition {
	return h.inner.Definitions()
}

func (h *handler) Execute(ctx context.Context, name string, args json.RawMessage) (sift.ToolResult, error) {
	nameAttr := attribute.String("tool.name", name)

	ctx, span := h.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(nameAttr))
	defer span.End()

	start := time.Now()
	result, err := h.inner.Execute(ctx, name, args)
	elapsed := float64(time.Since(start).Milliseconds())

	status := "ok"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Error != "":
		status = "tool_error"
		span.SetAttributes(attribute.String("tool.error", result.Error))
	}
	statusAttr := attribute.String("status", status)

	h.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(nameAttr, statusAttr))
	h.inst.ToolDuration.Record(ctx, elapsed, metric.WithAttributes(nameAttr, statusAttr))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", name),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(result.Content)),
		otellog.Float64("tool.duration_ms", elapsed),
	)
	h.inst.Logger.Emit(ctx, rec)

	return result, err
}
