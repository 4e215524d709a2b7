package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/ihubanov/sift"
)

// provider wraps a sift.Provider with traces, metrics, and log records.
type provider struct {
	inner sift.Provider
	inst  *Instruments
}

var _ sift.Provider = (*provider)(nil)

// WrapProvider returns a Provider that records a span, request count,
// duration, and a log record for every StreamChat call.
func WrapProvider(p sift.Provider, inst *Instruments) sift.Provider {
	return &provider{inner: p, inst: inst}
}

func (p *provider) Name() string { return p.inner.Name() }

func (p *provider) StreamChat(ctx context.Context, req sift.ChatRequest, ch chan<- sift.Delta) error {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", p.inner.Name()),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	}

	ctx, span := p.inst.Tracer.Start(ctx, "llm.stream_chat", trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := p.inner.StreamChat(ctx, req, ch)
	elapsed := float64(time.Since(start).Milliseconds())

	status := "ok"
	if err != nil {
		status = sift.Classify(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	statusAttr := attribute.String("status", status)

	p.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(append(attrs, statusAttr)...))
	p.inst.LLMDuration.Record(ctx, elapsed, metric.WithAttributes(statusAttr))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", p.inner.Name()),
		otellog.Int("llm.messages", len(req.Messages)),
		otellog.Int("llm.tools", len(req.Tools)),
		otellog.Float64("llm.duration_ms", elapsed),
		otellog.String("status", status),
	)
	p.inst.Logger.Emit(ctx, rec)

	return err
}
