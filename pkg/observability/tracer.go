package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerOption configures a Tracer at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured remote exporter, used by the debug/inspection HTTP surface.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = d }
}

// WithCapturePayloads enables recording full LLM/tool request and response
// bodies as span attributes. Off by default: payloads can be large and may
// contain sensitive content.
func WithCapturePayloads(capture bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = capture }
}

// Tracer wraps an OpenTelemetry trace.Tracer with the span shapes the
// coordinator, agent, LLM client, and tool host record: agent runs, LLM
// calls, tool executions, and memory/RAG searches.
type Tracer struct {
	tracer          trace.Tracer
	provider        *sdktrace.TracerProvider
	debugExporter   *DebugExporter
	capturePayloads bool
}

// NewTracer builds a Tracer from a TracingConfig, exporting spans to the
// configured backend (otlp or stdout) and, if requested, to an in-memory
// DebugExporter for local inspection.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	options := &tracerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	if options.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(options.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Tracer{
		tracer:          tp.Tracer(cfg.ServiceName),
		provider:        tp,
		debugExporter:   options.debugExporter,
		capturePayloads: options.capturePayloads,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New()
	case "otlp", "":
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.IsInsecure() {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	case "jaeger", "zipkin":
		// Jaeger/Zipkin collectors accept OTLP over gRPC in recent releases;
		// route through the same exporter rather than pulling in two more
		// exporter packages for a single endpoint difference.
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// Start begins a generic span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartAgentRun begins a span covering one Agent's execution of a Task.
func (t *Tracer) StartAgentRun(ctx context.Context, taskID, agentID, role, llmModel, topology string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String(AttrAgentName, agentID),
		attribute.String("agent.role", role),
		attribute.String(AttrAgentLLM, llmModel),
		attribute.String("task.topology", topology),
	))
}

// StartLLMCall begins a span covering one call to the LLM Client.
func (t *Tracer) StartLLMCall(ctx context.Context, model string, maxTokens int, temperature, topP float64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanLLMCall, trace.WithAttributes(
		attribute.String(AttrLLMModel, model),
		attribute.Int("llm.max_tokens", maxTokens),
		attribute.Float64("llm.temperature", temperature),
		attribute.Float64("llm.top_p", topP),
	))
}

// StartToolExecution begins a span covering one tool invocation.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName, toolClass, callID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.String("tool.class", toolClass),
		attribute.String("tool.call_id", callID),
	))
}

// StartMemorySearch begins a span covering one RAG store similarity search.
func (t *Tracer) StartMemorySearch(ctx context.Context, collection string, topK int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanMemorySearch, trace.WithAttributes(
		attribute.String("rag.collection", collection),
		attribute.Int("rag.top_k", topK),
	))
}

// AddLLMUsage records token usage on an LLM call span.
func (t *Tracer) AddLLMUsage(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
	)
}

// AddLLMFinishReason records why an LLM call stopped generating.
func (t *Tracer) AddLLMFinishReason(span trace.Span, reason string) {
	span.SetAttributes(attribute.String("llm.finish_reason", reason))
}

// AddPayload records a request/response payload on a span when payload
// capture is enabled; it is a no-op otherwise to avoid bloating spans.
func (t *Tracer) AddPayload(span trace.Span, direction, payload string) {
	if !t.capturePayloads {
		return
	}
	span.SetAttributes(attribute.String("llm.payload."+direction, payload))
}

// AddToolPayload records a tool call's input/output payload, subject to the
// same capture-payloads gate as AddPayload.
func (t *Tracer) AddToolPayload(span trace.Span, input, output string) {
	if !t.capturePayloads {
		return
	}
	span.SetAttributes(
		attribute.String("tool.input", input),
		attribute.String("tool.output", output),
	)
}

// RecordError marks the span as errored and attaches the error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, err.Error()))
}

// DebugExporter returns the in-memory span exporter, or nil if none was
// configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func noopSpan() trace.Span {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
