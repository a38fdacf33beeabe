// internal/telemetry/telemetry.go
//
// OpenTelemetry tracing for player commands.
// Responsibilities:
//   - Install an OTLP/HTTP trace exporter when OTEL_EXPORTER_OTLP_ENDPOINT is set;
//     otherwise keep the global no-op provider.
//   - Name command spans and tag them with the profile, mode, tile, level and
//     resulting phase.
//   - Record failed commands as span errors and refused selections as events.

package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "memorypulse"
	serviceVersion = "0.1.0"
)

// Span attribute keys.
const (
	AttrProfile = attribute.Key("memorypulse.profile")
	AttrMode    = attribute.Key("memorypulse.mode")
	AttrTile    = attribute.Key("memorypulse.tile")
	AttrLevel   = attribute.Key("memorypulse.level")
	AttrPhase   = attribute.Key("memorypulse.phase")
	AttrReason  = attribute.Key("memorypulse.reason")
)

// Setup installs the exporter and returns its shutdown func.
func Setup(ctx context.Context) (shutdown func(context.Context) error, err error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	// OTEL_SERVICE_NAME / OTEL_RESOURCE_ATTRIBUTES override the defaults.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns a named tracer for the given component.
func Tracer(component string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(serviceName + "/" + component)
}

// SpanName is the span name of op in component, e.g. "session.select".
func SpanName(component, op string) string { return component + "." + op }

// StartCommand opens a span for a player command on profile's game.
func StartCommand(ctx context.Context, tr trace.Tracer, component, op, profile string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrProfile.String(profile))
	return tr.Start(ctx, SpanName(component, op),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Fail marks the command as failed.
func Fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Refused records a refused command. Refusals are normal play, so the span
// status stays unset.
func Refused(span trace.Span, reason string) {
	span.AddEvent("refused", trace.WithAttributes(AttrReason.String(reason)))
}

// Result tags the span with the phase and level the command left the game in.
func Result(span trace.Span, phase string, level int) {
	span.SetAttributes(AttrPhase.String(phase), AttrLevel.Int(level))
}
