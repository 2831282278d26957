// Package tracing wires up OpenTelemetry tracing for the conveyorctl CLI.
// The shape (Config, Init returning a shutdown func) is
// grounded on the otel.Config/otel.Initialize pairing cmd/enterprise/main.go
// calls, but that otel package itself never shipped in the retrieval pack,
// so this is a fresh small implementation rather than an import of it. Only
// the stdout exporter is wired — see DESIGN.md for why jaeger/zipkin aren't.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider installed by Init.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter selects the trace exporter. Only "stdout" is implemented;
	// any other value (including "") disables export but still installs a
	// real tracer provider, so spans are created and sampled consistently.
	Exporter string
	// SampleRate is the fraction of traces recorded, in [0,1].
	SampleRate float64
}

var initialized bool

// IsInitialized reports whether Init has successfully installed a tracer
// provider in this process.
func IsInitialized() bool { return initialized }

// Init installs a tracer provider as the global otel tracer provider and
// returns a shutdown func the caller must invoke on exit.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: merge resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRate)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	if cfg.Exporter == "stdout" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracing: new stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	initialized = true

	return func(ctx context.Context) error {
		initialized = false
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
