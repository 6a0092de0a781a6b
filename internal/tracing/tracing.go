// Package tracing installs an OpenTelemetry tracer provider that writes the
// spans of a refresh run as JSON, either to a file or to stderr.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "gongkao"

// ShutdownFunc flushes pending spans and releases the output.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Init configures the global tracer provider with the stdout exporter.
// An empty outputFile writes to stderr. When enabled is false the global
// provider is left untouched (a no-op) and the returned ShutdownFunc does
// nothing.
func Init(enabled bool, version, outputFile string) (ShutdownFunc, error) {
	if !enabled {
		return noop, nil
	}

	var w io.Writer = os.Stderr
	closeOut := func() error { return nil }
	if outputFile != "" {
		f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return noop, fmt.Errorf("open trace file: %w", err)
		}
		w, closeOut = f, f.Close
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		_ = closeOut()
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}

	tp, err := InitWithExporter(version, exporter)
	if err != nil {
		_ = closeOut()
		return noop, err
	}
	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// InitWithExporter registers exporter behind a synchronous span processor
// as the global provider and returns the provider.
func InitWithExporter(version string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
