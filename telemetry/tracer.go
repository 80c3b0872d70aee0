package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitTracer initializes OpenTelemetry tracing with spans written as JSON to
// stdout.
func InitTracer(serviceName string, logger *log.Logger) (func(context.Context) error, error) {
	return InitTracerWithWriter(serviceName, os.Stdout, logger)
}

// InitTracerWithWriter is InitTracer with spans written to w.
func InitTracerWithWriter(serviceName string, w io.Writer, logger *log.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", "service", serviceName)

	return tp.Shutdown, nil
}
