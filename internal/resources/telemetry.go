package resources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"orchestrator-gateway/internal/logger"
)

// Telemetry é o provider de tracing OpenTelemetry, exportando spans para um
// writer (stdout por padrão). É declarado primeiro para ser o último a parar
// e não perder spans do shutdown dos demais recursos.
type Telemetry struct {
	service string
	version string
	out     io.Writer
	log     *slog.Logger

	tp *sdktrace.TracerProvider
}

func NewTelemetry(service, version string, out io.Writer, log *slog.Logger) *Telemetry {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Telemetry{service: service, version: version, out: out, log: log}
}

func (t *Telemetry) Name() string { return "telemetry" }

func (t *Telemetry) Start(ctx context.Context) error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(t.out))
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(t.service),
			semconv.ServiceVersion(t.version),
		),
	)
	if err != nil {
		return fmt.Errorf("build trace resource: %w", err)
	}

	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.log.InfoContext(ctx, "OpenTelemetry initialized", slog.String("service", t.service))
	return nil
}

// Stop descarrega os spans pendentes e encerra o provider.
func (t *Telemetry) Stop(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	err := t.tp.Shutdown(ctx)
	t.tp = nil
	return err
}

// TracerProvider é nil antes de Start.
func (t *Telemetry) TracerProvider() *sdktrace.TracerProvider { return t.tp }
