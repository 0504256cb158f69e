// Package telemetry настраивает трассировку OpenTelemetry для HTTP слоя.
// Выключенная телеметрия ничего не экспортирует и не тратит ресурсов.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"taskService/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	TracerName = "task-service"

	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterNone     = "none"

	defaultOTLPEndpoint = "localhost:4318"
)

type Provider struct {
	TracerProvider trace.TracerProvider
	shutdown       func(context.Context) error
}

// Init поднимает провайдер трассировки. Его нужно закрыть через Shutdown.
func Init(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			TracerProvider: nooptrace.NewTracerProvider(),
			shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("создание экспортёра: %w", err)
	}

	return newProvider(ctx, cfg.ServiceName, sdktrace.WithBatcher(exporter))
}

func newProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	if serviceName == "" {
		serviceName = TracerName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("создание ресурса: %w", err)
	}

	opts = append(opts, sdktrace.WithResource(res))
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{
		TracerProvider: tp,
		shutdown:       tp.Shutdown,
	}, nil
}

// Shutdown сбрасывает накопленные спаны и закрывает экспортёр
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Handler оборачивает роутер: один серверный спан на запрос
func (p *Provider) Handler(next http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(next, operation,
		otelhttp.WithTracerProvider(p.TracerProvider),
	)
}

func createExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLPHTTP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case ExporterStdout, "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterNone:
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("неизвестный экспортёр %q (stdout, otlp-http, none)", cfg.Exporter)
	}
}

type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (noopExporter) Shutdown(context.Context) error { return nil }
