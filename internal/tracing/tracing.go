// Package tracing sets up the OpenTelemetry tracer used by validation runs.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Exporter names.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlphttp"
)

const defaultServiceName = "pipecheck"

// Config configures tracing.
type Config struct {
	// Enabled false yields a no-op tracer.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is one of none, stdout, otlp (gRPC) or otlphttp.
	Exporter string `mapstructure:"exporter"`

	// Endpoint is host:port of the collector. Defaults to localhost:4317
	// for otlp and localhost:4318 for otlphttp.
	Endpoint string `mapstructure:"endpoint"`

	// SampleRate is the fraction of runs traced; 0 means all.
	SampleRate float64 `mapstructure:"sample_rate"`

	ServiceName string `mapstructure:"service_name"`

	// Writer receives stdout exporter output. Defaults to os.Stderr so
	// traces never mix with report output.
	Writer io.Writer `mapstructure:"-"`
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    ExporterNone,
		SampleRate:  1.0,
		ServiceName: defaultServiceName,
	}
}

// Provider owns the tracer provider for the life of the process.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
	log      *zap.Logger
}

// NewProvider builds the provider described by cfg. A disabled config
// returns a no-op provider.
func NewProvider(ctx context.Context, cfg Config, log *zap.Logger) (*Provider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Provider{
			tracer: noop.NewTracerProvider().Tracer("noop"),
			log:    log,
		}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info("tracing enabled",
		zap.String("exporter", cfg.Exporter),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", sampleRate))

	return &Provider{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
		enabled:  true,
		log:      log,
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNone, "":
		// spans are still created for in-process correlation
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLPHTTP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("create otlphttp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}
}

// Tracer returns the tracer. It is a no-op tracer when tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	if err := p.provider.Shutdown(ctx); err != nil {
		p.log.Error("tracing shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
