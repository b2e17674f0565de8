package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by Config.Exporter
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
	ExporterJaeger = "jaeger"
)

const (
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
	defaultJaegerEndpoint = "http://localhost:14268/api/traces"
)

// Config configures tracing
type Config struct {
	ServiceName    string  `yaml:"service_name" json:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version"`
	Environment    string  `yaml:"environment" json:"environment"`
	Exporter       string  `yaml:"exporter" json:"exporter"` // none, stdout, zipkin, jaeger
	Endpoint       string  `yaml:"endpoint" json:"endpoint"`
	SampleRate     float64 `yaml:"sample_rate" json:"sample_rate"`

	// Writer receives stdout exporter output; os.Stdout when nil
	Writer io.Writer `yaml:"-" json:"-"`
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// NewTracerProvider builds a provider for cfg without installing it globally.
// Extra options (span processors in tests) are appended.
func NewTracerProvider(cfg Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fluxpool"
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sampler),
	}

	exp, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}

	return sdktrace.NewTracerProvider(append(tpOpts, opts...)...), nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterZipkin:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultZipkinEndpoint
		}
		return zipkin.New(endpoint)
	case ExporterJaeger:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultJaegerEndpoint
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Initialize installs a tracer provider for cfg as the global one, along with W3C
// trace-context propagation. Calling it again replaces the previous provider
// after shutting it down.
func Initialize(ctx context.Context, cfg Config) error {
	tp, err := NewTracerProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}

	mu.Lock()
	old := provider
	provider = tp
	mu.Unlock()

	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if old != nil {
		return old.Shutdown(ctx)
	}
	return nil
}

// IsInitialized reports whether Initialize has installed a provider
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Shutdown flushes pending spans and stops the global provider
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
