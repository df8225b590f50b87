// Package tracing sets up OpenTelemetry export for VU requests and injects
// W3C trace context into outgoing headers.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/vuload/internal/config"
)

const (
	instrumentationName = "github.com/torosent/vuload"
	defaultServiceName  = "vuload"

	protocolGRPC = "grpc"
	protocolHTTP = "http"
)

// Provider owns the SDK tracer provider for one run. The zero value is a
// disabled provider.
type Provider struct {
	sdk       *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
	exporting bool
}

// settings is a TracingConfig with environment fallbacks applied.
type settings struct {
	service  string
	endpoint string
	protocol string
	insecure bool
	rate     float64
}

func resolve(cfg config.TracingConfig) (settings, error) {
	s := settings{
		service:  firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), defaultServiceName),
		endpoint: firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		protocol: firstNonEmpty(strings.ToLower(strings.TrimSpace(cfg.Protocol)), protocolGRPC),
		insecure: cfg.Insecure,
		rate:     cfg.SampleRate,
	}
	if s.rate < 0 || s.rate > 1 {
		return s, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", s.rate)
	}
	if s.protocol != protocolGRPC && s.protocol != protocolHTTP {
		return s, fmt.Errorf("unsupported OTLP protocol %q (grpc or http)", s.protocol)
	}
	return s, nil
}

// Init builds a provider from cfg. Without an endpoint spans are still sampled
// so their context can be propagated, but nothing is exported.
func Init(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(s.service)))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(s.rate))),
	}
	if s.endpoint != "" {
		exporter, err := s.exporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	sdk := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{
		sdk:       sdk,
		tracer:    sdk.Tracer(instrumentationName),
		propagate: cfg.ShouldPropagate(),
		exporting: s.endpoint != "",
	}, nil
}

func (s settings) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if s.protocol == protocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlptracegrpc.New(ctx, opts...)
}

func samplerFor(rate float64) sdktrace.Sampler {
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Tracer falls back to a no-op tracer so callers never branch on nil.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

func (p *Provider) ShouldPropagate() bool { return p != nil && p.propagate }

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool { return p != nil && p.exporting }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
