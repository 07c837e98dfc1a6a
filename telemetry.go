package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otlploghttp "go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otlpmetrichttp "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	grpccreds "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry owns the OTel providers built by initOTel.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	// nil unless logs are exported over OTLP
	loggerProvider *sdklog.LoggerProvider
	// nil unless the prometheus output is enabled
	metricsHandler http.Handler
}

// Shutdown flushes and stops every provider.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// otlpProtocol picks grpc or http from the endpoint scheme, falling back to
// the conventional OTLP/HTTP port. host is the endpoint without scheme.
func otlpProtocol(endpoint string) (protocol, host string) {
	protocol, host = "grpc", endpoint
	if u, err := url.Parse(endpoint); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return "http", u.Host
	}
	if strings.Contains(endpoint, ":4318") {
		protocol = "http"
	}
	return protocol, host
}

func skipVerifyClient() *http.Client {
	return &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
}

func newResource(ctx context.Context, cfg TelemetryConfig) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceNamespace(cfg.ServiceNamespace),
			semconv.ServiceInstanceID(uuid.NewString()),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithTelemetrySDK(),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func initOTel(ctx context.Context, cfg TelemetryConfig) (*telemetry, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	protocol, epHost := otlpProtocol(cfg.Endpoint)
	insecureConn, skipVerify := cfg.Insecure, cfg.SkipTLSVerify

	// gRPC dial options (for gRPC exporters)
	opts := []grpc.DialOption{}
	if protocol == "grpc" {
		if insecureConn {
			opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		} else if skipVerify {
			// Use TLS but skip verification
			creds := grpccreds.NewTLS(&tls.Config{InsecureSkipVerify: true})
			opts = append(opts, grpc.WithTransportCredentials(creds))
		} else {
			creds := grpccreds.NewClientTLSFromCert(nil, "")
			opts = append(opts, grpc.WithTransportCredentials(creds))
		}
	}

	wantOTLP := cfg.wants("otlp")
	wantStdout := cfg.wants("stdout")
	tel := &telemetry{}

	// Trace exporter(s)
	var spanProcessors []sdktrace.SpanProcessor
	if wantOTLP {
		var exp sdktrace.SpanExporter
		if protocol == "grpc" {
			traceOpts := []otlptracegrpc.Option{
				otlptracegrpc.WithEndpoint(epHost),
				otlptracegrpc.WithDialOption(opts...),
			}
			if insecureConn {
				traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			}
			exp, err = otlptracegrpc.New(ctx, traceOpts...)
		} else {
			traceHTTPOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(epHost)}
			if insecureConn {
				traceHTTPOpts = append(traceHTTPOpts, otlptracehttp.WithInsecure())
			}
			if !insecureConn && skipVerify {
				traceHTTPOpts = append(traceHTTPOpts, otlptracehttp.WithHTTPClient(skipVerifyClient()))
			}
			exp, err = otlptracehttp.New(ctx, traceHTTPOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s trace exporter: %w", protocol, err)
		}
		spanProcessors = append(spanProcessors, sdktrace.NewBatchSpanProcessor(exp))
	}
	if wantStdout {
		stExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		spanProcessors = append(spanProcessors, sdktrace.NewBatchSpanProcessor(stExporter))
	}

	tel.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	for _, p := range spanProcessors {
		tel.tracerProvider.RegisterSpanProcessor(p)
	}
	otel.SetTracerProvider(tel.tracerProvider)

	// Metric reader(s)
	var metricReaders []sdkmetric.Reader
	if wantOTLP {
		var exp sdkmetric.Exporter
		if protocol == "grpc" {
			metricOpts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpoint(epHost),
				otlpmetricgrpc.WithDialOption(opts...),
			}
			if insecureConn {
				metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
			}
			exp, err = otlpmetricgrpc.New(ctx, metricOpts...)
		} else {
			metricHTTPOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(epHost)}
			if insecureConn {
				metricHTTPOpts = append(metricHTTPOpts, otlpmetrichttp.WithInsecure())
			}
			if !insecureConn && skipVerify {
				metricHTTPOpts = append(metricHTTPOpts, otlpmetrichttp.WithHTTPClient(skipVerifyClient()))
			}
			exp, err = otlpmetrichttp.New(ctx, metricHTTPOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s metric exporter: %w", protocol, err)
		}
		metricReaders = append(metricReaders, sdkmetric.NewPeriodicReader(exp))
	}
	if wantStdout {
		smExporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		metricReaders = append(metricReaders, sdkmetric.NewPeriodicReader(smExporter))
	}
	if cfg.wants("prometheus") {
		// own registry so /metrics only carries this service and the Go runtime
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		metricReaders = append(metricReaders, promExporter)
		tel.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range metricReaders {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	tel.meterProvider = sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(tel.meterProvider)

	// Logs go over OTLP only; stdout logging is the zap console core.
	if wantOTLP {
		var exp sdklog.Exporter
		if protocol == "grpc" {
			logOpts := []otlploggrpc.Option{
				otlploggrpc.WithEndpoint(epHost),
				otlploggrpc.WithDialOption(opts...),
			}
			if insecureConn {
				logOpts = append(logOpts, otlploggrpc.WithInsecure())
			}
			exp, err = otlploggrpc.New(ctx, logOpts...)
		} else {
			logHTTPOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(epHost)}
			if insecureConn {
				logHTTPOpts = append(logHTTPOpts, otlploghttp.WithInsecure())
			}
			if !insecureConn && skipVerify {
				logHTTPOpts = append(logHTTPOpts, otlploghttp.WithHTTPClient(skipVerifyClient()))
			}
			exp, err = otlploghttp.New(ctx, logHTTPOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s log exporter: %w", protocol, err)
		}
		tel.loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(tel.loggerProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tel, nil
}

// validateTelemetryConfig returns a slice of human-friendly warnings
// describing potentially inconsistent telemetry configuration.
func validateTelemetryConfig(endpoint string, insecure bool, skipVerify bool) []string {
	var warnings []string

	if endpoint == "" {
		return warnings
	}

	u, err := url.Parse(endpoint)
	hasScheme := err == nil && u.Scheme != ""
	protocol, _ := otlpProtocol(endpoint)

	if protocol == "http" {
		if hasScheme && u.Scheme == "http" && u.Port() == "4317" {
			warnings = append(warnings, "endpoint uses http:// on port 4317, which is conventionally OTLP/gRPC; use 'localhost:4317' (no scheme) for gRPC or http(s) on port 4318 for OTLP/HTTP")
		}
		if hasScheme && u.Scheme == "http" && !insecure {
			warnings = append(warnings, "endpoint uses http:// scheme but telemetry.insecure=false; http is plaintext, set insecure=true or use https:// for TLS")
		}
		if hasScheme && u.Scheme == "https" && insecure {
			warnings = append(warnings, "endpoint uses https:// but telemetry.insecure=true; set insecure=false for TLS or use http:// for plaintext")
		}
	}

	// skipVerify is only meaningful when TLS is enabled
	if skipVerify && insecure {
		warnings = append(warnings, "telemetry.skip_tls_verify=true has no effect when telemetry.insecure=true (plaintext)")
	}

	return warnings
}
