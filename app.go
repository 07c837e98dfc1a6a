package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/api"
	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

const instrumentationName = "github.com/platformbuilds/otel-payment-simulator"

// app is the wired simulator shared by every command.
type app struct {
	cfg       *Config
	tel       *telemetry
	logger    *zap.Logger
	closeLog  func()
	registry  *MetricRegistry
	tracer    trace.Tracer
	rng       payment.Rand
	processor *payment.Processor
	batch     *payment.BatchSimulator
}

func newApp(ctx context.Context, cfg *Config, stdout io.Writer) (*app, error) {
	for _, w := range validateTelemetryConfig(cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure, cfg.Telemetry.SkipTLSVerify) {
		log.Printf("Config warning: %s", w)
	}

	tel, err := initOTel(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var lp otellog.LoggerProvider
	if tel.loggerProvider != nil {
		lp = tel.loggerProvider
	}
	logger, closeLog, err := newLogger(cfg.Logging, cfg.Telemetry, lp, stdout)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	registry := NewMetricRegistry(tel.meterProvider.Meter(instrumentationName))
	if err := registry.Register(paymentInstruments(cfg.Telemetry.MetricNames)); err != nil {
		closeLog()
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to register instruments: %w", err)
	}

	var spikes payment.SpikeSchedule
	if cfg.Simulation.Spikes.enabled() {
		s, err := newSpikeScheduler(cfg.Simulation.Spikes, time.Now())
		if err != nil {
			closeLog()
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create spike scheduler: %w", err)
		}
		spikes = s
	}

	rng := payment.NewRand(cfg.Simulation.Seed)
	recorder := payment.NewRecorder(registry, cfg.Telemetry.MetricNames, logger)
	processor := payment.NewProcessor(payment.NewClassifier(cfg.Policy, spikes), recorder, rng, logger)

	return &app{
		cfg:       cfg,
		tel:       tel,
		logger:    logger,
		closeLog:  closeLog,
		registry:  registry,
		tracer:    tel.tracerProvider.Tracer(instrumentationName),
		rng:       rng,
		processor: processor,
		batch:     payment.NewBatchSimulator(processor, rng),
	}, nil
}

func (a *app) server() *api.Server {
	info := api.ServiceInfo{Name: a.cfg.Telemetry.ServiceName, Version: a.cfg.Telemetry.ServiceVersion}
	return api.NewServer(a.processor, a.batch, a.tracer, a.logger, info, a.tel.metricsHandler)
}

// Close flushes telemetry with a fresh deadline so a cancelled run still exports.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
	}
	a.closeLog()
}
