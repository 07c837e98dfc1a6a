package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/api"
	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

// trafficGenerator feeds random payments to the processor at a fixed rate
// so dashboards have data without an external client.
type trafficGenerator struct {
	processor   api.PaymentProcessor
	rng         payment.Rand
	tracer      trace.Tracer
	logger      *zap.Logger
	rate        float64
	concurrency int

	processed atomic.Int64
	skipped   atomic.Int64
}

func newTrafficGenerator(processor api.PaymentProcessor, rng payment.Rand, tracer trace.Tracer, logger *zap.Logger, cfg SimulationConfig) *trafficGenerator {
	return &trafficGenerator{
		processor:   processor,
		rng:         rng,
		tracer:      tracer,
		logger:      logger,
		rate:        cfg.Rate,
		concurrency: cfg.Concurrency,
	}
}

// Run generates traffic until ctx is cancelled and waits for in-flight
// payments before returning. Ticks that find every worker busy are skipped.
func (g *trafficGenerator) Run(ctx context.Context) error {
	if g.rate <= 0 {
		return fmt.Errorf("traffic rate must be positive, got %v", g.rate)
	}
	concurrency := g.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	interval := time.Duration(float64(time.Second) / g.rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	g.logger.Info("Starting background traffic",
		zap.Float64("rate_per_second", g.rate),
		zap.Int("concurrency", concurrency))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			g.logger.Info("Background traffic stopped",
				zap.Int64("processed", g.processed.Load()),
				zap.Int64("skipped", g.skipped.Load()))
			return nil
		case <-ticker.C:
		}

		select {
		case sem <- struct{}{}:
		default:
			g.skipped.Add(1)
			g.logger.Debug("All traffic workers busy; skipping tick")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			g.generate(ctx)
		}()
	}
}

func (g *trafficGenerator) generate(ctx context.Context) {
	req := payment.RandomRequest(g.rng)

	ctx, span := g.tracer.Start(ctx, "GeneratedPayment",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Float64("payment.amount", req.Amount.InexactFloat64()),
			attribute.String("payment.currency", req.Currency),
			attribute.String("payment.method", req.PaymentMethod),
			attribute.String("payment.region", req.Region),
		))
	defer span.End()

	sc := span.SpanContext()
	tc := payment.TraceContext{}
	if sc.IsValid() {
		tc = payment.TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
	}

	resp, err := g.processor.Process(ctx, req, tc)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("Generated payment faulted", zap.Error(err))
		return
	}

	g.processed.Add(1)
	span.SetAttributes(
		attribute.String("payment.transaction_id", resp.TransactionID),
		attribute.String("payment.status", string(resp.Status)),
	)
	if resp.Status == payment.StatusFailed {
		span.SetStatus(codes.Error, resp.ErrorMessage)
		span.SetAttributes(attribute.String("payment.error_code", string(resp.ErrorCode)))
	}
}
