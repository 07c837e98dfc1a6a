package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

// loadStats counts load generator outcomes.
type loadStats struct {
	Sent      int64 `json:"sent"`
	Succeeded int64 `json:"succeeded"`
	Declined  int64 `json:"declined"`
	Rejected  int64 `json:"rejected"`
	Errors    int64 `json:"errors"`
}

type loadGenOptions struct {
	BaseURL     string
	Count       int // 0 runs until cancelled
	Concurrency int
	PauseMin    time.Duration
	PauseMax    time.Duration
	ErrorPause  time.Duration
	Timeout     time.Duration
}

// loadGenerator posts random payments to a running server.
type loadGenerator struct {
	client *http.Client
	url    string
	rng    payment.Rand
	logger *zap.Logger
	opts   loadGenOptions

	mu    sync.Mutex
	stats loadStats
}

func newLoadGenerator(opts loadGenOptions, rng payment.Rand, logger *zap.Logger) *loadGenerator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &loadGenerator{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   opts.Timeout,
		},
		url:    strings.TrimRight(opts.BaseURL, "/") + "/api/payments",
		rng:    rng,
		logger: logger,
		opts:   opts,
	}
}

// Run sends payments until Count is reached or ctx is cancelled.
func (l *loadGenerator) Run(ctx context.Context) loadStats {
	var wg sync.WaitGroup
	var next func() bool
	if l.opts.Count > 0 {
		jobs := make(chan struct{}, l.opts.Count)
		for i := 0; i < l.opts.Count; i++ {
			jobs <- struct{}{}
		}
		close(jobs)
		next = func() bool {
			_, ok := <-jobs
			return ok && ctx.Err() == nil
		}
	} else {
		next = func() bool { return ctx.Err() == nil }
	}

	for w := 0; w < l.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for next() {
				pause := l.pause()
				if err := l.send(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					l.logger.Warn("Request error", zap.Error(err))
					pause = l.opts.ErrorPause
				}
				if !sleepCtx(ctx, pause) {
					return
				}
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *loadGenerator) pause() time.Duration {
	if l.opts.PauseMax <= l.opts.PauseMin {
		return l.opts.PauseMin
	}
	span := l.opts.PauseMax - l.opts.PauseMin
	return l.opts.PauseMin + time.Duration(l.rng.Float64()*float64(span))
}

func (l *loadGenerator) send(ctx context.Context) error {
	body, err := json.Marshal(payment.RandomRequest(l.rng))
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		l.count(func(s *loadStats) { s.Errors++ })
		return fmt.Errorf("post payment: %w", err)
	}
	defer resp.Body.Close()

	var out payment.Response
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode == http.StatusOK && decodeErr == nil:
		l.count(func(s *loadStats) { s.Succeeded++ })
		l.logger.Debug("Payment accepted",
			zap.String("transaction_id", out.TransactionID),
			zap.String("amount", out.Amount.String()),
			zap.String("currency", out.Currency))
	case resp.StatusCode == http.StatusInternalServerError && decodeErr == nil && out.Status == payment.StatusFailed:
		l.count(func(s *loadStats) { s.Declined++ })
		l.logger.Debug("Payment declined",
			zap.String("transaction_id", out.TransactionID),
			zap.String("error_code", string(out.ErrorCode)))
	default:
		l.count(func(s *loadStats) { s.Rejected++ })
		l.logger.Warn("Payment rejected", zap.Int("http_status", resp.StatusCode))
	}
	return nil
}

func (l *loadGenerator) count(fn func(*loadStats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.stats.Sent++
	sent, stats := l.stats.Sent, l.stats
	l.mu.Unlock()

	if sent%10 == 0 {
		l.logger.Info("Load generator progress",
			zap.Int64("sent", stats.Sent),
			zap.Int64("succeeded", stats.Succeeded),
			zap.Int64("declined", stats.Declined),
			zap.Int64("rejected", stats.Rejected),
			zap.Int64("errors", stats.Errors))
	}
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
