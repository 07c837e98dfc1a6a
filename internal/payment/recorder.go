package payment

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MetricSink receives counter and histogram updates by instrument name.
// Implementations must be safe for concurrent use.
type MetricSink interface {
	AddInt(ctx context.Context, name string, delta int64, attrs ...attribute.KeyValue) error
	AddFloat(ctx context.Context, name string, delta float64, attrs ...attribute.KeyValue) error
	RecordFloat(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) error
}

// MetricNames are the instrument names the recorder writes to.
type MetricNames struct {
	Transactions   string `yaml:"transactions"`
	Revenue        string `yaml:"revenue"`
	ProcessingTime string `yaml:"processing_time"`
	HTTPRequests   string `yaml:"http_requests"`
	ActivePayments string `yaml:"active_payments"`
}

// DefaultMetricNames returns the names dashboards for this service expect.
func DefaultMetricNames() MetricNames {
	return MetricNames{
		Transactions:   "payment_count_total",
		Revenue:        "payment_amount_total",
		ProcessingTime: "payment_processing_time_seconds",
		HTTPRequests:   "http_requests_total",
		ActivePayments: "payment_active_requests",
	}
}

// WithDefaults fills empty names from DefaultMetricNames.
func (n MetricNames) WithDefaults() MetricNames {
	d := DefaultMetricNames()
	if n.Transactions == "" {
		n.Transactions = d.Transactions
	}
	if n.Revenue == "" {
		n.Revenue = d.Revenue
	}
	if n.ProcessingTime == "" {
		n.ProcessingTime = d.ProcessingTime
	}
	if n.HTTPRequests == "" {
		n.HTTPRequests = d.HTTPRequests
	}
	if n.ActivePayments == "" {
		n.ActivePayments = d.ActivePayments
	}
	return n
}

// Recorder turns processed payments into metrics and a log line.
// Telemetry is best effort: sink failures are logged and never returned.
type Recorder struct {
	sink   MetricSink
	names  MetricNames
	logger *zap.Logger
}

func NewRecorder(sink MetricSink, names MetricNames, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, names: names.WithDefaults(), logger: logger}
}

// Labels returns the bounded label set shared by the payment series.
func Labels(req Request, status Status) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("status", string(status)),
		attribute.String("payment_method", req.PaymentMethod),
		attribute.String("currency", req.Currency),
		attribute.String("region", req.TelemetryRegion()),
	}
	if req.CardBrand != "" {
		attrs = append(attrs, attribute.String("card_brand", req.CardBrand))
	}
	return attrs
}

func httpLabels(status Status) []attribute.KeyValue {
	code := "500"
	if status == StatusSuccess {
		code = "200"
	}
	return []attribute.KeyValue{
		attribute.String("job", "payment-api"),
		attribute.String("status", code),
		attribute.String("method", "POST"),
		attribute.String("endpoint", "/api/payments"),
	}
}

// Record writes the transaction, revenue, latency and request series for a
// processed payment and emits the "Payment processed" log event.
func (r *Recorder) Record(ctx context.Context, req Request, txID string, outcome Outcome, processingTimeMs int64, tc TraceContext) {
	labels := Labels(req, outcome.Status)

	r.attempt(r.names.Transactions, func() error {
		return r.sink.AddInt(ctx, r.names.Transactions, 1, labels...)
	})
	if outcome.Succeeded() {
		r.attempt(r.names.Revenue, func() error {
			return r.sink.AddFloat(ctx, r.names.Revenue, req.Amount.InexactFloat64(), labels...)
		})
	}
	r.attempt(r.names.ProcessingTime, func() error {
		return r.sink.RecordFloat(ctx, r.names.ProcessingTime, float64(processingTimeMs)/1000.0, labels...)
	})
	r.attempt(r.names.HTTPRequests, func() error {
		return r.sink.AddInt(ctx, r.names.HTTPRequests, 1, httpLabels(outcome.Status)...)
	})

	r.logger.Info("Payment processed",
		zap.String("transaction_id", txID),
		zap.String("status", string(outcome.Status)),
		zap.Float64("amount", req.Amount.InexactFloat64()),
		zap.String("currency", req.Currency),
		zap.String("payment_method", req.PaymentMethod),
		zap.String("card_brand", req.CardBrand),
		zap.Int64("processing_time_ms", processingTimeMs),
		zap.String("trace_id", tc.TraceID),
		zap.String("span_id", tc.SpanID),
		zap.String("user_id", req.UserID),
	)
}

// RecordFault counts a payment that never produced an outcome.
func (r *Recorder) RecordFault(ctx context.Context, req Request) {
	labels := []attribute.KeyValue{
		attribute.String("status", string(StatusFailed)),
		attribute.String("payment_method", req.PaymentMethod),
		attribute.String("currency", req.Currency),
		attribute.String("region", req.TelemetryRegion()),
	}
	r.attempt(r.names.Transactions, func() error {
		return r.sink.AddInt(ctx, r.names.Transactions, 1, labels...)
	})
}

// track moves the in-flight gauge by delta.
func (r *Recorder) track(ctx context.Context, delta int64) {
	r.attempt(r.names.ActivePayments, func() error {
		return r.sink.AddInt(ctx, r.names.ActivePayments, delta)
	})
}

func (r *Recorder) attempt(metric string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Metric update panicked",
				zap.String("metric", metric),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("Metric update failed", zap.String("metric", metric), zap.Error(err))
	}
}
