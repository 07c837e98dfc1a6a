package main

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

func newManualRegistry(t *testing.T) (*MetricRegistry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	reg := NewMetricRegistry(mp.Meter("test"))
	if err := reg.Register(paymentInstruments(payment.MetricNames{})); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricRegistry_RegisterAndRecord(t *testing.T) {
	reg, reader := newManualRegistry(t)
	ctx := context.Background()
	labels := []attribute.KeyValue{attribute.String("status", "success")}

	for _, name := range []string{"payment_count_total", "payment_amount_total", "payment_processing_time_seconds", "http_requests_total", "payment_active_requests"} {
		if !reg.Has(name) {
			t.Fatalf("expected registry to have %s", name)
		}
	}

	if err := reg.AddInt(ctx, "payment_count_total", 2, labels...); err != nil {
		t.Fatalf("AddInt failed: %v", err)
	}
	if err := reg.AddFloat(ctx, "payment_amount_total", 100.5, labels...); err != nil {
		t.Fatalf("AddFloat failed: %v", err)
	}
	if err := reg.RecordFloat(ctx, "payment_processing_time_seconds", 0.12, labels...); err != nil {
		t.Fatalf("RecordFloat failed: %v", err)
	}
	if err := reg.AddInt(ctx, "payment_active_requests", 1); err != nil {
		t.Fatalf("AddInt on gauge failed: %v", err)
	}
	if err := reg.AddInt(ctx, "payment_active_requests", -1); err != nil {
		t.Fatalf("gauge must accept negative delta: %v", err)
	}

	got := collect(t, reader)

	count, ok := got["payment_count_total"].Data.(metricdata.Sum[int64])
	if !ok || len(count.DataPoints) != 1 || count.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected transaction counter: %#v", got["payment_count_total"].Data)
	}
	if v, _ := count.DataPoints[0].Attributes.Value("status"); v.AsString() != "success" {
		t.Fatalf("expected status label, got %v", count.DataPoints[0].Attributes)
	}

	rev, ok := got["payment_amount_total"].Data.(metricdata.Sum[float64])
	if !ok || rev.DataPoints[0].Value != 100.5 {
		t.Fatalf("unexpected revenue counter: %#v", got["payment_amount_total"].Data)
	}

	hist, ok := got["payment_processing_time_seconds"].Data.(metricdata.Histogram[float64])
	if !ok || hist.DataPoints[0].Count != 1 || hist.DataPoints[0].Sum != 0.12 {
		t.Fatalf("unexpected histogram: %#v", got["payment_processing_time_seconds"].Data)
	}
	if len(hist.DataPoints[0].Bounds) != 9 {
		t.Fatalf("expected explicit buckets, got %v", hist.DataPoints[0].Bounds)
	}

	active, ok := got["payment_active_requests"].Data.(metricdata.Sum[int64])
	if !ok || active.IsMonotonic || active.DataPoints[0].Value != 0 {
		t.Fatalf("unexpected in-flight gauge: %#v", got["payment_active_requests"].Data)
	}
}

func TestMetricRegistry_Errors(t *testing.T) {
	reg, _ := newManualRegistry(t)
	ctx := context.Background()

	if err := reg.AddInt(ctx, "unknown_metric", 1); err == nil {
		t.Fatalf("expected error for unregistered metric")
	}
	if err := reg.AddFloat(ctx, "payment_count_total", 1); err == nil {
		t.Fatalf("expected error for float add on int counter")
	}
	if err := reg.AddInt(ctx, "payment_count_total", -1); err == nil {
		t.Fatalf("expected error for negative delta on counter")
	}
	if err := reg.RecordFloat(ctx, "payment_count_total", 1); err == nil {
		t.Fatalf("expected error for histogram record on counter")
	}
	if err := reg.Register([]InstrumentConfig{{Name: "payment_count_total", Type: "counter"}}); err == nil {
		t.Fatalf("expected error for duplicate registration")
	}
	if err := reg.Register([]InstrumentConfig{{Name: "x", Type: "summary"}}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if err := reg.Register([]InstrumentConfig{{Name: "y", Type: "histogram", DataType: "int"}}); err == nil {
		t.Fatalf("expected error for int histogram")
	}
}

func TestMetricRegistry_CustomNames(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	reg := NewMetricRegistry(mp.Meter("test"))
	names := payment.MetricNames{Transactions: "tx_total"}
	if err := reg.Register(paymentInstruments(names)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !reg.Has("tx_total") || reg.Has("payment_count_total") {
		t.Fatalf("expected override to replace the default name")
	}
	if !reg.Has("payment_amount_total") {
		t.Fatalf("expected unset names to fall back to defaults")
	}
}
