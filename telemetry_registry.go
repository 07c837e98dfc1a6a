package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

// InstrumentConfig describes one instrument to create in the registry.
type InstrumentConfig struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`      // counter|gauge|histogram
	DataType    string    `yaml:"data_type"` // float|int
	Description string    `yaml:"description"`
	Unit        string    `yaml:"unit"`
	Buckets     []float64 `yaml:"buckets"`
}

// MetricRegistry holds named instruments and records into them by name.
// It is the production payment.MetricSink.
type MetricRegistry struct {
	meter   metric.Meter
	mu      sync.RWMutex
	metrics map[string]*metricHandle
}

var _ payment.MetricSink = (*MetricRegistry)(nil)

type metricHandle struct {
	name  string
	mtype string
	dtype string

	// only one populated depending on type/dtype
	floatCounter metric.Float64Counter
	intCounter   metric.Int64Counter
	floatUpDown  metric.Float64UpDownCounter
	intUpDown    metric.Int64UpDownCounter
	floatHist    metric.Float64Histogram
}

// NewMetricRegistry creates a registry backed by the provided meter
func NewMetricRegistry(m metric.Meter) *MetricRegistry {
	return &MetricRegistry{meter: m, metrics: make(map[string]*metricHandle)}
}

// paymentInstruments returns the instruments the payment recorder writes to.
func paymentInstruments(names payment.MetricNames) []InstrumentConfig {
	names = names.WithDefaults()
	return []InstrumentConfig{
		{Name: names.Transactions, Type: "counter", DataType: "int", Description: "Total number of payment transactions"},
		{Name: names.Revenue, Type: "counter", DataType: "float", Description: "Total amount of successful payments"},
		{
			Name:        names.ProcessingTime,
			Type:        "histogram",
			DataType:    "float",
			Description: "Payment processing time in seconds",
			Unit:        "s",
			Buckets:     []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1, 2, 5},
		},
		{Name: names.HTTPRequests, Type: "counter", DataType: "int", Description: "Total HTTP requests"},
		{Name: names.ActivePayments, Type: "gauge", DataType: "int", Description: "Payments currently being processed"},
	}
}

// Register validates and creates the configured instruments
func (r *MetricRegistry) Register(cfgs []InstrumentConfig) error {
	for _, c := range cfgs {
		if c.Name == "" {
			return errors.New("instrument: name required")
		}
		if c.Type == "" {
			return fmt.Errorf("instrument %s: type required", c.Name)
		}
		dtype := c.DataType
		if dtype == "" {
			dtype = "float"
		}

		// do not override existing metrics in registry
		r.mu.Lock()
		if _, ok := r.metrics[c.Name]; ok {
			r.mu.Unlock()
			return fmt.Errorf("metric %s already registered", c.Name)
		}

		mh := &metricHandle{name: c.Name, mtype: c.Type, dtype: dtype}
		var err error
		switch c.Type {
		case "counter":
			if dtype == "float" {
				mh.floatCounter, err = r.meter.Float64Counter(c.Name, metric.WithDescription(c.Description), metric.WithUnit(c.Unit))
			} else {
				mh.intCounter, err = r.meter.Int64Counter(c.Name, metric.WithDescription(c.Description), metric.WithUnit(c.Unit))
			}
		case "gauge":
			if dtype == "float" {
				mh.floatUpDown, err = r.meter.Float64UpDownCounter(c.Name, metric.WithDescription(c.Description), metric.WithUnit(c.Unit))
			} else {
				mh.intUpDown, err = r.meter.Int64UpDownCounter(c.Name, metric.WithDescription(c.Description), metric.WithUnit(c.Unit))
			}
		case "histogram":
			if dtype != "float" {
				r.mu.Unlock()
				return fmt.Errorf("histogram %s must be float datatype", c.Name)
			}
			opts := []metric.Float64HistogramOption{metric.WithDescription(c.Description), metric.WithUnit(c.Unit)}
			if len(c.Buckets) > 0 {
				opts = append(opts, metric.WithExplicitBucketBoundaries(c.Buckets...))
			}
			mh.floatHist, err = r.meter.Float64Histogram(c.Name, opts...)
		default:
			r.mu.Unlock()
			return fmt.Errorf("unsupported metric type %s for %s", c.Type, c.Name)
		}

		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("create instrument %s: %w", c.Name, err)
		}

		r.metrics[c.Name] = mh
		r.mu.Unlock()
	}
	return nil
}

// Has returns true if a metric by that name exists in registry
func (r *MetricRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metrics[name]
	return ok
}

func (r *MetricRegistry) lookup(name string) (*metricHandle, error) {
	r.mu.RLock()
	mh, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("metric '%s' not registered", name)
	}
	return mh, nil
}

// AddFloat adds a delta to a named float counter/updown. Returns error if wrong type.
func (r *MetricRegistry) AddFloat(ctx context.Context, name string, delta float64, attrs ...attribute.KeyValue) error {
	mh, err := r.lookup(name)
	if err != nil {
		return err
	}
	if mh.floatCounter != nil {
		if delta < 0 {
			return fmt.Errorf("metric '%s' is monotonic; got negative delta %v", name, delta)
		}
		mh.floatCounter.Add(ctx, delta, metric.WithAttributes(attrs...))
		return nil
	}
	if mh.floatUpDown != nil {
		mh.floatUpDown.Add(ctx, delta, metric.WithAttributes(attrs...))
		return nil
	}
	return fmt.Errorf("metric '%s' is not a float counter/gauge", name)
}

// AddInt adds a delta to a named int counter/updown
func (r *MetricRegistry) AddInt(ctx context.Context, name string, delta int64, attrs ...attribute.KeyValue) error {
	mh, err := r.lookup(name)
	if err != nil {
		return err
	}
	if mh.intCounter != nil {
		if delta < 0 {
			return fmt.Errorf("metric '%s' is monotonic; got negative delta %d", name, delta)
		}
		mh.intCounter.Add(ctx, delta, metric.WithAttributes(attrs...))
		return nil
	}
	if mh.intUpDown != nil {
		mh.intUpDown.Add(ctx, delta, metric.WithAttributes(attrs...))
		return nil
	}
	return fmt.Errorf("metric '%s' is not an int counter/gauge", name)
}

// RecordFloat records a value for a float histogram
func (r *MetricRegistry) RecordFloat(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) error {
	mh, err := r.lookup(name)
	if err != nil {
		return err
	}
	if mh.floatHist != nil {
		mh.floatHist.Record(ctx, value, metric.WithAttributes(attrs...))
		return nil
	}
	return fmt.Errorf("metric '%s' is not a float histogram", name)
}
