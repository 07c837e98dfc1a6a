package payment

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// seqRand replays ints in order, reduced modulo the requested bound.
type seqRand struct {
	mu   sync.Mutex
	ints []int
	i    int
	f    float64
}

func constRand(v int) *seqRand {
	return &seqRand{ints: []int{v}, f: 0.5}
}

func (s *seqRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ints[s.i%len(s.ints)]
	s.i++
	return v % n
}

func (s *seqRand) Float64() float64 {
	return s.f
}

type panicRand struct{}

func (panicRand) Intn(int) int     { panic("entropy exhausted") }
func (panicRand) Float64() float64 { panic("entropy exhausted") }

type sinkCall struct {
	kind  string
	name  string
	value float64
	attrs attribute.Set
}

// fakeSink captures metric updates. failOn and panicOn name instruments whose
// updates should return an error or panic.
type fakeSink struct {
	mu      sync.Mutex
	calls   []sinkCall
	failOn  string
	panicOn string
}

var errSinkDown = errors.New("sink down")

func (f *fakeSink) add(kind, name string, v float64, attrs []attribute.KeyValue) error {
	if name == f.panicOn {
		panic("sink exploded")
	}
	if name == f.failOn {
		return errSinkDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sinkCall{kind: kind, name: name, value: v, attrs: attribute.NewSet(attrs...)})
	return nil
}

func (f *fakeSink) AddInt(_ context.Context, name string, delta int64, attrs ...attribute.KeyValue) error {
	return f.add("int", name, float64(delta), attrs)
}

func (f *fakeSink) AddFloat(_ context.Context, name string, delta float64, attrs ...attribute.KeyValue) error {
	return f.add("float", name, delta, attrs)
}

func (f *fakeSink) RecordFloat(_ context.Context, name string, value float64, attrs ...attribute.KeyValue) error {
	return f.add("histogram", name, value, attrs)
}

func (f *fakeSink) named(name string) []sinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sinkCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func label(set attribute.Set, key string) (string, bool) {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return "", false
	}
	return v.AsString(), true
}

// fastPolicy keeps waits short so tests exercising the full path stay quick.
func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelayMinMs, p.BaseDelayMaxMs = 1, 2
	p.BankTransferMinMs, p.BankTransferMaxMs = 1, 2
	p.SpikePercent = 0
	return p
}
