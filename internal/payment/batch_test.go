package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSimulate_ZeroCount(t *testing.T) {
	p := newTestProcessor(fastPolicy(), constRand(50), &fakeSink{})
	b := NewBatchSimulator(p, constRand(50))

	res, err := b.Simulate(context.Background(), 0, TraceContext{})
	if err != nil {
		t.Fatalf("Simulate(0) returned err: %v", err)
	}
	if res.SuccessRate != 0 || res.TotalSimulated != 0 || len(res.Results) != 0 {
		t.Fatalf("unexpected result for zero count: %+v", res)
	}

	body, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", body)
	}
}

func TestSimulate_AggregatesOutcomes(t *testing.T) {
	sink := &fakeSink{}
	p := newTestProcessor(fastPolicy(), constRand(50), sink)
	b := NewBatchSimulator(p, constRand(50))

	res, err := b.Simulate(context.Background(), 3, TraceContext{})
	if err != nil {
		t.Fatalf("Simulate returned err: %v", err)
	}
	if res.TotalSimulated != 3 || res.Successful != 3 || res.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.SuccessRate != 100 {
		t.Fatalf("expected success rate 100, got %v", res.SuccessRate)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	if n := len(sink.named(DefaultMetricNames().Transactions)); n != 3 {
		t.Fatalf("expected 3 recorded transactions, got %d", n)
	}
}

func TestSimulate_AllDeclined(t *testing.T) {
	p := newTestProcessor(fastPolicy(), constRand(1), &fakeSink{})
	b := NewBatchSimulator(p, NewRand(3))

	res, err := b.Simulate(context.Background(), 4, TraceContext{})
	if err != nil {
		t.Fatalf("Simulate returned err: %v", err)
	}
	if res.Failed != 4 || res.SuccessRate != 0 {
		t.Fatalf("expected every payment to be declined, got %+v", res)
	}
}

func TestSimulate_StopsOnContextCancel(t *testing.T) {
	p := newTestProcessor(fastPolicy(), constRand(50), &fakeSink{})
	b := NewBatchSimulator(p, NewRand(5))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := b.Simulate(ctx, 10000, TraceContext{})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Simulate did not stop after context cancellation")
	}
}

func TestRandomRequest_CardBrandOnlyForCards(t *testing.T) {
	rng := NewRand(11)
	for i := 0; i < 500; i++ {
		req := RandomRequest(rng)
		if req.PaymentMethod == MethodCard && req.CardBrand == "" {
			t.Fatalf("card payment without brand: %+v", req)
		}
		if req.PaymentMethod != MethodCard && req.CardBrand != "" {
			t.Fatalf("%s payment with brand: %+v", req.PaymentMethod, req)
		}
		if req.Amount.LessThan(decimal.NewFromInt(10)) || !req.Amount.LessThan(decimal.NewFromInt(1010)) {
			t.Fatalf("amount %s outside [10,1010)", req.Amount)
		}
		if req.Currency == "" || req.Region == "" || !strings.HasPrefix(req.UserID, "U") {
			t.Fatalf("incomplete request: %+v", req)
		}
	}
}
