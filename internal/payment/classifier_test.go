package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func cardRequest(amount int64) Request {
	return Request{Amount: decimal.NewFromInt(amount), Currency: "EUR", PaymentMethod: MethodCard, CardBrand: "VISA"}
}

func TestClassify_RollOneIsAlwaysFraud(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	for _, amount := range []int64{-5, 0, 100, 15000} {
		outcome, _ := c.Classify(cardRequest(amount), constRand(1))
		if outcome.Status != StatusFailed || outcome.ErrorCode != ErrorFraudDetected {
			t.Fatalf("amount %d: expected FRAUD_DETECTED, got %+v", amount, outcome)
		}
	}
}

func TestClassify_AmountLimitExceeded(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	outcome, _ := c.Classify(cardRequest(15000), constRand(50))
	if outcome.ErrorCode != ErrorAmountLimitExceeded {
		t.Fatalf("expected AMOUNT_LIMIT_EXCEEDED, got %+v", outcome)
	}
	if outcome.ErrorMessage != "Transaction amount exceeds limit" {
		t.Fatalf("unexpected message %q", outcome.ErrorMessage)
	}
}

func TestClassify_LimitIsInclusive(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	outcome, _ := c.Classify(cardRequest(10000), constRand(50))
	if !outcome.Succeeded() {
		t.Fatalf("expected 10000 to be accepted, got %+v", outcome)
	}
}

func TestClassify_InvalidAmount(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	outcome, _ := c.Classify(cardRequest(0), constRand(50))
	if outcome.ErrorCode != ErrorInvalidAmount {
		t.Fatalf("expected INVALID_AMOUNT, got %+v", outcome)
	}
}

func TestClassify_FailureBandsAreCumulative(t *testing.T) {
	cases := []struct {
		roll int
		want ErrorCode
	}{
		{0, ErrorFraudDetected},
		{1, ErrorFraudDetected},
		{2, ErrorInsufficientFunds},
		{3, ErrorInsufficientFunds},
		{4, ErrorNetworkTimeout},
		{5, ""},
		{99, ""},
	}
	c := NewClassifier(DefaultPolicy(), nil)
	for _, tc := range cases {
		// base delay, spike roll (no spike), failure roll
		rng := &seqRand{ints: []int{0, 99, tc.roll}}
		outcome, _ := c.Classify(cardRequest(100), rng)
		if outcome.ErrorCode != tc.want {
			t.Fatalf("roll %d: expected %q, got %+v", tc.roll, tc.want, outcome)
		}
	}
}

func TestClassify_DelayComposition(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	req := Request{Amount: decimal.NewFromInt(10), Currency: "EUR", PaymentMethod: MethodBankTransfer}

	// base 50+10, surcharge 100+20, spike roll 3 (<5), spike 500+100, failure roll 99
	rng := &seqRand{ints: []int{10, 20, 3, 100, 99}}
	outcome, delay := c.Classify(req, rng)
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if delay != 780*time.Millisecond {
		t.Fatalf("expected 780ms, got %v", delay)
	}
}

func TestClassify_DelayFloors(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	rng := NewRand(42)
	for i := 0; i < 1000; i++ {
		req := RandomRequest(rng)
		_, delay := c.Classify(req, rng)
		floor := 50 * time.Millisecond
		if req.PaymentMethod == MethodBankTransfer {
			floor = 150 * time.Millisecond
		}
		if delay < floor {
			t.Fatalf("%s: delay %v below floor %v", req.PaymentMethod, delay, floor)
		}
		if delay >= 2500*time.Millisecond {
			t.Fatalf("%s: delay %v above ceiling", req.PaymentMethod, delay)
		}
	}
}

func TestClassify_OutcomeInvariant(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), nil)
	rng := NewRand(7)
	known := map[ErrorCode]bool{
		ErrorFraudDetected:       true,
		ErrorInsufficientFunds:   true,
		ErrorNetworkTimeout:      true,
		ErrorInvalidAmount:       true,
		ErrorAmountLimitExceeded: true,
	}
	failures := 0
	for i := 0; i < 5000; i++ {
		outcome, _ := c.Classify(RandomRequest(rng), rng)
		switch outcome.Status {
		case StatusSuccess:
			if outcome.ErrorCode != "" || outcome.ErrorMessage != "" {
				t.Fatalf("success carries error fields: %+v", outcome)
			}
		case StatusFailed:
			failures++
			if !known[outcome.ErrorCode] || outcome.ErrorMessage == "" {
				t.Fatalf("failed outcome without a known error: %+v", outcome)
			}
		default:
			t.Fatalf("unexpected status %q", outcome.Status)
		}
	}
	// 5% failure band, generous bounds
	if failures < 100 || failures > 500 {
		t.Fatalf("expected roughly 250 failures in 5000 draws, got %d", failures)
	}
}

type fixedSchedule float64

func (f fixedSchedule) MultiplierAt(time.Time) float64 { return float64(f) }

func TestClassify_SpikeScheduleScalesProbability(t *testing.T) {
	c := NewClassifier(DefaultPolicy(), fixedSchedule(20))
	// spike roll 99 would never spike at 5%, but does at 100%
	rng := &seqRand{ints: []int{0, 99, 0, 99}}
	_, delay := c.Classify(cardRequest(100), rng)
	if delay != 550*time.Millisecond {
		t.Fatalf("expected spike to apply (550ms), got %v", delay)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy must be valid: %v", err)
	}

	bad := DefaultPolicy()
	bad.BaseDelayMaxMs = 10
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted base delay range")
	}

	bad = DefaultPolicy()
	bad.InsufficientBelow = 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for non-cumulative thresholds")
	}

	bad = DefaultPolicy()
	bad.AmountLimit = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero amount limit")
	}
}
