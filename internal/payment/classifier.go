package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the numeric ranges used by the classifier. Delay ranges are
// in milliseconds and half-open. Failure thresholds are cumulative and are
// compared against a single roll in [0,100).
type Policy struct {
	BaseDelayMinMs      int     `yaml:"base_delay_min_ms"`
	BaseDelayMaxMs      int     `yaml:"base_delay_max_ms"`
	BankTransferMinMs   int     `yaml:"bank_transfer_min_ms"`
	BankTransferMaxMs   int     `yaml:"bank_transfer_max_ms"`
	SpikePercent        float64 `yaml:"spike_percent"`
	SpikeMinMs          int     `yaml:"spike_min_ms"`
	SpikeMaxMs          int     `yaml:"spike_max_ms"`
	FraudBelow          int     `yaml:"fraud_below"`
	InsufficientBelow   int     `yaml:"insufficient_funds_below"`
	NetworkTimeoutBelow int     `yaml:"network_timeout_below"`
	AmountLimit         float64 `yaml:"amount_limit"`
}

// DefaultPolicy mirrors the failure and latency profile of a typical card gateway.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelayMinMs:      50,
		BaseDelayMaxMs:      200,
		BankTransferMinMs:   100,
		BankTransferMaxMs:   300,
		SpikePercent:        5,
		SpikeMinMs:          500,
		SpikeMaxMs:          2000,
		FraudBelow:          2,
		InsufficientBelow:   4,
		NetworkTimeoutBelow: 5,
		AmountLimit:         10000,
	}
}

// Validate reports ranges and thresholds the classifier cannot draw from.
func (p Policy) Validate() error {
	ranges := []struct {
		name     string
		min, max int
	}{
		{"base delay", p.BaseDelayMinMs, p.BaseDelayMaxMs},
		{"bank transfer delay", p.BankTransferMinMs, p.BankTransferMaxMs},
		{"spike delay", p.SpikeMinMs, p.SpikeMaxMs},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("policy: invalid %s range [%d,%d)", r.name, r.min, r.max)
		}
	}
	if p.SpikePercent < 0 || p.SpikePercent > 100 {
		return fmt.Errorf("policy: spike_percent %v out of [0,100]", p.SpikePercent)
	}
	if p.FraudBelow < 0 || p.InsufficientBelow < p.FraudBelow ||
		p.NetworkTimeoutBelow < p.InsufficientBelow || p.NetworkTimeoutBelow > 100 {
		return fmt.Errorf("policy: failure thresholds must be cumulative within [0,100], got %d/%d/%d",
			p.FraudBelow, p.InsufficientBelow, p.NetworkTimeoutBelow)
	}
	if p.AmountLimit <= 0 {
		return fmt.Errorf("policy: amount_limit must be positive, got %v", p.AmountLimit)
	}
	return nil
}

// SpikeSchedule scales the spike probability over time.
type SpikeSchedule interface {
	MultiplierAt(t time.Time) float64
}

// Classifier decides the outcome and the synthetic latency of a payment.
type Classifier struct {
	policy Policy
	limit  decimal.Decimal
	spikes SpikeSchedule
	now    func() time.Time
}

// NewClassifier builds a classifier. spikes may be nil.
func NewClassifier(policy Policy, spikes SpikeSchedule) *Classifier {
	return &Classifier{
		policy: policy,
		limit:  decimal.NewFromFloat(policy.AmountLimit),
		spikes: spikes,
		now:    time.Now,
	}
}

// Classify draws the outcome of req from rng. The returned delay is the
// processing time the caller is expected to actually wait out.
func (c *Classifier) Classify(req Request, rng Rand) (Outcome, time.Duration) {
	p := c.policy

	delayMs := between(rng, p.BaseDelayMinMs, p.BaseDelayMaxMs)
	if req.PaymentMethod == MethodBankTransfer {
		delayMs += between(rng, p.BankTransferMinMs, p.BankTransferMaxMs)
	}
	if float64(rng.Intn(100)) < c.spikePercent() {
		delayMs += between(rng, p.SpikeMinMs, p.SpikeMaxMs)
	}
	delay := time.Duration(delayMs) * time.Millisecond

	roll := rng.Intn(100)
	switch {
	case roll < p.FraudBelow:
		return failedWith(ErrorFraudDetected), delay
	case roll < p.InsufficientBelow:
		return failedWith(ErrorInsufficientFunds), delay
	case roll < p.NetworkTimeoutBelow:
		return failedWith(ErrorNetworkTimeout), delay
	}

	// late-stage amount checks, independent of the transport's validation
	switch {
	case req.Amount.LessThanOrEqual(decimal.Zero):
		return failedWith(ErrorInvalidAmount), delay
	case req.Amount.GreaterThan(c.limit):
		return failedWith(ErrorAmountLimitExceeded), delay
	}
	return succeeded(), delay
}

func (c *Classifier) spikePercent() float64 {
	if c.spikes == nil {
		return c.policy.SpikePercent
	}
	return c.policy.SpikePercent * c.spikes.MultiplierAt(c.now())
}
