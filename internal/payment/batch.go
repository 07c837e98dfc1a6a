package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	paymentMethods = []string{MethodCard, MethodBankTransfer, MethodPayPal, MethodApplePay, MethodGooglePay}
	cardBrands     = []string{"VISA", "MASTERCARD", "AMEX", "DISCOVER"}
	currencies     = []string{"EUR", "USD", "GBP", "CHF", "JPY"}
	regions        = []string{"EU_WEST", "EU_CENTRAL", "US_EAST", "ASIA_PACIFIC"}
)

// RandomRequest synthesizes a plausible payment. The card brand is only set
// for card payments.
func RandomRequest(rng Rand) Request {
	method := paymentMethods[rng.Intn(len(paymentMethods))]
	req := Request{
		Amount:        decimal.NewFromFloat(rng.Float64()*1000 + 10).Truncate(2),
		Currency:      currencies[rng.Intn(len(currencies))],
		PaymentMethod: method,
		UserID:        fmt.Sprintf("U%d", between(rng, 10000, 100000)),
		Region:        regions[rng.Intn(len(regions))],
	}
	if method == MethodCard {
		req.CardBrand = cardBrands[rng.Intn(len(cardBrands))]
	}
	return req
}

// BatchResult aggregates a simulated batch.
type BatchResult struct {
	TotalSimulated int        `json:"totalSimulated"`
	Successful     int        `json:"successful"`
	Failed         int        `json:"failed"`
	SuccessRate    float64    `json:"successRate"`
	Results        []Response `json:"results"`
}

// BatchSimulator pushes randomized payments through a Processor one at a time.
type BatchSimulator struct {
	processor *Processor
	rng       Rand
	pauseMin  time.Duration
	pauseMax  time.Duration
}

func NewBatchSimulator(processor *Processor, rng Rand) *BatchSimulator {
	return &BatchSimulator{
		processor: processor,
		rng:       rng,
		pauseMin:  10 * time.Millisecond,
		pauseMax:  50 * time.Millisecond,
	}
}

// Simulate processes count random payments, pausing briefly after each one.
// A non-positive count yields an empty result with a zero success rate.
func (b *BatchSimulator) Simulate(ctx context.Context, count int, tc TraceContext) (*BatchResult, error) {
	res := &BatchResult{TotalSimulated: count, Results: []Response{}}
	if count <= 0 {
		res.TotalSimulated = 0
		return res, nil
	}

	for i := 0; i < count; i++ {
		resp, err := b.processor.Process(ctx, RandomRequest(b.rng), tc)
		if err != nil {
			return nil, fmt.Errorf("simulate payment %d of %d: %w", i+1, count, err)
		}
		res.Results = append(res.Results, *resp)
		if resp.Status == StatusSuccess {
			res.Successful++
		} else {
			res.Failed++
		}

		pause := time.Duration(between(b.rng, int(b.pauseMin/time.Millisecond), int(b.pauseMax/time.Millisecond))) * time.Millisecond
		if err := sleep(ctx, pause); err != nil {
			return nil, err
		}
	}

	res.SuccessRate = float64(res.Successful) / float64(count) * 100
	return res, nil
}
