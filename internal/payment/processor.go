package payment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFault marks a payment that failed for reasons other than its business
// outcome. Callers should treat it as an internal error.
var ErrFault = errors.New("payment processing fault")

// Processor is the entry point of the payment simulation.
type Processor struct {
	classifier *Classifier
	recorder   *Recorder
	rng        Rand
	logger     *zap.Logger
	newID      func() (string, error)
}

// Option customizes a Processor.
type Option func(*Processor)

// WithIDGenerator replaces the transaction id generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(p *Processor) { p.newID = fn }
}

func NewProcessor(classifier *Classifier, recorder *Recorder, rng Rand, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		classifier: classifier,
		recorder:   recorder,
		rng:        rng,
		logger:     logger,
		newID:      NewTransactionID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewTransactionID returns 16 hex characters taken from a random UUID.
func NewTransactionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:8]), nil
}

// Process simulates req and records its telemetry. The caller is expected to
// have validated the amount and payment method already. Declined payments
// are returned as a Response with StatusFailed; an error is returned only when
// ctx is cancelled or the simulation itself faults (wrapping ErrFault).
func (p *Processor) Process(ctx context.Context, req Request, tc TraceContext) (*Response, error) {
	p.recorder.track(ctx, 1)
	defer p.recorder.track(ctx, -1)

	txID, err := p.newID()
	if err != nil {
		return nil, p.fault(ctx, req, txID, tc, fmt.Errorf("generate transaction id: %w", err))
	}

	start := time.Now()
	outcome, delay, err := p.classify(req)
	if err != nil {
		return nil, p.fault(ctx, req, txID, tc, err)
	}
	if err := sleep(ctx, delay); err != nil {
		p.logger.Debug("Payment cancelled",
			zap.String("transaction_id", txID),
			zap.String("trace_id", tc.TraceID),
			zap.Error(err),
		)
		return nil, err
	}
	elapsedMs := time.Since(start).Milliseconds()

	p.recorder.Record(ctx, req, txID, outcome, elapsedMs, tc)

	return &Response{
		TransactionID:    txID,
		Status:           outcome.Status,
		Amount:           req.Amount,
		Currency:         req.Currency,
		PaymentMethod:    req.PaymentMethod,
		CardBrand:        req.CardBrand,
		ProcessingTimeMs: elapsedMs,
		ErrorCode:        outcome.ErrorCode,
		ErrorMessage:     outcome.ErrorMessage,
		TraceID:          tc.TraceID,
		SpanID:           tc.SpanID,
	}, nil
}

func (p *Processor) classify(req Request) (outcome Outcome, delay time.Duration, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("classify payment: %v", rec)
		}
	}()
	outcome, delay = p.classifier.Classify(req, p.rng)
	return outcome, delay, nil
}

func (p *Processor) fault(ctx context.Context, req Request, txID string, tc TraceContext, cause error) error {
	p.recorder.RecordFault(ctx, req)
	p.logger.Error("Payment processing failed",
		zap.String("transaction_id", txID),
		zap.String("payment_method", req.PaymentMethod),
		zap.String("currency", req.Currency),
		zap.String("trace_id", tc.TraceID),
		zap.String("span_id", tc.SpanID),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %w", ErrFault, cause)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
