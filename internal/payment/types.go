// Package payment simulates payment processing and correlates each simulated
// transaction with metrics, logs and the active trace.
package payment

import (
	"github.com/shopspring/decimal"
)

func init() {
	// amounts are echoed back as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultCurrency = "EUR"
	DefaultRegion   = "EU_WEST"

	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodPayPal       = "paypal"
	MethodApplePay     = "apple_pay"
	MethodGooglePay    = "google_pay"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type ErrorCode string

const (
	ErrorFraudDetected       ErrorCode = "FRAUD_DETECTED"
	ErrorInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	ErrorNetworkTimeout      ErrorCode = "NETWORK_TIMEOUT"
	ErrorInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrorAmountLimitExceeded ErrorCode = "AMOUNT_LIMIT_EXCEEDED"
)

var errorMessages = map[ErrorCode]string{
	ErrorFraudDetected:       "Transaction flagged by fraud detection system",
	ErrorInsufficientFunds:   "Insufficient funds in account",
	ErrorNetworkTimeout:      "Payment gateway timeout",
	ErrorInvalidAmount:       "Amount must be greater than zero",
	ErrorAmountLimitExceeded: "Transaction amount exceeds limit",
}

// Message returns the human readable text for the code.
func (c ErrorCode) Message() string {
	return errorMessages[c]
}

// Request is a payment submitted for simulation.
type Request struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	CardBrand     string          `json:"cardBrand,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	Region        string          `json:"region,omitempty"`
}

// ApplyDefaults fills the currency when the caller left it out.
func (r *Request) ApplyDefaults() {
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
}

// TelemetryRegion is the region used as a metric label.
func (r Request) TelemetryRegion() string {
	if r.Region == "" {
		return DefaultRegion
	}
	return r.Region
}

// Outcome is the simulated result of a payment.
type Outcome struct {
	Status       Status
	ErrorCode    ErrorCode
	ErrorMessage string
}

func succeeded() Outcome {
	return Outcome{Status: StatusSuccess}
}

func failedWith(code ErrorCode) Outcome {
	return Outcome{Status: StatusFailed, ErrorCode: code, ErrorMessage: code.Message()}
}

// Succeeded reports whether the payment went through.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// TraceContext identifies the span that was active when the payment arrived.
// Both fields are empty when no span is recording.
type TraceContext struct {
	TraceID string
	SpanID  string
}

// Response is returned for every processed payment, declined or not.
type Response struct {
	TransactionID    string          `json:"transactionId"`
	Status           Status          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	CardBrand        string          `json:"cardBrand,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	ErrorCode        ErrorCode       `json:"errorCode,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	TraceID          string          `json:"traceId"`
	SpanID           string          `json:"spanId"`
}
