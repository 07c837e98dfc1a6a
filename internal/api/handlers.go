package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

const defaultSimulateCount = 10

// traceContextFrom reads the identifiers of the span active in ctx.
func traceContextFrom(ctx context.Context) payment.TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return payment.TraceContext{}
	}
	return payment.TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
}

func (s *Server) handleProcessPayment(c *gin.Context) {
	var req payment.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Invalid payment body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	req.ApplyDefaults()

	ctx, span := s.tracer.Start(c.Request.Context(), "ProcessPayment",
		trace.WithAttributes(
			attribute.Float64("payment.amount", req.Amount.InexactFloat64()),
			attribute.String("payment.currency", req.Currency),
			attribute.String("payment.method", req.PaymentMethod),
			attribute.String("payment.region", req.Region),
		))
	defer span.End()
	if req.CardBrand != "" {
		span.SetAttributes(attribute.String("payment.card_brand", req.CardBrand))
	}

	if !req.Amount.IsPositive() {
		s.logger.Warn("Invalid payment amount", zap.String("amount", req.Amount.String()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be greater than zero"})
		return
	}
	if req.PaymentMethod == "" {
		s.logger.Warn("Payment method is required")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment method is required"})
		return
	}

	resp, err := s.processor.Process(ctx, req, traceContextFrom(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Unexpected error processing payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("payment.transaction_id", resp.TransactionID),
		attribute.String("payment.status", string(resp.Status)),
		attribute.Int64("payment.processing_time_ms", resp.ProcessingTimeMs),
	)

	// declined payments are surfaced as 500 with the regular body
	if resp.Status == payment.StatusFailed {
		span.SetStatus(codes.Error, resp.ErrorMessage)
		span.SetAttributes(attribute.String("payment.error_code", string(resp.ErrorCode)))
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetPayment(c *gin.Context) {
	id := c.Param("id")
	s.logger.Info("Retrieving payment", zap.String("transaction_id", id))

	c.JSON(http.StatusOK, gin.H{
		"transactionId": id,
		"status":        "success",
		"message":       "Payment retrieval endpoint (not implemented)",
	})
}

func (s *Server) handleSimulate(c *gin.Context) {
	count := defaultSimulateCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		count = n
	}

	ctx, span := s.tracer.Start(c.Request.Context(), "SimulatePayments",
		trace.WithAttributes(attribute.Int("simulate.count", count)))
	defer span.End()

	res, err := s.batch.Simulate(ctx, count, traceContextFrom(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Payment simulation failed", zap.Int("count", count), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.Int("simulate.successful", res.Successful),
		attribute.Int("simulate.failed", res.Failed),
	)
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   s.info.Name,
		"version":   s.info.Version,
		"timestamp": time.Now().UTC(),
	})
}
