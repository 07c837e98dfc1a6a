// Package api exposes the payment simulator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

// PaymentProcessor processes a single validated payment.
type PaymentProcessor interface {
	Process(ctx context.Context, req payment.Request, tc payment.TraceContext) (*payment.Response, error)
}

// BatchRunner simulates a batch of random payments.
type BatchRunner interface {
	Simulate(ctx context.Context, count int, tc payment.TraceContext) (*payment.BatchResult, error)
}

// ServiceInfo identifies the service in health responses and server spans.
type ServiceInfo struct {
	Name    string
	Version string
}

// Server is the payment API HTTP server
type Server struct {
	processor PaymentProcessor
	batch     BatchRunner
	tracer    trace.Tracer
	logger    *zap.Logger
	info      ServiceInfo
	router    *gin.Engine
}

// NewServer wires the routes. metrics may be nil when no scrape endpoint is wanted.
func NewServer(processor PaymentProcessor, batch BatchRunner, tracer trace.Tracer, logger *zap.Logger, info ServiceInfo, metrics http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()

	s := &Server{
		processor: processor,
		batch:     batch,
		tracer:    tracer,
		logger:    logger,
		info:      info,
		router:    router,
	}

	router.Use(
		gin.Recovery(),
		otelgin.Middleware(info.Name, otelgin.WithFilter(func(r *http.Request) bool {
			return !isInfraPath(r.URL.Path)
		})),
		cors.Default(),
		requestLogger(logger),
	)

	router.GET("/health", s.handleHealth)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// payment routes answer with and without the /api prefix
	for _, prefix := range []string{"/api", ""} {
		g := router.Group(prefix)
		g.POST("/payments", s.handleProcessPayment)
		g.POST("/payments/simulate", s.handleSimulate)
		g.GET("/payments/:id", s.handleGetPayment)
	}

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
