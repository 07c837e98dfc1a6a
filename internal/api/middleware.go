package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func isInfraPath(path string) bool {
	return strings.HasPrefix(path, "/metrics") || strings.HasPrefix(path, "/health")
}

// requestLogger logs one line per request. Scrapes and health probes are
// demoted to debug so they do not drown out payment traffic.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := zapcore.InfoLevel
		if isInfraPath(c.Request.URL.Path) {
			level = zapcore.DebugLevel
		}
		ce := logger.Check(level, "HTTP request")
		if ce == nil {
			return
		}
		tc := traceContextFrom(c.Request.Context())
		ce.Write(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", tc.TraceID),
		)
	}
}
