package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "payment-api.log"

// newLogger tees the configured console output, the optional rolling file
// and, when lp is non-nil, the OTel log bridge. The returned func flushes
// and closes the file.
func newLogger(cfg LoggingConfig, tcfg TelemetryConfig, lp otellog.LoggerProvider, stdout io.Writer) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	switch cfg.Output {
	case "stdout":
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(stdout), level))
	case "console":
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(devCfg), zapcore.AddSync(stdout), level))
	}

	var file *lumberjack.Logger
	if cfg.FileEnabled {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory %s: %w", cfg.Directory, err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, logFileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}

	if lp != nil {
		bridge := otelzap.NewCore(tcfg.ServiceName, otelzap.WithLoggerProvider(lp))
		cores = append(cores, &levelCore{Core: bridge, level: level})
	}

	host, _ := os.Hostname()
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(
		zap.String("service", tcfg.ServiceName),
		zap.String("version", tcfg.ServiceVersion),
		zap.String("namespace", tcfg.ServiceNamespace),
		zap.String("environment", tcfg.Environment),
		zap.String("host", host),
	)

	closer := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closer, nil
}

// levelCore applies the configured minimum level to a core that has none.
type levelCore struct {
	zapcore.Core
	level zapcore.Level
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return l >= c.level && c.Core.Enabled(l)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}
