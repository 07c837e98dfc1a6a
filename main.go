package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
}

func (o *rootOptions) load() (*Config, error) {
	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	cfg, err := LoadConfig(o.configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "paymentsim",
		Short:         "Synthetic payment API that emits traces, metrics and logs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to optional simulator YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(simulateCmd(opts))
	rootCmd.AddCommand(loadgenCmd(opts))
	return rootCmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var rate float64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment HTTP API",
		Long: `Run the payment HTTP API.

Examples:
  paymentsim serve --config simulator-config.yaml
  SIMULATION_RATE=5 paymentsim serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rate") {
				cfg.Simulation.Rate = rate
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", 0, "Background transactions per second (overrides SIMULATION_RATE)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	a, err := newApp(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.logger.Info("Starting payment API",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.Strings("telemetry_outputs", cfg.Telemetry.Outputs),
		zap.Float64("simulation_rate", cfg.Simulation.Rate))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	if cfg.Simulation.Rate > 0 {
		gen := newTrafficGenerator(a.processor, a.rng, a.tracer, a.logger, cfg.Simulation)
		go func() {
			defer close(done)
			if err := gen.Run(ctx); err != nil {
				a.logger.Error("Background traffic failed", zap.Error(err))
			}
		}()
	} else {
		close(done)
	}

	err = a.server().Run(ctx, cfg.Server.ListenAddr)
	cancel()
	<-done
	return err
}

func simulateCmd(opts *rootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Process a batch of random payments and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("count must be non-negative, got %d", count)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, span := a.tracer.Start(cmd.Context(), "SimulatePayments")
			defer span.End()
			sc := span.SpanContext()
			res, err := a.batch.Simulate(ctx, count, payment.TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of payments to simulate")
	return cmd
}

func loadgenCmd(opts *rootOptions) *cobra.Command {
	lo := loadGenOptions{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Send random payments to a running payment API",
		Long: `Send random payments to a running payment API until interrupted
or --count payments were sent.

Examples:
  paymentsim loadgen --url http://localhost:8080
  paymentsim loadgen --count 500 --concurrency 8 --pause-min 0 --pause-max 100ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lo.Count < 0 {
				return fmt.Errorf("count must be non-negative, got %d", lo.Count)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.Telemetry.ServiceName += "-loadgen"
			// the generator has no scrape endpoint
			cfg.Telemetry.Outputs = without(cfg.Telemetry.Outputs, "prometheus")
			a, err := newApp(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			stats := newLoadGenerator(lo, a.rng, a.logger).Run(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.Flags().StringVar(&lo.BaseURL, "url", "http://localhost:8080", "Base URL of the payment API")
	cmd.Flags().IntVarP(&lo.Count, "count", "n", 0, "Payments to send (0 runs until interrupted)")
	cmd.Flags().IntVar(&lo.Concurrency, "concurrency", 1, "Concurrent senders")
	cmd.Flags().DurationVar(&lo.PauseMin, "pause-min", time.Second, "Minimum pause between payments per sender")
	cmd.Flags().DurationVar(&lo.PauseMax, "pause-max", 5*time.Second, "Maximum pause between payments per sender")
	cmd.Flags().DurationVar(&lo.ErrorPause, "error-pause", 5*time.Second, "Pause after a request error")
	cmd.Flags().DurationVar(&lo.Timeout, "timeout", 5*time.Second, "Per-request timeout")
	return cmd
}

func without(list []string, drop string) []string {
	var out []string
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
