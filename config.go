package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

// Config is the simulator configuration. Values come from defaults, then the
// optional YAML file, then the environment.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Simulation SimulationConfig `yaml:"simulation"`
	Policy     payment.Policy   `yaml:"policy"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig selects exporters and the resource identity.
type TelemetryConfig struct {
	// Outputs is any of "otlp", "stdout", "prometheus".
	Outputs          []string            `yaml:"outputs"`
	Endpoint         string              `yaml:"endpoint"`
	Insecure         bool                `yaml:"insecure"`
	SkipTLSVerify    bool                `yaml:"skip_tls_verify"`
	ServiceName      string              `yaml:"service_name"`
	ServiceVersion   string              `yaml:"service_version"`
	ServiceNamespace string              `yaml:"service_namespace"`
	Environment      string              `yaml:"environment"`
	MetricNames      payment.MetricNames `yaml:"metric_names"`
}

func (t TelemetryConfig) wants(output string) bool {
	for _, o := range t.Outputs {
		if o == output {
			return true
		}
	}
	return false
}

type LoggingConfig struct {
	Output      string `yaml:"output"` // nop|stdout|console
	Level       string `yaml:"level"`
	FileEnabled bool   `yaml:"file_enabled"`
	Directory   string `yaml:"directory"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// SimulationConfig drives the in-process traffic generator.
type SimulationConfig struct {
	// Rate is background transactions per second; 0 disables the generator.
	Rate        float64     `yaml:"rate"`
	Concurrency int         `yaml:"concurrency"`
	Seed        int64       `yaml:"seed"`
	Spikes      SpikeConfig `yaml:"spikes"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Telemetry: TelemetryConfig{
			Outputs:          []string{"otlp", "prometheus"},
			Endpoint:         "localhost:4317",
			Insecure:         true,
			ServiceName:      "payment-api",
			ServiceVersion:   "1.0.0",
			ServiceNamespace: "payments",
			Environment:      "development",
		},
		Logging: LoggingConfig{
			Output:     "stdout",
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		Simulation: SimulationConfig{Concurrency: 10},
		Policy:     payment.DefaultPolicy(),
	}
}

// LoadConfig builds the configuration. path may be empty. envFiles are
// dotenv files loaded into the process environment when present; variables
// already set are not overridden.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Server.ListenAddr = ":" + v
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := getenv("LOG_DIRECTORY"); v != "" {
		c.Logging.Directory = v
	}
	if v := getenv("LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("ENABLE_FILE_LOGGING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENABLE_FILE_LOGGING: %w", err)
		}
		c.Logging.FileEnabled = b
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		c.Telemetry.Insecure = b
	}
	if v := getenv("TELEMETRY_OUTPUTS"); v != "" {
		c.Telemetry.Outputs = splitList(v)
	}
	if v := getenv("SIMULATION_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SIMULATION_RATE: %w", err)
		}
		c.Simulation.Rate = r
	}
	if v := getenv("SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := getenv("SERVICE_VERSION"); v != "" {
		c.Telemetry.ServiceVersion = v
	}
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Telemetry.Environment = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the simulator cannot run with.
func (c *Config) Validate() error {
	for _, o := range c.Telemetry.Outputs {
		switch o {
		case "otlp", "stdout", "prometheus":
		default:
			return fmt.Errorf("telemetry.outputs: unknown output %q", o)
		}
	}
	switch c.Logging.Output {
	case "nop", "stdout", "console":
	default:
		return fmt.Errorf("logging.output: unknown output %q", c.Logging.Output)
	}
	if c.Simulation.Rate < 0 {
		return fmt.Errorf("simulation.rate must be >= 0, got %v", c.Simulation.Rate)
	}
	if c.Simulation.Concurrency <= 0 {
		return fmt.Errorf("simulation.concurrency must be positive, got %d", c.Simulation.Concurrency)
	}
	if _, err := newSpikeScheduler(c.Simulation.Spikes, time.Now()); err != nil {
		return fmt.Errorf("simulation.spikes: %w", err)
	}
	return c.Policy.Validate()
}
