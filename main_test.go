package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/platformbuilds/otel-payment-simulator/internal/payment"
)

const quietConfig = `
telemetry:
  outputs: []
logging:
  output: nop
simulation:
  seed: 5
policy:
  base_delay_min_ms: 1
  base_delay_max_ms: 2
  bank_transfer_min_ms: 1
  bank_transfer_max_ms: 2
  spike_percent: 0
`

func writeQuietConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(quietConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSimulateCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"simulate", "--config", writeQuietConfig(t), "--env-file", "", "--count", "3"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	var res payment.BatchResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if res.TotalSimulated != 3 || len(res.Results) != 3 {
		t.Fatalf("expected 3 simulated payments, got %+v", res)
	}
	if res.Successful+res.Failed != 3 {
		t.Fatalf("outcomes must add up, got %+v", res)
	}
	if res.Results[0].TraceID == "" {
		t.Fatalf("expected batch results to carry the command span trace id")
	}
}

func TestSimulateCommand_RejectsNegativeCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--config", writeQuietConfig(t), "--count", "-1"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected error for negative count")
	}
}

func TestRootCommand_BadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestNewApp_wiresInstruments(t *testing.T) {
	cfg, err := LoadConfig(writeQuietConfig(t))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg.Simulation.Spikes = SpikeConfig{Bursts: []Burst{{Start: "0s", Duration: "1m", Multiplier: 2}}}

	a, err := newApp(context.Background(), cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if !a.registry.Has("payment_count_total") || !a.registry.Has("payment_active_requests") {
		t.Fatalf("expected payment instruments to be registered")
	}
	if a.server().Handler() == nil {
		t.Fatalf("expected an http handler")
	}
}

func TestWithout(t *testing.T) {
	got := without([]string{"otlp", "prometheus", "stdout"}, "prometheus")
	if len(got) != 2 || got[0] != "otlp" || got[1] != "stdout" {
		t.Fatalf("unexpected result: %v", got)
	}
}
