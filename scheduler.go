package main

import (
	"fmt"
	"time"
)

// Burst raises the latency-spike multiplier for a window relative to the
// scheduler start.
type Burst struct {
	Start      string  `yaml:"start"`    // e.g. "5m"
	Duration   string  `yaml:"duration"` // e.g. "30s"
	Multiplier float64 `yaml:"multiplier"`
}

// SpikeConfig configures latency-spike bursts. When Every is set the burst
// windows repeat with that period.
type SpikeConfig struct {
	Every  string  `yaml:"every"`
	Bursts []Burst `yaml:"bursts"`
}

func (c SpikeConfig) enabled() bool {
	return len(c.Bursts) > 0
}

type burstWindow struct {
	start      time.Duration
	end        time.Duration
	multiplier float64
}

// spikeScheduler implements payment.SpikeSchedule.
type spikeScheduler struct {
	start   time.Time
	period  time.Duration
	windows []burstWindow
}

func newSpikeScheduler(cfg SpikeConfig, start time.Time) (*spikeScheduler, error) {
	s := &spikeScheduler{start: start}

	if cfg.Every != "" {
		p, err := time.ParseDuration(cfg.Every)
		if err != nil {
			return nil, fmt.Errorf("spikes.every: %w", err)
		}
		if p <= 0 {
			return nil, fmt.Errorf("spikes.every must be positive, got %s", cfg.Every)
		}
		s.period = p
	}

	for i, b := range cfg.Bursts {
		off, err := time.ParseDuration(b.Start)
		if err != nil {
			return nil, fmt.Errorf("burst %d start: %w", i, err)
		}
		dur, err := time.ParseDuration(b.Duration)
		if err != nil {
			return nil, fmt.Errorf("burst %d duration: %w", i, err)
		}
		if off < 0 || dur <= 0 {
			return nil, fmt.Errorf("burst %d: start must be >= 0 and duration > 0", i)
		}
		if b.Multiplier < 0 {
			return nil, fmt.Errorf("burst %d: negative multiplier %v", i, b.Multiplier)
		}
		if s.period > 0 && off+dur > s.period {
			return nil, fmt.Errorf("burst %d ends after the %s period", i, s.period)
		}
		s.windows = append(s.windows, burstWindow{start: off, end: off + dur, multiplier: b.Multiplier})
	}
	return s, nil
}

// MultiplierAt returns the multiplier of the burst active at t, or 1.
// Overlapping bursts take the largest multiplier.
func (s *spikeScheduler) MultiplierAt(t time.Time) float64 {
	off := t.Sub(s.start)
	if off < 0 {
		return 1
	}
	if s.period > 0 {
		off %= s.period
	}

	mult, hit := 0.0, false
	for _, w := range s.windows {
		if off >= w.start && off < w.end && (!hit || w.multiplier > mult) {
			mult, hit = w.multiplier, true
		}
	}
	if !hit {
		return 1
	}
	return mult
}
