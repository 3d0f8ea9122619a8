package feed

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// SimConfig tunes the simulated source.
type SimConfig struct {
	// Hz is the sample rate.
	Hz float64

	// BlinkInterval is how often a synthetic blink occurs.
	BlinkInterval time.Duration

	// BlinkDuration is how long the eye stays shut per blink.
	BlinkDuration time.Duration
}

// DefaultSimConfig matches a mid-range eye tracker.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Hz:            120,
		BlinkInterval: 2 * time.Second,
		BlinkDuration: 150 * time.Millisecond,
	}
}

// Simulated produces a synthetic gaze sweep with periodic blinks. It
// exists so the whole pipeline can run on a bench with no tracker
// attached.
//
// Gaze follows two incommensurate sine waves so the point wanders
// through every sector over time. The blink signal sits near fully open
// and drops sharply during each synthetic blink.
type Simulated struct {
	cfg    SimConfig
	logger *slog.Logger
}

// NewSimulated creates a simulated source.
func NewSimulated(cfg SimConfig, logger *slog.Logger) *Simulated {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultSimConfig().Hz
	}
	if cfg.BlinkInterval <= 0 {
		cfg.BlinkInterval = DefaultSimConfig().BlinkInterval
	}
	if cfg.BlinkDuration <= 0 {
		cfg.BlinkDuration = DefaultSimConfig().BlinkDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{cfg: cfg, logger: logger.With("component", "simfeed")}
}

// Run pushes samples until ctx is done.
func (s *Simulated) Run(ctx context.Context, sink Sink) error {
	interval := time.Duration(float64(time.Second) / s.cfg.Hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("simulated feed running", "hz", s.cfg.Hz)
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sink.HandleSample(s.sampleAt(start, now))
		}
	}
}

// sampleAt computes the synthetic sample for elapsed time now-start.
func (s *Simulated) sampleAt(start, now time.Time) Sample {
	elapsed := now.Sub(start).Seconds()

	x := 0.5 + 0.45*math.Sin(2*math.Pi*elapsed/11.0)
	y := 0.5 + 0.45*math.Sin(2*math.Pi*elapsed/7.0)

	raw := 0.95
	sinceBlink := now.Sub(start) % s.cfg.BlinkInterval
	if sinceBlink < s.cfg.BlinkDuration {
		raw = 0.05
	}

	return Sample{
		At:    now,
		Gaze:  &Gaze{X: x, Y: y, Confidence: 1, Valid: true},
		Blink: &BlinkSignal{Raw: raw},
	}
}

// Close releases nothing.
func (s *Simulated) Close() error {
	return nil
}
