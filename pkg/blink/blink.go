// Package blink classifies a noisy per-sample eye signal into discrete
// blink states.
//
// Sources normalize their raw signal so that higher means "more open"
// (Pupil-style confidence directly, Aria-style depth inverted) before it
// enters the detector. The detector smooths the signal with an exponential
// moving average and applies hysteresis: the close threshold sits below the
// open threshold so the state cannot chatter around a single boundary, and a
// transition into Closed is latched for a minimum hold duration to debounce
// partial blinks.
//
// Downstream logic reacts to edges, not levels: register an OnEdge callback
// and watch for transitions into StateClosed.
package blink

import (
	"fmt"
	"log/slog"
	"time"
)

// State is the discrete eyelid state.
type State int

const (
	// StateOpen means the eye is fully open.
	StateOpen State = iota
	// StateClosing means the smoothed signal has dropped below the open
	// threshold but not yet below the close threshold.
	StateClosing
	// StateClosed means a blink is in progress. The only legal exit is
	// back to StateOpen, after the hold duration has elapsed.
	StateClosed
)

// String returns the lowercase state name used in telemetry payloads.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState converts a wire label back into a State. Sources that
// classify blinks themselves publish these labels instead of raw signal.
func ParseState(s string) (State, error) {
	switch s {
	case "open":
		return StateOpen, nil
	case "closing":
		return StateClosing, nil
	case "closed":
		return StateClosed, nil
	}
	return StateOpen, fmt.Errorf("blink: unknown state %q", s)
}

// Edge is a timestamped state transition.
type Edge struct {
	From     State
	To       State
	At       time.Time
	Filtered float64
}

// Inference is the per-sample detector output.
type Inference struct {
	State      State
	Confidence float64
	Filtered   float64
}

// Config holds detector tuning.
type Config struct {
	// CloseBelow is the smoothed-signal level at or below which the eye
	// is considered closed. Must be less than OpenAbove.
	CloseBelow float64

	// OpenAbove is the smoothed-signal level at or above which a closed
	// eye is considered open again.
	OpenAbove float64

	// Hold is the minimum time spent in StateClosed before a transition
	// back to StateOpen is honored.
	Hold time.Duration

	// EMAAlpha is the smoothing factor in (0,1]; 0 disables smoothing.
	EMAAlpha float64
}

// DefaultConfig returns the tuning used with Pupil-style confidence signals.
func DefaultConfig() Config {
	return Config{
		CloseBelow: 0.35,
		OpenAbove:  0.55,
		Hold:       120 * time.Millisecond,
		EMAAlpha:   0.3,
	}
}

// Validate checks threshold ordering and ranges.
func (c Config) Validate() error {
	if c.OpenAbove <= c.CloseBelow {
		return fmt.Errorf("blink: open threshold %.3f must be greater than close threshold %.3f", c.OpenAbove, c.CloseBelow)
	}
	if c.EMAAlpha < 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("blink: EMA alpha %.3f out of range [0,1]", c.EMAAlpha)
	}
	if c.Hold < 0 {
		return fmt.Errorf("blink: hold duration must not be negative")
	}
	return nil
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock injects a time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// Detector smooths and classifies the blink signal.
// It is not safe for concurrent use; the owning session serializes calls.
type Detector struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	filtered   float64
	primed     bool
	state      State
	lastChange time.Time
	onEdge     func(Edge)
}

// New creates a Detector. The initial state is StateOpen and the filter
// starts at the open threshold, matching an eyes-open viewer at startup.
func New(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		filtered: cfg.OpenAbove,
		state:    StateOpen,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastChange = d.now()
	return d, nil
}

// OnEdge registers the edge callback. Only one callback is supported;
// registering again replaces the previous one.
func (d *Detector) OnEdge(fn func(Edge)) {
	d.onEdge = fn
}

// State returns the current classified state.
func (d *Detector) State() State {
	return d.state
}

// Update feeds one raw sample and returns the resulting inference.
// Edges are delivered synchronously before Update returns.
func (d *Detector) Update(value float64) Inference {
	if d.cfg.EMAAlpha == 0 || !d.primed {
		d.filtered = value
		d.primed = true
	} else {
		a := d.cfg.EMAAlpha
		d.filtered = (1-a)*d.filtered + a*value
	}

	now := d.now()
	next := d.state
	switch d.state {
	case StateOpen:
		if d.filtered <= d.cfg.CloseBelow {
			next = StateClosed
		} else if d.filtered < d.cfg.OpenAbove {
			next = StateClosing
		}
	case StateClosing:
		if d.filtered <= d.cfg.CloseBelow {
			next = StateClosed
		} else if d.filtered >= d.cfg.OpenAbove {
			next = StateOpen
		}
	case StateClosed:
		// Latched: ignore fluctuation until the hold time has passed.
		if now.Sub(d.lastChange) >= d.cfg.Hold && d.filtered >= d.cfg.OpenAbove {
			next = StateOpen
		}
	}

	if next != d.state {
		edge := Edge{From: d.state, To: next, At: now, Filtered: d.filtered}
		d.state = next
		d.lastChange = now
		d.logger.Debug("blink edge", "from", edge.From.String(), "to", edge.To.String(), "filtered", edge.Filtered)
		if d.onEdge != nil {
			d.onEdge(edge)
		}
	}

	return Inference{State: d.state, Confidence: d.confidence(), Filtered: d.filtered}
}

// confidence maps the filtered value's distance from the thresholds onto
// [0.2, 1.0], mirroring the heuristic used by the original detector.
func (d *Detector) confidence() float64 {
	span := d.cfg.OpenAbove - d.cfg.CloseBelow
	if span < 1e-6 {
		span = 1e-6
	}
	normalized := (d.filtered - d.cfg.CloseBelow) / span
	if normalized < 0 {
		normalized = 0
	} else if normalized > 1 {
		normalized = 1
	}
	if d.state == StateOpen {
		return 0.2 + 0.8*normalized
	}
	return 0.2 + 0.8*(1-normalized)
}
