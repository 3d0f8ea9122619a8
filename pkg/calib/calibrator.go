package calib

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoCapture is returned when SolveCapture runs without a capture session.
var ErrNoCapture = errors.New("calib: no capture session in progress")

// PersistedState is the opaque calibration state stored across sessions.
type PersistedState struct {
	Transform   Transform `json:"transform"`
	SampleCount int       `json:"sample_count"`
}

// Store persists calibration state. A nil state from Load means no
// calibration has ever been saved.
type Store interface {
	LoadCalibration() (*PersistedState, error)
	SaveCalibration(PersistedState) error
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calibrator) {
		c.logger = logger
	}
}

// Calibrator owns the active transform and the capture session.
//
// Apply is called on every gaze sample, so reads take an RLock; the
// transform is only ever replaced whole, after a solve fully completes.
type Calibrator struct {
	mu          sync.RWMutex
	transform   Transform
	sampleCount int
	capture     []Sample
	capturing   bool

	store  Store
	logger *slog.Logger
}

// NewCalibrator creates a Calibrator, loading persisted state from store.
// Absent or malformed state falls back to identity; a load failure is
// logged, never fatal, because an uncalibrated session is still runnable.
func NewCalibrator(store Store, opts ...Option) *Calibrator {
	c := &Calibrator{
		transform: Identity(),
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if store != nil {
		state, err := store.LoadCalibration()
		switch {
		case err != nil:
			c.logger.Warn("calibration load failed, using identity", "error", err)
		case state != nil:
			c.transform = state.Transform
			c.sampleCount = state.SampleCount
			c.logger.Info("calibration restored", "samples", state.SampleCount)
		}
	}
	return c
}

// Apply corrects a raw gaze point through the active transform.
func (c *Calibrator) Apply(p Point) Point {
	c.mu.RLock()
	t := c.transform
	c.mu.RUnlock()
	return t.Apply(p)
}

// Transform returns the active transform.
func (c *Calibrator) Transform() Transform {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transform
}

// SampleCount returns how many samples produced the active transform.
// Zero means the identity default is in effect.
func (c *Calibrator) SampleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleCount
}

// BeginCapture starts a capture session, discarding any in-progress one.
func (c *Calibrator) BeginCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = c.capture[:0]
	c.capturing = true
}

// AddSample records one (measured, target) pair and returns the count so
// far. Samples added outside a capture session are ignored.
func (c *Calibrator) AddSample(s Sample) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return 0
	}
	c.capture = append(c.capture, s)
	return len(c.capture)
}

// SolveCapture finishes the capture session and installs the result.
// On any solve error the previous transform stays active.
func (c *Calibrator) SolveCapture() (Transform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return c.transform, ErrNoCapture
	}
	samples := c.capture
	c.capturing = false
	return c.solveLocked(samples)
}

// SolveSamples solves an operator-supplied sample list directly (the
// capture UI delivers the finished list in one request) and installs the
// result. On error the previous transform stays active.
func (c *Calibrator) SolveSamples(samples []Sample) (Transform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solveLocked(samples)
}

func (c *Calibrator) solveLocked(samples []Sample) (Transform, error) {
	t, err := Solve(samples)
	if err != nil {
		c.logger.Warn("calibration solve failed, keeping previous transform",
			"samples", len(samples), "error", err)
		return c.transform, err
	}
	c.transform = t
	c.sampleCount = len(samples)
	c.persistLocked()
	c.logger.Info("calibration installed", "samples", len(samples))
	return t, nil
}

// Reset restores the identity transform and persists it.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transform = Identity()
	c.sampleCount = 0
	c.capturing = false
	c.capture = nil
	c.persistLocked()
}

func (c *Calibrator) persistLocked() {
	if c.store == nil {
		return
	}
	state := PersistedState{Transform: c.transform, SampleCount: c.sampleCount}
	if err := c.store.SaveCalibration(state); err != nil {
		c.logger.Error("calibration persist failed", "error", err)
	}
}
