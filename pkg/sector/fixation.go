package sector

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

// Trigger is a fixation event: the viewer held focus long enough and the
// opposite sector has been chosen as the modification target.
type Trigger struct {
	Focus  Sector
	Target Sector
	At     time.Time
}

// PendingChecker answers whether a generation or swap is still outstanding.
// While it is, fixation triggers are suppressed so at most one modification
// exists at a time.
type PendingChecker interface {
	Outstanding() bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock injects a time source for deterministic tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// WithRand injects the random source used for center-fixation targets.
func WithRand(rng *rand.Rand) ControllerOption {
	return func(c *Controller) {
		c.rng = rng
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller runs the fixation state machine.
//
// Dwell is measured by comparing timestamps on each observed sample rather
// than by scheduled timers, so the controller stays single-threaded and
// deterministic under an injected clock. It is not safe for concurrent use;
// the owning session serializes calls.
type Controller struct {
	dwell   time.Duration
	now     func() time.Time
	rng     *rand.Rand
	pending PendingChecker
	logger  *slog.Logger

	onTrigger func(Trigger)

	tracking  bool
	current   Sector
	since     time.Time
	triggered bool
}

// NewController creates a fixation controller with the given dwell
// threshold.
func NewController(dwell time.Duration, pending PendingChecker, opts ...ControllerOption) *Controller {
	c := &Controller{
		dwell:   dwell,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pending: pending,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTrigger registers the fixation-trigger callback.
func (c *Controller) OnTrigger(fn func(Trigger)) {
	c.onTrigger = fn
}

// Current returns the sector under observation and whether gaze is valid.
func (c *Controller) Current() (Sector, bool) {
	return c.current, c.tracking
}

// Observe feeds one calibrated, valid gaze point into the state machine.
func (c *Controller) Observe(p calib.Point) {
	now := c.now()
	s := FromPoint(p)

	if !c.tracking || s != c.current {
		c.tracking = true
		c.current = s
		c.since = now
		c.triggered = false
		return
	}

	if c.triggered || now.Sub(c.since) < c.dwell {
		return
	}
	if c.pending != nil && c.pending.Outstanding() {
		return
	}

	c.triggered = true
	trig := Trigger{Focus: s, Target: Opposite(s, c.rng), At: now}
	c.logger.Debug("fixation trigger", "focus", trig.Focus.Name(), "target", trig.Target.Name())
	if c.onTrigger != nil {
		c.onTrigger(trig)
	}
}

// Invalidate resets to idle on loss of valid gaze. A still-outstanding
// generation is untouched; only the dwell state is dropped.
func (c *Controller) Invalidate() {
	c.tracking = false
	c.triggered = false
}

// ClearLatch releases the per-dwell trigger latch and restarts the dwell
// timer, beginning a fresh cycle after a committed swap.
func (c *Controller) ClearLatch() {
	c.triggered = false
	c.since = c.now()
}
