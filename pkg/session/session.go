// Package session wires the pipeline together for one viewer: blink
// detection, calibration, fixation tracking, generation requests and the
// swap gate all hang off a single session object. Nothing here is a
// global; tests and multi-viewer setups create as many sessions as they
// need.
package session

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ubicomp-capstone/gazepatch/pkg/blink"
	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
	"github.com/ubicomp-capstone/gazepatch/pkg/feed"
	"github.com/ubicomp-capstone/gazepatch/pkg/genart"
	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
	"github.com/ubicomp-capstone/gazepatch/pkg/swap"
)

// Config holds session tuning.
type Config struct {
	// Blink is the detector tuning.
	Blink blink.Config

	// FixationDwell is the dwell threshold before a trigger fires.
	FixationDwell time.Duration

	// ConfidenceThreshold marks gaze samples below it invalid.
	ConfidenceThreshold float64
}

// DefaultConfig returns session defaults matching a bench deployment.
func DefaultConfig() Config {
	return Config{
		Blink:               blink.DefaultConfig(),
		FixationDwell:       1500 * time.Millisecond,
		ConfidenceThreshold: 0.6,
	}
}

// Snapshot is the telemetry view of the session, published after every
// sample and served over the websocket stream.
type Snapshot struct {
	At              time.Time   `json:"ts"`
	BlinkState      string      `json:"blink_state"`
	BlinkConfidence float64     `json:"blink_confidence"`
	FilteredSignal  float64     `json:"filtered_signal"`
	GazeValid       bool        `json:"gaze_valid"`
	Gaze            calib.Point `json:"gaze"`
	Sector          string      `json:"sector"`
	Outstanding     bool        `json:"outstanding"`
	SwapPending     bool        `json:"swap_pending"`
	DisplayVersion  uint64      `json:"display_version"`
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithEventSink sets the sink receiving pipeline events.
func WithEventSink(sink swap.EventSink) Option {
	return func(s *Session) {
		s.events = sink
	}
}

// WithClock injects the time source used by the detector and the
// fixation controller.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithRand injects the random source used for center-fixation targets.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) {
		s.rng = rng
	}
}

// WithTelemetry registers a callback receiving a Snapshot after every
// processed sample. The callback must not block.
func WithTelemetry(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.onTelemetry = fn
	}
}

// Session owns one viewer's pipeline state. HandleSample is the single
// entry point for feed data; a mutex serializes it against the HTTP
// surface, so a Session is safe for concurrent use.
type Session struct {
	cfg         Config
	logger      *slog.Logger
	events      swap.EventSink
	now         func() time.Time
	rng         *rand.Rand
	onTelemetry func(Snapshot)

	ctx        context.Context
	detector   *blink.Detector
	calibrator *calib.Calibrator
	fixation   *sector.Controller
	gateway    *swap.Gateway
	gate       *swap.Gate
	display    *swap.DisplayState

	mu         sync.Mutex
	lastGaze   calib.Point
	lastSector sector.Sector
	gazeValid  bool
	inference  blink.Inference
}

// New builds a fully wired session. ctx bounds the lifetime of
// generation requests issued on behalf of this session.
func New(ctx context.Context, cfg Config, calibrator *calib.Calibrator, gen genart.Generator, display *swap.DisplayState, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:        cfg,
		logger:     slog.Default().With("component", "session"),
		events:     nopSink{},
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:        ctx,
		calibrator: calibrator,
		display:    display,
	}
	for _, opt := range opts {
		opt(s)
	}

	detector, err := blink.New(cfg.Blink,
		blink.WithClock(s.now),
		blink.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.detector = detector
	s.detector.OnEdge(s.handleEdge)

	s.gateway = swap.NewGateway(gen, display,
		swap.WithGatewayLogger(s.logger),
		swap.WithGatewayClock(s.now),
		swap.WithEventSink(s.events),
	)

	s.fixation = sector.NewController(cfg.FixationDwell, s.gateway,
		sector.WithClock(s.now),
		sector.WithRand(s.rng),
		sector.WithLogger(s.logger),
	)
	s.fixation.OnTrigger(s.handleTrigger)

	s.gate = swap.NewGate(s.gateway, display,
		swap.WithGateLogger(s.logger),
		swap.WithGateEventSink(s.events),
		swap.WithClearLatch(s.fixation.ClearLatch),
	)

	return s, nil
}

type nopSink struct{}

func (nopSink) Record(string, map[string]any) {}

// HandleSample processes one feed sample. Blink and gaze parts are
// handled independently so split sources work the same as combined ones.
// The gaze part is applied first: a close edge carried by a combined
// sample must be gated against that same sample's calibrated sector,
// not the previous one.
func (s *Session) HandleSample(sample feed.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.Gaze != nil {
		s.observeGaze(*sample.Gaze)
	}
	if sample.Blink != nil {
		s.applyBlink(*sample.Blink)
	}
	s.publishLocked()
}

// HandleGaze ingests a standalone gaze message from a split source.
func (s *Session) HandleGaze(g feed.Gaze) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeGaze(g)
	s.publishLocked()
}

// HandleBlinkSignal ingests a raw eyelid scalar from a split source.
func (s *Session) HandleBlinkSignal(raw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inference = s.detector.Update(raw)
	s.publishLocked()
}

// HandleBlinkEdge ingests a pre-classified blink state from sources
// that run their own detector and publish edges instead of raw signal.
func (s *Session) HandleBlinkEdge(to blink.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyExternalState(to, 0)
	s.publishLocked()
}

// publishLocked emits a telemetry snapshot. Caller holds s.mu.
func (s *Session) publishLocked() {
	if s.onTelemetry != nil {
		s.onTelemetry(s.snapshotLocked())
	}
}

// applyBlink routes a blink part: raw scalars run through the detector,
// pre-classified state labels are applied as external edges. Caller
// holds s.mu.
func (s *Session) applyBlink(b feed.BlinkSignal) {
	if b.State != "" {
		state, err := blink.ParseState(b.State)
		if err != nil {
			s.logger.Warn("blink message dropped", "error", err)
			return
		}
		s.applyExternalState(state, b.Confidence)
		return
	}
	s.inference = s.detector.Update(b.Raw)
}

// applyExternalState applies a source-classified blink state, emitting
// an edge on change. Zero confidence means the source did not report
// one. Caller holds s.mu.
func (s *Session) applyExternalState(to blink.State, confidence float64) {
	from := s.inference.State
	if to == from {
		return
	}
	if confidence == 0 {
		confidence = 1
	}
	s.inference = blink.Inference{State: to, Confidence: confidence, Filtered: s.inference.Filtered}
	s.handleEdge(blink.Edge{From: from, To: to, At: s.now(), Filtered: s.inference.Filtered})
}

// observeGaze calibrates a gaze sample and advances the fixation state
// machine. Caller holds s.mu.
func (s *Session) observeGaze(g feed.Gaze) {
	if !g.Valid || g.Confidence < s.cfg.ConfidenceThreshold {
		s.gazeValid = false
		s.fixation.Invalidate()
		return
	}
	p := s.calibrator.Apply(calib.Point{X: g.X, Y: g.Y})
	s.lastGaze = p
	s.lastSector = sector.FromPoint(p)
	s.gazeValid = true
	s.fixation.Observe(p)
}

// handleEdge runs synchronously inside detector.Update, so s.mu is held.
func (s *Session) handleEdge(edge blink.Edge) {
	outcome := s.gate.HandleEdge(edge, s.lastSector, s.gazeValid)
	if outcome == swap.OutcomeIgnored {
		return
	}
	s.logger.Debug("blink edge processed",
		"to", edge.To.String(),
		"outcome", outcome.String(),
	)
}

// handleTrigger runs synchronously inside fixation.Observe, so s.mu is
// held. The generation itself runs on its own goroutine in the gateway.
func (s *Session) handleTrigger(t sector.Trigger) {
	s.events.Record("fixation_trigger", map[string]any{
		"focus":  t.Focus.Name(),
		"target": t.Target.Name(),
	})
	s.gateway.Request(s.ctx, t)
}

// Snapshot returns the current telemetry view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		At:              s.now(),
		BlinkState:      s.inference.State.String(),
		BlinkConfidence: s.inference.Confidence,
		FilteredSignal:  s.inference.Filtered,
		GazeValid:       s.gazeValid,
		Gaze:            s.lastGaze,
		Sector:          s.lastSector.Name(),
		Outstanding:     s.gateway.Outstanding(),
		SwapPending:     s.gateway.Pending() != nil,
		DisplayVersion:  s.display.Version(),
	}
}

// Calibrator exposes the calibration state for the HTTP surface.
func (s *Session) Calibrator() *calib.Calibrator {
	return s.calibrator
}

// SolveCalibration installs a new transform from the capture UI's
// finished sample list. A swap or in-flight generation whose fixation
// was computed under the old transform is superseded: committing it
// against the new transform could open a false safe window. The session
// mutex is held across the solve so no blink edge can slip between the
// install and the reset.
func (s *Session) SolveCalibration(samples []calib.Sample) (calib.Transform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.calibrator.SolveSamples(samples)
	if err != nil {
		return t, err
	}
	s.gateway.Reset()
	s.fixation.Invalidate()
	s.gazeValid = false
	s.events.Record("calibration_solved", map[string]any{"samples": len(samples)})
	return t, nil
}

// ClearCalibration resets the transform to identity and drops the state
// that depended on the old one.
func (s *Session) ClearCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calibrator.Reset()
	s.gateway.Reset()
	s.fixation.Invalidate()
	s.gazeValid = false
	s.events.Record("calibration_cleared", nil)
}

// Display exposes the display state for the HTTP surface.
func (s *Session) Display() *swap.DisplayState {
	return s.display
}

// Pending reports the queued swap, or nil.
func (s *Session) Pending() *swap.PendingSwap {
	return s.gateway.Pending()
}

// Reset drops all transient pipeline state: outstanding generation work,
// the pending swap and the fixation dwell. Calibration survives.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway.Reset()
	s.fixation.Invalidate()
	s.gazeValid = false
	s.logger.Info("session reset")
	s.events.Record("session_reset", nil)
}

// Wait blocks until any in-flight generation settles. Used at shutdown.
func (s *Session) Wait(ctx context.Context) error {
	return s.gateway.Wait(ctx)
}
