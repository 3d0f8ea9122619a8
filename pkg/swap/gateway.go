package swap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ubicomp-capstone/gazepatch/pkg/genart"
	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the structured logger.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithGatewayClock injects the time source. Used by tests.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithEventSink sets the session event sink.
func WithEventSink(sink EventSink) GatewayOption {
	return func(g *Gateway) {
		g.events = sink
	}
}

// Gateway sequences generation requests. It guarantees at most one
// outstanding modification: either a request in flight or an installed
// PendingSwap, never both, never two of either.
//
// Each request carries a uuid token. When the token held by the Gateway
// changes (a reset superseded the request), the late result is dropped
// on arrival instead of installed.
type Gateway struct {
	gen     genart.Generator
	display *DisplayState
	logger  *slog.Logger
	events  EventSink
	now     func() time.Time

	mu       sync.Mutex
	inflight bool
	token    uuid.UUID
	pending  *PendingSwap

	// done is signaled after each request goroutine finishes.
	// Tests use it to wait without polling.
	done chan struct{}
}

// NewGateway creates a gateway issuing requests against gen and reading
// the base image from display.
func NewGateway(gen genart.Generator, display *DisplayState, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		gen:     gen,
		display: display,
		logger:  slog.Default().With("component", "gateway"),
		events:  nopSink{},
		now:     time.Now,
		done:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Outstanding reports whether a request is in flight or a swap is
// pending. The fixation controller checks this before triggering.
func (g *Gateway) Outstanding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight || g.pending != nil
}

// Pending returns the installed swap, or nil.
func (g *Gateway) Pending() *PendingSwap {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Request issues one asynchronous generation for the trigger. It returns
// false without side effects when a request or swap is already
// outstanding. Failures clear the in-flight flag and are not retried;
// the next fixation trigger may attempt again.
func (g *Gateway) Request(ctx context.Context, trigger sector.Trigger) bool {
	g.mu.Lock()
	if g.inflight || g.pending != nil {
		g.mu.Unlock()
		g.logger.Debug("trigger dropped, request outstanding",
			"focus", trigger.Focus.Name(),
		)
		return false
	}
	token := uuid.New()
	g.inflight = true
	g.token = token
	g.mu.Unlock()

	g.logger.Info("generation requested",
		"focus", trigger.Focus.Name(),
		"target", trigger.Target.Name(),
		"token", token.String(),
	)
	g.events.Record("generation_requested", map[string]any{
		"focus":  trigger.Focus.Name(),
		"target": trigger.Target.Name(),
	})

	go g.run(ctx, token, trigger)
	return true
}

func (g *Gateway) run(ctx context.Context, token uuid.UUID, trigger sector.Trigger) {
	defer g.signalDone()

	result, err := g.gen.Generate(ctx, genart.Request{
		Image:  g.display.Image(),
		Focus:  trigger.Focus.CenterPoint(),
		Target: trigger.Target,
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != token {
		g.logger.Info("stale generation result discarded", "token", token.String())
		g.events.Record("generation_discarded", map[string]any{
			"target": trigger.Target.Name(),
		})
		return
	}
	g.inflight = false

	if err != nil {
		g.logger.Error("generation failed",
			"target", trigger.Target.Name(),
			"error", err,
		)
		g.events.Record("generation_failed", map[string]any{
			"target": trigger.Target.Name(),
			"error":  err.Error(),
		})
		return
	}

	g.pending = &PendingSwap{
		Image:        result.Image,
		TargetSector: trigger.Target,
		FocusSector:  trigger.Focus,
		Token:        token,
		CreatedAt:    g.now(),
	}
	g.logger.Info("swap pending",
		"target", trigger.Target.Name(),
		"bytes", len(result.Image),
		"latency_ms", result.Latency.Milliseconds(),
	)
	g.events.Record("generation_succeeded", map[string]any{
		"target":     trigger.Target.Name(),
		"latency_ms": result.Latency.Milliseconds(),
	})
}

// Reset supersedes any outstanding work. A request still in flight keeps
// running but its result is discarded on arrival; an installed swap is
// dropped. Called on session reset and calibration changes.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = uuid.New()
	g.inflight = false
	g.pending = nil
}

// take removes and returns the pending swap while holding the lock
// closure. The Gate uses it to make the commit decision atomic with
// respect to new results.
func (g *Gateway) take(decide func(p *PendingSwap) bool) *PendingSwap {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || !decide(g.pending) {
		return nil
	}
	p := g.pending
	g.pending = nil
	return p
}

func (g *Gateway) signalDone() {
	select {
	case g.done <- struct{}{}:
	default:
	}
}

// Wait blocks until any in-flight request goroutine finishes or ctx is
// done. A parked pending swap does not count; it settles only via the
// Gate. Exists for tests and shutdown.
func (g *Gateway) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		inflight := g.inflight
		g.mu.Unlock()
		if !inflight {
			return nil
		}
		select {
		case <-g.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
