package swap

import (
	"log/slog"

	"github.com/ubicomp-capstone/gazepatch/pkg/blink"
	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
)

// Outcome classifies what a blink edge did to the pending swap.
type Outcome int

const (
	// OutcomeNoop means no swap was pending.
	OutcomeNoop Outcome = iota

	// OutcomeCommitted means the pending image replaced the display.
	OutcomeCommitted

	// OutcomeRefused means the viewer was looking at the target
	// sector, so the swap stays pending for a later blink.
	OutcomeRefused

	// OutcomeIgnored means the edge was not a transition into the
	// closed state and the gate did nothing.
	OutcomeIgnored
)

// String returns a label for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeCommitted:
		return "committed"
	case OutcomeRefused:
		return "refused"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the structured logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateEventSink sets the session event sink.
func WithGateEventSink(sink EventSink) GateOption {
	return func(g *Gate) {
		g.events = sink
	}
}

// WithClearLatch registers the callback run after a commit, used to
// clear the fixation trigger latch so a new dwell cycle can begin.
func WithClearLatch(fn func()) GateOption {
	return func(g *Gate) {
		g.clearLatch = fn
	}
}

// Gate decides, on each blink edge, whether the pending swap may be
// committed. The rule: never replace the display while the viewer's
// calibrated gaze sits in the sector that was modified. Eyes must be
// closed and pointed elsewhere.
//
// The gate is edge triggered. Only transitions into the closed state are
// considered; the closed level itself is never polled.
type Gate struct {
	gateway    *Gateway
	display    *DisplayState
	clearLatch func()
	logger     *slog.Logger
	events     EventSink
}

// NewGate wires a gate to the gateway holding pending swaps and the
// display it commits into.
func NewGate(gateway *Gateway, display *DisplayState, opts ...GateOption) *Gate {
	g := &Gate{
		gateway:    gateway,
		display:    display,
		clearLatch: func() {},
		logger:     slog.Default().With("component", "gate"),
		events:     nopSink{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HandleEdge processes one blink transition. current is the viewer's
// latest calibrated gaze sector; gazeValid reports whether that sector
// is trustworthy. When gaze is invalid the gate refuses rather than
// commit blind.
func (g *Gate) HandleEdge(edge blink.Edge, current sector.Sector, gazeValid bool) Outcome {
	if edge.To != blink.StateClosed {
		return OutcomeIgnored
	}

	var refusedTarget sector.Sector
	refused := false
	p := g.gateway.take(func(p *PendingSwap) bool {
		if !gazeValid || current == p.TargetSector {
			refusedTarget = p.TargetSector
			refused = true
			return false
		}
		return true
	})

	switch {
	case p != nil:
		g.display.Replace(p.Image)
		g.clearLatch()
		g.logger.Info("swap committed",
			"target", p.TargetSector.Name(),
			"gaze", current.Name(),
			"version", g.display.Version(),
		)
		g.events.Record("swap_committed", map[string]any{
			"target": p.TargetSector.Name(),
			"gaze":   current.Name(),
		})
		return OutcomeCommitted

	case refused:
		reason := "gaze on target"
		if !gazeValid {
			reason = "gaze invalid"
		}
		g.logger.Debug("swap refused",
			"target", refusedTarget.Name(),
			"gaze", current.Name(),
			"reason", reason,
		)
		g.events.Record("swap_refused", map[string]any{
			"target": refusedTarget.Name(),
			"reason": reason,
		})
		return OutcomeRefused

	default:
		return OutcomeNoop
	}
}
