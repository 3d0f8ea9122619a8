package sector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(2000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type pendingStub struct {
	busy bool
}

func (p *pendingStub) Outstanding() bool {
	return p.busy
}

const testDwell = 800 * time.Millisecond

func newTestController(pending PendingChecker) (*Controller, *fakeClock, *[]Trigger) {
	clock := newFakeClock()
	triggers := &[]Trigger{}
	c := NewController(testDwell, pending,
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(7))),
	)
	c.OnTrigger(func(tr Trigger) { *triggers = append(*triggers, tr) })
	return c, clock, triggers
}

// gazeAt returns a point inside the given sector.
func gazeAt(s Sector) calib.Point {
	return s.CenterPoint()
}

func TestController_TriggersAfterDwell(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	topLeft := Sector{Row: 0, Col: 0}
	c.Observe(gazeAt(topLeft))
	clock.Advance(testDwell - time.Millisecond)
	c.Observe(gazeAt(topLeft))
	if len(*triggers) != 0 {
		t.Fatalf("triggered before dwell threshold: %+v", *triggers)
	}

	clock.Advance(2 * time.Millisecond)
	c.Observe(gazeAt(topLeft))
	if len(*triggers) != 1 {
		t.Fatalf("expected one trigger, got %d", len(*triggers))
	}
	tr := (*triggers)[0]
	if tr.Focus != topLeft {
		t.Errorf("focus = %v, want %v", tr.Focus, topLeft)
	}
	if want := (Sector{Row: 2, Col: 2}); tr.Target != want {
		t.Errorf("target = %v, want %v", tr.Target, want)
	}
}

func TestController_TriggerFiresOncePerDwell(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	s := Sector{Row: 1, Col: 0}
	c.Observe(gazeAt(s))
	for i := 0; i < 10; i++ {
		clock.Advance(testDwell)
		c.Observe(gazeAt(s))
	}
	if len(*triggers) != 1 {
		t.Errorf("latch failed: %d triggers for one dwell", len(*triggers))
	}
}

func TestController_SectorChangeResetsDwell(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	c.Observe(gazeAt(Sector{Row: 0, Col: 0}))
	clock.Advance(testDwell / 2)
	c.Observe(gazeAt(Sector{Row: 2, Col: 2}))
	clock.Advance(testDwell / 2)
	c.Observe(gazeAt(Sector{Row: 2, Col: 2}))
	if len(*triggers) != 0 {
		t.Errorf("dwell carried across sector change: %+v", *triggers)
	}

	clock.Advance(testDwell / 2)
	c.Observe(gazeAt(Sector{Row: 2, Col: 2}))
	if len(*triggers) != 1 {
		t.Errorf("expected trigger after full dwell in new sector, got %d", len(*triggers))
	}
}

func TestController_PendingSuppressesTrigger(t *testing.T) {
	pending := &pendingStub{busy: true}
	c, clock, triggers := newTestController(pending)

	s := Sector{Row: 0, Col: 2}
	c.Observe(gazeAt(s))
	clock.Advance(testDwell)
	c.Observe(gazeAt(s))
	if len(*triggers) != 0 {
		t.Fatalf("trigger fired while generation outstanding")
	}

	// Once the slot frees up, the continuing dwell may fire.
	pending.busy = false
	c.Observe(gazeAt(s))
	if len(*triggers) != 1 {
		t.Errorf("expected trigger after slot freed, got %d", len(*triggers))
	}
}

func TestController_InvalidateResetsToIdle(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	s := Sector{Row: 2, Col: 0}
	c.Observe(gazeAt(s))
	clock.Advance(testDwell)
	c.Invalidate()
	if _, tracking := c.Current(); tracking {
		t.Error("still tracking after Invalidate")
	}

	// Dwell must restart from scratch when gaze returns.
	c.Observe(gazeAt(s))
	c.Observe(gazeAt(s))
	if len(*triggers) != 0 {
		t.Errorf("stale dwell survived invalidation: %+v", *triggers)
	}
	clock.Advance(testDwell)
	c.Observe(gazeAt(s))
	if len(*triggers) != 1 {
		t.Errorf("expected trigger after fresh dwell, got %d", len(*triggers))
	}
}

func TestController_ClearLatchStartsNewCycle(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	s := Sector{Row: 0, Col: 0}
	c.Observe(gazeAt(s))
	clock.Advance(testDwell)
	c.Observe(gazeAt(s))
	if len(*triggers) != 1 {
		t.Fatalf("expected first trigger, got %d", len(*triggers))
	}

	c.ClearLatch()
	// Immediately after the latch clears, dwell restarts; no instant retrigger.
	c.Observe(gazeAt(s))
	if len(*triggers) != 1 {
		t.Fatalf("retriggered without a fresh dwell")
	}
	clock.Advance(testDwell)
	c.Observe(gazeAt(s))
	if len(*triggers) != 2 {
		t.Errorf("expected second trigger after fresh dwell, got %d", len(*triggers))
	}
}

func TestController_CenterFixationTargetsCorner(t *testing.T) {
	c, clock, triggers := newTestController(nil)

	c.Observe(gazeAt(Center))
	clock.Advance(testDwell)
	c.Observe(gazeAt(Center))
	if len(*triggers) != 1 {
		t.Fatalf("expected trigger, got %d", len(*triggers))
	}
	target := (*triggers)[0].Target
	isCorner := false
	for _, corner := range Corners {
		if target == corner {
			isCorner = true
		}
	}
	if !isCorner {
		t.Errorf("center fixation targeted %v, want a corner", target)
	}
}
