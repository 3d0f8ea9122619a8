// Package swap owns the tail of the pipeline: requesting image
// modifications from the generation service and committing them to the
// display only when a blink makes the change imperceptible.
//
// Two cooperating pieces live here. The Gateway issues at most one
// generation request at a time and parks the result as a PendingSwap.
// The Gate listens to blink edges and decides, per edge, whether the
// pending image may replace the display.
package swap

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
)

// PendingSwap is a completed generation waiting for a safe blink.
// At most one exists at a time.
type PendingSwap struct {
	// Image is the full modified image to install on commit.
	Image []byte

	// TargetSector is the cell the modification was confined to.
	TargetSector sector.Sector

	// FocusSector is the cell the viewer was fixating when the
	// request was issued.
	FocusSector sector.Sector

	// Token ties the swap to the request that produced it. A result
	// arriving with a superseded token is discarded.
	Token uuid.UUID

	// CreatedAt is when the result was installed.
	CreatedAt time.Time
}

// EventSink receives pipeline events for the session log. Implementations
// must not block; writes happen on the pipeline path.
type EventSink interface {
	Record(kind string, detail map[string]any)
}

// nopSink discards events. Used when no sink is configured.
type nopSink struct{}

func (nopSink) Record(string, map[string]any) {}

// DisplayState holds the currently rendered image. Only the Gate's
// commit step replaces it.
type DisplayState struct {
	mu      sync.RWMutex
	image   []byte
	version uint64
}

// NewDisplayState creates a display initialized with the base image.
func NewDisplayState(base []byte) *DisplayState {
	return &DisplayState{image: base}
}

// Image returns the current image bytes. The slice must not be mutated.
func (d *DisplayState) Image() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.image
}

// Version returns a counter that increments on every replacement.
func (d *DisplayState) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Replace installs a new image and bumps the version.
func (d *DisplayState) Replace(image []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.image = image
	d.version++
}
