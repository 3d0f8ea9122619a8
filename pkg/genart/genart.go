// Package genart provides a client for the image generation service.
//
// The service is an opaque external collaborator: it receives the current
// base image plus a target grid cell and returns a modified image with the
// change confined to that cell. Typical latency is 2-5 seconds, which is
// why callers issue requests asynchronously and never from the sample path.
//
// Example usage:
//
//	gen, _ := genart.NewClient(
//	    genart.WithBaseURL("http://127.0.0.1:8001"),
//	)
//	defer gen.Close()
//
//	result, _ := gen.Generate(ctx, genart.Request{...})
//	// result.Image contains the modified PNG bytes
package genart

import (
	"context"
	"time"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
	"github.com/ubicomp-capstone/gazepatch/pkg/sector"
)

// Generator is the generation-service interface. The HTTP client and the
// test mock both satisfy it, so pipelines never depend on the transport.
type Generator interface {
	// Generate requests a modification of the target sector. It blocks
	// until the service responds or ctx is done; callers run it on its
	// own goroutine.
	Generate(ctx context.Context, req Request) (*Result, error)

	// Health checks service connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the client.
	Close() error
}

// Request describes one modification request.
type Request struct {
	// Image is the current base image (PNG or JPEG bytes).
	Image []byte

	// Focus is the normalized point the viewer is fixating; the service
	// logs it and keeps the change away from it.
	Focus calib.Point

	// Target is the grid cell to modify.
	Target sector.Sector

	// GridSize is the grid dimension; zero means sector.GridSize.
	GridSize int
}

// Result is a completed generation.
type Result struct {
	// Image is the full modified image returned by the service.
	Image []byte

	// TargetSector is the service's echo of the modified cell name.
	TargetSector string

	// Prompt is the (truncated) prompt the service applied.
	Prompt string

	// Latency is the time from request to last response byte.
	Latency time.Duration
}
