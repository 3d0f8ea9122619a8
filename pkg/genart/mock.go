package genart

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMockUnavailable is returned by a zero-value Mock with no funcs set.
var ErrMockUnavailable = errors.New("genart: mock has no generate func")

// Mock implements Generator for testing.
// All methods can be customized via function fields.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, a marker image derived from the target is returned.
	GenerateFunc func(ctx context.Context, req Request) (*Result, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Generate invocation for verification.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMock creates a mock that answers every request with a small synthetic
// image tagged with the target sector name.
func NewMock() *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, req Request) (*Result, error) {
			name := req.Target.Name()
			return &Result{
				Image:        []byte("generated:" + name),
				TargetSector: name,
				Prompt:       "mock prompt",
				Latency:      time.Millisecond,
			}, nil
		},
	}
}

// Generate calls GenerateFunc and records the call.
func (m *Mock) Generate(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: req, Time: time.Now()})
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return nil, ErrMockUnavailable
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close releases nothing.
func (m *Mock) Close() error {
	return nil
}

// Calls returns all recorded Generate calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, req Request) (*Result, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// WithLatency wraps a mock so Generate waits before answering, honoring
// context cancellation. Useful for exercising in-flight guard logic.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner := m.GenerateFunc
	m.GenerateFunc = func(ctx context.Context, req Request) (*Result, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if inner != nil {
			return inner(ctx, req)
		}
		return nil, ErrMockUnavailable
	}
	return m
}

// Verify Mock implements Generator at compile time.
var _ Generator = (*Mock)(nil)
