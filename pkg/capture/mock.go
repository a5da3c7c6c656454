package capture

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// Mock implements Source for testing.
type Mock struct {
	// CaptureFunc is called when Capture is invoked. When nil, Capture
	// returns an empty frame.
	CaptureFunc func(ctx context.Context) (*Frame, error)

	mu    sync.Mutex
	calls int
}

// NewMock returns a Mock that yields blank frames.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a Mock whose every capture fails with err.
func WithError(err error) *Mock {
	return &Mock{
		CaptureFunc: func(ctx context.Context) (*Frame, error) {
			return nil, err
		},
	}
}

// Capture calls CaptureFunc and records the call.
func (m *Mock) Capture(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	m.calls++
	fn := m.CaptureFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return &Frame{Mat: gocv.NewMat(), Path: "mock.jpg"}, nil
}

// Calls returns how many captures were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
