package recognition

import (
	"context"
	"sync"

	"github.com/teslashibe/go-lpr/pkg/capture"
)

// Mock implements Recognizer for testing.
type Mock struct {
	// RecognizeFunc is called when Recognize is invoked.
	RecognizeFunc func(ctx context.Context, frame *capture.Frame) ([]Candidate, error)

	mu    sync.Mutex
	calls int
}

// NewMock returns a Mock that never finds a plate.
func NewMock() *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *capture.Frame) ([]Candidate, error) {
			return nil, nil
		},
	}
}

// WithCandidates returns a Mock that always reports cands.
func WithCandidates(cands ...Candidate) *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *capture.Frame) ([]Candidate, error) {
			out := make([]Candidate, len(cands))
			copy(out, cands)
			return out, nil
		},
	}
}

// WithError returns a Mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		RecognizeFunc: func(ctx context.Context, frame *capture.Frame) ([]Candidate, error) {
			return nil, WrapError("mock", err)
		},
	}
}

// Recognize calls RecognizeFunc and records the call.
func (m *Mock) Recognize(ctx context.Context, frame *capture.Frame) ([]Candidate, error) {
	m.mu.Lock()
	m.calls++
	fn := m.RecognizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return nil, nil
}

// Calls returns how many recognitions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
