package inference

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// GenerateFunc is called when GenerateReply is invoked.
	// If nil, returns "ok".
	GenerateFunc func(ctx context.Context, history []Message, text string) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a GenerateReply invocation.
type MockCall struct {
	History []Message
	Text    string
}

// NewMock creates a mock that always replies with reply.
func NewMock(reply string) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, history []Message, text string) (string, error) {
			return reply, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, history []Message, text string) (string, error) {
			return "", err
		},
	}
}

// GenerateReply calls GenerateFunc and records the call.
func (m *Mock) GenerateReply(ctx context.Context, history []Message, text string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{History: append([]Message(nil), history...), Text: text})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, history, text)
	}
	return "ok", nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of GenerateReply calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
