package tts

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns a fixed URL.
	SynthesizeFunc func(ctx context.Context, text string, voice Voice) (string, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Synthesize invocation for verification.
type MockCall struct {
	Text  string
	Voice Voice
}

// NewMock creates a mock that always returns audioURL.
func NewMock(audioURL string) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string, voice Voice) (string, error) {
			return audioURL, nil
		},
	}
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string, voice Voice) (string, error) {
			return "", err
		},
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string, voice Voice) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Voice: voice})
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voice)
	}
	return "https://audio.example/mock.mp3", nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Synthesize calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockStreamer implements Streamer for testing. Each OpenStream call gets a
// fresh stream from Script.
type MockStreamer struct {
	// Script builds the stream returned by OpenStream.
	Script func() *ScriptedStream

	// OpenErr, when set, makes every OpenStream call fail.
	OpenErr error

	mu      sync.Mutex
	streams []*ScriptedStream
	voices  []Voice
}

// NewMockStreamer returns a streamer whose streams replay events and then
// end normally. Include FinishedEvent() in events for a clean turn.
func NewMockStreamer(events ...Event) *MockStreamer {
	return &MockStreamer{
		Script: func() *ScriptedStream { return NewScriptedStream(events...) },
	}
}

// FailingStreamer returns a streamer whose OpenStream always fails with err.
func FailingStreamer(err error) *MockStreamer {
	return &MockStreamer{OpenErr: err}
}

// OpenStream returns the next scripted stream.
func (m *MockStreamer) OpenStream(ctx context.Context, voice Voice) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = append(m.voices, voice)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	s := NewScriptedStream()
	if m.Script != nil {
		s = m.Script()
	}
	m.streams = append(m.streams, s)
	return s, nil
}

// Streams returns every stream opened so far.
func (m *MockStreamer) Streams() []*ScriptedStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ScriptedStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// OpenCount returns the number of OpenStream calls, failed ones included.
func (m *MockStreamer) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// SentText records one SendText call.
type SentText struct {
	Text      string
	ContextID string
	End       bool
}

// ScriptedStream replays a fixed list of events. Once they are exhausted
// Recv returns the configured end error, or blocks until Close when none is
// set.
type ScriptedStream struct {
	mu           sync.Mutex
	events       []Event
	next         int
	end          error
	voiceConfigs int
	texts        []SentText
	closed       chan struct{}
	closeOnce    sync.Once
}

// NewScriptedStream creates a stream that replays events.
func NewScriptedStream(events ...Event) *ScriptedStream {
	return &ScriptedStream{
		events: events,
		closed: make(chan struct{}),
	}
}

// EndWith sets the error Recv returns after the last event.
func (s *ScriptedStream) EndWith(err error) *ScriptedStream {
	s.end = err
	return s
}

// EndAbruptly makes the stream behave like an upstream that hangs up
// without a final marker.
func (s *ScriptedStream) EndAbruptly() *ScriptedStream {
	return s.EndWith(&ProtocolError{Reason: "connection closed before final marker"})
}

func (s *ScriptedStream) SendVoiceConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return ErrStreamClosed
	}
	s.voiceConfigs++
	return nil
}

func (s *ScriptedStream) SendText(text, contextID string, end bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return ErrStreamClosed
	}
	s.texts = append(s.texts, SentText{Text: text, ContextID: contextID, End: end})
	return nil
}

func (s *ScriptedStream) Recv() (Event, error) {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return Event{}, ErrStreamClosed
	}
	if s.next < len(s.events) {
		ev := s.events[s.next]
		s.next++
		s.mu.Unlock()
		return ev, nil
	}
	end := s.end
	s.mu.Unlock()

	if end != nil {
		return Event{}, end
	}
	<-s.closed
	return Event{}, ErrStreamClosed
}

func (s *ScriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedStream) Closed() bool {
	return s.isClosed()
}

// VoiceConfigs returns how many times SendVoiceConfig was called.
func (s *ScriptedStream) VoiceConfigs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceConfigs
}

// Texts returns the recorded SendText calls.
func (s *ScriptedStream) Texts() []SentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentText, len(s.texts))
	copy(out, s.texts)
	return out
}

func (s *ScriptedStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Verify mocks implement their interfaces at compile time.
var (
	_ Provider = (*Mock)(nil)
	_ Streamer = (*MockStreamer)(nil)
	_ Stream   = (*ScriptedStream)(nil)
)
