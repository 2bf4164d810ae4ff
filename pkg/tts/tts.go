// Package tts turns reply text into speech.
//
// Two shapes are supported. A Provider synthesizes a whole reply and returns
// a URL where the rendered audio can be fetched. A Streamer opens a
// bidirectional session with the speech service: the caller sends the voice
// configuration and the text, then reads audio events until the service
// signals the end of the turn.
//
// Example usage:
//
//	murf := tts.NewMurf(tts.WithAPIKey(os.Getenv("MURF_API_KEY")))
//	url, err := murf.Synthesize(ctx, "Hi, Barbie!", tts.DefaultVoice())
//
//	stream, err := tts.NewMurfStreamer(tts.WithAPIKey(key)).OpenStream(ctx, voice)
//	defer stream.Close()
//	stream.SendVoiceConfig()
//	stream.SendText("Hi, Barbie!", sessionID, true)
//	for {
//	    ev, err := stream.Recv()
//	    ...
//	}
package tts

import "context"

// Provider synthesizes complete replies.
type Provider interface {
	// Synthesize renders text with voice and returns the audio URL.
	Synthesize(ctx context.Context, text string, voice Voice) (string, error)
}

// Streamer opens streaming synthesis sessions.
type Streamer interface {
	// OpenStream connects to the speech service. The returned Stream must
	// be closed by the caller.
	OpenStream(ctx context.Context, voice Voice) (Stream, error)
}

// Stream is one upstream streaming session. Recv may be called from a
// different goroutine than Close; Close unblocks a pending Recv.
type Stream interface {
	// SendVoiceConfig sends the voice the stream was opened with.
	SendVoiceConfig() error

	// SendText sends text for synthesis. end marks the end of the turn.
	SendText(text, contextID string, end bool) error

	// Recv blocks for the next event. It returns *ProtocolError when the
	// upstream ends without a final marker or sends a malformed frame, and
	// ErrStreamClosed after Close.
	Recv() (Event, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// EventType identifies an upstream event.
type EventType int

const (
	// EventAudio carries one base64 encoded audio chunk.
	EventAudio EventType = iota + 1

	// EventFinished marks the end of the turn's audio.
	EventFinished

	// EventError reports a provider side failure.
	EventError
)

// String returns a readable name for logs.
func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "audio"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded upstream message.
type Event struct {
	Type EventType

	// Audio is the base64 payload for EventAudio, passed through untouched.
	Audio string

	// Message is the provider's description for EventError.
	Message string
}

// AudioEvent builds an EventAudio.
func AudioEvent(b64 string) Event { return Event{Type: EventAudio, Audio: b64} }

// FinishedEvent builds an EventFinished.
func FinishedEvent() Event { return Event{Type: EventFinished} }

// ErrorEvent builds an EventError.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Message: msg} }

// Voice selects how text is rendered.
type Voice struct {
	// ID is the provider voice id (e.g. en-US-teresa).
	ID string

	// Style is the speaking style (e.g. Conversational).
	Style string

	// Rate, Pitch and Variation are provider specific adjustments.
	Rate      int
	Pitch     int
	Variation int

	// Format is the audio container (MP3, WAV).
	Format string

	// SampleRate in Hz, used by streaming sessions.
	SampleRate int

	// Channel is MONO or STEREO, used by streaming sessions.
	Channel string
}

// DefaultVoice returns the stylist voice.
func DefaultVoice() Voice {
	return Voice{
		ID:         "en-US-teresa",
		Style:      "Conversational",
		Variation:  1,
		Format:     "MP3",
		SampleRate: 44100,
		Channel:    "MONO",
	}
}
