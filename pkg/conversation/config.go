package conversation

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-barbie/pkg/metrics"
	"github.com/teslashibe/go-barbie/pkg/tts"
)

// SynthesisMode selects how replies become audio.
type SynthesisMode string

const (
	// ModeURL synthesizes inside the turn and returns an audio URL.
	ModeURL SynthesisMode = "url"

	// ModeStream leaves synthesis to the streaming socket.
	ModeStream SynthesisMode = "stream"
)

// DefaultFallbackMessage is spoken whenever a turn fails.
const DefaultFallbackMessage = "I'm having trouble connecting right now. Please try again later."

// Config holds orchestrator configuration.
type Config struct {
	// Persona is sent as the system instruction on every call. Never stored.
	Persona string

	// FallbackMessage is the apology returned by failed turns.
	FallbackMessage string

	Mode SynthesisMode

	// Voice renders replies; FallbackVoice renders the apology.
	Voice         tts.Voice
	FallbackVoice tts.Voice

	// Per-stage timeouts. Zero disables the stage's own deadline.
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesisTimeout  time.Duration
	FallbackTimeout   time.Duration

	// TurnWait bounds how long a turn queues behind another turn for the
	// same session.
	TurnWait time.Duration

	// Observability
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Config)

// WithPersona sets the persona preamble.
func WithPersona(persona string) Option {
	return func(c *Config) {
		c.Persona = persona
	}
}

// WithFallbackMessage sets the apology text.
func WithFallbackMessage(msg string) Option {
	return func(c *Config) {
		c.FallbackMessage = msg
	}
}

// WithMode sets the synthesis mode.
func WithMode(mode SynthesisMode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithVoice sets the reply voice.
func WithVoice(v tts.Voice) Option {
	return func(c *Config) {
		c.Voice = v
	}
}

// WithFallbackVoice sets the apology voice.
func WithFallbackVoice(v tts.Voice) Option {
	return func(c *Config) {
		c.FallbackVoice = v
	}
}

// WithTimeouts sets the transcription, generation and synthesis timeouts.
func WithTimeouts(transcribe, generate, synthesize time.Duration) Option {
	return func(c *Config) {
		c.TranscribeTimeout = transcribe
		c.GenerateTimeout = generate
		c.SynthesisTimeout = synthesize
	}
}

// WithFallbackTimeout bounds apology synthesis.
func WithFallbackTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FallbackTimeout = d
	}
}

// WithTurnWait bounds queuing behind another turn of the same session.
func WithTurnWait(d time.Duration) Option {
	return func(c *Config) {
		c.TurnWait = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		FallbackMessage:   DefaultFallbackMessage,
		Mode:              ModeStream,
		Voice:             tts.DefaultVoice(),
		FallbackVoice:     tts.DefaultVoice(),
		TranscribeTimeout: 60 * time.Second,
		GenerateTimeout:   30 * time.Second,
		SynthesisTimeout:  30 * time.Second,
		FallbackTimeout:   10 * time.Second,
		TurnWait:          30 * time.Second,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
