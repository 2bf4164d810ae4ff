// Package conversation runs one chat turn end to end.
//
// A turn turns the user's audio or text into text, asks the model for a
// reply with the session's history, records both sides in the session, and
// (in url mode) renders the reply to speech. Every failure is converted
// into a fallback result carrying a spoken apology, so callers always get a
// TurnResult and never an error.
//
// Example usage:
//
//	agent := conversation.New(store, transcriber, generator, synthesizer,
//	    conversation.WithPersona(persona),
//	    conversation.WithMode(conversation.ModeURL),
//	)
//	res := agent.HandleTurn(ctx, "s1", conversation.TextInput("Hello"))
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-barbie/pkg/inference"
	"github.com/teslashibe/go-barbie/pkg/session"
	"github.com/teslashibe/go-barbie/pkg/stt"
	"github.com/teslashibe/go-barbie/pkg/tts"
)

// Metric labels for the three provider stages.
const (
	stageTranscribe = "stt"
	stageGenerate   = "inference"
	stageSynthesize = "tts"
)

// Agent orchestrates chat turns. It is safe for concurrent use; turns for
// the same session are serialised through the session store.
type Agent struct {
	config *Config
	logger *slog.Logger

	store       *session.Store
	transcriber stt.Provider
	generator   inference.Provider
	synthesizer tts.Provider
}

// New creates an Agent. All dependencies are required.
func New(store *session.Store, transcriber stt.Provider, generator inference.Provider, synthesizer tts.Provider, opts ...Option) *Agent {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}

	return &Agent{
		config:      cfg,
		logger:      cfg.Logger.With("component", "conversation"),
		store:       store,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
	}
}

// Mode returns the configured synthesis mode.
func (a *Agent) Mode() SynthesisMode {
	return a.config.Mode
}

// HandleTurn runs one turn for sessionID.
func (a *Agent) HandleTurn(ctx context.Context, sessionID string, in Input) TurnResult {
	start := time.Now()

	res := a.handle(ctx, sessionID, in)
	res.SessionID = sessionID
	res.Input = in.Kind

	a.config.Metrics.RecordTurn(string(in.Kind), string(res.Status))
	if res.Err != nil {
		a.logger.Warn("turn fell back",
			"session_id", sessionID,
			"input", in.Kind,
			"kind", res.Err.Kind,
			"status_code", res.Err.StatusCode,
			"error", res.Err.Err,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	} else {
		a.logger.Info("turn complete",
			"session_id", sessionID,
			"input", in.Kind,
			"reply_chars", len(res.ModelText),
			"stream", res.StreamPending,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
	return res
}

func (a *Agent) handle(ctx context.Context, sessionID string, in Input) TurnResult {
	var userText string

	switch in.Kind {
	case InputAudio:
		if len(in.Audio) == 0 {
			return a.fallback(ctx, validationError(detailAudioRequired), "", "")
		}
		text, err := a.transcribe(ctx, in.Audio)
		if err != nil {
			return a.fallback(ctx, transcriptionError(err), "", "")
		}
		userText = text
	case InputText:
		userText = strings.TrimSpace(in.Text)
		if userText == "" {
			return a.fallback(ctx, validationError(detailTextRequired), "", "")
		}
	default:
		return a.fallback(ctx, validationError(detailUnsupportedKind), "", "")
	}

	reply, terr := a.exchange(ctx, sessionID, userText)
	if terr != nil {
		return a.fallback(ctx, terr, userText, "")
	}

	res := TurnResult{
		Status:    StatusOK,
		UserText:  userText,
		ModelText: reply,
	}

	if a.config.Mode == ModeStream {
		res.StreamPending = true
		return res
	}

	url, err := a.synthesize(ctx, reply, a.config.Voice, a.config.SynthesisTimeout)
	if err != nil {
		return a.fallback(ctx, synthesisError(err), userText, reply)
	}
	res.AudioURL = url
	return res
}

// exchange records the user turn, generates the reply and records it, all
// under the session's turn lock. A failed generation leaves the history as
// it was.
func (a *Agent) exchange(ctx context.Context, sessionID, userText string) (string, *TurnError) {
	lockCtx, cancel := withTimeout(ctx, a.config.TurnWait)
	lease, err := a.store.Lock(lockCtx, sessionID)
	cancel()
	if err != nil {
		return "", busyError(err)
	}
	defer lease.Unlock()

	snapshot := lease.Turns()
	lease.Append(session.Turn{Role: session.RoleUser, Text: userText})

	reply, err := a.generate(ctx, a.providerHistory(snapshot), userText)
	if err != nil {
		lease.RemoveLastIfRole(session.RoleUser)
		return "", generationError(err)
	}

	lease.Append(session.Turn{Role: session.RoleModel, Text: reply})
	return reply, nil
}

// providerHistory prepends the persona to the stored turns. The persona is
// rebuilt on every call and never enters the store.
func (a *Agent) providerHistory(turns []session.Turn) []inference.Message {
	msgs := make([]inference.Message, 0, len(turns)+1)
	if a.config.Persona != "" {
		msgs = append(msgs, inference.NewSystemMessage(a.config.Persona))
	}
	for _, t := range turns {
		switch t.Role {
		case session.RoleModel:
			msgs = append(msgs, inference.NewModelMessage(t.Text))
		default:
			msgs = append(msgs, inference.NewUserMessage(t.Text))
		}
	}
	return msgs
}

func (a *Agent) transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := withTimeout(ctx, a.config.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := a.transcriber.Transcribe(ctx, audio)
	a.config.Metrics.RecordProviderCall(stageTranscribe, time.Since(start))
	if err != nil {
		a.config.Metrics.RecordProviderError(stageTranscribe, string(transcriptionError(err).Kind))
		return "", err
	}
	return text, nil
}

func (a *Agent) generate(ctx context.Context, history []inference.Message, text string) (string, error) {
	ctx, cancel := withTimeout(ctx, a.config.GenerateTimeout)
	defer cancel()

	start := time.Now()
	reply, err := a.generator.GenerateReply(ctx, history, text)
	a.config.Metrics.RecordProviderCall(stageGenerate, time.Since(start))
	if err != nil {
		a.config.Metrics.RecordProviderError(stageGenerate, string(generationError(err).Kind))
		return "", err
	}
	return reply, nil
}

func (a *Agent) synthesize(ctx context.Context, text string, voice tts.Voice, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	url, err := a.synthesizer.Synthesize(ctx, text, voice)
	a.config.Metrics.RecordProviderCall(stageSynthesize, time.Since(start))
	if err != nil {
		a.config.Metrics.RecordProviderError(stageSynthesize, string(synthesisError(err).Kind))
		return "", err
	}
	return url, nil
}

// fallback builds the result for a failed turn. It synthesizes the apology
// with the fallback voice; if that fails too the audio URL is left empty.
// modelText is kept when the reply exists but could not be voiced.
func (a *Agent) fallback(ctx context.Context, terr *TurnError, userText, modelText string) TurnResult {
	if modelText == "" {
		modelText = a.config.FallbackMessage
	}

	url, err := a.synthesize(ctx, a.config.FallbackMessage, a.config.FallbackVoice, a.config.FallbackTimeout)
	if err != nil {
		a.logger.Error("fallback audio failed", "error", err)
		url = ""
	}

	return TurnResult{
		Status:    StatusFallback,
		UserText:  userText,
		ModelText: modelText,
		AudioURL:  url,
		Err:       terr,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
