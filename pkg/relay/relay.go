// Package relay streams synthesized speech to browser clients.
//
// A relay owns one client WebSocket. For each streamed turn it looks up the
// session's latest reply, opens an upstream synthesis stream, sends the
// voice and text, and forwards audio to the client until the upstream
// finishes, fails or breaks. The client always receives exactly one closing
// message per turn (finished_audio or error) unless it has already gone.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-barbie/pkg/metrics"
	"github.com/teslashibe/go-barbie/pkg/protocol"
	"github.com/teslashibe/go-barbie/pkg/session"
	"github.com/teslashibe/go-barbie/pkg/tts"
)

// Client facing error messages.
const (
	MsgNoReply          = "No LLM response found to stream."
	MsgConnectFailed    = "Failed to connect to speech synthesis for streaming."
	MsgNotConfigured    = "Speech synthesis is not configured."
	MsgStreamEnded      = "Audio stream ended unexpectedly."
	streamErrorPrefix   = "Speech streaming error: "
	pendingRequestLimit = 16
)

// Conn is the client side of the relay. *websocket.Conn from both gorilla
// and gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Mode selects how many turns a connection streams.
type Mode int

const (
	// ModeSingle streams one turn as soon as the client connects, then
	// closes the connection.
	ModeSingle Mode = iota

	// ModeLoop streams one turn per client message until the client leaves.
	ModeLoop
)

// String returns a readable name for logs.
func (m Mode) String() string {
	if m == ModeLoop {
		return "loop"
	}
	return "single"
}

// State is the relay state of one streamed turn.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateStreaming
	StateFinished
	StateFailed
	StateAborted
)

// String returns a readable name for logs and metric labels.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a turn.
func (s State) Terminal() bool {
	return s >= StateFinished
}

// Relay bridges client connections and the upstream synthesis service.
type Relay struct {
	store    *session.Store
	streamer tts.Streamer

	voice         tts.Voice
	streamTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// Option configures a Relay.
type Option func(*Relay)

// WithVoice sets the voice used for streamed turns.
func WithVoice(v tts.Voice) Option {
	return func(r *Relay) {
		r.voice = v
	}
}

// WithStreamTimeout bounds one streamed turn. Zero disables the bound.
func WithStreamTimeout(d time.Duration) Option {
	return func(r *Relay) {
		r.streamTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// New creates a Relay reading replies from store and speaking through
// streamer.
func New(store *session.Store, streamer tts.Streamer, opts ...Option) *Relay {
	r := &Relay{
		store:         store,
		streamer:      streamer,
		voice:         tts.DefaultVoice(),
		streamTimeout: 60 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relay")
	return r
}

// client wraps the connection and remembers when it went away.
type client struct {
	conn Conn
	gone atomic.Bool
}

func (c *client) send(msg protocol.Message) error {
	if c.gone.Load() {
		return errClientGone
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.gone.Store(true)
		return err
	}
	return nil
}

var errClientGone = errors.New("relay: client gone")

// Serve runs the relay for one client connection and returns the state
// the last streamed turn ended in (StateIdle if none ran). It returns when
// the client leaves, ctx ends, or, in ModeSingle, after the turn.
func (r *Relay) Serve(ctx context.Context, sessionID string, conn Conn, mode Mode) State {
	logger := r.logger.With(
		"session_id", sessionID,
		"conn_id", uuid.NewString(),
		"mode", mode.String(),
	)
	r.metrics.RecordRelayStart()
	defer r.metrics.RecordRelayEnd()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &client{conn: conn}
	requests := make(chan struct{}, pendingRequestLimit)

	// The reader is the only goroutine reading conn. A read error means the
	// client is gone, which cancels any turn in flight.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				c.gone.Store(true)
				return
			}
			if mode != ModeLoop {
				continue
			}
			select {
			case requests <- struct{}{}:
			default:
				logger.Warn("dropping stream request, too many pending")
			}
		}
	}()

	logger.Debug("client connected")

	if mode == ModeSingle {
		state := r.streamTurn(ctx, logger, sessionID, c)
		conn.Close()
		return state
	}

	last := StateIdle
	for {
		select {
		case <-ctx.Done():
			logger.Debug("client disconnected", "last_state", last.String())
			return last
		case <-requests:
			last = r.streamTurn(ctx, logger, sessionID, c)
		}
	}
}

func (r *Relay) streamTurn(ctx context.Context, logger *slog.Logger, sessionID string, c *client) State {
	start := time.Now()
	t := &turn{logger: logger}

	state := r.runTurn(ctx, t, sessionID, c)
	t.to(state)

	r.metrics.RecordStream(state.String())
	logger.Info("stream ended",
		"state", state.String(),
		"chunks", t.chunks,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return state
}

// turn tracks one streamed turn's progress.
type turn struct {
	state  State
	chunks int
	logger *slog.Logger
}

func (t *turn) to(s State) {
	if t.state == s {
		return
	}
	t.logger.Debug("relay state", "from", t.state.String(), "to", s.String())
	t.state = s
}

func (r *Relay) runTurn(ctx context.Context, t *turn, sessionID string, c *client) State {
	t.to(StateConfiguring)

	reply, ok := r.store.LastOfRole(sessionID, session.RoleModel)
	if !ok || strings.TrimSpace(reply.Text) == "" {
		return r.fail(c, MsgNoReply)
	}

	if r.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.streamTimeout)
		defer cancel()
	}

	stream, err := r.streamer.OpenStream(ctx, r.voice)
	if err != nil {
		t.logger.Error("open upstream failed", "error", err)
		switch {
		case c.gone.Load():
			return StateAborted
		case errors.Is(err, tts.ErrNoAPIKey):
			return r.fail(c, MsgNotConfigured)
		default:
			return r.fail(c, MsgConnectFailed)
		}
	}
	defer stream.Close()

	// Closing the stream unblocks Recv when the client leaves or the turn
	// times out.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	if err := stream.SendVoiceConfig(); err != nil {
		return r.abort(c, t, err)
	}
	if err := stream.SendText(reply.Text, sessionID, true); err != nil {
		return r.abort(c, t, err)
	}

	t.to(StateStreaming)
	for {
		ev, err := stream.Recv()
		if err != nil {
			return r.abort(c, t, err)
		}

		switch ev.Type {
		case tts.EventAudio:
			if err := c.send(protocol.AudioChunk(ev.Audio)); err != nil {
				return StateAborted
			}
			t.chunks++
			r.metrics.RecordAudioChunk()
		case tts.EventFinished:
			c.send(protocol.FinishedAudio())
			return StateFinished
		case tts.EventError:
			t.logger.Warn("upstream reported error", "message", ev.Message)
			c.send(protocol.Error(streamErrorPrefix + ev.Message))
			return StateFailed
		}
	}
}

func (r *Relay) fail(c *client, msg string) State {
	c.send(protocol.Error(msg))
	return StateFailed
}

// abort ends a turn whose upstream broke. The client is told unless it is
// the reason the turn ended.
func (r *Relay) abort(c *client, t *turn, err error) State {
	if c.gone.Load() {
		return StateAborted
	}
	t.logger.Warn("upstream ended abnormally", "error", err, "chunks", t.chunks)
	c.send(protocol.Error(MsgStreamEnded))
	return StateAborted
}
