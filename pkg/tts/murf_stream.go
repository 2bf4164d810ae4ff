package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// MurfStreamer implements Streamer over Murf's stream-input WebSocket.
type MurfStreamer struct {
	config *Config
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewMurfStreamer creates a streaming Murf client.
func NewMurfStreamer(opts ...Option) *MurfStreamer {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.StreamURL == "" {
		cfg.StreamURL = murfStreamURL
	}

	return &MurfStreamer{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.murf_stream"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// OpenStream dials the stream-input endpoint. Audio parameters travel in the
// query string; the voice itself is sent by SendVoiceConfig.
func (m *MurfStreamer) OpenStream(ctx context.Context, voice Voice) (Stream, error) {
	if err := m.config.Validate(); err != nil {
		return nil, err
	}

	u, err := m.streamURL(voice)
	if err != nil {
		return nil, WrapError(providerMurf, "build stream url", err)
	}

	conn, resp, err := m.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerMurf, "dial stream",
				&APIError{StatusCode: resp.StatusCode, Message: err.Error(), Provider: providerMurf})
		}
		return nil, WrapError(providerMurf, "dial stream", err)
	}

	m.logger.Debug("stream connected", "voice", voice.ID, "format", voice.Format)

	return &murfStream{
		conn:   conn,
		voice:  voice,
		logger: m.logger,
	}, nil
}

func (m *MurfStreamer) streamURL(voice Voice) (string, error) {
	u, err := url.Parse(m.config.StreamURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", m.config.APIKey)
	if voice.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(voice.SampleRate))
	}
	if voice.Channel != "" {
		q.Set("channel_type", voice.Channel)
	}
	if voice.Format != "" {
		q.Set("format", voice.Format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Wire frames.
type (
	voiceConfigMessage struct {
		VoiceConfig voiceConfig `json:"voice_config"`
	}

	voiceConfig struct {
		VoiceID   string `json:"voiceId"`
		Style     string `json:"style,omitempty"`
		Rate      int    `json:"rate"`
		Pitch     int    `json:"pitch"`
		Variation int    `json:"variation"`
	}

	textMessage struct {
		Text      string `json:"text"`
		ContextID string `json:"context_id,omitempty"`
		End       bool   `json:"end"`
	}

	streamFrame struct {
		Audio   string `json:"audio"`
		Final   bool   `json:"final"`
		Type    string `json:"type"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

// murfStream is one open stream-input session. Writes are serialised;
// Recv is expected to run on a single goroutine.
type murfStream struct {
	conn   *websocket.Conn
	voice  Voice
	logger *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once

	// finalPending is set when a frame carried both audio and the final flag.
	finalPending bool
}

func (s *murfStream) SendVoiceConfig() error {
	return s.write(voiceConfigMessage{VoiceConfig: voiceConfig{
		VoiceID:   s.voice.ID,
		Style:     s.voice.Style,
		Rate:      s.voice.Rate,
		Pitch:     s.voice.Pitch,
		Variation: s.voice.Variation,
	}})
}

func (s *murfStream) SendText(text, contextID string, end bool) error {
	return s.write(textMessage{Text: text, ContextID: contextID, End: end})
}

func (s *murfStream) write(v any) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("tts stream: write: %w", err)
	}
	return nil
}

func (s *murfStream) Recv() (Event, error) {
	if s.finalPending {
		s.finalPending = false
		return FinishedEvent(), nil
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return Event{}, ErrStreamClosed
			}
			return Event{}, &ProtocolError{Reason: "connection closed before final marker", Err: err}
		}

		var f streamFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Event{}, &ProtocolError{Reason: "malformed frame", Err: err}
		}

		switch {
		case f.Type == "error":
			msg := f.Message
			if msg == "" {
				msg = f.Error
			}
			return ErrorEvent(msg), nil
		case f.Audio != "":
			s.finalPending = f.Final
			return AudioEvent(f.Audio), nil
		case f.Final:
			return FinishedEvent(), nil
		default:
			s.logger.Debug("skipping frame", "bytes", len(data))
		}
	}
}

func (s *murfStream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		// WriteControl may run concurrently with WriteJSON.
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteWait))
		err = s.conn.Close()
	})
	return err
}

// Verify MurfStreamer implements Streamer at compile time.
var _ Streamer = (*MurfStreamer)(nil)
