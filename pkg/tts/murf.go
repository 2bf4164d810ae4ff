package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-barbie/internal/httpc"
)

const (
	murfBaseURL   = "https://api.murf.ai"
	murfStreamURL = "wss://api.murf.ai/v1/speech/stream-input"
	providerMurf  = "murf"
)

// Murf implements Provider with Murf's generate endpoint, which renders the
// whole text and answers with a hosted audio file URL.
type Murf struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewMurf creates a Murf provider. A missing API key is reported by
// Synthesize, not here.
func NewMurf(opts ...Option) *Murf {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = murfBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	return &Murf{
		config:  cfg,
		client:  client,
		logger:  cfg.Logger.With("component", "tts.murf"),
		baseURL: baseURL,
	}
}

type murfRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	Format  string `json:"format,omitempty"`
	Style   string `json:"style,omitempty"`
}

type murfResponse struct {
	AudioFile       string  `json:"audioFile"`
	AudioLengthSecs float64 `json:"audioLengthInSeconds"`
}

// Synthesize renders text and returns the audio URL.
func (m *Murf) Synthesize(ctx context.Context, text string, voice Voice) (string, error) {
	if err := m.config.Validate(); err != nil {
		return "", err
	}
	start := time.Now()

	body, err := json.Marshal(murfRequest{
		Text:    text,
		VoiceID: voice.ID,
		Format:  voice.Format,
		Style:   voice.Style,
	})
	if err != nil {
		return "", WrapError(providerMurf, "marshal payload", err)
	}

	url := m.baseURL + "/v1/speech/generate-with-key"
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("api-key", m.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", WrapError(providerMurf, "generate speech", err)
	}
	defer resp.Body.Close()

	var out murfResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", WrapError(providerMurf, "decode response", err)
	}
	if out.AudioFile == "" {
		return "", WrapError(providerMurf, "generate speech", ErrNoAudioURL)
	}

	m.logger.Debug("synthesized audio",
		"voice", voice.ID,
		"chars", len(text),
		"audio_seconds", out.AudioLengthSecs,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out.AudioFile, nil
}

// doWithRetry performs the request, retrying transport errors and retryable
// API errors with linear backoff. newReq is called once per attempt. Any
// response other than 200 is returned as *APIError.
func (m *Murf) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := m.parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		m.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (m *Murf) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorCode    int    `json:"errorCode"`
		Message      string `json:"message"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.ErrorMessage != "":
			message = errResp.ErrorMessage
		case errResp.Message != "":
			message = errResp.Message
		}
		if errResp.ErrorCode != 0 {
			code = fmt.Sprint(errResp.ErrorCode)
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerMurf,
	}
}

// Verify Murf implements Provider at compile time.
var _ Provider = (*Murf)(nil)
