package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-barbie/internal/httpc"
)

const (
	assemblyAIBaseURL  = "https://api.assemblyai.com"
	providerAssemblyAI = "assemblyai"
)

// Transcript statuses reported by AssemblyAI.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

// AssemblyAI implements Provider using the AssemblyAI v2 REST API:
// upload the audio, submit a transcript job, then poll until it settles.
type AssemblyAI struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewAssemblyAI creates an AssemblyAI provider. A missing API key is not an
// error here; Transcribe reports ErrNoAPIKey on first use.
func NewAssemblyAI(opts ...Option) *AssemblyAI {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	return &AssemblyAI{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "stt.assemblyai"),
	}
}

// Transcribe uploads audio and waits for the finished transcript.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := a.config.Validate(); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	start := time.Now()
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	uploadURL, err := a.upload(ctx, audio)
	if err != nil {
		return "", WrapError(providerAssemblyAI, "upload audio", err)
	}

	id, err := a.submit(ctx, uploadURL)
	if err != nil {
		return "", WrapError(providerAssemblyAI, "submit transcript", err)
	}

	text, err := a.poll(ctx, id)
	if err != nil {
		return "", err
	}

	a.logger.Debug("transcribed audio",
		"bytes", len(audio),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// upload sends the raw audio and returns the private upload URL.
func (a *AssemblyAI) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.do(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", errors.New("no upload_url in response")
	}
	return out.UploadURL, nil
}

// submit creates a transcript job for an uploaded file.
func (a *AssemblyAI) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := a.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("no transcript id in response")
	}
	return out.ID, nil
}

// poll waits for the transcript job to complete or fail.
func (a *AssemblyAI) poll(ctx context.Context, id string) (string, error) {
	interval := a.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return "", WrapError(providerAssemblyAI, "poll transcript", err)
		}

		var out transcriptResponse
		if err := a.do(req, &out); err != nil {
			return "", WrapError(providerAssemblyAI, "poll transcript", err)
		}

		switch out.Status {
		case statusCompleted:
			text := strings.TrimSpace(out.Text)
			if text == "" {
				return "", WrapError(providerAssemblyAI, "no speech recognised", ErrEmptyTranscript)
			}
			return text, nil
		case statusError:
			return "", &TranscriptionError{Provider: providerAssemblyAI, Reason: "transcript failed: " + out.Error}
		case statusQueued, statusProcessing:
		default:
			a.logger.Warn("unknown transcript status", "id", id, "status", out.Status)
		}

		select {
		case <-ctx.Done():
			return "", WrapError(providerAssemblyAI, "waiting for transcript", ctx.Err())
		case <-ticker.C:
		}
	}
}

// do sends an authenticated request and decodes a JSON response into out.
func (a *AssemblyAI) do(req *http.Request, out any) error {
	req.Header.Set("authorization", a.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return a.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError reads and parses an error response.
func (a *AssemblyAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerAssemblyAI,
	}
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Verify AssemblyAI implements Provider at compile time.
var _ Provider = (*AssemblyAI)(nil)
