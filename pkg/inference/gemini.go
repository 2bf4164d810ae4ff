package inference

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-barbie/internal/httpc"
)

const providerGemini = "gemini"

// Gemini implements Provider on top of the Google Gen AI SDK.
// The SDK client is created on first use so that a missing key surfaces as
// ErrNoAPIKey from GenerateReply instead of failing at startup.
type Gemini struct {
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) *Gemini {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Gemini{
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}
}

// GenerateReply sends history plus text to Gemini and returns the reply.
// System messages are joined into the system instruction.
func (g *Gemini) GenerateReply(ctx context.Context, history []Message, text string) (string, error) {
	start := time.Now()

	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	system, contents := convertMessages(history)
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.config.Temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, g.config.Model, contents, cfg)
	if err != nil {
		return "", WrapError(providerGemini, "generate content", convertAPIError(err))
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", WrapError(providerGemini, "no response content", ErrEmptyReply)
	}

	g.logger.Debug("generated reply",
		"model", g.config.Model,
		"history", len(contents)-1,
		"chars", len(reply),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

// getClient lazily builds the SDK client. A failed build is retried on the
// next call.
func (g *Gemini) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     g.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(g.config.Timeout),
	}
	if g.config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, "create client", err)
	}
	g.client = client
	return client, nil
}

// convertMessages splits history into the system instruction and the
// user/model contents Gemini expects.
func convertMessages(history []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(history)+1)

	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleModel:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

// convertAPIError maps SDK API errors onto *APIError, keeping the status.
func convertAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message, Code: apiErr.Status, Provider: providerGemini}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Code: apiErrPtr.Status, Provider: providerGemini}
	}
	return err
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
