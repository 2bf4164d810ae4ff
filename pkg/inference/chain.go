package inference

import (
	"context"
	"log/slog"
)

// Chain tries multiple providers in order until one replies.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain creates a provider chain.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	chain, err := NewChain(providers...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// GenerateReply asks each provider in turn. A cancelled context stops the
// chain immediately.
func (c *Chain) GenerateReply(ctx context.Context, history []Message, text string) (string, error) {
	var errs []error

	for i, p := range c.providers {
		reply, err := p.GenerateReply(ctx, history, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider_index", i)
			}
			return reply, nil
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("provider failed, trying next",
			"provider_index", i,
			"error", err,
		)
	}

	if len(errs) == 1 {
		return "", errs[0]
	}
	return "", &ChainError{Errors: errs}
}

// Providers returns the chained providers.
func (c *Chain) Providers() []Provider {
	return c.providers
}
