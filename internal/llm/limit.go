package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	base    Completer
	limiter *rate.Limiter
}

// WithRateLimit waits on a token bucket before every call. A non-positive
// rate returns base unchanged.
func WithRateLimit(base Completer, perSecond float64, burst int) Completer {
	if perSecond <= 0 {
		return base
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{base: base, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (c *rateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}
	return c.base.Complete(ctx, req)
}

type tokenBudget struct {
	base   Completer
	budget int
}

// WithTokenBudget truncates prompts longer than budget tokens.
func WithTokenBudget(base Completer, budget int) Completer {
	if budget <= 0 {
		return base
	}
	return &tokenBudget{base: base, budget: budget}
}

func (c *tokenBudget) Complete(ctx context.Context, req Request) (string, error) {
	req.Prompt = TruncateToTokens(req.Prompt, c.budget)
	return c.base.Complete(ctx, req)
}
