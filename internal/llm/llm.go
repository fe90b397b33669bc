// Package llm wraps the text completion backends used by the generators and
// the announcement classifier.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
)

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completer returns the model's text reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when a backend replies with no text.
var ErrEmptyResponse = errors.New("llm returned no content")

// StatusError carries a non-2xx HTTP reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// New builds the configured completer wrapped with rate limiting and input
// budgeting.
func New(cfg config.LLMConfig) (Completer, error) {
	var base Completer
	switch cfg.Provider {
	case "", "anthropic":
		if cfg.APIKey == "" {
			return nil, errors.New("anthropic provider requires an api key")
		}
		base = NewAnthropic(cfg)
	case "openai":
		if cfg.Endpoint == "" || cfg.Model == "" {
			return nil, errors.New("openai provider requires endpoint and model")
		}
		base = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	limited := WithRateLimit(base, cfg.RequestsPerSecond, 1)
	return WithTokenBudget(limited, cfg.InputTokenBudget), nil
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
