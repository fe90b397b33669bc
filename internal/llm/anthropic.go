package llm

import (
	"context"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
)

// Anthropic completes prompts through llmkit.
type Anthropic struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

var _ Completer = (*Anthropic)(nil)

// NewAnthropic builds a client from configuration.
func NewAnthropic(cfg config.LLMConfig) *Anthropic {
	return &Anthropic{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

type promptResult struct {
	text string
	err  error
}

// Complete sends the prompt. llmkit calls are not context aware, so the call
// runs in its own goroutine and is abandoned when ctx ends.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	settings := types.RequestSettings{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: a.temperature,
	}
	done := make(chan promptResult, 1)
	go func() {
		response, err := anthropic.PromptWithSettings(req.System, req.Prompt, "", a.apiKey, settings)
		if err != nil {
			done <- promptResult{err: fmt.Errorf("anthropic prompt: %w", err)}
			return
		}
		if len(response.Content) == 0 {
			done <- promptResult{err: ErrEmptyResponse}
			return
		}
		done <- promptResult{text: response.Content[0].Text}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}
