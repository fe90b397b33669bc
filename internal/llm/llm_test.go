package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
)

func TestOpenAICompleteSendsChatRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAI(config.LLMConfig{Endpoint: srv.URL, Model: "m", APIKey: "secret", MaxTokens: 100})
	out, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "m", got["model"])
	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAICompleteClassifiesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAI(config.LLMConfig{Endpoint: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.True(t, statusErr.Temporary())
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(config.LLMConfig{Endpoint: srv.URL, Model: "m"}).Complete(context.Background(), Request{Prompt: "x"})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestWithRateLimitHonoursContext(t *testing.T) {
	calls := 0
	base := CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		return "ok", nil
	})
	limited := WithRateLimit(base, 0.001, 1)

	_, err := limited.Complete(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTokenBudgetTruncatesPrompt(t *testing.T) {
	var seen string
	base := CompleterFunc(func(_ context.Context, req Request) (string, error) {
		seen = req.Prompt
		return "ok", nil
	})
	long := strings.Repeat("photosynthesis converts light energy ", 400)
	_, err := WithTokenBudget(base, 50).Complete(context.Background(), Request{Prompt: long})
	require.NoError(t, err)
	assert.Less(t, len(seen), len(long))
	assert.True(t, strings.HasSuffix(seen, "..."))
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short text", TruncateToTokens("short text", 100))
	assert.Equal(t, 0, estimateTokens("   "))
	assert.Equal(t, 2, estimateTokens("two words"))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "gemini"})
	require.Error(t, err)
	_, err = New(config.LLMConfig{Provider: "anthropic"})
	require.Error(t, err)
}
