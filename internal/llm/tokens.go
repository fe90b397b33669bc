package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// getEncoding lazily loads cl100k_base. It stays nil when the encoding
// cannot be loaded and callers fall back to a character heuristic.
func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the token count of text.
func CountTokens(text string) int {
	if enc := getEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// TruncateToTokens truncates text to approximately maxTokens.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if enc := getEncoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return enc.Decode(tokens[:maxTokens]) + "..."
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "..."
}
