// Package tts turns narration scripts into audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
)

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Synthesizer converts text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// New returns the configured synthesizer; Mock when mocking is enabled or
// no endpoint is set.
func New(cfg config.TTSConfig) Synthesizer {
	if cfg.Mock || cfg.Endpoint == "" {
		return Mock{}
	}
	return NewHTTP(cfg)
}

// HTTP calls an OpenAI-compatible /audio/speech endpoint.
type HTTP struct {
	endpoint   string
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
}

var _ Synthesizer = (*HTTP)(nil)

// NewHTTP builds an HTTP synthesizer from configuration.
func NewHTTP(cfg config.TTSConfig) *HTTP {
	return &HTTP{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		voice:      cfg.Voice,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// StatusError carries a failed synthesis reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts error %d: %s", e.Code, e.Body)
}

func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Synthesize requests an mp3 rendition of text.
func (h *HTTP) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, errors.New("tts: empty narration")
	}
	body, err := json.Marshal(map[string]string{
		"model":           h.model,
		"voice":           h.voice,
		"input":           text,
		"response_format": "mp3",
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal tts payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("send tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Audio{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read tts audio: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, errors.New("tts: empty audio")
	}
	return Audio{Data: data, ContentType: "audio/mpeg", Extension: "mp3"}, nil
}
