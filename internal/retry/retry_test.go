package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

func fastConfig(attempts int) Config {
	return Config{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return &model.GenerationError{Kind: model.ArtifactQuiz, Err: errors.New("busy")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return &model.ExtractError{ItemID: "x", Err: errors.New("corrupt pdf")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var extractErr *model.ExtractError
	assert.True(t, errors.As(err, &extractErr))
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		calls++
		return &model.PublishError{Kind: model.ArtifactAudio, Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoValueAppliesPerAttemptTimeout(t *testing.T) {
	cfg := fastConfig(2)
	cfg.Timeout = 5 * time.Millisecond
	calls := 0
	out, err := DoValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, calls)
}

func TestPermanentWrapperIsNotTransient(t *testing.T) {
	base := &model.GenerationError{Kind: model.ArtifactQuiz, Err: errors.New("bad request")}
	assert.True(t, IsTransient(base))
	assert.False(t, IsTransient(Permanent(base)))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 2*time.Second, backoff(1, cfg))
	assert.Equal(t, 3*time.Second, backoff(5, cfg))
}
