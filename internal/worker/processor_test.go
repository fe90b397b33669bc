package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/queue"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

type fakeItems struct {
	seen []string
	err  error
}

func (f *fakeItems) ProcessItem(_ context.Context, item model.Item) (pipeline.ItemResult, error) {
	f.seen = append(f.seen, item.ItemID)
	return pipeline.ItemResult{ItemID: item.ItemID, Status: model.StatusComplete}, f.err
}

func task(t *testing.T, id string) *asynq.Task {
	t.Helper()
	tk, err := queue.NewProcessTask(model.Item{ItemID: id})
	require.NoError(t, err)
	return tk
}

func TestHandleProcessRunsItem(t *testing.T) {
	items := &fakeItems{}
	p := NewProcessor(items, nil)
	require.NoError(t, p.HandleProcess(context.Background(), task(t, "c1/material/m1")))
	assert.Equal(t, []string{"c1/material/m1"}, items.seen)
}

func TestHandleProcessRetriesStoreFailures(t *testing.T) {
	items := &fakeItems{err: storage.Unavailable("put", errors.New("locked"))}
	err := NewProcessor(items, nil).HandleProcess(context.Background(), task(t, "x"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleProcessSkipsRetryForBadPayload(t *testing.T) {
	err := NewProcessor(&fakeItems{}, nil).HandleProcess(context.Background(), asynq.NewTask(queue.ProcessItemTask, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
