// Package queue carries items to the asynq worker in queue mode.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

const (
	// ProcessItemTask is scheduled for every detected item.
	ProcessItemTask = "item:process"

	defaultMaxRetry = 5
)

// ItemPayload is serialized into the task payload.
type ItemPayload struct {
	Item model.Item `json:"item"`
}

// Enqueuer is the slice of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskID is unique per item revision and attempt count, so a revision is
// queued once per attempt while its task is still in the queue.
func TaskID(item model.Item, attempts int) string {
	return fmt.Sprintf("%s@%s#%d", item.ItemID, item.ContentHash, attempts)
}

// NewProcessTask builds the task for one item.
func NewProcessTask(item model.Item) (*asynq.Task, error) {
	data, err := json.Marshal(ItemPayload{Item: item})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ProcessItemTask, data), nil
}

// EnqueueItem enqueues item processing. attempts is the attempt count of
// the item's record, zero when it has none. It reports false when a task
// for the same revision and attempt is already queued. Finished tasks are
// not retained, so a later retry of the revision can be queued.
func EnqueueItem(ctx context.Context, client Enqueuer, item model.Item, attempts int) (bool, error) {
	task, err := NewProcessTask(item)
	if err != nil {
		return false, err
	}
	_, err = client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(item, attempts)),
		asynq.MaxRetry(defaultMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", item.ItemID, err)
	}
	return true, nil
}

// DecodeItem reads the payload of a ProcessItemTask.
func DecodeItem(task *asynq.Task) (model.Item, error) {
	var payload ItemPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return model.Item{}, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Item.ItemID == "" {
		return model.Item{}, errors.New("decode payload: missing item id")
	}
	return payload.Item, nil
}
