package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

// ErrNothingToRequeue is returned for records that are already complete.
var ErrNothingToRequeue = errors.New("record is complete")

// Requeue resets the attempt counter of an item so the next run retries it
// even after it hit the attempt limit. Published refs are kept.
func (o *Orchestrator) Requeue(ctx context.Context, itemID string) (*model.ProcessingRecord, error) {
	unlock := o.locks.Lock(itemID)
	defer unlock()

	rec, err := o.deps.Store.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("requeue %s: %w", itemID, err)
	}
	if rec.Status == model.StatusComplete {
		return rec, ErrNothingToRequeue
	}
	rec.AttemptCount = 0
	if err := o.put(ctx, rec, "requeue"); err != nil {
		return nil, err
	}
	o.logger.Info("item requeued", "item", itemID, "status", rec.Status)
	return rec, nil
}
