// Package worker plugs the pipeline into the asynq worker loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/queue"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

// ItemProcessor is implemented by *pipeline.Orchestrator.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, item model.Item) (pipeline.ItemResult, error)
}

// Processor handles ProcessItemTask.
type Processor struct {
	items  ItemProcessor
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(items ItemProcessor, logger *slog.Logger) *Processor {
	return &Processor{items: items, logger: logging.OrDiscard(logger).With("component", "worker")}
}

// Handler registers the item job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessItemTask, p.HandleProcess)
	return mux
}

// HandleProcess runs one item. Only State Store failures are handed back to
// asynq for a retry; item level failures are already recorded and retried by
// later runs.
func (p *Processor) HandleProcess(ctx context.Context, task *asynq.Task) error {
	item, err := queue.DecodeItem(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	res, err := p.items.ProcessItem(ctx, item)
	if err != nil {
		p.logger.Error("item aborted", "item", item.ItemID, "err", err)
		if errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if res.Skipped {
		p.logger.Debug("item up to date", "item", item.ItemID)
		return nil
	}
	p.logger.Info("item processed", "item", item.ItemID, "status", res.Status, "missing", res.Missing)
	return nil
}
