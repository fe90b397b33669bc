// Package processing runs item jobs on a bounded pool of goroutines fed by a
// buffered channel.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// ErrQueueFull is returned by TrySubmit when the buffer has no room.
var ErrQueueFull = errors.New("processing queue full")

// ErrClosed is returned when submitting to a closed processor.
var ErrClosed = errors.New("processor closed")

// Job is one item handed to a worker.
type Job struct {
	Item model.Item
}

// Handler processes one job. It must honour ctx cancellation.
type Handler func(ctx context.Context, job Job)

// Processor consumes Jobs on a fixed number of workers.
type Processor struct {
	handle  Handler
	queue   chan Job
	workers int
	logger  *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int, handle Handler, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		handle:  handle,
		queue:   make(chan Job, workers*4),
		workers: workers,
		logger:  logging.OrDiscard(logger).With("component", "processing"),
	}
}

// Start launches worker goroutines. Workers exit when ctx is cancelled or
// the queue is closed and drained.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit queues a job, blocking while the buffer is full.
func (p *Processor) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a job without blocking.
func (p *Processor) TrySubmit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- job:
		return nil
	default:
		p.logger.Warn("queue full, rejecting job", "item", job.Item.ItemID)
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the workers to finish.
func (p *Processor) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ctx, job)
		}
	}
}
