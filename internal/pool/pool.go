package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
)

// Executor handles one task. A nil error acknowledges the delivery.
type Executor interface {
	Execute(ctx context.Context, task *domain.TaskMessage) (domain.Outcome, error)
}

// WorkerPool manages a fixed-size pool of goroutines that process tasks.
type WorkerPool struct {
	size     int
	tasks    <-chan *domain.TaskDelivery
	executor Executor
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, tasks <-chan *domain.TaskDelivery, executor Executor, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:     size,
		tasks:    tasks,
		executor: executor,
		logger:   logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current tasks and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.tasks:
			if !ok {
				p.logger.Debug("Task channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle runs one delivery and settles it with exactly one ack or nack.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.TaskDelivery) {
	task := msg.Task
	log := p.logger.With(
		zap.Int("worker_id", id),
		zap.String("job_id", task.JobID.String()),
		zap.String("task_type", task.TaskType),
	)

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	outcome, err := p.execute(ctx, task)
	if err != nil {
		// The job is still pending. Requeue it; the queue's delivery limit
		// dead-letters messages that keep failing.
		if errors.Is(err, domain.ErrJobInFlight) {
			log.Info("Job locked by another worker, requeueing")
		} else {
			log.Error("Task execution failed, requeueing", zap.Error(err))
		}
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	log.Debug("Task handled", zap.String("outcome", string(outcome)))
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message", zap.Error(ackErr))
	}
}

func (p *WorkerPool) execute(ctx context.Context, task *domain.TaskMessage) (outcome domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.executor.Execute(ctx, task)
}
