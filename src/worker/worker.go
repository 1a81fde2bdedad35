package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"quizforge/src/log"
	"quizforge/src/queue"
)

// DefaultPollInterval is the sleep between claim attempts when the queue
// is empty.
const DefaultPollInterval = 2 * time.Second

// Executor runs one claimed job to its terminal state. The pipeline
// records completed/failed on the ledger itself; the worker only reacts
// to panics.
type Executor interface {
	Execute(ctx context.Context, job *queue.Job, workerID string) error
}

// Worker polls the ledger and executes one job at a time. Scaling happens
// by running more worker processes against the same ledger, not by
// parallelism inside one loop.
type Worker struct {
	ledger       *queue.Ledger
	executor     Executor
	id           string
	pollInterval time.Duration
	logger       logr.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(ledger *queue.Ledger, executor Executor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	id := uuid.New().String()[:8]
	return &Worker{
		ledger:       ledger,
		executor:     executor,
		id:           id,
		pollInterval: pollInterval,
		logger:       log.WithName("worker").WithValues("worker_id", id),
	}
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string {
	return w.id
}

// Start launches the poll loop. Call Stop (or cancel ctx) to end it.
// A second Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Info("worker already started")
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()
	w.logger.Info("worker started", "poll_interval", w.pollInterval.String())

	go func() {
		defer close(w.done)
		for {
			claimed, err := w.RunOnce(ctx)
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return
			}
			if err != nil {
				w.logger.Error(err, "job cycle ended with error")
			}
			if claimed {
				// Drain the queue before sleeping again.
				continue
			}
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped")
				return
			case <-time.After(w.pollInterval):
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.started = false
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce performs a single claim-execute-record cycle. It reports
// whether a job was claimed; the error concerns that job only and never
// means the loop should stop.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.ledger.ClaimNext(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("claim failed: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.logger.Info("claimed job", "job_id", job.ID, "attempt", job.Attempts)
	return true, w.execute(ctx, job)
}

// execute shields the loop from a panicking job. A panic is recorded as
// the job's failure; the worker itself keeps running.
func (w *Worker) execute(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during job execution: %v", r)
			w.logger.Error(err, "recovered from panic", "job_id", job.ID)
			if ferr := w.ledger.Fail(ctx, job.ID, w.id, err.Error()); ferr != nil {
				w.logger.Error(ferr, "failed to record panic outcome", "job_id", job.ID)
			}
		}
	}()
	return w.executor.Execute(ctx, job, w.id)
}
