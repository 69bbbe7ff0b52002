package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taxi-backend/internal/broker"
	"taxi-backend/internal/inference"
)

const (
	popTimeout = 1 * time.Second
	errorDelay = 1 * time.Second
)

// Pool runs N independent job-processing loops against a shared broker. Each
// loop is single-threaded with respect to inference; parallelism comes from
// running more loops. Loops share no state beyond the broker and the model
// registry, so throughput scales with Concurrency until the models' own
// resource ceiling.
type Pool struct {
	Broker      broker.Broker
	Models      map[string]inference.Func // queue name -> model
	ResultTTL   time.Duration
	Concurrency int
}

// Run starts the pool and blocks until ctx is cancelled and every loop has
// drained. A job popped before cancellation is always carried through to a
// result write.
func (p *Pool) Run(ctx context.Context) error {
	if p.Concurrency < 1 {
		return fmt.Errorf("pool concurrency must be >= 1, got %d", p.Concurrency)
	}
	if len(p.Models) == 0 {
		return errors.New("pool has no models registered")
	}

	queues := make([]string, 0, len(p.Models))
	for queue := range p.Models {
		queues = append(queues, queue)
	}

	slog.Info("starting worker pool", "concurrency", p.Concurrency, "queues", queues)

	var wg sync.WaitGroup
	wg.Add(p.Concurrency)
	for i := 0; i < p.Concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			p.runLoop(ctx, id, queues)
		}(i)
	}
	wg.Wait()

	slog.Info("worker pool stopped")
	return nil
}

func (p *Pool) runLoop(ctx context.Context, id int, queues []string) {
	slog.Info("worker started", "worker_id", id)

	for {
		queue, job, err := p.Broker.Pop(ctx, queues, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopping", "worker_id", id)
				return
			}
			if errors.Is(err, broker.ErrEmpty) {
				continue
			}
			slog.Error("error popping job", "worker_id", id, "error", err)
			time.Sleep(errorDelay)
			continue
		}

		p.processJob(ctx, id, queue, job)
	}
}

// processJob invokes the model for the job's queue and writes exactly one
// result. A model rejection becomes a FAILED result, not a crash; only the
// result write itself can fail, and that is logged and dropped because
// retrying a write would race the at-most-once invariant.
func (p *Pool) processJob(ctx context.Context, id int, queue string, job broker.Job) {
	model, ok := p.Models[queue]
	if !ok {
		slog.Error("received job from unknown queue, discarding", "worker_id", id, "queue", queue, "job_id", job.Id)
		return
	}

	result := broker.Result{Id: job.Id}

	output, err := model(job.Payload)
	if err != nil {
		result.Status = broker.StatusFailed
		result.Error = err.Error()
		slog.Info("model rejected job input", "worker_id", id, "job_id", job.Id, "error", err)
	} else {
		result.Status = broker.StatusCompleted
		result.Output = output
	}
	result.CompletedAt = time.Now().UTC()

	if err := p.Broker.Put(ctx, result, p.ResultTTL); err != nil {
		if errors.Is(err, broker.ErrDuplicateResult) {
			slog.Warn("result already written, dropping", "worker_id", id, "job_id", job.Id)
			return
		}
		slog.Error("error writing result", "worker_id", id, "job_id", job.Id, "error", err)
	}
}
