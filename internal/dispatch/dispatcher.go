package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taxi-backend/internal/broker"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPayload is returned by Submit before any queue interaction;
	// no correlation id is produced for a rejected payload.
	ErrInvalidPayload = errors.New("payload must contain at least one feature")

	// ErrTimeout is returned by AwaitResult when no result arrives within
	// the caller's budget. It is distinct from a FAILED result: the job may
	// still complete after the caller has stopped watching.
	ErrTimeout = errors.New("timed out waiting for result")
)

const (
	initialPollInterval = 20 * time.Millisecond
	maxPollInterval     = 250 * time.Millisecond
)

// Dispatcher submits jobs and waits, bounded, for their results. One logical
// dispatcher serves each inbound request; instances share nothing beyond the
// broker, so any number may run concurrently.
type Dispatcher struct {
	broker broker.Broker
}

func NewDispatcher(b broker.Broker) *Dispatcher {
	return &Dispatcher{broker: b}
}

// Submit pushes a job carrying payload onto the named queue and returns its
// fresh correlation id without waiting for a worker. Two submissions of the
// same payload are independent jobs with independent ids.
func (d *Dispatcher) Submit(ctx context.Context, queue string, payload map[string]float64) (string, error) {
	if len(payload) == 0 {
		return "", ErrInvalidPayload
	}

	job := broker.Job{
		Id:         uuid.NewString(),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := d.broker.Push(ctx, queue, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	slog.Debug("submitted job", "job_id", job.Id, "queue", queue)
	return job.Id, nil
}

// AwaitResult polls the result store for the given correlation id until the
// timeout elapses, backing off exponentially between polls. It returns
// exactly one of: the result (COMPLETED or FAILED), ErrTimeout, or a broker
// error. Giving up sends no signal to the worker; in-flight inference is
// never aborted.
func (d *Dispatcher) AwaitResult(ctx context.Context, id string, timeout time.Duration) (broker.Result, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	interval := initialPollInterval
	for {
		result, err := d.broker.Get(ctx, id)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, broker.ErrNotFound) {
			return broker.Result{}, err
		}

		wait := time.NewTimer(interval)
		select {
		case <-wait.C:
		case <-deadline.C:
			wait.Stop()
			// Last chance: the result may have landed since the previous poll.
			if result, err := d.broker.Get(ctx, id); err == nil {
				return result, nil
			}
			return broker.Result{}, ErrTimeout
		case <-ctx.Done():
			wait.Stop()
			return broker.Result{}, ctx.Err()
		}

		if interval *= 2; interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}
