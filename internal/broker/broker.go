package broker

import (
	"context"
	"errors"
	"time"
)

const (
	FareDurationQueue = "fare_duration_queue"
	DemandQueue       = "demand_queue"

	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

var (
	// ErrEmpty is returned by Pop when no job arrives within the timeout.
	ErrEmpty = errors.New("queue is empty")

	// ErrNotFound is returned by Get when no result exists for the id, or
	// when the result's TTL has already elapsed.
	ErrNotFound = errors.New("result not found")

	// ErrDuplicateResult is returned by Put when a result for the same
	// correlation id was already written.
	ErrDuplicateResult = errors.New("result already written for id")

	// ErrUnavailable indicates a transport-level failure. Callers see it
	// immediately; the broker never retries on their behalf.
	ErrUnavailable = errors.New("broker unavailable")
)

// Job is the wire envelope pushed onto a queue. Payload is an opaque map of
// feature values; the queue name, not the payload, determines which model a
// worker applies.
type Job struct {
	Id         string             `json:"id"`
	Payload    map[string]float64 `json:"payload"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// Result is the wire envelope written once per correlation id. Output is set
// for COMPLETED results, Error for FAILED ones.
type Result struct {
	Id          string             `json:"id"`
	Status      string             `json:"status"`
	Output      map[string]float64 `json:"output,omitempty"`
	Error       string             `json:"error,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// JobQueue carries jobs from dispatchers to workers. FIFO per queue; each job
// is handed to exactly one Pop under normal operation.
type JobQueue interface {
	// Push atomically appends job to the named queue. The job is visible to
	// consumers as soon as Push returns.
	Push(ctx context.Context, queue string, job Job) error

	// Pop removes and returns the oldest job available on any of the named
	// queues, blocking up to timeout. Returns the queue the job came from,
	// or ErrEmpty if the timeout expires first.
	Pop(ctx context.Context, queues []string, timeout time.Duration) (string, Job, error)
}

// ResultStore holds one result slot per correlation id. Writes are
// at-most-once per id; reads after the TTL elapses report ErrNotFound.
type ResultStore interface {
	Put(ctx context.Context, result Result, ttl time.Duration) error

	Get(ctx context.Context, id string) (Result, error)
}

// Broker is the single injected dependency shared by dispatchers and workers.
// Its four operations are the only mutation points in the dispatch path; no
// additional locking is required around them.
type Broker interface {
	JobQueue
	ResultStore
}

// SplitBroker composes a job queue and a result store living on different
// transports, e.g. RabbitMQ for jobs and Redis for results.
type SplitBroker struct {
	JobQueue
	ResultStore
}

func NewSplitBroker(queue JobQueue, store ResultStore) *SplitBroker {
	return &SplitBroker{JobQueue: queue, ResultStore: store}
}
