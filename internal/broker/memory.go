package broker

import (
	"context"
	"sync"
	"time"
)

type storedResult struct {
	result    Result
	expiresAt time.Time
}

// InMemoryBroker is a process-local Broker used by tests and single-process
// deployments. Blocked Pops are woken by a broadcast channel that is closed
// and replaced on every Push.
type InMemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][]Job
	results map[string]storedResult
	notify  chan struct{}
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		queues:  make(map[string][]Job),
		results: make(map[string]storedResult),
		notify:  make(chan struct{}),
	}
}

func (b *InMemoryBroker) Push(ctx context.Context, queue string, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues[queue] = append(b.queues[queue], job)

	close(b.notify)
	b.notify = make(chan struct{})

	return nil
}

func (b *InMemoryBroker) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		for _, queue := range queues {
			if jobs := b.queues[queue]; len(jobs) > 0 {
				job := jobs[0]
				b.queues[queue] = jobs[1:]
				b.mu.Unlock()
				return queue, job, nil
			}
		}
		notify := b.notify
		b.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return "", Job{}, ErrEmpty
		case <-ctx.Done():
			return "", Job{}, ctx.Err()
		}
	}
}

func (b *InMemoryBroker) Put(ctx context.Context, result Result, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for id, entry := range b.results {
		if now.After(entry.expiresAt) {
			delete(b.results, id)
		}
	}

	if _, exists := b.results[result.Id]; exists {
		return ErrDuplicateResult
	}

	b.results[result.Id] = storedResult{result: result, expiresAt: now.Add(ttl)}
	return nil
}

func (b *InMemoryBroker) Get(ctx context.Context, id string) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.results[id]
	if !exists {
		return Result{}, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(b.results, id)
		return Result{}, ErrNotFound
	}
	return entry.result, nil
}
