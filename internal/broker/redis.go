package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker backs both the job queue and the result store with a single
// Redis instance: LPUSH/BRPOP give a durable FIFO queue, SET NX EX gives
// at-most-once result writes with TTL enforcement.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	for i := 0; i < MaxConnectRetry; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			slog.Info("connected to redis", "addr", opts.Addr)
			return &RedisBroker{client: client}, nil
		}
		slog.Warn("failed to connect to redis", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", MaxConnectRetry, err)
}

func resultKey(id string) string {
	return "result:" + id
}

func (b *RedisBroker) Push(ctx context.Context, queue string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.Id, err)
	}

	if err := b.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("%w: push to %s: %v", ErrUnavailable, queue, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, Job, error) {
	entry, err := b.client.BRPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", Job{}, ErrEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", Job{}, ctx.Err()
		}
		return "", Job{}, fmt.Errorf("%w: pop: %v", ErrUnavailable, err)
	}

	// BRPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(entry[1]), &job); err != nil {
		return "", Job{}, fmt.Errorf("failed to unmarshal job from queue %s: %w", entry[0], err)
	}
	return entry[0], job, nil
}

func (b *RedisBroker) Put(ctx context.Context, result Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", result.Id, err)
	}

	written, err := b.client.SetNX(ctx, resultKey(result.Id), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: put result %s: %v", ErrUnavailable, result.Id, err)
	}
	if !written {
		return ErrDuplicateResult
	}
	return nil
}

func (b *RedisBroker) Get(ctx context.Context, id string) (Result, error) {
	data, err := b.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: get result %s: %v", ErrUnavailable, id, err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal result %s: %w", id, err)
	}
	return result, nil
}

func (b *RedisBroker) Close() {
	if err := b.client.Close(); err != nil {
		slog.Error("error closing redis client", "error", err)
	}
}
