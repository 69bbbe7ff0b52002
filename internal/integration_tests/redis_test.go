package integrationtests

import (
	"context"
	"testing"
	"time"

	"taxi-backend/internal/broker"
	"taxi-backend/internal/dispatch"
	"taxi-backend/internal/inference"
	"taxi-backend/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	redisURL := setupRedisContainer(t, ctx)

	b, err := broker.NewRedisBroker(redisURL)
	require.NoError(t, err)
	defer b.Close()

	t.Run("Push and Pop preserves FIFO order", func(t *testing.T) {
		for _, id := range []string{"first", "second", "third"} {
			err := b.Push(ctx, "order_queue", broker.Job{
				Id:         id,
				Payload:    map[string]float64{"x": 1},
				EnqueuedAt: time.Now().UTC(),
			})
			require.NoError(t, err)
		}

		for _, want := range []string{"first", "second", "third"} {
			queue, job, err := b.Pop(ctx, []string{"order_queue"}, 2*time.Second)
			require.NoError(t, err)
			assert.Equal(t, "order_queue", queue)
			assert.Equal(t, want, job.Id)
			assert.Equal(t, map[string]float64{"x": 1}, job.Payload)
		}
	})

	t.Run("Pop drains multiple queues", func(t *testing.T) {
		require.NoError(t, b.Push(ctx, broker.DemandQueue, broker.Job{Id: "d1", Payload: map[string]float64{"region_id": 3}}))

		queue, job, err := b.Pop(ctx, []string{broker.FareDurationQueue, broker.DemandQueue}, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, broker.DemandQueue, queue)
		assert.Equal(t, "d1", job.Id)
	})

	t.Run("Pop times out on empty queue", func(t *testing.T) {
		_, _, err := b.Pop(ctx, []string{"empty_queue"}, time.Second)
		assert.ErrorIs(t, err, broker.ErrEmpty)
	})

	t.Run("Put rejects duplicate results", func(t *testing.T) {
		result := broker.Result{
			Id:          "job-1",
			Status:      broker.StatusCompleted,
			Output:      map[string]float64{"fare_amount": 24.75},
			CompletedAt: time.Now().UTC(),
		}
		require.NoError(t, b.Put(ctx, result, time.Minute))

		got, err := b.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, result.Output, got.Output)

		err = b.Put(ctx, broker.Result{Id: "job-1", Status: broker.StatusFailed}, time.Minute)
		assert.ErrorIs(t, err, broker.ErrDuplicateResult)

		// First write wins.
		got, err = b.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, broker.StatusCompleted, got.Status)
	})

	t.Run("Results expire after TTL", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, broker.Result{Id: "short-lived", Status: broker.StatusCompleted}, time.Second))

		_, err := b.Get(ctx, "short-lived")
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)

		_, err = b.Get(ctx, "short-lived")
		assert.ErrorIs(t, err, broker.ErrNotFound)
	})

	t.Run("Get unknown id", func(t *testing.T) {
		_, err := b.Get(ctx, "never-submitted")
		assert.ErrorIs(t, err, broker.ErrNotFound)
	})
}

func TestRedisPredictionWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	redisURL := setupRedisContainer(t, ctx)

	b, err := broker.NewRedisBroker(redisURL)
	require.NoError(t, err)
	defer b.Close()

	pool := &worker.Pool{
		Broker: b,
		Models: map[string]inference.Func{
			broker.FareDurationQueue: inference.PredictFareDuration,
			broker.DemandQueue:       inference.PredictDemand,
		},
		ResultTTL:   time.Minute,
		Concurrency: 2,
	}
	poolCtx, stopPool := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(poolCtx) //nolint:errcheck
	}()
	t.Cleanup(func() {
		stopPool()
		<-done
	})

	d := dispatch.NewDispatcher(b)

	t.Run("Fare prediction round trip", func(t *testing.T) {
		id, err := d.Submit(ctx, broker.FareDurationQueue, map[string]float64{
			inference.FeaturePassengerCount: 2,
			inference.FeatureTripDistance:   3.5,
		})
		require.NoError(t, err)

		result, err := d.AwaitResult(ctx, id, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, broker.StatusCompleted, result.Status)
		assert.InDelta(t, 24.75, result.Output[inference.OutputFareAmount], 1e-9)
		assert.InDelta(t, 930, result.Output[inference.OutputTripDuration], 1e-9)
	})

	t.Run("Model rejection becomes failed result", func(t *testing.T) {
		id, err := d.Submit(ctx, broker.FareDurationQueue, map[string]float64{
			inference.FeaturePassengerCount: 2,
			inference.FeatureTripDistance:   -1,
		})
		require.NoError(t, err)

		result, err := d.AwaitResult(ctx, id, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, broker.StatusFailed, result.Status)
		assert.Contains(t, result.Error, "trip_distance")
	})
}
