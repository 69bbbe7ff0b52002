package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"taxi-backend/internal/broker"
	"taxi-backend/internal/config"
	"taxi-backend/internal/inference"
	"taxi-backend/internal/worker"
)

func main() {
	log.Println("Starting Worker Process...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var b broker.Broker
	switch cfg.BrokerType {
	case "rabbitmq":
		queue, err := broker.NewRabbitMQQueue(cfg.RabbitMQURL, []string{broker.FareDurationQueue, broker.DemandQueue})
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer queue.Close()

		store, err := broker.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer store.Close()

		b = broker.NewSplitBroker(queue, store)
	default:
		redisBroker, err := broker.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisBroker.Close()

		b = redisBroker
	}

	pool := &worker.Pool{
		Broker: b,
		Models: map[string]inference.Func{
			broker.FareDurationQueue: inference.PredictFareDuration,
			broker.DemandQueue:       inference.PredictDemand,
		},
		ResultTTL:   cfg.ResultTTL,
		Concurrency: cfg.WorkerConcurrency,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Worker started. Waiting for jobs. Press Ctrl+C to exit.")

	if err := pool.Run(ctx); err != nil {
		log.Fatalf("Worker pool exited with error: %v", err)
	}

	log.Println("Worker process stopped.")
}
