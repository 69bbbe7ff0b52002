package cmd

import (
	"flag"
	"log"

	"taxi-backend/internal/broker"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// NewBroker builds the broker selected by brokerType. The rabbitmq variant
// carries jobs over RabbitMQ and results over Redis, since RabbitMQ has no
// keyed result slot.
func NewBroker(brokerType, redisURL, rabbitMQURL string) (broker.Broker, error) {
	switch brokerType {
	case "memory":
		return broker.NewInMemoryBroker(), nil
	case "rabbitmq":
		queue, err := broker.NewRabbitMQQueue(rabbitMQURL, []string{broker.FareDurationQueue, broker.DemandQueue})
		if err != nil {
			return nil, err
		}
		store, err := broker.NewRedisBroker(redisURL)
		if err != nil {
			queue.Close()
			return nil, err
		}
		return broker.NewSplitBroker(queue, store), nil
	default:
		return broker.NewRedisBroker(redisURL)
	}
}
