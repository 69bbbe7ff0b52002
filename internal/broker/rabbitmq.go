package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func connectToRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	slog.Error("failed to connect to rabbitmq", "attempts", MaxConnectRetry, "error", err)
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetry, err)
}

// RabbitMQQueue implements the job-queue half of the broker on RabbitMQ.
// Deliveries are acked at Pop time, so a worker crash after dequeue loses the
// job; this keeps the at-most-once semantics shared with the Redis queue.
// Pair it with a ResultStore via NewSplitBroker.
type RabbitMQQueue struct {
	connLock   sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	url        string
	queues     []string
	deliveries chan amqp.Delivery
	stop       chan struct{}
	destructor sync.Once
}

func NewRabbitMQQueue(rabbitMQURL string, queues []string) (*RabbitMQQueue, error) {
	q := &RabbitMQQueue{
		url:        rabbitMQURL,
		queues:     queues,
		deliveries: make(chan amqp.Delivery),
		stop:       make(chan struct{}),
	}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) connect() error {
	var err error
	q.conn, err = connectToRabbitMQ(q.url)
	if err != nil {
		return err
	}

	q.channel, err = q.conn.Channel()
	if err != nil {
		q.conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	// One unacked delivery in flight per connection; jobs stay queued until
	// a Pop is actually waiting for them.
	if err := q.channel.Qos(1, 0, false); err != nil {
		q.conn.Close()
		return fmt.Errorf("failed to set channel qos: %w", err)
	}

	for _, queue := range q.queues {
		if _, err := q.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			q.conn.Close()
			return fmt.Errorf("failed to declare rabbitmq queue %s: %w", queue, err)
		}

		msgs, err := q.channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			q.conn.Close()
			return fmt.Errorf("failed to consume from rabbitmq queue %s: %w", queue, err)
		}
		go q.forward(msgs)
	}

	slog.Info("rabbitmq channel opened and queues declared", "queues", q.queues)

	go q.handleReconnect()

	return nil
}

func (q *RabbitMQQueue) forward(msgs <-chan amqp.Delivery) {
	for d := range msgs {
		select {
		case q.deliveries <- d:
		case <-q.stop:
			return
		}
	}
}

func (q *RabbitMQQueue) handleReconnect() {
	notifyClose := make(chan *amqp.Error)
	q.channel.NotifyClose(notifyClose)

	select {
	case err, ok := <-notifyClose:
		if !ok { // channel is just closed on graceful close
			slog.Info("rabbitmq connection closed")
			return
		}

		slog.Warn("rabbitmq connection closed, attempting to reconnect", "error", err)

		q.connLock.Lock()
		q.channel = nil
		q.conn = nil
		q.connLock.Unlock()

		for {
			q.connLock.Lock()
			err := q.connect()
			q.connLock.Unlock()
			if err == nil {
				slog.Info("successfully reconnected to rabbitmq")
				return
			}
			time.Sleep(RetryDelay * 10)
		}
	case <-q.stop:
		return
	}
}

func (q *RabbitMQQueue) Push(ctx context.Context, queue string, job Job) error {
	q.connLock.RLock()
	defer q.connLock.RUnlock()

	if q.channel == nil || q.channel.IsClosed() {
		return fmt.Errorf("%w: rabbitmq connection is closed", ErrUnavailable)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.Id, err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",    // exchange (default)
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		slog.Error("failed to publish job, potential connection issue", "queue", queue, "error", err)
		return fmt.Errorf("%w: push to %s: %v", ErrUnavailable, queue, err)
	}

	return nil
}

func (q *RabbitMQQueue) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-q.deliveries:
		if err := d.Ack(false); err != nil {
			slog.Error("failed to ack rabbitmq delivery", "queue", d.RoutingKey, "error", err)
		}

		var job Job
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return "", Job{}, fmt.Errorf("failed to unmarshal job from queue %s: %w", d.RoutingKey, err)
		}
		return d.RoutingKey, job, nil
	case <-timer.C:
		return "", Job{}, ErrEmpty
	case <-ctx.Done():
		return "", Job{}, ctx.Err()
	}
}

func (q *RabbitMQQueue) Close() {
	q.destructor.Do(func() {
		close(q.stop)
		q.connLock.RLock()
		defer q.connLock.RUnlock()
		if q.conn != nil {
			if err := q.conn.Close(); err != nil {
				slog.Error("error closing rabbitmq connection", "error", err)
			}
		}
	})
}
