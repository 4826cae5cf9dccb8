package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQQueue publishes each subject to a durable fanout exchange
type RabbitMQQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	url      string
	declared map[string]bool
	mu       sync.RWMutex
	log      *zap.Logger
}

// NewRabbitMQQueue creates a new RabbitMQ message queue adapter
func NewRabbitMQQueue(url string, log *zap.Logger) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:     conn,
		channel:  ch,
		url:      url,
		declared: make(map[string]bool),
		log:      log,
	}

	go q.monitorConnection()

	log.Info("Successfully connected to RabbitMQ", zap.String("url", url))
	return q, nil
}

// declare creates the exchange once per channel. Callers hold q.mu.
func (q *RabbitMQQueue) declare(subject string) error {
	if q.channel == nil {
		return fmt.Errorf("rabbitmq: channel not available")
	}
	if q.declared[subject] {
		return nil
	}
	if err := q.channel.ExchangeDeclare(subject, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}
	q.declared[subject] = true
	return nil
}

func (q *RabbitMQQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(subject); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := q.channel.PublishWithContext(ctx,
		subject, "", false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	return nil
}

// Subscribe binds a durable queue named after the subject, so workers
// share the load and events survive a worker restart.
func (q *RabbitMQQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(subject); err != nil {
		return err
	}

	queue, err := q.channel.QueueDeclare(subject+".workers", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}

	err = q.channel.QueueBind(queue.Name, "", subject, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: bind queue: %w", err)
	}

	msgs, err := q.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	go func() {
		for msg := range msgs {
			if err := handler(msg.Body); err != nil {
				q.log.Error("Error processing RabbitMQ message",
					zap.String("exchange", subject),
					zap.Error(err),
				)
				// handler errors are not retried
			}
			if err := msg.Ack(false); err != nil {
				q.log.Warn("Failed to ack RabbitMQ message", zap.Error(err))
			}
		}
	}()

	q.log.Info("Subscribed to RabbitMQ exchange", zap.String("exchange", subject))
	return nil
}

// Ping reports whether the connection is up
func (q *RabbitMQQueue) Ping() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: connection closed")
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *RabbitMQQueue) monitorConnection() {
	for {
		reason, ok := <-q.conn.NotifyClose(make(chan *amqp.Error))
		if !ok {
			return
		}
		q.log.Warn("RabbitMQ connection lost, reconnecting...", zap.String("reason", reason.Reason))

		for {
			time.Sleep(5 * time.Second)
			conn, err := amqp.Dial(q.url)
			if err != nil {
				q.log.Error("Failed to reconnect to RabbitMQ", zap.Error(err))
				continue
			}
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				continue
			}

			q.mu.Lock()
			q.conn = conn
			q.channel = ch
			q.declared = make(map[string]bool)
			q.mu.Unlock()

			q.log.Info("Successfully reconnected to RabbitMQ")
			break
		}
	}
}
