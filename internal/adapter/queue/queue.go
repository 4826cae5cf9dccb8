// Package queue carries lifecycle events between the rental core and
// its notification workers over NATS, RabbitMQ or an in-process bus.
package queue

import (
	"fmt"

	"go.uber.org/zap"
)

// MessageQueue defines the interface for a message queue adapter
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Ping() error
	Close() error
}

// Drivers
const (
	DriverNATS     = "nats"
	DriverRabbitMQ = "rabbitmq"
	DriverLocal    = "local"
)

// New connects the queue named by driver
func New(driver, url string, log *zap.Logger) (MessageQueue, error) {
	switch driver {
	case DriverNATS, "":
		q, err := NewNATSQueue(url, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case DriverRabbitMQ:
		q, err := NewRabbitMQQueue(url, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case DriverLocal:
		return NewLocalQueue(256, log), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", driver)
	}
}
