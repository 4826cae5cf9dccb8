package queue

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by LocalQueue.Publish when the buffer is full
var ErrQueueFull = errors.New("local queue full")

var errQueueClosed = errors.New("local queue closed")

type localMessage struct {
	subject string
	data    []byte
}

// LocalQueue is an in-process bus for single-instance and development
// deployments. Messages are delivered on one goroutine in publish order.
type LocalQueue struct {
	mu       sync.RWMutex
	handlers map[string][]func([]byte) error
	messages chan localMessage
	closed   bool
	done     chan struct{}
	log      *zap.Logger
}

// NewLocalQueue creates a queue buffering up to size messages
func NewLocalQueue(size int, log *zap.Logger) *LocalQueue {
	q := &LocalQueue{
		handlers: make(map[string][]func([]byte) error),
		messages: make(chan localMessage, size),
		done:     make(chan struct{}),
		log:      log,
	}
	go q.run()
	return q
}

func (q *LocalQueue) Publish(subject string, data []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	select {
	case q.messages <- localMessage{subject: subject, data: append([]byte(nil), data...)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.handlers[subject] = append(q.handlers[subject], handler)
	return nil
}

// Ping fails once the queue is closed
func (q *LocalQueue) Ping() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	return nil
}

// Close stops accepting messages and waits for the buffered ones to drain
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.messages)
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *LocalQueue) run() {
	defer close(q.done)
	for msg := range q.messages {
		q.mu.RLock()
		handlers := q.handlers[msg.subject]
		q.mu.RUnlock()
		for _, h := range handlers {
			if err := h(msg.data); err != nil {
				q.log.Error("Error processing message", zap.String("subject", msg.subject), zap.Error(err))
			}
		}
	}
}
