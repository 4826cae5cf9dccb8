// Package notify fans lifecycle events out over the message queue and turns
// them into user notices.
package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Subject is the queue subject all lifecycle events are published on
const Subject = "evrental.events"

// Queue is the publishing side of the message queue
type Queue interface {
	Publish(subject string, data []byte) error
}

// Nop drops every event
type Nop struct{}

func (Nop) Notify(context.Context, domain.Event) {}

// Publisher publishes events to the message queue. Failures are logged
// and counted, never returned: the state change has already committed.
type Publisher struct {
	queue   Queue
	subject string
	log     *zap.Logger
}

var (
	_ ports.Notifier = (*Publisher)(nil)
	_ ports.Notifier = Nop{}
)

// NewPublisher creates a new event publisher
func NewPublisher(queue Queue, log *zap.Logger) *Publisher {
	return &Publisher{queue: queue, subject: Subject, log: log}
}

// Notify publishes one event
func (p *Publisher) Notify(_ context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
		telemetry.NotificationsTotal.WithLabelValues(string(event.Type), "encode_error").Inc()
		return
	}

	if err := p.queue.Publish(p.subject, data); err != nil {
		p.log.Warn("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		telemetry.NotificationsTotal.WithLabelValues(string(event.Type), "publish_error").Inc()
		return
	}

	telemetry.NotificationsTotal.WithLabelValues(string(event.Type), "published").Inc()
}
