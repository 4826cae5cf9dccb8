package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/mocks"
)

func preemptedEvent() domain.Event {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	refund := decimal.RequireFromString("12.5")
	return domain.Event{
		ID:         "e1",
		Type:       domain.EventBookingPreempted,
		UserID:     "u1",
		ChargerID:  "c1",
		BookingID:  "b1",
		Amount:     &refund,
		StartTime:  &start,
		EndTime:    &end,
		OccurredAt: start,
	}
}

func TestPublisher_PublishesJSON(t *testing.T) {
	mq := mocks.NewMockMessageQueue()
	p := NewPublisher(mq, zap.NewNop())

	p.Notify(context.Background(), preemptedEvent())

	msgs := mq.GetPublishedMessages(Subject)
	require.Len(t, msgs, 1)
	var got domain.Event
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, domain.EventBookingPreempted, got.Type)
	assert.Equal(t, "b1", got.BookingID)
	assert.Equal(t, "12.5", got.Amount.String())
}

func TestPublisher_SwallowsQueueErrors(t *testing.T) {
	mq := mocks.NewMockMessageQueue()
	mq.PublishFunc = func(string, []byte) error { return errors.New("nats: connection closed") }
	p := NewPublisher(mq, zap.NewNop())

	assert.NotPanics(t, func() { p.Notify(context.Background(), preemptedEvent()) })
}

func TestEmailWorker_SendsNoticeThroughQueue(t *testing.T) {
	mq := mocks.NewMockMessageQueue()
	sender := &mocks.MockEmailSender{}
	dir := &mocks.MockRecipientDirectory{Emails: map[string]string{"u1": "driver@example.com"}}
	worker := NewEmailWorker(dir, sender, zap.NewNop())
	require.NoError(t, worker.Subscribe(mq))

	NewPublisher(mq, zap.NewNop()).Notify(context.Background(), preemptedEvent())

	sent := sender.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "driver@example.com", sent[0].To)
	assert.Equal(t, "Booking cancelled for an emergency", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Refund: 12.50")
	assert.Empty(t, mq.HandlerErrors)
}

func TestEmailWorker_SkipsUsersWithoutEmail(t *testing.T) {
	sender := &mocks.MockEmailSender{}
	worker := NewEmailWorker(&mocks.MockRecipientDirectory{}, sender, zap.NewNop())

	data, _ := json.Marshal(preemptedEvent())
	require.NoError(t, worker.Handle(data))
	assert.Empty(t, sender.Messages())
}

func TestEmailWorker_IgnoresSilentEvents(t *testing.T) {
	sender := &mocks.MockEmailSender{}
	dir := &mocks.MockRecipientDirectory{Emails: map[string]string{"u1": "driver@example.com"}}
	worker := NewEmailWorker(dir, sender, zap.NewNop())

	data, _ := json.Marshal(domain.Event{ID: "e2", Type: domain.EventSessionStarted, UserID: "u1"})
	require.NoError(t, worker.Handle(data))
	assert.Empty(t, sender.Messages())
}

func TestEmailWorker_ReportsSendFailure(t *testing.T) {
	sender := &mocks.MockEmailSender{SendFunc: func(context.Context, string, string, string) error {
		return errors.New("sendgrid: 503")
	}}
	dir := &mocks.MockRecipientDirectory{Emails: map[string]string{"u1": "driver@example.com"}}
	worker := NewEmailWorker(dir, sender, zap.NewNop())

	data, _ := json.Marshal(preemptedEvent())
	assert.Error(t, worker.Handle(data))
	assert.Error(t, worker.Handle([]byte("not json")))
}
