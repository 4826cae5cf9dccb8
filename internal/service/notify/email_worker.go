package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Subscriber is the consuming side of the message queue
type Subscriber interface {
	Subscribe(subject string, handler func(data []byte) error) error
}

// EmailWorker turns lifecycle events into email notices
type EmailWorker struct {
	directory ports.RecipientDirectory
	sender    ports.EmailSender
	timeout   time.Duration
	log       *zap.Logger
}

// NewEmailWorker creates a new email worker
func NewEmailWorker(directory ports.RecipientDirectory, sender ports.EmailSender, log *zap.Logger) *EmailWorker {
	return &EmailWorker{
		directory: directory,
		sender:    sender,
		timeout:   10 * time.Second,
		log:       log,
	}
}

// Subscribe starts consuming events from the queue
func (w *EmailWorker) Subscribe(sub Subscriber) error {
	return sub.Subscribe(Subject, w.Handle)
}

// Handle processes one encoded event
func (w *EmailWorker) Handle(data []byte) error {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	subject, body, ok := render(event)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	to, err := w.directory.EmailFor(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", event.UserID, err)
	}
	if to == "" {
		w.log.Debug("No email on file, skipping notice", zap.String("user_id", event.UserID))
		return nil
	}

	if err := w.sender.Send(ctx, to, subject, body); err != nil {
		telemetry.NotificationsTotal.WithLabelValues(string(event.Type), "email_error").Inc()
		return fmt.Errorf("send %s notice: %w", event.Type, err)
	}

	telemetry.NotificationsTotal.WithLabelValues(string(event.Type), "emailed").Inc()
	w.log.Info("Notice sent",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("event_id", event.ID),
	)
	return nil
}

func render(e domain.Event) (subject, body string, ok bool) {
	window := ""
	if e.StartTime != nil && e.EndTime != nil {
		window = fmt.Sprintf("%s to %s", e.StartTime.Format(time.RFC1123), e.EndTime.Format(time.RFC1123))
	}
	amount := "0.00"
	if e.Amount != nil {
		amount = e.Amount.StringFixed(2)
	}

	switch e.Type {
	case domain.EventBookingCreated:
		return "Booking received",
			fmt.Sprintf("Your booking %s on charger %s for %s is in. Quoted amount: %s.", e.BookingID, e.ChargerID, window, amount), true
	case domain.EventBookingConfirmed:
		return "Booking confirmed",
			fmt.Sprintf("Your booking %s for %s is confirmed.", e.BookingID, window), true
	case domain.EventBookingPreempted:
		return "Booking cancelled for an emergency",
			fmt.Sprintf("Your booking %s for %s was released to an emergency charge. Refund: %s.", e.BookingID, window, amount), true
	case domain.EventBookingCancelled:
		return "Booking cancelled",
			fmt.Sprintf("Your booking %s was cancelled. Refund: %s.", e.BookingID, amount), true
	case domain.EventBookingRescheduled:
		return "Booking rescheduled",
			fmt.Sprintf("Your booking %s now runs %s.", e.BookingID, window), true
	case domain.EventBookingExpired:
		return "Booking expired",
			fmt.Sprintf("Your booking %s was not confirmed in time and has expired. Refund: %s.", e.BookingID, amount), true
	case domain.EventSessionCompleted:
		return "Charging complete",
			fmt.Sprintf("Your session %s on charger %s is complete. Charged: %s.", e.SessionID, e.ChargerID, amount), true
	case domain.EventWalletOverdrawn:
		return "Wallet balance below zero",
			fmt.Sprintf("Session %s left your wallet at %s. Please top up before your next booking.", e.SessionID, amount), true
	}
	return "", "", false
}
