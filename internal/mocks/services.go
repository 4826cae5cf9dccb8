package mocks

import (
	"context"
	"sync"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// MockNotifier records every event it is given
type MockNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *MockNotifier) Notify(_ context.Context, event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns the recorded events
func (m *MockNotifier) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// OfType returns the recorded events of one type
func (m *MockNotifier) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// SentEmail is one message handed to MockEmailSender
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a mock implementation of ports.EmailSender
type MockEmailSender struct {
	mu       sync.Mutex
	Sent     []SentEmail
	SendFunc func(ctx context.Context, to, subject, body string) error
}

func (m *MockEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, to, subject, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns the sent messages
func (m *MockEmailSender) Messages() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.Sent...)
}
