package mocks

import "sync"

// MockMessageQueue is an in-process message queue. Publish records the
// message and delivers it synchronously to subscribers of the subject.
type MockMessageQueue struct {
	mu                sync.Mutex
	PublishedMessages map[string][][]byte
	Subscribers       map[string][]func([]byte) error
	PublishFunc       func(subject string, data []byte) error
	SubscribeFunc     func(subject string, handler func([]byte) error) error
	CloseFunc         func() error
	PingFunc          func() error
	// HandlerErrors collects errors returned by subscribers
	HandlerErrors []error
}

func NewMockMessageQueue() *MockMessageQueue {
	return &MockMessageQueue{
		PublishedMessages: make(map[string][][]byte),
		Subscribers:       make(map[string][]func([]byte) error),
	}
}

func (m *MockMessageQueue) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	m.mu.Lock()
	m.PublishedMessages[subject] = append(m.PublishedMessages[subject], data)
	handlers := append([]func([]byte) error(nil), m.Subscribers[subject]...)
	m.mu.Unlock()

	for _, h := range handlers {
		if err := h(data); err != nil {
			m.mu.Lock()
			m.HandlerErrors = append(m.HandlerErrors, err)
			m.mu.Unlock()
		}
	}
	return nil
}

func (m *MockMessageQueue) Subscribe(subject string, handler func([]byte) error) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(subject, handler)
	}
	m.mu.Lock()
	m.Subscribers[subject] = append(m.Subscribers[subject], handler)
	m.mu.Unlock()
	return nil
}

func (m *MockMessageQueue) Ping() error {
	if m.PingFunc != nil {
		return m.PingFunc()
	}
	return nil
}

func (m *MockMessageQueue) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetPublishedMessages returns all messages published to a subject
func (m *MockMessageQueue) GetPublishedMessages(subject string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.PublishedMessages[subject]...)
}

// ClearMessages clears all published messages
func (m *MockMessageQueue) ClearMessages() {
	m.mu.Lock()
	m.PublishedMessages = make(map[string][][]byte)
	m.mu.Unlock()
}
