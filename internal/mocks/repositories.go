package mocks

import "context"

// MockRecipientDirectory is a mock implementation of ports.RecipientDirectory
type MockRecipientDirectory struct {
	Emails       map[string]string
	EmailForFunc func(ctx context.Context, userID string) (string, error)
}

func (m *MockRecipientDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	if m.EmailForFunc != nil {
		return m.EmailForFunc(ctx, userID)
	}
	return m.Emails[userID], nil
}
