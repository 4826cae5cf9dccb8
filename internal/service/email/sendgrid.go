package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridProvider implements the Provider interface using SendGrid
type SendGridProvider struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
}

// NewSendGridProvider creates a new SendGrid provider
func NewSendGridProvider(apiKey, fromEmail, fromName string) *SendGridProvider {
	return &SendGridProvider{
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    sendgrid.NewSendClient(apiKey),
	}
}

func (p *SendGridProvider) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	from := mail.NewEmail(p.fromName, p.fromEmail)
	toEmail := mail.NewEmail("", to)

	plain, html := body, ""
	if isHTML {
		plain, html = "", body
	}
	message := mail.NewSingleEmail(from, subject, toEmail, plain, html)

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid error: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
