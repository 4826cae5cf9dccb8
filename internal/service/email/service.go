// Package email delivers notices through SendGrid or plain SMTP behind a
// circuit breaker, so a mail outage fails fast instead of stalling the
// event worker.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Provider defines the interface for email providers
type Provider interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// Config holds email service configuration
type Config struct {
	// Provider type: "sendgrid" or "smtp"
	Provider string `mapstructure:"provider"`

	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`

	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`

	// SMTP configuration (Mailhog in development)
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPUseTLS   bool   `mapstructure:"smtp_use_tls"`

	// Breaker opens after this many consecutive failures
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// DefaultConfig returns a configuration for local development against Mailhog
func DefaultConfig() *Config {
	return &Config{
		Provider:         "smtp",
		FromEmail:        "noreply@evrental.local",
		FromName:         "EV Rental",
		SMTPHost:         "localhost",
		SMTPPort:         1025,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("email delivery temporarily unavailable")

// Service implements ports.EmailSender
type Service struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

var _ ports.EmailSender = (*Service)(nil)

// NewService creates an email service from config
func NewService(config *Config, log *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var provider Provider
	switch config.Provider {
	case "sendgrid":
		if config.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SendGrid API key is required")
		}
		provider = NewSendGridProvider(config.SendGridAPIKey, config.FromEmail, config.FromName)
	case "smtp":
		provider = NewSMTPProvider(
			config.SMTPHost,
			config.SMTPPort,
			config.SMTPUsername,
			config.SMTPPassword,
			config.FromEmail,
			config.FromName,
			config.SMTPUseTLS,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", config.Provider)
	}

	return NewServiceWithProvider(provider, config, log), nil
}

// NewServiceWithProvider wraps an existing provider
func NewServiceWithProvider(provider Provider, config *Config, log *zap.Logger) *Service {
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := config.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "email",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Email circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Service{provider: provider, breaker: breaker, log: log}
}

// Send delivers a plain-text email
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.provider.Send(ctx, to, subject, body, false)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		s.log.Error("Failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
