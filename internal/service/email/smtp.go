package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPProvider sends through a plain SMTP relay such as Mailhog
type SMTPProvider struct {
	addr      string
	host      string
	auth      smtp.Auth
	fromEmail string
	fromName  string
	useTLS    bool
}

// NewSMTPProvider creates a new SMTP provider
func NewSMTPProvider(host string, port int, username, password, fromEmail, fromName string, useTLS bool) *SMTPProvider {
	p := &SMTPProvider{
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		host:      host,
		fromEmail: fromEmail,
		fromName:  fromName,
		useTLS:    useTLS,
	}
	if username != "" && password != "" {
		p.auth = smtp.PlainAuth("", username, password, host)
	}
	return p
}

func (p *SMTPProvider) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	contentType := "text/plain; charset=UTF-8"
	if isHTML {
		contentType = "text/html; charset=UTF-8"
	}

	var msg strings.Builder
	for _, h := range [][2]string{
		{"From", p.formatFrom()},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", contentType},
	} {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	conn, err := p.dial(ctx, deadline)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		return fmt.Errorf("smtp client error: %w", err)
	}
	defer client.Close()

	if p.auth != nil {
		if err := client.Auth(p.auth); err != nil {
			return fmt.Errorf("smtp auth error: %w", err)
		}
	}
	if err := client.Mail(p.fromEmail); err != nil {
		return fmt.Errorf("smtp mail error: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt error: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data error: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("smtp write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close error: %w", err)
	}
	return client.Quit()
}

func (p *SMTPProvider) dial(ctx context.Context, deadline time.Time) (net.Conn, error) {
	dialer := &net.Dialer{Deadline: deadline}
	if p.useTLS {
		conn, err := (&tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: p.host, MinVersion: tls.VersionTLS12},
		}).DialContext(ctx, "tcp", p.addr)
		if err != nil {
			return nil, fmt.Errorf("tls dial error: %w", err)
		}
		return conn, nil
	}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial error: %w", err)
	}
	return conn, nil
}

func (p *SMTPProvider) formatFrom() string {
	if p.fromName != "" {
		return fmt.Sprintf("%s <%s>", p.fromName, p.fromEmail)
	}
	return p.fromEmail
}
