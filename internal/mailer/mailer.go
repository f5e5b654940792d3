// Package mailer sends transactional email through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/learnhub/apiserver/config"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer composes and delivers LearnHub email.
type Mailer struct {
	client   sender
	fromName string
	from     string
}

func New(cfg config.SendGridConfig) (*Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendgrid from email is required")
	}
	return &Mailer{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		fromName: cfg.FromName,
		from:     cfg.FromEmail,
	}, nil
}

// WelcomeMessage builds the email sent after registration.
func (m *Mailer) WelcomeMessage(name, email, role string) *mail.SGMailV3 {
	subject := "Welcome to LearnHub"
	action := "Start browsing courses and enroll in the ones you like."
	if role == "instructor" {
		action = "You can now publish your first course from the instructor dashboard."
	}
	text := fmt.Sprintf("Hi %s,\n\nThanks for joining LearnHub. %s\n", name, action)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Thanks for joining LearnHub. %s</p>", html.EscapeString(name), action)

	return mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		subject,
		mail.NewEmail(name, email),
		text,
		body,
	)
}

// SendWelcome delivers the welcome email. Non-2xx responses are errors.
func (m *Mailer) SendWelcome(ctx context.Context, name, email, role string) error {
	resp, err := m.client.SendWithContext(ctx, m.WelcomeMessage(name, email, role))
	if err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send welcome email: sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
