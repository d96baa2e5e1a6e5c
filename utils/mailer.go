package utils

import (
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"cdmsuite/config"
)

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Mailer sends sequence step emails and internal notifications over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer() *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(
			config.AppConfig.SMTPHost,
			config.AppConfig.SMTPPort,
			config.AppConfig.SMTPUsername,
			config.AppConfig.SMTPPassword,
		),
		from: config.AppConfig.FromEmail,
	}
}

// Send delivers the email and returns the message ID header value.
func (m *Mailer) Send(email Email, messageID string) error {
	if config.AppConfig.SMTPHost == "" {
		return fmt.Errorf("smtp is not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	if messageID != "" {
		msg.SetHeader("Message-ID", fmt.Sprintf("<%s@cdmsuite>", messageID))
	}
	if email.HTML || strings.Contains(email.Body, "<") {
		msg.SetBody("text/html", email.Body)
	} else {
		msg.SetBody("text/plain", email.Body)
	}

	return m.dialer.DialAndSend(msg)
}

// SendNotification sends an internal alert to the configured notify address.
// Used by the outbox worker, never from a request path.
func (m *Mailer) SendNotification(subject, body string) error {
	to := config.AppConfig.NotifyEmail
	if to == "" {
		return fmt.Errorf("notify email is not configured")
	}
	return m.Send(Email{To: to, Subject: subject, Body: body}, "")
}
