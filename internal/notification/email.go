package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// EmailNotifier delivers incident notifications over SMTP. It exists for
// the held-funds-leak case: when a compensating release itself fails,
// logging alone is not enough to guarantee an operator sees it.
type EmailNotifier struct {
	From     string
	To       []string
	SMTPHost string
	SMTPPort string
	Username string
	Password string
}

// NewEmailNotifier builds an SMTP-backed Notifier.
func NewEmailNotifier(from string, to []string, smtpHost, smtpPort, username, password string) *EmailNotifier {
	return &EmailNotifier{From: from, To: to, SMTPHost: smtpHost, SMTPPort: smtpPort, Username: username, Password: password}
}

// Send emails the incident to every configured recipient. The context is
// not honored by the underlying SMTP client, so Send blocks for the whole
// SMTP exchange. authorization.Pipeline calls it synchronously, inside
// Authorize, when a compensating release fails.
func (n *EmailNotifier) Send(_ context.Context, message Message) error {
	if n == nil || len(n.To) == 0 {
		return nil
	}

	e := email.NewEmail()
	e.From = n.From
	e.To = n.To
	e.Subject = fmt.Sprintf("[cardcore] %s", message.Kind)
	e.Text = []byte(fmt.Sprintf("destination: %s\n\n%s", message.Destination, message.Body))

	addr := fmt.Sprintf("%s:%s", n.SMTPHost, n.SMTPPort)
	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("send incident email: %w", err)
	}
	return nil
}
