package refresh

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Alerter notifies operators about cycle failures that need a human, such as the upstream
// layout changing.
//
// note: fault injection point
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type EmailConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

func (c EmailConfig) Enabled() bool {
	return c.Server != "" && len(c.Recipients) > 0
}

// EmailAlerter sends alerts over SMTP.
type EmailAlerter struct {
	cfg EmailConfig
}

func NewEmailAlerter(cfg EmailConfig) EmailAlerter {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return EmailAlerter{cfg: cfg}
}

func (a EmailAlerter) Alert(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Bedwatch <%s>", a.cfg.EmailAddress)
	mail.To = a.cfg.Recipients
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server, a.cfg.Port)

	var auth smtp.Auth
	if a.cfg.Password != "" {
		auth = smtp.PlainAuth("", a.cfg.EmailAddress, a.cfg.Password, a.cfg.Server)
	}

	done := make(chan error, 1)
	go func() {
		done <- mail.Send(addr, auth)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatAlertBody(url string, err error, serving bool, lastScraped string) string {
	var body strings.Builder
	fmt.Fprintf(&body, "The bed availability report could not be extracted.\n\n")
	fmt.Fprintf(&body, "source: %s\n", url)
	fmt.Fprintf(&body, "error: %v\n", err)
	if serving {
		fmt.Fprintf(&body, "still serving the snapshot captured at %s\n", lastScraped)
	} else {
		fmt.Fprintf(&body, "no snapshot has been committed yet\n")
	}
	fmt.Fprintf(&body, "\nThis usually means the upstream page layout has changed.\n")
	return body.String()
}
