package contact

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/golang/glog"
)

// ErrMailNotConfigured is returned by a Mailer without credentials.
var ErrMailNotConfigured = errors.New("contact: SMTP credentials not configured")

// SMTPConfig is where contact messages are mailed.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	To   string
}

// Configured reports whether credentials and a recipient are present.
func (c SMTPConfig) Configured() bool {
	return c.User != "" && c.Pass != "" && c.To != ""
}

// Mailer forwards contact messages over SMTP.
type Mailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns a mailer for cfg.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, sendMail: smtp.SendMail}
}

// Configured reports whether Send can deliver.
func (m *Mailer) Configured() bool {
	return m != nil && m.cfg.Configured()
}

// Send implements Sender. net/smtp does not take a context; ctx is only
// checked before dialing.
func (m *Mailer) Send(ctx context.Context, f Form) error {
	if !m.Configured() {
		return ErrMailNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := composeMail(m.cfg, f)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	if err := m.sendMail(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.User, []string{m.cfg.To}, msg); err != nil {
		return fmt.Errorf("send contact mail: %w", err)
	}
	glog.Infof("contact: mail sent for %s", f.Email)
	return nil
}

// headerSafe strips line breaks so visitor input cannot add headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func composeMail(cfg SMTPConfig, f Form) []byte {
	subject := fmt.Sprintf("Portfolio Contact: %s", headerSafe(f.Subject))
	body := fmt.Sprintf(`New contact form submission from your portfolio:

Name: %s
Email: %s
Subject: %s
Message:
%s

---
Sent from your portfolio contact form
`, f.Name, f.Email, f.Subject, f.Message)

	var b strings.Builder
	b.WriteString("To: " + cfg.To + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("From: " + cfg.User + "\r\n")
	b.WriteString("Reply-To: " + headerSafe(f.Email) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
