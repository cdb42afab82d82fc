package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/snappy-im/snappy-server/config"
)

// Mailer sends transactional mail. The SMTP implementation is used in real
// deployments; the log implementation serves development setups where no
// relay is configured.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type smtpMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewMailer(cfg *config.Config, logger *slog.Logger) Mailer {
	if !cfg.SMTP.Enabled {
		return &logMailer{logger: logger}
	}
	return &smtpMailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		auth: smtp.PlainAuth("", cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.Host),
		from: cfg.SMTP.From,
	}
}

func (m *smtpMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.from, to, subject, body)
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// logMailer writes the mail to the log instead of sending it.
type logMailer struct {
	logger *slog.Logger
}

func (m *logMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail (smtp disabled)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
