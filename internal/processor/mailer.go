package processor

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/kryos/kryos-api/pkg/logger"
)

type Mail struct {
	To      []string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

type SMTPConfig struct {
	Addr     string
	Host     string
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	host := cfg.Host
	if host == "" {
		host, _, _ = strings.Cut(cfg.Addr, ":")
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPMailer{cfg: cfg, auth: auth}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = m.To
	e.Subject = m.Subject
	e.Text = []byte(m.Text)

	if err := e.Send(s.cfg.Addr, s.auth); err != nil {
		return fmt.Errorf("send mail %q: %w", m.Subject, err)
	}
	logger.Info("[mail] sent", "to", strings.Join(m.To, ","), "subject", m.Subject)
	return nil
}

// LogMailer writes mail to the log instead of sending it. Used when no SMTP
// relay is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Mail) error {
	logger.Info("[mail] smtp not configured, dropping mail", "to", strings.Join(m.To, ","), "subject", m.Subject)
	return nil
}

// NewMailer returns an SMTP mailer when an address is configured.
func NewMailer(cfg SMTPConfig) Mailer {
	if cfg.Addr == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}
