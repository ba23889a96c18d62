// Package mail delivers one-time codes and account notices.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/quickbites/identity-service/internal/config"
)

// Message is a rendered outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the SMTP mailer when a host is configured and the log mailer otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST not provided; mail is logged instead of sent")
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer builds a client with plain auth over STARTTLS.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log; used in development.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Debug("mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.HTML))
	return nil
}
