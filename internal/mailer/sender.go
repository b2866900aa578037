package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"mindtrack/internal/config"
)

type Message struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the delivery backend configured in smtp.sender.
func NewSender(cfg config.SMTPConfig) (Sender, error) {
	switch cfg.Sender {
	case "smtp":
		return NewSMTPSender(cfg)
	case "log", "":
		return NewLogSender(slog.Default()), nil
	default:
		return nil, fmt.Errorf("unknown email sender %q", cfg.Sender)
	}
}

type SMTPSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient %s: %w", msg.To, err)
	}
	m.Subject(msg.Subject)

	if msg.BodyText != "" {
		m.SetBodyString(mail.TypeTextPlain, msg.BodyText)
		m.AddAlternativeString(mail.TypeTextHTML, msg.BodyHTML)
	} else {
		m.SetBodyString(mail.TypeTextHTML, msg.BodyHTML)
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("email sent (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"html_bytes", len(msg.BodyHTML),
		"text", msg.BodyText,
	)
	return nil
}
