// Package mail delivers transactional email for the portal, currently only
// password reset codes.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"alumnihub.org/internal/obs"
)

// Sender delivers a password reset code to an address.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, code string) error
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether the config is complete enough to dial.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPSender sends mail over SMTP.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender builds a Sender from config.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port != 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
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
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, code string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject("Your password reset code")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Your password reset code is %s.\r\n\r\nIt expires in 10 minutes. If you did not request a reset, ignore this message.\r\n",
		code))
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// LogSender writes reset codes to the application log instead of sending
// mail. Used in development when SMTP is not configured.
type LogSender struct{}

func (LogSender) SendPasswordReset(_ context.Context, to, code string) error {
	obs.Event("info", "password reset code issued", map[string]any{
		"to":   to,
		"code": code,
	})
	return nil
}
