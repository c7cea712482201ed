package auth

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/wneessen/go-mail"

	"github.com/zhouzirui/moodchat/backend/internal/config"
)

const otpSubject = "Your Sentiment Chatbot Login Code"

// Mailer delivers one-time login codes.
type Mailer interface {
	SendOTP(ctx context.Context, to, code, name string) error
}

// NewMailer returns an SMTP mailer when cfg is complete, otherwise a mailer
// that only logs.
func NewMailer(cfg config.MailConfig) Mailer {
	if !cfg.Enabled() {
		log.Println("[auth] SMTP not configured, OTP codes will only be logged")
		return LogMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer sends codes through an SMTP relay.
type SMTPMailer struct {
	cfg config.MailConfig
}

// SendOTP sends a plain text message with an HTML alternative.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code, name string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.Sender); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.cfg.Sender, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(mail.TypeTextPlain, otpTextBody(code, name))
	msg.AddAlternativeString(mail.TypeTextHTML, otpHTMLBody(code, name))

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	log.Printf("[auth] OTP email sent to %s", to)
	return nil
}

// LogMailer 仅记录日志，用于本地开发。
type LogMailer struct{}

func (LogMailer) SendOTP(_ context.Context, to, _, _ string) error {
	log.Printf("[auth] email delivery disabled, skipped OTP email to %s", to)
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "Hello!"
	}
	return fmt.Sprintf("Hello %s!", name)
}

func otpTextBody(code, name string) string {
	return fmt.Sprintf(`%s

Your login code for Sentiment Chatbot is:

%s

This code will expire in 10 minutes.

If you didn't request this code, please ignore this email.

Best regards,
Sentiment Chatbot Team
`, greeting(name), code)
}

func otpHTMLBody(code, name string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="background: #667eea; color: white; padding: 30px; text-align: center;">Sentiment Chatbot</h1>
    <p>%s</p>
    <p>Your login code is:</p>
    <div style="border: 2px dashed #667eea; padding: 20px; text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 5px;">%s</div>
    <p>This code will expire in <strong>10 minutes</strong>.</p>
    <p>If you didn't request this code, please ignore this email.</p>
  </div>
</body>
</html>
`, html.EscapeString(greeting(name)), html.EscapeString(code))
}
