package auth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-sessionauth/templates"
)

// AppName is the name shown in emails and passkey prompts
const AppName = "The Good Corner"

// Email template names
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
	TemplateMagicLink     = "magic_link"
)

// Notifier renders transactional emails and hands them to a Mailer
type Notifier struct {
	mailer Mailer
	engine *django.Engine
	logger Logger
}

// NewNotifier loads the embedded templates
func NewNotifier(mailer Mailer) (*Notifier, error) {
	engine := django.NewFileSystem(http.FS(templates.Emails), ".html")
	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load email templates")
	}
	return &Notifier{
		mailer: mailer,
		engine: engine,
		logger: defLogger{},
	}, nil
}

func (n *Notifier) WithLogger(logger Logger) *Notifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

func (n *Notifier) SendVerificationEmail(ctx context.Context, user *User, link string, ttl time.Duration) error {
	return n.send(ctx, user, "Verify your email address", TemplateVerifyEmail, link, ttl)
}

func (n *Notifier) SendPasswordReset(ctx context.Context, user *User, link string, ttl time.Duration) error {
	return n.send(ctx, user, "Reset your password", TemplateResetPassword, link, ttl)
}

func (n *Notifier) SendMagicLink(ctx context.Context, email, name, link string, ttl time.Duration) error {
	user := &User{Email: email, Name: name}
	return n.send(ctx, user, "Your sign in link", TemplateMagicLink, link, ttl)
}

func (n *Notifier) send(ctx context.Context, user *User, subject, tpl, link string, ttl time.Duration) error {
	var buf bytes.Buffer
	err := n.engine.Render(&buf, tpl, map[string]any{
		"app_name":   AppName,
		"name":       user.DisplayName(),
		"url":        link,
		"expires_in": humanDuration(ttl),
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to render email").
			WithMetadata(map[string]any{"template": tpl})
	}

	msg := MailMessage{To: user.Email, Subject: subject, HTML: buf.String()}
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.logger.Error("failed to send email", "template", tpl, "error", err)
		return errors.Wrap(err, errors.CategoryOperation, "failed to send email")
	}
	return nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return pluralize(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return pluralize(int(d/time.Hour), "hour")
	default:
		return pluralize(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// SMTPMailer delivers mail through an SMTP relay
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a mailer from settings
func NewSMTPMailer(s *Settings) *SMTPMailer {
	return &SMTPMailer{
		Host:     s.SMTPHost,
		Port:     s.SMTPPort,
		Username: s.SMTPUser,
		Password: s.SMTPPass,
		From:     s.MailFrom,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	return smtp.SendMail(addr, auth, m.From, []string{msg.To}, m.encode(msg))
}

func (m *SMTPMailer) encode(msg MailMessage) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogMailer logs messages instead of sending them. Used in development.
type LogMailer struct {
	Logger Logger
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(_ context.Context, msg MailMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("email", "to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}
