package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSecret() string
	GetBaseURL() string
	GetFrontendURL() string
	GetTrustedOrigins() []string
	GetSessionTTL() time.Duration
	GetSessionCacheTTL() time.Duration
	GetSessionUpdateAge() time.Duration
	GetCookiePrefix() string
	GetCookieSecure() bool
	GetProviderCookieName() string
	GetMagicLinkTTL() time.Duration
	GetResetPasswordTTL() time.Duration
	GetEmailVerificationTTL() time.Duration
}

// Mailer delivers transactional email. Delivery infrastructure lives
// outside this package.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailMessage is a rendered email ready to be delivered.
type MailMessage struct {
	To      string
	Subject string
	HTML    string
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// RequestMeta is the client metadata recorded on a session row.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(line("ERR", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(line("WRN", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(line("INF", msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(line("DBG", msg, args...))
}

func line(level, msg string, args ...any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}
