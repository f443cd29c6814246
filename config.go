package auth

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// Settings is the environment backed Config
type Settings struct {
	Secret         string   `env:"BETTER_AUTH_SECRET"`
	BaseURL        string   `env:"BETTER_AUTH_URL"  envDefault:"http://localhost:4000"`
	FrontendURL    string   `env:"FRONTEND_URL"     envDefault:"http://localhost:3000"`
	TrustedOrigins []string `env:"TRUSTED_ORIGINS"  envSeparator:","`
	AppEnv         string   `env:"APP_ENV"          envDefault:"development"`
	HTTPAddr       string   `env:"HTTP_ADDR"        envDefault:":4000"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN"    envDefault:"file:goodcorner.db?cache=shared"`

	SessionTTL       time.Duration `env:"SESSION_TTL"        envDefault:"168h"`
	SessionCacheTTL  time.Duration `env:"SESSION_CACHE_TTL"  envDefault:"5m"`
	SessionUpdateAge time.Duration `env:"SESSION_UPDATE_AGE" envDefault:"24h"`

	CookiePrefix       string `env:"COOKIE_PREFIX"        envDefault:"goodcorner"`
	CookieSecure       bool   `env:"COOKIE_SECURE"        envDefault:"false"`
	ProviderCookieName string `env:"PROVIDER_COOKIE_NAME" envDefault:"better-auth.session_token"`

	MagicLinkTTL         time.Duration `env:"MAGIC_LINK_TTL"         envDefault:"10m"`
	ResetPasswordTTL     time.Duration `env:"RESET_PASSWORD_TTL"     envDefault:"1h"`
	EmailVerificationTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	SignupHashid         bool          `env:"SIGNUP_HASHID"          envDefault:"false"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	SMTPHost string `env:"SMTP_HOST" envDefault:"in-v3.mailjet.com"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	MailFrom string `env:"MAIL_FROM" envDefault:"noreply@localhost"`
}

var _ Config = (*Settings)(nil)

// LoadSettings reads Settings from the environment and validates them
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to parse environment")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings needed to sign sessions
func (s *Settings) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Secret, validation.Required, validation.Length(16, 0)),
		validation.Field(&s.BaseURL, validation.Required, is.URL),
		validation.Field(&s.FrontendURL, validation.Required, is.URL),
		validation.Field(&s.DatabaseDriver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&s.SessionTTL, validation.Required),
		validation.Field(&s.SessionCacheTTL, validation.Required),
		validation.Field(&s.CookiePrefix, validation.Required),
		validation.Field(&s.ProviderCookieName, validation.Required),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid auth settings").
			WithTextCode(TextCodeInvalidInput)
	}
	return nil
}

// IsDevelopment reports whether APP_ENV is development
func (s *Settings) IsDevelopment() bool {
	return strings.EqualFold(s.AppEnv, "development")
}

func (s *Settings) GetSecret() string {
	return s.Secret
}

func (s *Settings) GetBaseURL() string {
	return strings.TrimRight(s.BaseURL, "/")
}

func (s *Settings) GetFrontendURL() string {
	return strings.TrimRight(s.FrontendURL, "/")
}

// GetTrustedOrigins always includes the frontend and the auth origin
func (s *Settings) GetTrustedOrigins() []string {
	out := []string{s.GetFrontendURL(), s.GetBaseURL()}
	for _, o := range s.TrustedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Settings) GetSessionTTL() time.Duration {
	return s.SessionTTL
}

func (s *Settings) GetSessionCacheTTL() time.Duration {
	return s.SessionCacheTTL
}

func (s *Settings) GetSessionUpdateAge() time.Duration {
	return s.SessionUpdateAge
}

func (s *Settings) GetCookiePrefix() string {
	return s.CookiePrefix
}

func (s *Settings) GetCookieSecure() bool {
	return s.CookieSecure
}

func (s *Settings) GetProviderCookieName() string {
	return s.ProviderCookieName
}

func (s *Settings) GetMagicLinkTTL() time.Duration {
	return s.MagicLinkTTL
}

func (s *Settings) GetResetPasswordTTL() time.Duration {
	return s.ResetPasswordTTL
}

func (s *Settings) GetEmailVerificationTTL() time.Duration {
	return s.EmailVerificationTTL
}
