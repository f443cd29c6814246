package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-webauthn/webauthn/webauthn"
)

// SessionKind tells which ceremony a stored challenge belongs to
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

const (
	defaultRPID          = "localhost"
	defaultRPDisplayName = "The Good Corner"
	defaultOrigin        = "http://localhost:3000"
	defaultSessionTTL    = 5 * time.Minute
	defaultCookieName    = "better-auth-passkey"
)

// Config controls the WebAuthn relying party and the challenge cookie
type Config struct {
	RPID          string        `env:"WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPDisplayName string        `env:"WEBAUTHN_RP_NAME"         envDefault:"The Good Corner"`
	RPOrigins     []string      `env:"WEBAUTHN_ORIGINS"         envSeparator:","`
	SessionTTL    time.Duration `env:"WEBAUTHN_SESSION_TTL"     envDefault:"5m"`
	CookieName    string        `env:"WEBAUTHN_CHALLENGE_COOKIE" envDefault:"better-auth-passkey"`
	CookieSecure  bool          `env:"COOKIE_SECURE"            envDefault:"false"`
}

// DefaultConfig matches the local development setup
func DefaultConfig() Config {
	return Config{
		RPID:          defaultRPID,
		RPDisplayName: defaultRPDisplayName,
		RPOrigins:     []string{defaultOrigin},
		SessionTTL:    defaultSessionTTL,
		CookieName:    defaultCookieName,
	}
}

// LoadConfigFromEnv returns passkey configuration with defaults. A malformed
// variable falls back to the defaults for the whole struct, keeping the
// relying party id when it parsed.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fallback := DefaultConfig()
		if cfg.RPID != "" {
			fallback.RPID = cfg.RPID
		}
		return fallback
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.RPID == "" {
		c.RPID = defaultRPID
	}
	if c.RPDisplayName == "" {
		c.RPDisplayName = defaultRPDisplayName
	}
	if len(c.RPOrigins) == 0 {
		c.RPOrigins = []string{defaultOrigin}
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.CookieName == "" {
		c.CookieName = defaultCookieName
	}
	return c
}

// NewWebAuthn builds the relying party for cfg
func NewWebAuthn(cfg Config) (*webauthn.WebAuthn, error) {
	cfg = cfg.withDefaults()
	return webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
}
