package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Bridge failure markers
const (
	BridgeErrorFailed          = "auth_bridge_failed"
	BridgeErrorUnauthenticated = "unauthenticated"
)

// Bridge converts the auth service session into the application session
// and back, so the frontend can rely on either cookie.
type Bridge struct {
	sessions *SessionManager
	cfg      Config
	activity ActivitySink
	logger   Logger
}

func NewBridge(sessions *SessionManager, cfg Config) *Bridge {
	return &Bridge{
		sessions: sessions,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (b *Bridge) WithLogger(logger Logger) *Bridge {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithActivitySink records every successful conversion
func (b *Bridge) WithActivitySink(sink ActivitySink) *Bridge {
	b.activity = normalizeActivitySink(sink)
	return b
}

// Register mounts the bridge endpoints
func (b *Bridge) Register(r fiber.Router) {
	r.Get("/api/auth-bridge", b.AuthBridge)
	r.Get("/api/auth-bridge-passkey", b.AuthBridgePasskey)
	r.Get("/api/auth-ensure-session", b.EnsureSession)
}

// AuthBridge is the OAuth, magic link and email verification landing.
// It always redirects, except on storage outages.
func (b *Bridge) AuthBridge(c *fiber.Ctx) error {
	if _, err := b.convert(c); err != nil {
		if IsStorageError(err) {
			LogError(b.logger, "auth bridge storage failure", err)
			return WriteError(c, err)
		}
		b.logger.Info("auth bridge rejected", "error", err)
		return c.Redirect(b.cfg.GetFrontendURL()+"/login?error="+BridgeErrorFailed, fiber.StatusFound)
	}

	target := SafeRedirect(b.cfg, c.Query("callbackURL"), b.cfg.GetFrontendURL())
	return c.Redirect(target, fiber.StatusFound)
}

// AuthBridgePasskey is the same conversion for fetch based flows
func (b *Bridge) AuthBridgePasskey(c *fiber.Ctx) error {
	if _, err := b.convert(c); err != nil {
		if IsStorageError(err) {
			LogError(b.logger, "passkey bridge storage failure", err)
			return WriteError(c, err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": BridgeErrorUnauthenticated})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// EnsureSession makes sure an application session also has a provider
// session, so provider endpoints such as passkey management work.
func (b *Bridge) EnsureSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	jar := NewCookieJar(c)

	res, err := b.sessions.Resolve(ctx, jar)
	if err == nil {
		res, err = b.sessions.Revalidate(ctx, res)
	}
	if err != nil {
		LogError(b.logger, "ensure session storage failure", err)
		return WriteError(c, err)
	}
	if !res.Authenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": BridgeErrorUnauthenticated})
	}

	provider, err := b.sessions.ResolveSigned(ctx, jar.All(b.sessions.ProviderCookieName()))
	if err != nil {
		LogError(b.logger, "ensure session storage failure", err)
		return WriteError(c, err)
	}

	state, err := b.sessions.SignIn(ctx, res.State.User, RequestMetaFrom(c), provider)
	if err != nil {
		LogError(b.logger, "ensure session failed", err)
		return WriteError(c, err)
	}

	b.sessions.WriteProvider(c, state.Session)
	if res.State.Extended {
		if err := b.sessions.Write(c, res.State); err != nil {
			b.logger.Warn("failed to re-issue extended session", "error", err)
		}
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (b *Bridge) convert(c *fiber.Ctx) (*SessionState, error) {
	ctx := c.UserContext()
	jar := NewCookieJar(c)

	provider, err := b.sessions.ResolveSigned(ctx, jar.All(b.sessions.ProviderCookieName()))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, ErrUnauthenticated
	}
	if provider.Extended {
		b.sessions.WriteProvider(c, provider.Session)
	}

	current, err := b.sessions.Current(ctx, jar)
	if err != nil {
		return nil, err
	}

	state, err := b.sessions.SignIn(ctx, provider.User, RequestMetaFrom(c), current)
	if err != nil {
		return nil, err
	}

	if err := b.sessions.Write(c, state); err != nil {
		return nil, err
	}

	RecordActivity(ctx, b.activity, b.logger, NewActivityEvent(ActivityEventSessionBridged, state.User, time.Now(),
		map[string]any{"path": c.Path()},
	))
	return state, nil
}
