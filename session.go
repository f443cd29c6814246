package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Source tells where a resolved identity came from
type Source string

const (
	SourceNone  Source = ""
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

const (
	sessionTokenSuffix = ".session_token"
	sessionDataSuffix  = ".session_data"
)

// CookieJar holds every value of every cookie sent with a request, in the
// order they appeared in the Cookie header.
type CookieJar struct {
	values map[string][]string
}

// NewCookieJar collects the request cookies of c
func NewCookieJar(c *fiber.Ctx) *CookieJar {
	jar := &CookieJar{values: map[string][]string{}}
	c.Request().Header.VisitAllCookie(func(key, value []byte) {
		jar.Add(string(key), string(value))
	})
	return jar
}

// Add appends a value for name
func (j *CookieJar) Add(name, value string) {
	if j.values == nil {
		j.values = map[string][]string{}
	}
	j.values[name] = append(j.values[name], value)
}

// All returns every value sent for name
func (j *CookieJar) All(name string) []string {
	if j == nil {
		return nil
	}
	return j.values[name]
}

// Resolution is the outcome of reading the session cookies. A nil State is
// an anonymous request.
type Resolution struct {
	State  *SessionState
	Source Source
	// NeedsRefresh is set when the identity came from the store and the
	// cache cookie should be minted again.
	NeedsRefresh bool
}

// Authenticated reports whether a user was resolved
func (r *Resolution) Authenticated() bool {
	return r != nil && r.State != nil && r.State.User != nil
}

// Identity converts the resolution into a context identity
func (r *Resolution) Identity() *Identity {
	if !r.Authenticated() {
		return nil
	}
	return &Identity{
		Session: r.State.Session,
		User:    r.State.User,
		Source:  r.Source,
	}
}

// SessionManager reads and writes the application session cookies
type SessionManager struct {
	store  *Store
	codec  *TokenCodec
	cache  *CookieCache
	cfg    Config
	now    func() time.Time
	logger Logger
}

// NewSessionManager creates a manager over store. The codec and the cookie
// cache share the configured secret.
func NewSessionManager(store *Store, cfg Config) *SessionManager {
	return &SessionManager{
		store:  store,
		codec:  NewTokenCodec(cfg.GetSecret()),
		cache:  NewCookieCache(cfg.GetSecret(), defLogger{}),
		cfg:    cfg,
		now:    time.Now,
		logger: defLogger{},
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
		m.cache.logger = logger
	}
	return m
}

// WithClock overrides the time source of the manager, codec and cache
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
		m.codec.WithClock(now)
		m.cache.WithClock(now)
	}
	return m
}

func (m *SessionManager) Codec() *TokenCodec {
	return m.codec
}

func (m *SessionManager) Cache() *CookieCache {
	return m.cache
}

func (m *SessionManager) Store() *Store {
	return m.store
}

// TokenCookieName is the durable session cookie, {prefix}.session_token
func (m *SessionManager) TokenCookieName() string {
	return m.cfg.GetCookiePrefix() + sessionTokenSuffix
}

// DataCookieName is the stateless cache cookie, {prefix}.session_data
func (m *SessionManager) DataCookieName() string {
	return m.cfg.GetCookiePrefix() + sessionDataSuffix
}

// ProviderCookieName is the session cookie set on the auth service origin
func (m *SessionManager) ProviderCookieName() string {
	return m.cfg.GetProviderCookieName()
}

// Resolve returns the caller identity. The cache cookie is tried first, then
// the durable cookie. Every occurrence of each cookie is tried so a stale
// duplicate cannot shadow a valid one. Only storage failures are errors.
func (m *SessionManager) Resolve(ctx context.Context, jar *CookieJar) (*Resolution, error) {
	for _, raw := range jar.All(m.DataCookieName()) {
		claims, ok := m.cache.Verify(raw)
		if !ok {
			continue
		}
		state, ok := claims.State()
		if !ok {
			m.logger.Debug("session cache payload malformed")
			continue
		}
		return &Resolution{State: state, Source: SourceCache}, nil
	}

	state, err := m.ResolveSigned(ctx, jar.All(m.TokenCookieName()))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &Resolution{}, nil
	}

	return &Resolution{State: state, Source: SourceStore, NeedsRefresh: true}, nil
}

// ResolveSigned verifies each signed value in order and returns the first
// live session with its user. Sessions older than the update age are
// extended and flagged Extended.
func (m *SessionManager) ResolveSigned(ctx context.Context, values []string) (*SessionState, error) {
	now := m.now()
	for _, raw := range values {
		token, ok := m.codec.Verify(raw)
		if !ok {
			m.logger.Debug("session cookie rejected", "error", ErrInvalidSignature.Message)
			continue
		}

		state, err := m.store.SessionWithUser(ctx, token)
		if err != nil {
			return nil, err
		}
		if state == nil {
			m.logger.Debug("session cookie has no live session", "error", ErrUserNotFound.Message)
			continue
		}
		if state.Session.Expired(now) {
			m.logger.Debug("session cookie rejected", "error", ErrSessionExpired.Message)
			continue
		}

		extended, err := m.refresh(ctx, state.Session, now)
		if err != nil {
			return nil, err
		}
		state.Extended = extended
		return state, nil
	}
	return nil, nil
}

func (m *SessionManager) refresh(ctx context.Context, session *Session, now time.Time) (bool, error) {
	updateAge := m.cfg.GetSessionUpdateAge()
	if updateAge <= 0 {
		return false, nil
	}

	issuedAt := session.ExpiresAt.Add(-m.cfg.GetSessionTTL())
	if now.Sub(issuedAt) < updateAge {
		return false, nil
	}

	expiresAt := now.Add(m.cfg.GetSessionTTL())
	if err := m.store.Sessions.TouchSession(ctx, session.ID, expiresAt); err != nil {
		return false, storageError(err, "failed to extend session")
	}
	session.ExpiresAt = expiresAt
	session.UpdatedAt = now
	return true, nil
}

// Revalidate reloads a cache sourced identity from the store. Role checks
// call it so a stale snapshot cannot grant a revoked role.
func (m *SessionManager) Revalidate(ctx context.Context, res *Resolution) (*Resolution, error) {
	if !res.Authenticated() || res.Source != SourceCache {
		return res, nil
	}

	state, err := m.store.SessionWithUser(ctx, res.State.Session.Token)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Session.Expired(m.now()) {
		return &Resolution{}, nil
	}

	return &Resolution{State: state, Source: SourceStore, NeedsRefresh: true}, nil
}

// SignIn establishes a session for user. A presented session of the same
// user that is still valid is extended instead of replaced, so repeating a
// sign in never leaves two live sessions behind.
func (m *SessionManager) SignIn(ctx context.Context, user *User, meta RequestMeta, current *SessionState) (*SessionState, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}

	now := m.now()
	ttl := m.cfg.GetSessionTTL()

	if current != nil && current.Session != nil && current.Session.UserID == user.ID && !current.Session.Expired(now) {
		expiresAt := now.Add(ttl)
		if err := m.store.Sessions.TouchSession(ctx, current.Session.ID, expiresAt); err != nil {
			return nil, storageError(err, "failed to extend session")
		}
		session := *current.Session
		session.ExpiresAt = expiresAt
		session.UpdatedAt = now
		return &SessionState{Session: &session, User: user}, nil
	}

	issued := m.codec.Issue(user.ID.String(), ttl)
	session, err := m.store.Sessions.CreateSession(ctx, &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	})
	if err != nil {
		return nil, storageError(err, "failed to create session")
	}

	if current != nil && current.Session != nil {
		if err := m.store.Sessions.DeleteSession(ctx, current.Session.ID); err != nil {
			m.logger.Warn("failed to delete superseded session", "session_id", current.Session.ID, "error", err)
		}
	}

	if err := m.store.Sessions.DeleteExpiredSessions(ctx, user.ID, now); err != nil {
		m.logger.Warn("failed to prune expired sessions", "user_id", user.ID, "error", err)
	}

	return &SessionState{Session: session, User: user}, nil
}

// Current returns the live session presented in the durable cookie, if any
func (m *SessionManager) Current(ctx context.Context, jar *CookieJar) (*SessionState, error) {
	return m.ResolveSigned(ctx, jar.All(m.TokenCookieName()))
}

// SignOut deletes every session the request can prove it holds
func (m *SessionManager) SignOut(ctx context.Context, jar *CookieJar) error {
	tokens := map[string]struct{}{}
	for _, name := range []string{m.TokenCookieName(), m.ProviderCookieName()} {
		for _, raw := range jar.All(name) {
			if token, ok := m.codec.Verify(raw); ok {
				tokens[token] = struct{}{}
			}
		}
	}
	for _, raw := range jar.All(m.DataCookieName()) {
		if claims, ok := m.cache.Verify(raw); ok && claims.Session.Token != "" {
			tokens[claims.Session.Token] = struct{}{}
		}
	}

	for token := range tokens {
		if err := m.store.Sessions.DeleteSessionByToken(ctx, token); err != nil {
			return storageError(err, "failed to delete session")
		}
	}
	return nil
}

// Write sets the durable and the cache cookie for state
func (m *SessionManager) Write(c *fiber.Ctx, state *SessionState) error {
	m.setCookie(c, m.TokenCookieName(), m.codec.Sign(state.Session.Token), state.Session.ExpiresAt)
	return m.WriteCache(c, state)
}

// WriteCache mints the cache cookie for state
func (m *SessionManager) WriteCache(c *fiber.Ctx, state *SessionState) error {
	value, expiresAt, err := m.cache.Mint(state, m.cfg.GetSessionCacheTTL())
	if err != nil {
		return err
	}
	m.setCookie(c, m.DataCookieName(), value, expiresAt)
	return nil
}

// WriteProvider sets the auth service session cookie
func (m *SessionManager) WriteProvider(c *fiber.Ctx, session *Session) {
	m.setCookie(c, m.ProviderCookieName(), m.codec.Sign(session.Token), session.ExpiresAt)
}

// Clear expires the application cookies
func (m *SessionManager) Clear(c *fiber.Ctx) {
	m.cookieDel(c, m.TokenCookieName())
	m.cookieDel(c, m.DataCookieName())
}

// ClearProvider expires the auth service session cookie
func (m *SessionManager) ClearProvider(c *fiber.Ctx) {
	m.cookieDel(c, m.ProviderCookieName())
}

// Middleware resolves the caller and stores the identity in the user
// context. Storage outages answer 503 so clients retry instead of treating
// the request as signed out.
func (m *SessionManager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		res, err := m.Resolve(ctx, NewCookieJar(c))
		if err != nil {
			m.logger.Error("session resolution failed", "error", err, "path", c.Path())
			return WriteError(c, err)
		}

		if res.Authenticated() {
			c.SetUserContext(WithIdentity(ctx, res.Identity()))
			m.reissue(c, res)
		}

		return c.Next()
	}
}

// reissue refreshes the cookies of a store sourced resolution. An extended
// session gets a new durable cookie so its expiry follows the row.
func (m *SessionManager) reissue(c *fiber.Ctx, res *Resolution) {
	if !res.Authenticated() || !res.NeedsRefresh {
		return
	}

	write := m.WriteCache
	if res.State.Extended {
		write = m.Write
	}
	if err := write(c, res.State); err != nil {
		m.logger.Warn("failed to refresh session cookies", "error", err)
	}
}

// RequestMetaFrom extracts the client metadata recorded on sessions
func RequestMetaFrom(c *fiber.Ctx) RequestMeta {
	return RequestMeta{
		IPAddress: c.IP(),
		UserAgent: string(c.Request().Header.UserAgent()),
	}
}

func (m *SessionManager) setCookie(c *fiber.Ctx, name, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   m.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (m *SessionManager) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   m.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SignInProvider signs user in on the auth service origin. One session row
// backs both the provider cookie and the application cookies.
func (m *SessionManager) SignInProvider(c *fiber.Ctx, user *User) (*SessionState, error) {
	ctx := c.UserContext()
	jar := NewCookieJar(c)

	current, err := m.ResolveSigned(ctx, jar.All(m.ProviderCookieName()))
	if err != nil {
		return nil, err
	}
	if current == nil {
		if current, err = m.Current(ctx, jar); err != nil {
			return nil, err
		}
	}

	state, err := m.SignIn(ctx, user, RequestMetaFrom(c), current)
	if err != nil {
		return nil, err
	}

	m.WriteProvider(c, state.Session)
	if err := m.Write(c, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ProviderSession returns the session presented in the provider cookie,
// falling back to the application cookies.
func (m *SessionManager) ProviderSession(c *fiber.Ctx) (*SessionState, error) {
	ctx := c.UserContext()
	jar := NewCookieJar(c)

	state, err := m.ResolveSigned(ctx, jar.All(m.ProviderCookieName()))
	if err != nil {
		return nil, err
	}
	if state != nil {
		if state.Extended {
			m.WriteProvider(c, state.Session)
		}
		return state, nil
	}

	res, err := m.Resolve(ctx, jar)
	if err != nil {
		return nil, err
	}
	m.reissue(c, res)
	if res, err = m.Revalidate(ctx, res); err != nil {
		return nil, err
	}
	if !res.Authenticated() {
		return nil, nil
	}
	return res.State, nil
}
