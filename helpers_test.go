package auth_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-with-enough-entropy"
	testPassword = "correct horse battery"
)

func testSettings() *auth.Settings {
	return &auth.Settings{
		Secret:               testSecret,
		BaseURL:              "http://localhost:4000",
		FrontendURL:          "http://localhost:3000",
		SessionTTL:           7 * 24 * time.Hour,
		SessionCacheTTL:      5 * time.Minute,
		SessionUpdateAge:     24 * time.Hour,
		CookiePrefix:         "goodcorner",
		ProviderCookieName:   "better-auth.session_token",
		MagicLinkTTL:         10 * time.Minute,
		ResetPasswordTTL:     time.Hour,
		EmailVerificationTTL: 24 * time.Hour,
	}
}

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	db, err := auth.OpenDatabase(auth.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	return auth.NewRepositoryManager(db)
}

// createVerifiedUser registers a credential user and marks the email verified
func createVerifiedUser(t *testing.T, repo auth.RepositoryManager, email string) *auth.User {
	t.Helper()
	ctx := context.Background()

	var user *auth.User
	err := auth.NewRegisterUserHandler(repo, nil).Execute(ctx, auth.RegisterUserMessage{
		Email:      email,
		Password:   testPassword,
		OnResponse: func(u *auth.User) { user = u },
	})
	require.NoError(t, err)

	user, err = repo.Users().MarkEmailVerified(ctx, user.ID)
	require.NoError(t, err)
	return user
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu   sync.Mutex
	sent []auth.MailMessage
}

func (m *captureMailer) Send(_ context.Context, msg auth.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) auth.MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// jarOf builds a cookie jar from name/value pairs
func jarOf(pairs ...string) *auth.CookieJar {
	jar := &auth.CookieJar{}
	for i := 0; i+1 < len(pairs); i += 2 {
		jar.Add(pairs[i], pairs[i+1])
	}
	return jar
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
