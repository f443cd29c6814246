package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name         string
	token        *Token
	profile      *SocialProfile
	exchangeErr  error
	lastState    string
	lastVerifier string
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	p.lastState = state
	cfg := ApplyAuthCodeOptions(nil, opts...)
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state) +
		"&code_challenge=" + url.QueryEscape(cfg.CodeChallenge)
}

func (p *stubProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	p.lastVerifier = ApplyExchangeOptions(opts...).CodeVerifier
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.token, nil
}

func (p *stubProvider) UserInfo(ctx context.Context, token *Token) (*SocialProfile, error) {
	return p.profile, nil
}

type socialFixture struct {
	app      *fiber.App
	repo     auth.RepositoryManager
	sessions *auth.SessionManager
	provider *stubProvider
}

func testSettings() *auth.Settings {
	return &auth.Settings{
		Secret:             "test-secret-with-enough-entropy",
		BaseURL:            "http://localhost:4000",
		FrontendURL:        "http://localhost:3000",
		SessionTTL:         7 * 24 * time.Hour,
		SessionCacheTTL:    5 * time.Minute,
		SessionUpdateAge:   24 * time.Hour,
		CookiePrefix:       "goodcorner",
		ProviderCookieName: "better-auth.session_token",
	}
}

func newSocialFixture(t *testing.T) *socialFixture {
	t.Helper()

	cfg := testSettings()
	repo := newTestRepo(t)
	sessions := auth.NewSessionManager(repo.Store(), cfg)

	provider := &stubProvider{
		name:  "github",
		token: &Token{AccessToken: "gh-access", Scopes: []string{"read:user", "user:email"}},
		profile: &SocialProfile{
			ProviderUserID: "1234",
			Email:          "octo@example.com",
			EmailVerified:  true,
			Name:           "Octo Cat",
		},
	}

	authenticator, err := NewSocialAuthenticator(repo, DefaultSocialAuthConfig(cfg.Secret), WithProvider(provider))
	require.NoError(t, err)

	app := fiber.New()
	NewHTTPController(authenticator, sessions, cfg).Register(app.Group("/api/auth"))

	return &socialFixture{app: app, repo: repo, sessions: sessions, provider: provider}
}

func (f *socialFixture) begin(t *testing.T, body string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/social", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		URL      string `json:"url"`
		Redirect bool   `json:"redirect"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Redirect)
	assert.Contains(t, out.URL, "https://provider.example.com/authorize")
	return f.provider.lastState
}

func (f *socialFixture) callback(t *testing.T, query url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/github?"+query.Encode(), nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

func cookieNames(resp *http.Response) map[string]string {
	out := map[string]string{}
	for _, c := range resp.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func TestHTTPController_SocialSignInRoundTrip(t *testing.T) {
	f := newSocialFixture(t)

	state := f.begin(t, `{"provider":"github","callbackURL":"http://localhost:3000/api/auth-bridge?callbackURL=/dashboard"}`)
	require.NotEmpty(t, state)

	resp := f.callback(t, url.Values{"code": {"auth-code"}, "state": {state}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000/api/auth-bridge?callbackURL=/dashboard", resp.Header.Get(fiber.HeaderLocation))
	assert.NotEmpty(t, f.provider.lastVerifier)

	cookies := cookieNames(resp)
	assert.NotEmpty(t, cookies["better-auth.session_token"])
	assert.NotEmpty(t, cookies["goodcorner.session_token"])
	assert.NotEmpty(t, cookies["goodcorner.session_data"])

	ctx := context.Background()
	linked, err := f.repo.Store().AccountWithUser(ctx, "github", "1234")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, "octo@example.com", linked.User.Email)
	assert.Equal(t, "gh-access", linked.Account.AccessToken)
	assert.Equal(t, "read:user,user:email", linked.Account.Scope)

	// a second sign in reuses the same user and account
	state = f.begin(t, `{"provider":"github"}`)
	resp = f.callback(t, url.Values{"code": {"auth-code"}, "state": {state}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get(fiber.HeaderLocation))

	accounts, err := f.repo.Store().AccountsOf(ctx, linked.User.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestHTTPController_SignInSocialUnknownProvider(t *testing.T) {
	f := newSocialFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/social", strings.NewReader(`{"provider":"myspace"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), TextCodeProviderNotFound)
}

func TestHTTPController_CallbackFailuresRedirect(t *testing.T) {
	t.Run("bad state goes to the login page", func(t *testing.T) {
		f := newSocialFixture(t)

		resp := f.callback(t, url.Values{"code": {"auth-code"}, "state": {"forged"}})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000/login?error="+TextCodeInvalidState, resp.Header.Get(fiber.HeaderLocation))
		assert.Empty(t, cookieNames(resp))
	})

	t.Run("exchange failure goes to the error callback", func(t *testing.T) {
		f := newSocialFixture(t)
		f.provider.exchangeErr = &ProviderError{Provider: "github", Operation: "exchange", Code: "bad_verification_code"}

		state := f.begin(t, `{"provider":"github","errorCallbackURL":"/login"}`)
		resp := f.callback(t, url.Values{"code": {"stale"}, "state": {state}})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000/login?error="+TextCodeTokenExchangeFail, resp.Header.Get(fiber.HeaderLocation))
	})

	t.Run("provider denial goes to the error callback", func(t *testing.T) {
		f := newSocialFixture(t)

		state := f.begin(t, `{"provider":"github","errorCallbackURL":"http://localhost:3000/oops"}`)
		resp := f.callback(t, url.Values{"error": {"access_denied"}, "state": {state}})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000/oops?error=access_denied", resp.Header.Get(fiber.HeaderLocation))
	})

	t.Run("untrusted callback is dropped", func(t *testing.T) {
		f := newSocialFixture(t)

		state := f.begin(t, `{"provider":"github","callbackURL":"https://evil.example.com/steal"}`)
		resp := f.callback(t, url.Values{"code": {"auth-code"}, "state": {state}})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get(fiber.HeaderLocation))
	})
}

func TestHTTPController_ListAccountsRequiresSession(t *testing.T) {
	f := newSocialFixture(t)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/list-accounts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	state := f.begin(t, `{"provider":"github"}`)
	signIn := f.callback(t, url.Values{"code": {"auth-code"}, "state": {state}})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/list-accounts", nil)
	for _, c := range signIn.Cookies() {
		req.AddCookie(c)
	}
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var accounts []accountView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "github", accounts[0].ProviderID)
	assert.Equal(t, "1234", accounts[0].AccountID)
}

func TestHTTPController_ListProviders(t *testing.T) {
	f := newSocialFixture(t)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/social/providers", nil))
	require.NoError(t, err)

	var out struct {
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"github"}, out.Providers)
}
