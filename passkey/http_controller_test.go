package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRelyingParty issues real options and skips the signature checks of
// the finish calls.
type stubRelyingParty struct {
	*webauthn.WebAuthn
	credential *webauthn.Credential
	userHandle []byte
	signCount  uint32
	clone      bool
	err        error
}

func (s *stubRelyingParty) CreateCredential(user webauthn.User, session webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	if string(session.UserID) != string(user.WebAuthnID()) {
		return nil, errors.New("session user mismatch")
	}
	credential := *s.credential
	return &credential, nil
}

func (s *stubRelyingParty) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	user, err := handler(s.credential.ID, s.userHandle)
	if err != nil {
		return nil, nil, err
	}
	credential := *s.credential
	credential.Authenticator.SignCount = s.signCount
	credential.Authenticator.CloneWarning = s.clone
	return user, &credential, nil
}

type stubParser struct{}

func (stubParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (stubParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}
	return &protocol.ParsedCredentialAssertionData{}, nil
}

type passkeyFixture struct {
	app      *fiber.App
	repo     auth.RepositoryManager
	sessions *auth.SessionManager
	rp       *stubRelyingParty
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

func newPasskeyFixture(t *testing.T) *passkeyFixture {
	t.Helper()

	repo := newTestRepo(t)
	sessions := auth.NewSessionManager(repo.Store(), testSettings())

	web, err := NewWebAuthn(DefaultConfig())
	require.NoError(t, err)

	rp := &stubRelyingParty{
		WebAuthn: web,
		credential: &webauthn.Credential{
			ID:        []byte("credential-1"),
			PublicKey: []byte("public-key"),
			Transport: []protocol.AuthenticatorTransport{protocol.Internal, protocol.Hybrid},
			Flags:     webauthn.CredentialFlags{BackupEligible: true, BackupState: true},
		},
	}

	app := fiber.New()
	NewHTTPController(repo, sessions, rp, DefaultConfig()).
		WithParser(stubParser{}).
		Register(app.Group("/api/auth"))

	return &passkeyFixture{app: app, repo: repo, sessions: sessions, rp: rp}
}

func (f *passkeyFixture) createUser(t *testing.T, email string) (*auth.User, *http.Cookie) {
	t.Helper()
	ctx := context.Background()

	user, err := f.repo.Users().CreateUser(ctx, &auth.User{Email: email, EmailVerified: true})
	require.NoError(t, err)

	state, err := f.sessions.SignIn(ctx, user, auth.RequestMeta{}, nil)
	require.NoError(t, err)

	return user, &http.Cookie{
		Name:  f.sessions.ProviderCookieName(),
		Value: f.sessions.Codec().Sign(state.Session.Token),
	}
}

func (f *passkeyFixture) storePasskey(t *testing.T, user *auth.User) *auth.Passkey {
	t.Helper()

	raw, err := json.Marshal(f.rp.credential)
	require.NoError(t, err)

	record, err := f.repo.Passkeys().CreatePasskey(context.Background(), &auth.Passkey{
		UserID:       user.ID,
		Name:         "Laptop",
		CredentialID: encodeCredentialID(f.rp.credential.ID),
		Credential:   string(raw),
	})
	require.NoError(t, err)
	return record
}

func (f *passkeyFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body auth.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestHTTPController_Registration(t *testing.T) {
	f := newPasskeyFixture(t)
	user, session := f.createUser(t, "ada@example.com")

	resp := f.do(t, http.MethodGet, "/api/auth/passkey/generate-register-options", "", session)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var options struct {
		Challenge string `json:"challenge"`
		RP        struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"rp"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&options))
	assert.NotEmpty(t, options.Challenge)
	assert.Equal(t, "localhost", options.RP.ID)
	assert.Equal(t, "The Good Corner", options.RP.Name)
	assert.Equal(t, "ada@example.com", options.User.Name)

	challenge := cookieNamed(resp, "better-auth-passkey")
	require.NotNil(t, challenge)
	assert.True(t, challenge.HttpOnly)

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/verify-registration",
		`{"response":{"id":"credential-1"},"name":"Laptop"}`, session, challenge)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created auth.Passkey
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "Laptop", created.Name)
	assert.Equal(t, user.ID, created.UserID)
	assert.Equal(t, encodeCredentialID([]byte("credential-1")), created.CredentialID)
	assert.Equal(t, "multiDevice", created.DeviceType)
	assert.True(t, created.BackedUp)
	assert.Equal(t, "internal,hybrid", created.Transports)

	stored, err := f.repo.Passkeys().FindPasskeyByCredentialID(context.Background(), created.CredentialID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	// the challenge is single use
	resp = f.do(t, http.MethodPost, "/api/auth/passkey/verify-registration",
		`{"response":{"id":"credential-1"}}`, session, challenge)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, TextCodeChallengeNotFound, errorCode(t, resp))
}

func TestHTTPController_RegistrationRequiresSession(t *testing.T) {
	f := newPasskeyFixture(t)

	resp := f.do(t, http.MethodGet, "/api/auth/passkey/generate-register-options", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, cookieNamed(resp, "better-auth-passkey"))
}

func TestHTTPController_RegistrationRejectsOtherUsersChallenge(t *testing.T) {
	f := newPasskeyFixture(t)
	_, ada := f.createUser(t, "ada@example.com")
	_, bob := f.createUser(t, "bob@example.com")

	resp := f.do(t, http.MethodGet, "/api/auth/passkey/generate-register-options", "", ada)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	challenge := cookieNamed(resp, "better-auth-passkey")

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/verify-registration",
		`{"response":{"id":"credential-1"}}`, bob, challenge)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, TextCodeChallengeNotFound, errorCode(t, resp))
}

func TestHTTPController_RegistrationRejectsDuplicateCredential(t *testing.T) {
	f := newPasskeyFixture(t)
	user, session := f.createUser(t, "ada@example.com")
	f.storePasskey(t, user)

	resp := f.do(t, http.MethodGet, "/api/auth/passkey/generate-register-options", "", session)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/verify-registration",
		`{"response":{"id":"credential-1"}}`, session, cookieNamed(resp, "better-auth-passkey"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func (f *passkeyFixture) beginLogin(t *testing.T) *http.Cookie {
	t.Helper()

	resp := f.do(t, http.MethodPost, "/api/auth/passkey/generate-authenticate-options", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var options struct {
		Challenge        string `json:"challenge"`
		RPID             string `json:"rpId"`
		UserVerification string `json:"userVerification"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&options))
	require.NotEmpty(t, options.Challenge)
	assert.Equal(t, "localhost", options.RPID)
	assert.Equal(t, "preferred", options.UserVerification)

	challenge := cookieNamed(resp, "better-auth-passkey")
	require.NotNil(t, challenge)
	return challenge
}

func TestHTTPController_Authentication(t *testing.T) {
	f := newPasskeyFixture(t)
	user, _ := f.createUser(t, "ada@example.com")
	record := f.storePasskey(t, user)

	f.rp.userHandle = []byte(user.ID.String())
	f.rp.signCount = 7

	challenge := f.beginLogin(t)
	resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication",
		`{"response":{"id":"credential-1"}}`, challenge)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body auth.SessionState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.User)
	assert.Equal(t, user.ID, body.User.ID)
	require.NotNil(t, body.Session)
	assert.Equal(t, user.ID, body.Session.UserID)

	assert.NotNil(t, cookieNamed(resp, "better-auth.session_token"))
	assert.NotNil(t, cookieNamed(resp, "goodcorner.session_token"))
	assert.NotNil(t, cookieNamed(resp, "goodcorner.session_data"))

	passkeys, err := f.repo.Passkeys().ListUserPasskeys(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, passkeys, 1)
	assert.Equal(t, record.ID, passkeys[0].ID)
	assert.Equal(t, int64(7), passkeys[0].Counter)
	assert.NotNil(t, passkeys[0].LastUsedAt)
}

func TestHTTPController_AuthenticationFailures(t *testing.T) {
	t.Run("without challenge", func(t *testing.T) {
		f := newPasskeyFixture(t)

		resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication", `{"response":{}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, TextCodeChallengeNotFound, errorCode(t, resp))
	})

	t.Run("unknown user handle", func(t *testing.T) {
		f := newPasskeyFixture(t)
		f.rp.userHandle = []byte("not-a-user")

		resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication",
			`{"response":{}}`, f.beginLogin(t))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Nil(t, cookieNamed(resp, "better-auth.session_token"))
	})

	t.Run("credential of another user", func(t *testing.T) {
		f := newPasskeyFixture(t)
		ada, _ := f.createUser(t, "ada@example.com")
		bob, _ := f.createUser(t, "bob@example.com")
		f.storePasskey(t, ada)
		f.rp.userHandle = []byte(bob.ID.String())

		resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication",
			`{"response":{}}`, f.beginLogin(t))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("clone warning", func(t *testing.T) {
		f := newPasskeyFixture(t)
		user, _ := f.createUser(t, "ada@example.com")
		f.storePasskey(t, user)
		f.rp.userHandle = []byte(user.ID.String())
		f.rp.clone = true

		resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication",
			`{"response":{}}`, f.beginLogin(t))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, TextCodeAuthenticationFailed, errorCode(t, resp))
	})

	t.Run("signature rejected", func(t *testing.T) {
		f := newPasskeyFixture(t)
		f.rp.err = errors.New("signature mismatch")

		resp := f.do(t, http.MethodPost, "/api/auth/passkey/verify-authentication",
			`{"response":{}}`, f.beginLogin(t))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHTTPController_ListAndDelete(t *testing.T) {
	f := newPasskeyFixture(t)
	ada, adaSession := f.createUser(t, "ada@example.com")
	_, bobSession := f.createUser(t, "bob@example.com")
	record := f.storePasskey(t, ada)

	resp := f.do(t, http.MethodGet, "/api/auth/passkey/list-user-passkeys", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/auth/passkey/list-user-passkeys", "", adaSession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []auth.Passkey
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, record.ID, listed[0].ID)

	body := `{"id":"` + record.ID.String() + `"}`

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/delete-passkey", body, bobSession)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/delete-passkey", body, adaSession)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/passkey/delete-passkey", body, adaSession)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPController_Unavailable(t *testing.T) {
	repo := newTestRepo(t)
	sessions := auth.NewSessionManager(repo.Store(), testSettings())

	app := fiber.New()
	NewHTTPController(repo, sessions, nil, DefaultConfig()).Register(app.Group("/api/auth"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/passkey/generate-authenticate-options", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
