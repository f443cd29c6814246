package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-sessionauth/social"
)

const ProviderName = "github"

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"

	apiAccept = "application/vnd.github+json"
)

// Config holds the OAuth app registered for the marketplace. Endpoints are
// only set in tests.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the scopes needed to read the profile and the
// verified primary email.
func DefaultScopes() []string {
	return []string{"read:user", "user:email"}
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes()
	}
	c.AuthURL = orDefault(c.AuthURL, defaultAuthURL)
	c.TokenURL = orDefault(c.TokenURL, defaultTokenURL)
	c.UserURL = orDefault(c.UserURL, defaultUserURL)
	c.EmailsURL = orDefault(c.EmailsURL, defaultEmailsURL)
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Provider signs users in with a GitHub account.
type Provider struct {
	cfg Config
}

var _ social.SocialProvider = (*Provider)(nil)

func New(cfg Config) *Provider {
	return &Provider{cfg: cfg.withDefaults()}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	opt := social.ApplyAuthCodeOptions(p.cfg.Scopes, opts...)

	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.CallbackURL)
	q.Set("scope", strings.Join(opt.Scopes, " "))
	q.Set("state", state)
	if opt.CodeChallenge != "" {
		q.Set("code_challenge", opt.CodeChallenge)
		q.Set("code_challenge_method", orDefault(opt.CodeChallengeMethod, "S256"))
	}

	return p.cfg.AuthURL + "?" + q.Encode()
}

func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	opt := social.ApplyExchangeOptions(opts...)

	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.CallbackURL)
	if opt.CodeVerifier != "" {
		form.Set("code_verifier", opt.CodeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out tokenResponse
	status, err := p.do(req, "exchange", &out)
	if err != nil {
		return nil, err
	}

	// bad or reused codes come back as 200 with an error field
	if out.Error != "" {
		return nil, providerError("exchange", status, out.Error, out.ErrorDescription, nil)
	}
	if out.AccessToken == "" {
		return nil, providerError("exchange", status, "missing_access_token", "token response without access_token", nil)
	}

	return &social.Token{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		Scopes:      splitScopes(out.Scope),
	}, nil
}

// UserInfo reads the account and its email. When the emails endpoint is
// not readable the public profile email is used and marked unverified, so
// it never links to an existing marketplace user.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	var user githubUser
	if err := p.get(ctx, p.cfg.UserURL, token.AccessToken, "user_info", &user); err != nil {
		return nil, err
	}

	var emails []githubEmail
	if err := p.get(ctx, p.cfg.EmailsURL, token.AccessToken, "emails", &emails); err != nil {
		return user.profile(user.Email, false), nil
	}

	email, verified, ok := pickEmail(emails)
	if !ok {
		return nil, providerError("emails", http.StatusOK, "email_not_found", "account has no usable email", nil)
	}
	return user.profile(email, verified), nil
}

func (p *Provider) get(ctx context.Context, endpoint, accessToken, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", apiAccept)

	_, err = p.do(req, operation, out)
	return err
}

// do sends req and decodes a JSON body into out. Token endpoint errors
// carry an OAuth error body, API errors a {message} body.
func (p *Provider) do(req *http.Request, operation string, out any) (int, error) {
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, providerError(operation, 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, providerError(operation, resp.StatusCode, "", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr tokenResponse
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			return resp.StatusCode, providerError(operation, resp.StatusCode, oauthErr.Error, oauthErr.ErrorDescription, nil)
		}
		return resp.StatusCode, providerError(operation, resp.StatusCode, "", apiMessage(body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, providerError(operation, resp.StatusCode, "invalid_response", "undecodable "+operation+" response", err)
	}
	return resp.StatusCode, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func apiMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "github request failed"
}

// GitHub returns granted scopes comma separated
func splitScopes(scopes string) []string {
	var out []string
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    ProviderName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
