package social

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/uptrace/bun"
)

// SocialAuthenticator runs the authorization code flow and maps the result
// to a local user and account.
type SocialAuthenticator struct {
	providers       map[string]SocialProvider
	stateManager    StateManager
	linkingStrategy LinkingStrategy
	repo            auth.RepositoryManager
	config          SocialAuthConfig
	now             func() time.Time
	logger          auth.Logger
}

// SocialAuthConfig configures the authenticator.
type SocialAuthConfig struct {
	// StateSecret derives the state keys when no StateManager is given
	StateSecret          string
	StateTTL             time.Duration
	AllowSignup          bool
	AllowLinking         bool
	RequireEmailVerified bool
	DefaultRole          auth.Role
}

// DefaultSocialAuthConfig creates unknown users and links verified emails.
func DefaultSocialAuthConfig(secret string) SocialAuthConfig {
	return SocialAuthConfig{
		StateSecret:          secret,
		StateTTL:             defaultTTL,
		AllowSignup:          true,
		AllowLinking:         true,
		RequireEmailVerified: true,
		DefaultRole:          auth.RoleVisitor,
	}
}

// SocialAuthOption configures the authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator builds the authenticator over repo.
func NewSocialAuthenticator(repo auth.RepositoryManager, config SocialAuthConfig, opts ...SocialAuthOption) (*SocialAuthenticator, error) {
	if config.StateTTL == 0 {
		config.StateTTL = defaultTTL
	}

	sa := &SocialAuthenticator{
		providers: map[string]SocialProvider{},
		repo:      repo,
		config:    config,
		now:       time.Now,
		logger:    auth.NewZapLogger(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.stateManager == nil {
		sm, err := NewStateManagerFromSecret(config.StateSecret, config.StateTTL)
		if err != nil {
			return nil, err
		}
		sa.stateManager = sm.WithClock(sa.now)
	}

	if sa.linkingStrategy == nil {
		sa.linkingStrategy = &DefaultLinkingStrategy{
			AllowSignup:          config.AllowSignup,
			AllowLinking:         config.AllowLinking,
			RequireEmailVerified: config.RequireEmailVerified,
			DefaultRole:          config.DefaultRole,
		}
	}

	return sa, nil
}

// WithProvider registers a provider. nil is ignored.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider != nil {
			sa.providers[provider.Name()] = provider
		}
	}
}

// WithStateManager replaces the secret derived state manager.
func WithStateManager(sm StateManager) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.stateManager = sm
	}
}

// WithLinkingStrategy replaces the default linking strategy.
func WithLinkingStrategy(ls LinkingStrategy) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.linkingStrategy = ls
	}
}

// WithLinkingPolicy resolves users through policy.
func WithLinkingPolicy(policy LinkingPolicy) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.linkingStrategy = &PolicyLinkingStrategy{Policy: policy}
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// WithClock sets the time source for state and token expiry.
func WithClock(now func() time.Time) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if now != nil {
			sa.now = now
		}
	}
}

// HasProvider reports whether name is registered.
func (sa *SocialAuthenticator) HasProvider(name string) bool {
	_, ok := sa.providers[name]
	return ok
}

// Providers returns the registered provider names, sorted.
func (sa *SocialAuthenticator) Providers() []string {
	names := make([]string, 0, len(sa.providers))
	for name := range sa.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BeginAuth returns the provider consent URL with a PKCE challenge and the
// sealed state.
func (sa *SocialAuthenticator) BeginAuth(ctx context.Context, providerName string, opts ...BeginAuthOption) (*AuthRedirect, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, ErrProviderNotFound
	}

	cfg := &beginAuthConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate code verifier")
	}

	now := sa.now()
	state := &OAuthState{
		Nonce:            generateNonce(),
		Provider:         providerName,
		CodeVerifier:     codeVerifier,
		RedirectURL:      cfg.redirectURL,
		ErrorRedirectURL: cfg.errorRedirectURL,
		IssuedAt:         now.Unix(),
		ExpiresAt:        now.Add(sa.config.StateTTL).Unix(),
	}

	stateToken, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode state")
	}

	authOpts := append([]AuthCodeOption{WithPKCE(computeCodeChallenge(codeVerifier), "S256")}, cfg.authOpts...)

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(stateToken, authOpts...),
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// DecodeState opens the state returned on callback and checks it belongs
// to providerName.
func (sa *SocialAuthenticator) DecodeState(providerName, stateToken string) (*OAuthState, error) {
	if stateToken == "" {
		return nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	if state.Provider != providerName {
		return nil, ErrInvalidState
	}
	if sa.now().Unix() >= state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return state, nil
}

// CompleteAuth exchanges code, resolves the user and stores the provider
// tokens on the account, all in one transaction.
func (sa *SocialAuthenticator) CompleteAuth(ctx context.Context, state *OAuthState, code string) (*AuthResult, error) {
	if state == nil {
		return nil, ErrInvalidState
	}

	providerName := state.Provider
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, ErrProviderNotFound
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := sa.profile(ctx, provider, token)
	if err != nil {
		return nil, err
	}
	profile.Provider = providerName

	var result *LinkingResult
	var account *auth.Account

	err = sa.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		txRepo := sa.repo.WithTx(tx)

		res, err := sa.linkingStrategy.ResolveUser(ctx, LinkingContext{
			Profile: profile,
			Store:   txRepo.Store(),
			Users:   txRepo.Users(),
		})
		if err != nil {
			return err
		}
		if res == nil || res.User == nil {
			return ErrSignupNotAllowed
		}

		acc, err := txRepo.Accounts().UpsertAccount(ctx, sa.accountFor(res.User, profile, token))
		if err != nil {
			return auth.WrapStorageError(err, "failed to save social account")
		}

		result, account = res, acc
		return nil
	})
	if err != nil {
		return nil, auth.WrapStorageError(err, "failed to resolve social user")
	}

	sa.logger.Info("social sign in",
		"provider", providerName,
		"user_id", result.User.ID,
		"new_user", result.IsNewUser,
		"linked", result.Linked,
	)

	return &AuthResult{
		User:             result.User,
		Account:          account,
		IsNewUser:        result.IsNewUser,
		Provider:         providerName,
		Profile:          profile,
		RedirectURL:      state.RedirectURL,
		ErrorRedirectURL: state.ErrorRedirectURL,
	}, nil
}

func (sa *SocialAuthenticator) profile(ctx context.Context, provider SocialProvider, token *Token) (*SocialProfile, error) {
	if verifier, ok := provider.(IDTokenVerifier); ok && token.IDToken != "" {
		profile, err := verifier.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, wrapProviderError(ErrInvalidIDToken, provider.Name(), "id_token", err)
		}
		return profile, nil
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, provider.Name(), "user_info", err)
	}
	if profile == nil {
		return nil, ErrUserInfoFailed
	}
	return profile, nil
}

func (sa *SocialAuthenticator) accountFor(user *auth.User, profile *SocialProfile, token *Token) *auth.Account {
	account := &auth.Account{
		UserID:       user.ID,
		ProviderID:   profile.Provider,
		AccountID:    profile.ProviderUserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		Scope:        strings.Join(token.Scopes, ","),
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt.UTC()
		account.AccessTokenExpiresAt = &expiresAt
	}
	return account
}

// AuthRedirect is the consent URL to send the browser to.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult is a completed social sign in.
type AuthResult struct {
	User             *auth.User
	Account          *auth.Account
	IsNewUser        bool
	Provider         string
	Profile          *SocialProfile
	RedirectURL      string
	ErrorRedirectURL string
}

// BeginAuthOption configures BeginAuth.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirectURL      string
	errorRedirectURL string
	authOpts         []AuthCodeOption
}

// WithRedirectURL sets where the callback sends the browser on success.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}

// WithErrorRedirectURL sets where the callback sends the browser on failure.
func WithErrorRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.errorRedirectURL = url
	}
}

// WithAuthCodeOptions forwards options to the provider consent URL.
func WithAuthCodeOptions(opts ...AuthCodeOption) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.authOpts = append(c.authOpts, opts...)
	}
}
