package social

import (
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-sessionauth"
)

// HTTPController serves the social sign in endpoints under /api/auth.
type HTTPController struct {
	authenticator *SocialAuthenticator
	sessions      *auth.SessionManager
	cfg           auth.Config
	logger        auth.Logger
}

// NewHTTPController creates the controller.
func NewHTTPController(authenticator *SocialAuthenticator, sessions *auth.SessionManager, cfg auth.Config) *HTTPController {
	return &HTTPController{
		authenticator: authenticator,
		sessions:      sessions,
		cfg:           cfg,
		logger:        auth.NewZapLogger(nil),
	}
}

func (h *HTTPController) WithLogger(logger auth.Logger) *HTTPController {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Register mounts the routes on r, which should be the /api/auth group
func (h *HTTPController) Register(r fiber.Router) {
	r.Post("/sign-in/social", h.SignInSocial)
	r.Get("/callback/:provider", h.Callback)
	r.Get("/social/providers", h.ListProviders)
	r.Get("/list-accounts", h.ListAccounts)
}

type signInSocialRequest struct {
	Provider         string `json:"provider"`
	CallbackURL      string `json:"callbackURL"`
	ErrorCallbackURL string `json:"errorCallbackURL"`
}

// SignInSocial returns the provider consent URL for the frontend to follow.
func (h *HTTPController) SignInSocial(c *fiber.Ctx) error {
	payload := signInSocialRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return auth.WriteError(c, auth.InvalidBodyError(err))
	}

	redirect, err := h.authenticator.BeginAuth(c.UserContext(), payload.Provider,
		WithRedirectURL(auth.SafeRedirect(h.cfg, payload.CallbackURL, "")),
		WithErrorRedirectURL(auth.SafeRedirect(h.cfg, payload.ErrorCallbackURL, "")),
	)
	if err != nil {
		h.logger.Info("social sign in rejected", "provider", payload.Provider, "error", err)
		return auth.WriteError(c, err)
	}

	return c.JSON(fiber.Map{"url": redirect.URL, "redirect": true})
}

// Callback completes the flow. The browser always leaves with a redirect.
func (h *HTTPController) Callback(c *fiber.Ctx) error {
	providerName := c.Params("provider")

	state, err := h.authenticator.DecodeState(providerName, c.Query("state"))
	if err != nil {
		h.logger.Info("social callback with bad state", "provider", providerName, "error", err)
		return c.Redirect(h.errorTarget("", auth.CodeOf(err)), fiber.StatusFound)
	}

	if oauthErr := c.Query("error"); oauthErr != "" {
		h.logger.Info("social provider returned error",
			"provider", providerName,
			"error", oauthErr,
			"description", c.Query("error_description"),
		)
		return c.Redirect(h.errorTarget(state.ErrorRedirectURL, oauthErr), fiber.StatusFound)
	}

	result, err := h.authenticator.CompleteAuth(c.UserContext(), state, c.Query("code"))
	if err == nil {
		_, err = h.sessions.SignInProvider(c, result.User)
	}
	if err != nil {
		if auth.IsStorageError(err) {
			auth.LogError(h.logger, "social callback storage failure", err)
		} else {
			h.logger.Info("social callback failed", "provider", providerName, "error", err)
		}
		return c.Redirect(h.errorTarget(state.ErrorRedirectURL, auth.CodeOf(err)), fiber.StatusFound)
	}

	target := result.RedirectURL
	if target == "" {
		target = h.cfg.GetFrontendURL()
	}
	return c.Redirect(target, fiber.StatusFound)
}

// ListProviders returns the configured provider names.
func (h *HTTPController) ListProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": h.authenticator.Providers()})
}

type accountView struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId"`
	AccountID  string `json:"accountId"`
	Scopes     string `json:"scope,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ListAccounts returns the accounts linked to the signed in user.
func (h *HTTPController) ListAccounts(c *fiber.Ctx) error {
	state, err := h.sessions.ProviderSession(c)
	if err != nil {
		auth.LogError(h.logger, "list accounts storage failure", err)
		return auth.WriteError(c, err)
	}
	if state == nil {
		return auth.WriteError(c, auth.ErrUnauthenticated)
	}

	accounts, err := h.sessions.Store().AccountsOf(c.UserContext(), state.User.ID)
	if err != nil {
		auth.LogError(h.logger, "list accounts storage failure", err)
		return auth.WriteError(c, err)
	}

	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView{
			ID:         a.ID.String(),
			ProviderID: a.ProviderID,
			AccountID:  a.AccountID,
			Scopes:     a.Scope,
			CreatedAt:  a.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return c.JSON(out)
}

func (h *HTTPController) errorTarget(errorURL, code string) string {
	if errorURL == "" {
		errorURL = h.cfg.GetFrontendURL() + "/login"
	}
	return auth.WithQuery(errorURL, "error", code)
}
