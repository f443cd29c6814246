package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// AuthControllerRoutes are the provider endpoint paths relative to
// /api/auth
type AuthControllerRoutes struct {
	SignUpEmail           string
	SignInEmail           string
	SignOut               string
	GetSession            string
	SendVerificationEmail string
	VerifyEmail           string
	ForgetPassword        string
	ResetPassword         string
	SignInMagicLink       string
	MagicLinkVerify       string
}

// DefaultAuthControllerRoutes match the paths the frontend client calls
var DefaultAuthControllerRoutes = AuthControllerRoutes{
	SignUpEmail:           "/sign-up/email",
	SignInEmail:           "/sign-in/email",
	SignOut:               "/sign-out",
	GetSession:            "/get-session",
	SendVerificationEmail: "/send-verification-email",
	VerifyEmail:           "/verify-email",
	ForgetPassword:        "/forget-password",
	ResetPassword:         "/reset-password",
	SignInMagicLink:       "/sign-in/magic-link",
	MagicLinkVerify:       "/magic-link/verify",
}

// AuthController serves the credential, email and magic link endpoints of
// the identity provider.
type AuthController struct {
	Routes AuthControllerRoutes

	sessions      *SessionManager
	auth          *Authenticator
	register      *RegisterUserHandler
	verifyRequest *AccountVerificationRequestHandler
	verifyEmail   *VerifyEmailHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	magicRequest  *MagicLinkRequestHandler
	magicVerify   *MagicLinkVerifyHandler
	cfg           Config
	useHashid     bool
	activity      ActivitySink
	now           func() time.Time
	logger        Logger
}

// NewAuthController wires the command handlers over repo
func NewAuthController(repo RepositoryManager, sessions *SessionManager, notifier *Notifier, cfg Config) *AuthController {
	verifyRequest := NewAccountVerificationRequestHandler(repo, notifier, cfg)
	return &AuthController{
		Routes:        DefaultAuthControllerRoutes,
		sessions:      sessions,
		auth:          NewAuthenticator(repo, verifyRequest),
		register:      NewRegisterUserHandler(repo, verifyRequest),
		verifyRequest: verifyRequest,
		verifyEmail:   NewVerifyEmailHandler(repo),
		resetInit:     NewInitializePasswordResetHandler(repo, notifier, cfg),
		resetFinalize: NewFinalizePasswordResetHandler(repo),
		magicRequest:  NewMagicLinkRequestHandler(repo, notifier, cfg),
		magicVerify:   NewMagicLinkVerifyHandler(repo),
		cfg:           cfg,
		activity:      noopActivitySink{},
		now:           time.Now,
		logger:        defLogger{},
	}
}

func (a *AuthController) WithLogger(logger Logger) *AuthController {
	if logger == nil {
		return a
	}
	a.logger = logger
	a.auth.WithLogger(logger)
	a.register.WithLogger(logger)
	a.verifyRequest.WithLogger(logger)
	a.resetInit.WithLogger(logger)
	a.resetFinalize.WithLogger(logger)
	a.magicRequest.WithLogger(logger)
	return a
}

// WithClock sets the time source used for token expiry
func (a *AuthController) WithClock(now func() time.Time) *AuthController {
	if now == nil {
		return a
	}
	a.now = now
	a.verifyRequest.WithClock(now)
	a.verifyEmail.WithClock(now)
	a.resetInit.WithClock(now)
	a.resetFinalize.WithClock(now)
	a.magicRequest.WithClock(now)
	a.magicVerify.WithClock(now)
	return a
}

// WithHasher replaces the password hasher
func (a *AuthController) WithHasher(hasher PasswordAuthenticator) *AuthController {
	if hasher != nil {
		a.auth.WithHasher(hasher)
		a.register.hasher = hasher
		a.resetFinalize.hasher = hasher
	}
	return a
}

// WithActivitySink records sign ins, sign ups and the other account events
func (a *AuthController) WithActivitySink(sink ActivitySink) *AuthController {
	a.activity = normalizeActivitySink(sink)
	return a
}

// UseHashid derives new user ids from the email
func (a *AuthController) UseHashid(enabled bool) *AuthController {
	a.useHashid = enabled
	return a
}

// Authenticator exposes the credential checker for other transports
func (a *AuthController) Authenticator() *Authenticator {
	return a.auth
}

// Registrar exposes the sign up handler for other transports
func (a *AuthController) Registrar() *RegisterUserHandler {
	return a.register
}

// Register mounts the endpoints on r, which should be the /api/auth group
func (a *AuthController) Register(r fiber.Router) {
	r.Post(a.Routes.SignUpEmail, a.SignUpEmail)
	r.Post(a.Routes.SignInEmail, a.SignInEmail)
	r.Post(a.Routes.SignOut, a.SignOut)
	r.Get(a.Routes.GetSession, a.GetSession)
	r.Post(a.Routes.SendVerificationEmail, a.SendVerificationEmail)
	r.Get(a.Routes.VerifyEmail, a.VerifyEmail)
	r.Post(a.Routes.ForgetPassword, a.ForgetPassword)
	r.Post(a.Routes.ResetPassword, a.ResetPassword)
	r.Post(a.Routes.SignInMagicLink, a.SignInMagicLink)
	r.Get(a.Routes.MagicLinkVerify, a.MagicLinkVerify)
}

func (a *AuthController) SignUpEmail(c *fiber.Ctx) error {
	payload := RegisterUserMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}

	var user *User
	payload.UseHashid = a.useHashid
	payload.CallbackURL = SafeRedirect(a.cfg, payload.CallbackURL, "")
	payload.OnResponse = func(u *User) { user = u }

	if err := a.register.Execute(c.UserContext(), payload); err != nil {
		return a.fail(c, "sign up failed", err)
	}
	a.record(c, ActivityEventSignUp, user, nil)

	return c.JSON(fiber.Map{"user": user, "token": nil})
}

func (a *AuthController) SignInEmail(c *fiber.Ctx) error {
	payload := LoginRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}
	payload.CallbackURL = SafeRedirect(a.cfg, payload.CallbackURL, "")

	user, err := a.auth.Login(c.UserContext(), payload)
	if err != nil {
		if !IsStorageError(err) {
			a.record(c, ActivityEventLoginFailure, nil, map[string]any{
				"email":  normalizeEmail(payload.Email),
				"reason": CodeOf(err),
			})
		}
		return a.fail(c, "sign in failed", err)
	}

	state, err := a.sessions.SignInProvider(c, user)
	if err != nil {
		return a.fail(c, "sign in session failed", err)
	}
	a.record(c, ActivityEventLoginSuccess, user, map[string]any{"method": "email"})

	return c.JSON(fiber.Map{
		"redirect": false,
		"token":    state.Session.Token,
		"user":     state.User,
	})
}

func (a *AuthController) SignOut(c *fiber.Ctx) error {
	if err := a.sessions.SignOut(c.UserContext(), NewCookieJar(c)); err != nil {
		return a.fail(c, "sign out failed", err)
	}
	a.sessions.Clear(c)
	a.sessions.ClearProvider(c)
	a.record(c, ActivityEventSignOut, nil, nil)
	return c.JSON(fiber.Map{"success": true})
}

func (a *AuthController) GetSession(c *fiber.Ctx) error {
	state, err := a.sessions.ProviderSession(c)
	if err != nil {
		return a.fail(c, "get session failed", err)
	}
	if state == nil {
		return c.JSON(nil)
	}
	return c.JSON(state)
}

func (a *AuthController) SendVerificationEmail(c *fiber.Ctx) error {
	payload := AccountVerificationRequestMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}
	payload.CallbackURL = SafeRedirect(a.cfg, payload.CallbackURL, "")

	if err := a.verifyRequest.Execute(c.UserContext(), payload); err != nil {
		if IsStorageError(err) {
			return a.fail(c, "verification request failed", err)
		}
		a.logger.Warn("verification email not sent", "error", err)
	}
	return c.JSON(fiber.Map{"status": true})
}

func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	callbackURL := SafeRedirect(a.cfg, c.Query("callbackURL"), "")

	var user *User
	err := a.verifyEmail.Execute(c.UserContext(), VerifyEmailMessage{
		Token:      c.Query("token"),
		OnResponse: func(u *User) { user = u },
	})
	if err == nil {
		_, err = a.sessions.SignInProvider(c, user)
	}
	if err != nil {
		if callbackURL != "" && !IsStorageError(err) {
			return c.Redirect(WithQuery(callbackURL, "error", "invalid_token"), fiber.StatusFound)
		}
		return a.fail(c, "email verification failed", err)
	}
	a.record(c, ActivityEventEmailVerified, user, nil)

	if callbackURL != "" {
		return c.Redirect(callbackURL, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"status": true, "user": user})
}

func (a *AuthController) ForgetPassword(c *fiber.Ctx) error {
	payload := InitializePasswordResetMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}
	payload.RedirectTo = SafeRedirect(a.cfg, payload.RedirectTo, "")

	if err := a.resetInit.Execute(c.UserContext(), payload); err != nil {
		if IsStorageError(err) {
			return a.fail(c, "password reset request failed", err)
		}
		a.logger.Warn("password reset email not sent", "error", err)
	}
	return c.JSON(fiber.Map{"status": true})
}

func (a *AuthController) ResetPassword(c *fiber.Ctx) error {
	payload := FinalizePasswordResetMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}
	if payload.Token == "" {
		payload.Token = c.Query("token")
	}

	if err := a.resetFinalize.Execute(c.UserContext(), payload); err != nil {
		return a.fail(c, "password reset failed", err)
	}
	a.record(c, ActivityEventPasswordReset, nil, nil)
	return c.JSON(fiber.Map{"status": true})
}

func (a *AuthController) SignInMagicLink(c *fiber.Ctx) error {
	payload := MagicLinkRequestMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, InvalidBodyError(err))
	}
	payload.CallbackURL = SafeRedirect(a.cfg, payload.CallbackURL, "")

	if err := a.magicRequest.Execute(c.UserContext(), payload); err != nil {
		return a.fail(c, "magic link request failed", err)
	}
	return c.JSON(fiber.Map{"status": true})
}

func (a *AuthController) MagicLinkVerify(c *fiber.Ctx) error {
	callbackURL := SafeRedirect(a.cfg, c.Query("callbackURL"), a.cfg.GetFrontendURL())

	var user *User
	err := a.magicVerify.Execute(c.UserContext(), MagicLinkVerifyMessage{
		Token:      c.Query("token"),
		OnResponse: func(u *User) { user = u },
	})
	if err == nil {
		_, err = a.sessions.SignInProvider(c, user)
	}
	if err != nil {
		if IsStorageError(err) {
			return a.fail(c, "magic link verification failed", err)
		}
		a.logger.Info("magic link rejected", "error", err)
		return c.Redirect(WithQuery(callbackURL, "error", CodeOf(err)), fiber.StatusFound)
	}
	a.record(c, ActivityEventMagicLink, user, nil)

	return c.Redirect(callbackURL, fiber.StatusFound)
}

func (a *AuthController) record(c *fiber.Ctx, eventType ActivityEventType, user *User, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["ip"] = c.IP()
	RecordActivity(c.UserContext(), a.activity, a.logger, NewActivityEvent(eventType, user, a.now(), metadata))
}

func (a *AuthController) fail(c *fiber.Ctx, msg string, err error) error {
	if StatusOf(err) >= fiber.StatusInternalServerError {
		LogError(a.logger, msg, err)
	} else {
		a.logger.Info(msg, "error", err)
	}
	return WriteError(c, err)
}

// InvalidBodyError wraps a body parse failure as bad input
func InvalidBodyError(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, "invalid request body").
		WithTextCode(TextCodeInvalidInput).
		WithCode(errors.CodeBadRequest)
}
