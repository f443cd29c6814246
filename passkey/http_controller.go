package passkey

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
)

// RelyingParty is the subset of *webauthn.WebAuthn the controller drives
type RelyingParty interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

// ResponseParser decodes the browser credential JSON
type ResponseParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type protocolParser struct{}

func (protocolParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (protocolParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Routes are the passkey endpoint paths relative to /api/auth
type Routes struct {
	GenerateRegisterOptions     string
	VerifyRegistration          string
	GenerateAuthenticateOptions string
	VerifyAuthentication        string
	ListUserPasskeys            string
	DeletePasskey               string
}

var DefaultRoutes = Routes{
	GenerateRegisterOptions:     "/passkey/generate-register-options",
	VerifyRegistration:          "/passkey/verify-registration",
	GenerateAuthenticateOptions: "/passkey/generate-authenticate-options",
	VerifyAuthentication:        "/passkey/verify-authentication",
	ListUserPasskeys:            "/passkey/list-user-passkeys",
	DeletePasskey:               "/passkey/delete-passkey",
}

// HTTPController serves the passkey endpoints. Registration needs a signed
// in user, authentication signs one in.
type HTTPController struct {
	Routes Routes

	rp       RelyingParty
	parser   ResponseParser
	repo     auth.RepositoryManager
	sessions *auth.SessionManager
	store    *SessionStore
	cfg      Config
	now      func() time.Time
	logger   auth.Logger
}

// NewHTTPController creates the controller. A nil relying party makes every
// ceremony answer ErrUnavailable.
func NewHTTPController(repo auth.RepositoryManager, sessions *auth.SessionManager, rp RelyingParty, cfg Config) *HTTPController {
	cfg = cfg.withDefaults()
	return &HTTPController{
		Routes:   DefaultRoutes,
		rp:       rp,
		parser:   protocolParser{},
		repo:     repo,
		sessions: sessions,
		store:    NewSessionStore(repo.Verifications(), cfg.SessionTTL),
		cfg:      cfg,
		now:      time.Now,
		logger:   auth.NewZapLogger(nil),
	}
}

func (h *HTTPController) WithLogger(logger auth.Logger) *HTTPController {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock sets the time source for ceremony expiry and usage stamps
func (h *HTTPController) WithClock(now func() time.Time) *HTTPController {
	if now != nil {
		h.now = now
		h.store.WithClock(now)
	}
	return h
}

// WithParser replaces the credential response parser
func (h *HTTPController) WithParser(parser ResponseParser) *HTTPController {
	if parser != nil {
		h.parser = parser
	}
	return h
}

// Register mounts the routes on r, which should be the /api/auth group
func (h *HTTPController) Register(r fiber.Router) {
	r.Get(h.Routes.GenerateRegisterOptions, h.GenerateRegisterOptions)
	r.Post(h.Routes.VerifyRegistration, h.VerifyRegistration)
	r.Get(h.Routes.GenerateAuthenticateOptions, h.GenerateAuthenticateOptions)
	r.Post(h.Routes.GenerateAuthenticateOptions, h.GenerateAuthenticateOptions)
	r.Post(h.Routes.VerifyAuthentication, h.VerifyAuthentication)
	r.Get(h.Routes.ListUserPasskeys, h.ListUserPasskeys)
	r.Post(h.Routes.DeletePasskey, h.DeletePasskey)
}

// GenerateRegisterOptions starts a registration for the signed in user.
// Credentials the user already holds are excluded.
func (h *HTTPController) GenerateRegisterOptions(c *fiber.Ctx) error {
	if h.rp == nil {
		return h.fail(c, "passkey registration unavailable", ErrUnavailable)
	}

	user, err := h.currentUser(c)
	if err != nil {
		return h.fail(c, "passkey registration rejected", err)
	}

	creation, session, err := h.rp.BeginRegistration(user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithExclusions(webauthn.Credentials(user.credentials).CredentialDescriptors()),
	)
	if err != nil {
		return h.fail(c, "begin passkey registration failed", errors.Wrap(err, errors.CategoryInternal, "begin passkey registration").
			WithTextCode(TextCodeUnavailable).
			WithCode(errors.CodeInternal))
	}

	if err := h.putCeremony(c, Ceremony{
		Kind:   SessionKindRegistration,
		UserID: user.user.ID.String(),
		Data:   *session,
	}); err != nil {
		return h.fail(c, "store passkey challenge failed", err)
	}

	return c.JSON(creation.Response)
}

type verifyRegistrationRequest struct {
	Response json.RawMessage `json:"response"`
	Name     string          `json:"name"`
}

// VerifyRegistration validates the attestation and stores the credential
func (h *HTTPController) VerifyRegistration(c *fiber.Ctx) error {
	if h.rp == nil {
		return h.fail(c, "passkey registration unavailable", ErrUnavailable)
	}

	payload := verifyRegistrationRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return auth.WriteError(c, auth.InvalidBodyError(err))
	}

	user, err := h.currentUser(c)
	if err != nil {
		return h.fail(c, "passkey registration rejected", err)
	}

	ctx := c.UserContext()
	ceremony, err := h.takeCeremony(c, SessionKindRegistration)
	if err != nil {
		return h.fail(c, "passkey registration rejected", err)
	}
	if ceremony.UserID != user.user.ID.String() {
		return h.fail(c, "passkey registration for another user", ErrChallengeNotFound)
	}

	parsed, err := h.parser.ParseCredentialCreationResponseBytes(payload.Response)
	if err != nil {
		return h.fail(c, "passkey registration response malformed", h.registrationError(err))
	}

	credential, err := h.rp.CreateCredential(user, ceremony.Data, parsed)
	if err != nil {
		return h.fail(c, "passkey registration not verified", h.registrationError(err))
	}

	credentialID := encodeCredentialID(credential.ID)
	existing, err := h.repo.Passkeys().FindPasskeyByCredentialID(ctx, credentialID)
	if err != nil {
		return h.fail(c, "passkey lookup failed", auth.WrapStorageError(err, "failed to find passkey"))
	}
	if existing != nil {
		return h.fail(c, "passkey already registered", ErrPasskeyExists)
	}

	raw, err := json.Marshal(credential)
	if err != nil {
		return h.fail(c, "encode passkey failed", err)
	}

	record, err := h.repo.Passkeys().CreatePasskey(ctx, &auth.Passkey{
		UserID:       user.user.ID,
		Name:         payload.Name,
		CredentialID: credentialID,
		Credential:   string(raw),
		Counter:      int64(credential.Authenticator.SignCount),
		DeviceType:   deviceType(credential),
		BackedUp:     credential.Flags.BackupState,
		Transports:   transports(credential),
		CreatedAt:    h.now().UTC(),
	})
	if err != nil {
		return h.fail(c, "store passkey failed", auth.WrapStorageError(err, "failed to store passkey"))
	}

	h.logger.Info("passkey registered", "user_id", user.user.ID, "passkey_id", record.ID)
	return c.JSON(record)
}

// GenerateAuthenticateOptions starts a discoverable login, so no user needs
// to be named up front.
func (h *HTTPController) GenerateAuthenticateOptions(c *fiber.Ctx) error {
	if h.rp == nil {
		return h.fail(c, "passkey login unavailable", ErrUnavailable)
	}

	assertion, session, err := h.rp.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return h.fail(c, "begin passkey login failed", errors.Wrap(err, errors.CategoryInternal, "begin passkey login").
			WithTextCode(TextCodeUnavailable).
			WithCode(errors.CodeInternal))
	}

	if err := h.putCeremony(c, Ceremony{Kind: SessionKindLogin, Data: *session}); err != nil {
		return h.fail(c, "store passkey challenge failed", err)
	}

	return c.JSON(assertion.Response)
}

type verifyAuthenticationRequest struct {
	Response json.RawMessage `json:"response"`
}

// VerifyAuthentication validates the assertion, records the new signature
// counter and signs the owner in.
func (h *HTTPController) VerifyAuthentication(c *fiber.Ctx) error {
	if h.rp == nil {
		return h.fail(c, "passkey login unavailable", ErrUnavailable)
	}

	payload := verifyAuthenticationRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return auth.WriteError(c, auth.InvalidBodyError(err))
	}

	ctx := c.UserContext()
	ceremony, err := h.takeCeremony(c, SessionKindLogin)
	if err != nil {
		return h.fail(c, "passkey login rejected", err)
	}

	parsed, err := h.parser.ParseCredentialRequestResponseBytes(payload.Response)
	if err != nil {
		return h.fail(c, "passkey assertion malformed", h.authenticationError(err))
	}

	var (
		owner      *webAuthnUser
		handlerErr error
	)
	handler := func(_, userHandle []byte) (webauthn.User, error) {
		owner, handlerErr = h.lookupOwner(ctx, userHandle)
		if handlerErr != nil {
			return nil, handlerErr
		}
		return owner, nil
	}

	_, credential, err := h.rp.ValidatePasskeyLogin(handler, ceremony.Data, parsed)
	if handlerErr != nil && auth.IsStorageError(handlerErr) {
		return h.fail(c, "passkey owner lookup failed", handlerErr)
	}
	if err != nil {
		return h.fail(c, "passkey assertion not verified", h.authenticationError(err))
	}
	if owner == nil || credential == nil {
		return h.fail(c, "passkey assertion without owner", ErrAuthenticationFailed)
	}
	if credential.Authenticator.CloneWarning {
		h.logger.Warn("passkey clone warning", "user_id", owner.user.ID)
		return h.fail(c, "passkey counter went backwards", ErrAuthenticationFailed)
	}

	record := owner.passkey(encodeCredentialID(credential.ID))
	if record == nil {
		return h.fail(c, "passkey not registered to owner", ErrAuthenticationFailed)
	}

	raw, err := json.Marshal(credential)
	if err != nil {
		return h.fail(c, "encode passkey failed", err)
	}
	err = h.repo.Passkeys().UpdatePasskeyUsage(ctx, record.ID, string(raw), int64(credential.Authenticator.SignCount), h.now())
	if err != nil {
		return h.fail(c, "update passkey failed", auth.WrapStorageError(err, "failed to update passkey"))
	}

	state, err := h.sessions.SignInProvider(c, owner.user)
	if err != nil {
		return h.fail(c, "passkey sign in session failed", err)
	}

	return c.JSON(fiber.Map{"session": state.Session, "user": state.User})
}

// ListUserPasskeys returns the passkeys of the signed in user
func (h *HTTPController) ListUserPasskeys(c *fiber.Ctx) error {
	state, err := h.sessions.ProviderSession(c)
	if err != nil {
		return h.fail(c, "list passkeys failed", err)
	}
	if state == nil {
		return h.fail(c, "list passkeys rejected", auth.ErrUnauthenticated)
	}

	records, err := h.repo.Passkeys().ListUserPasskeys(c.UserContext(), state.User.ID)
	if err != nil {
		return h.fail(c, "list passkeys failed", auth.WrapStorageError(err, "failed to list passkeys"))
	}
	return c.JSON(records)
}

type deletePasskeyRequest struct {
	ID string `json:"id"`
}

// DeletePasskey removes one of the signed in user's passkeys. Ids of other
// users answer as unknown.
func (h *HTTPController) DeletePasskey(c *fiber.Ctx) error {
	payload := deletePasskeyRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return auth.WriteError(c, auth.InvalidBodyError(err))
	}

	state, err := h.sessions.ProviderSession(c)
	if err != nil {
		return h.fail(c, "delete passkey failed", err)
	}
	if state == nil {
		return h.fail(c, "delete passkey rejected", auth.ErrUnauthenticated)
	}

	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return h.fail(c, "delete passkey rejected", ErrPasskeyNotFound)
	}

	deleted, err := h.repo.Passkeys().DeletePasskey(c.UserContext(), state.User.ID, id)
	if err != nil {
		return h.fail(c, "delete passkey failed", auth.WrapStorageError(err, "failed to delete passkey"))
	}
	if !deleted {
		return h.fail(c, "delete passkey rejected", ErrPasskeyNotFound)
	}

	return c.JSON(fiber.Map{"status": true})
}

func (h *HTTPController) currentUser(c *fiber.Ctx) (*webAuthnUser, error) {
	state, err := h.sessions.ProviderSession(c)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, auth.ErrUnauthenticated
	}

	user, err := loadUser(c.UserContext(), h.repo, state.User.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrUnauthenticated
	}
	return user, nil
}

func (h *HTTPController) lookupOwner(ctx context.Context, userHandle []byte) (*webAuthnUser, error) {
	id, err := uuid.ParseBytes(userHandle)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	owner, err := loadUser(ctx, h.repo, id)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrAuthenticationFailed
	}
	return owner, nil
}

func (h *HTTPController) putCeremony(c *fiber.Ctx, ceremony Ceremony) error {
	key, expiresAt, err := h.store.Put(c.UserContext(), ceremony)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    key,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (h *HTTPController) takeCeremony(c *fiber.Ctx, kind SessionKind) (*Ceremony, error) {
	key := c.Cookies(h.cfg.CookieName)
	c.ClearCookie(h.cfg.CookieName)
	return h.store.Take(c.UserContext(), key, kind)
}

func (h *HTTPController) registrationError(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, ErrRegistrationFailed.Message).
		WithTextCode(TextCodeRegistrationFailed).
		WithCode(errors.CodeBadRequest)
}

func (h *HTTPController) authenticationError(err error) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}
	return errors.Wrap(err, errors.CategoryAuth, ErrAuthenticationFailed.Message).
		WithTextCode(TextCodeAuthenticationFailed).
		WithCode(errors.CodeUnauthorized)
}

func (h *HTTPController) fail(c *fiber.Ctx, msg string, err error) error {
	if auth.StatusOf(err) >= fiber.StatusInternalServerError {
		auth.LogError(h.logger, msg, err)
	} else {
		h.logger.Info(msg, "error", err)
	}
	return auth.WriteError(c, err)
}
