package auth

import (
	"context"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type MagicLinkRequestMessage struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	CallbackURL string `json:"callbackURL"`
}

func (m MagicLinkRequestMessage) Type() string { return "user.magic_link_request" }

// Validate will run validation rules
func (m MagicLinkRequestMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Email, validation.Required, is.Email),
			validation.Field(&m.Name, validation.Length(0, 100)),
		)
	}, "invalid magic link payload"); err != nil {
		return err.WithTextCode(TextCodeInvalidInput)
	}
	return nil
}

type magicLinkPayload struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// MagicLinkRequestHandler stores a sign in token and mails the link
type MagicLinkRequestHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	cfg      Config
	now      func() time.Time
	logger   Logger
}

func NewMagicLinkRequestHandler(repo RepositoryManager, notifier *Notifier, cfg Config) *MagicLinkRequestHandler {
	return &MagicLinkRequestHandler{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   defLogger{},
	}
}

func (h *MagicLinkRequestHandler) WithLogger(logger Logger) *MagicLinkRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *MagicLinkRequestHandler) WithClock(now func() time.Time) *MagicLinkRequestHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *MagicLinkRequestHandler) Execute(ctx context.Context, event MagicLinkRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during magic link request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *MagicLinkRequestHandler) execute(ctx context.Context, event MagicLinkRequestMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(magicLinkPayload{Email: normalizeEmail(event.Email), Name: event.Name})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode magic link")
	}

	ttl := h.cfg.GetMagicLinkTTL()
	token, err := issueVerification(ctx, h.repo.Verifications(), PurposeMagicLink, string(value), h.now().Add(ttl))
	if err != nil {
		return err
	}

	link := buildLink(h.cfg.GetBaseURL(), "/api/auth/magic-link/verify", map[string]string{
		"token":       token,
		"callbackURL": event.CallbackURL,
	})

	if h.notifier == nil {
		h.logger.Warn("no notifier configured, magic link not sent")
		return nil
	}
	return h.notifier.SendMagicLink(ctx, event.Email, event.Name, link, ttl)
}

type MagicLinkVerifyMessage struct {
	Token      string `json:"token"`
	OnResponse func(user *User) `json:"-"`
}

func (m MagicLinkVerifyMessage) Type() string { return "user.magic_link_verify" }

// MagicLinkVerifyHandler consumes a magic link. Unknown emails get a new,
// verified account. Known ones are marked verified since the link proves
// ownership of the address.
type MagicLinkVerifyHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewMagicLinkVerifyHandler(repo RepositoryManager) *MagicLinkVerifyHandler {
	return &MagicLinkVerifyHandler{repo: repo, now: time.Now}
}

func (h *MagicLinkVerifyHandler) WithClock(now func() time.Time) *MagicLinkVerifyHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *MagicLinkVerifyHandler) Execute(ctx context.Context, event MagicLinkVerifyMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during magic link verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *MagicLinkVerifyHandler) execute(ctx context.Context, event MagicLinkVerifyMessage) error {
	value, err := consumeVerification(ctx, h.repo.Verifications(), PurposeMagicLink, event.Token, h.now())
	if err != nil {
		return err
	}

	var payload magicLinkPayload
	if err := json.Unmarshal([]byte(value), &payload); err != nil || payload.Email == "" {
		return ErrInvalidVerificationToken
	}

	user, err := h.repo.Users().FindUserByEmail(ctx, payload.Email)
	if err != nil {
		return storageError(err, "failed to look up user")
	}

	if user == nil {
		user, err = h.repo.Users().CreateUser(ctx, &User{
			Email:         payload.Email,
			Name:          payload.Name,
			EmailVerified: true,
			Role:          RoleVisitor,
		})
		if err != nil {
			return storageError(err, "failed to create user")
		}
	} else if !user.EmailVerified {
		user, err = h.repo.Users().MarkEmailVerified(ctx, user.ID)
		if err != nil {
			return storageError(err, "failed to mark email verified")
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}
