package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type AccountVerificationRequestMessage struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackURL"`
}

func (e AccountVerificationRequestMessage) Type() string { return "user.verification_request" }

// AccountVerificationRequestHandler mails an email verification link.
// Unknown and already verified addresses are silently ignored so the
// endpoint does not leak which emails are registered.
type AccountVerificationRequestHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	cfg      Config
	now      func() time.Time
	logger   Logger
}

func NewAccountVerificationRequestHandler(repo RepositoryManager, notifier *Notifier, cfg Config) *AccountVerificationRequestHandler {
	return &AccountVerificationRequestHandler{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   defLogger{},
	}
}

func (h *AccountVerificationRequestHandler) WithLogger(logger Logger) *AccountVerificationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationRequestHandler) WithClock(now func() time.Time) *AccountVerificationRequestHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *AccountVerificationRequestHandler) Execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationRequestHandler) execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	user, err := h.repo.Users().FindUserByEmail(ctx, event.Email)
	if err != nil {
		return storageError(err, "failed to look up user")
	}
	if user == nil || user.EmailVerified {
		return nil
	}
	return h.sendFor(ctx, user, event.CallbackURL)
}

func (h *AccountVerificationRequestHandler) sendFor(ctx context.Context, user *User, callbackURL string) error {
	ttl := h.cfg.GetEmailVerificationTTL()
	token, err := issueVerification(ctx, h.repo.Verifications(), PurposeEmailVerification, user.ID.String(), h.now().Add(ttl))
	if err != nil {
		return err
	}

	link := buildLink(h.cfg.GetBaseURL(), "/api/auth/verify-email", map[string]string{
		"token":       token,
		"callbackURL": callbackURL,
	})

	if h.notifier == nil {
		h.logger.Warn("no notifier configured, verification link not sent", "user_id", user.ID)
		return nil
	}
	return h.notifier.SendVerificationEmail(ctx, user, link, ttl)
}

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(user *User) `json:"-"`
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

// VerifyEmailHandler consumes an email verification token and marks the
// user verified.
type VerifyEmailHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{repo: repo, now: time.Now}
}

func (h *VerifyEmailHandler) WithClock(now func() time.Time) *VerifyEmailHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	value, err := consumeVerification(ctx, h.repo.Verifications(), PurposeEmailVerification, event.Token, h.now())
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		return ErrInvalidVerificationToken
	}

	user, err := h.repo.Users().MarkEmailVerified(ctx, userID)
	if err != nil {
		return storageError(err, "failed to mark email verified")
	}
	if user == nil {
		return ErrInvalidVerificationToken
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}
