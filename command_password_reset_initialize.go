package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetHandler mails a reset link. The outcome is the
// same whether or not the email is registered.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier *Notifier
	cfg      Config
	now      func() time.Time
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, notifier *Notifier, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) WithClock(now func() time.Time) *InitializePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().FindUserByEmail(ctx, event.Email)
	if err != nil {
		return storageError(err, "failed to retrieve user for password reset")
	}
	if user == nil {
		h.logger.Debug("password reset requested for unknown email")
		return nil
	}

	ttl := h.cfg.GetResetPasswordTTL()
	token, err := issueVerification(ctx, h.repo.Verifications(), PurposeResetPassword, user.ID.String(), h.now().Add(ttl))
	if err != nil {
		return err
	}

	target := event.RedirectTo
	if target == "" {
		target = h.cfg.GetFrontendURL() + "/reset-password"
	}
	link := buildLink(target, "", map[string]string{"token": token})

	if h.notifier == nil {
		h.logger.Warn("no notifier configured, reset link not sent", "user_id", user.ID)
		return nil
	}
	return h.notifier.SendPasswordReset(ctx, user, link, ttl)
}
