package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// Validate will run validation rules
func (p FinalizePasswordResetMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&p,
			validation.Field(&p.Token, validation.Required),
			validation.Field(&p.NewPassword, validation.Required, validation.Length(8, 128)),
		)
	}, "invalid password reset payload"); err != nil {
		return err.WithTextCode(TextCodeInvalidInput)
	}
	return nil
}

// FinalizePasswordResetHandler consumes a reset token, replaces the
// credential hash and signs the user out everywhere.
type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	hasher PasswordAuthenticator
	now    func() time.Time
	logger Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:   repo,
		hasher: BcryptHasher{},
		now:    time.Now,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	passwordHash, err := h.hasher.HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := h.repo.WithTx(tx)

		value, err := consumeVerification(ctx, repos.Verifications(), PurposeResetPassword, event.Token, h.now())
		if err != nil {
			return err
		}

		userID, err := uuid.Parse(value)
		if err != nil {
			return ErrInvalidVerificationToken
		}

		account, err := repos.Accounts().FindCredentialAccount(ctx, userID)
		if err != nil {
			return storageError(err, "failed to load credential account")
		}

		if account == nil {
			_, err = repos.Accounts().UpsertAccount(ctx, &Account{
				UserID:     userID,
				ProviderID: ProviderCredential,
				AccountID:  userID.String(),
				Password:   passwordHash,
			})
		} else {
			err = repos.Accounts().UpdatePassword(ctx, userID, passwordHash)
		}
		if err != nil {
			return storageError(err, "failed to update user password")
		}

		if err := repos.Sessions().DeleteUserSessions(ctx, userID); err != nil {
			return storageError(err, "failed to revoke sessions")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	return nil
}
