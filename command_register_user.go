package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CallbackURL string `json:"callbackURL"`
	UseHashid   bool   `json:"-"`
	OnResponse  func(user *User) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
			validation.Field(&e.Password, validation.Required, validation.Length(8, 128)),
			validation.Field(&e.Name, validation.Length(0, 100)),
		)
	}, "invalid sign up payload"); err != nil {
		return err.WithTextCode(TextCodeInvalidInput)
	}
	return nil
}

// RegisterUserHandler creates a user with a credential account and sends
// the verification email. No session is created until the email is
// verified.
type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	verifier *AccountVerificationRequestHandler
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, verifier *AccountVerificationRequestHandler) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   BcryptHasher{},
		verifier: verifier,
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	existing, err := h.repo.Users().FindUserByEmail(ctx, event.Email)
	if err != nil {
		return storageError(err, "failed to look up user")
	}
	if existing != nil {
		return ErrEmailAlreadyExists
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Email: event.Email,
		Name:  event.Name,
		Role:  RoleVisitor,
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(normalizeEmail(event.Email)); err == nil {
			user.ID = id
		}
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := h.repo.WithTx(tx)

		created, err := repos.Users().CreateUser(ctx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithTextCode(TextCodeEmailExists).
				WithCode(ErrEmailAlreadyExists.Code)
		}
		user = created

		_, err = repos.Accounts().UpsertAccount(ctx, &Account{
			UserID:     user.ID,
			ProviderID: ProviderCredential,
			AccountID:  user.ID.String(),
			Password:   hash,
		})
		if err != nil {
			return storageError(err, "could not create credential account")
		}
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if h.verifier != nil {
		if err := h.verifier.sendFor(ctx, user, event.CallbackURL); err != nil {
			h.logger.Warn("failed to send verification email", "user_id", user.ID, "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}
