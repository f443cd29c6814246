package auth

import (
	"context"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// LoginRequest is the email/password sign in payload
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackURL"`
	RememberMe  bool   `json:"rememberMe"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
			validation.Field(&r.Password, validation.Required),
		)
	}, "invalid login request payload"); err != nil {
		return err.WithTextCode(TextCodeInvalidInput)
	}
	return nil
}

// Authenticator verifies email/password credentials against the credential
// account of the user.
type Authenticator struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	verifier *AccountVerificationRequestHandler
	logger   Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator returns a new Authenticator. verifier may be nil, in
// which case no verification email is resent on unverified sign in.
func NewAuthenticator(repo RepositoryManager, verifier *AccountVerificationRequestHandler) *Authenticator {
	return &Authenticator{
		repo:     repo,
		hasher:   BcryptHasher{},
		verifier: verifier,
		logger:   defLogger{},
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Authenticator) WithHasher(hasher PasswordAuthenticator) *Authenticator {
	if hasher != nil {
		a.hasher = hasher
	}
	return a
}

// Login returns the user for valid credentials. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := a.repo.Users().FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, storageError(err, "failed to look up user")
	}
	if user == nil {
		// keep timing close to the known user path
		_ = a.hasher.ComparePasswordAndHash(req.Password, a.dummy())
		a.logger.Debug("login for unknown email")
		return nil, ErrInvalidCredentials
	}

	account, err := a.repo.Accounts().FindCredentialAccount(ctx, user.ID)
	if err != nil {
		return nil, storageError(err, "failed to load credential account")
	}
	if account == nil || account.Password == "" {
		_ = a.hasher.ComparePasswordAndHash(req.Password, a.dummy())
		return nil, ErrInvalidCredentials
	}

	if err := a.hasher.ComparePasswordAndHash(req.Password, account.Password); err != nil {
		a.logger.Debug("login password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		if a.verifier != nil {
			if err := a.verifier.sendFor(ctx, user, req.CallbackURL); err != nil {
				a.logger.Warn("failed to resend verification email", "user_id", user.ID, "error", err)
			}
		}
		return nil, ErrEmailNotVerified
	}

	return user, nil
}

func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		a.dummyHash = RandomPasswordHash()
	})
	return a.dummyHash
}
