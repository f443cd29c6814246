package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidSignature   = "INVALID_SIGNATURE"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeInvalidCredentials = "INVALID_EMAIL_OR_PASSWORD"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeEmailExists        = "USER_ALREADY_EXISTS"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeStorage            = "STORAGE_UNAVAILABLE"
	TextCodeInvalidOrigin      = "INVALID_ORIGIN"
	TextCodeInvalidInput       = "BAD_USER_INPUT"
)

// ErrInvalidSignature a signed cookie did not match the secret.
// Internal only, callers see an anonymous request.
var ErrInvalidSignature = errors.New("invalid session signature", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired the session row or the cookie cache is past its expiry.
// Internal only.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound the session points at a user that does not exist.
// Internal only.
var ErrUserNotFound = errors.New("user not found", errors.CategoryAuth).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated no identity where one was required
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden identity present but role is insufficient
var ErrForbidden = errors.New("insufficient role", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrInvalidCredentials is returned on a failed email/password sign in
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when signing in before verifying the email
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrEmailAlreadyExists is returned on sign up with a known email
var ErrEmailAlreadyExists = errors.New("user already exists", errors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(http.StatusUnprocessableEntity)

// ErrInvalidVerificationToken covers unknown, consumed and expired tokens
var ErrInvalidVerificationToken = errors.New("invalid or expired token", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeBadRequest)

// ErrStorageUnavailable signals that the store could not be reached. Callers
// should retry instead of signing in again.
var ErrStorageUnavailable = errors.New("session storage unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStorage).
	WithCode(http.StatusServiceUnavailable)

// ErrInvalidOrigin a state changing request came from an untrusted origin
var ErrInvalidOrigin = errors.New("invalid origin", errors.CategoryAuthz).
	WithTextCode(TextCodeInvalidOrigin).
	WithCode(errors.CodeForbidden)

// ErrNoEmptyString empty passwords are rejected before hashing
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword password does not match the stored hash
var ErrMismatchedHashAndPassword = errors.New("password mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// storageError wraps a repository failure so it is never mistaken for a miss.
func storageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeStorage).
		WithCode(http.StatusServiceUnavailable)
}

// IsStorageError reports whether err came from the session store.
func IsStorageError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return true
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeStorage
	}
	return false
}

// IsAuthError reports whether err is one of the auth or authz failures.
func IsAuthError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth || richErr.Category == errors.CategoryAuthz
}

// WrapStorageError marks err as a storage failure. Used by subpackages that
// call the repositories directly.
func WrapStorageError(err error, msg string) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}
	return storageError(err, msg)
}
