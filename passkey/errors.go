package passkey

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeChallengeNotFound    = "CHALLENGE_NOT_FOUND"
	TextCodeRegistrationFailed   = "FAILED_TO_VERIFY_REGISTRATION"
	TextCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	TextCodePasskeyNotFound      = "PASSKEY_NOT_FOUND"
	TextCodePasskeyExists        = "PASSKEY_ALREADY_REGISTERED"
	TextCodeUnavailable          = "PASSKEY_UNAVAILABLE"
)

// ErrChallengeNotFound the ceremony cookie is missing, expired or was
// already used
var ErrChallengeNotFound = errors.New("passkey challenge not found", errors.CategoryBadInput).
	WithTextCode(TextCodeChallengeNotFound).
	WithCode(errors.CodeBadRequest)

var ErrRegistrationFailed = errors.New("failed to verify registration", errors.CategoryBadInput).
	WithTextCode(TextCodeRegistrationFailed).
	WithCode(errors.CodeBadRequest)

var ErrAuthenticationFailed = errors.New("passkey authentication failed", errors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationFailed).
	WithCode(errors.CodeUnauthorized)

var ErrPasskeyNotFound = errors.New("passkey not found", errors.CategoryNotFound).
	WithTextCode(TextCodePasskeyNotFound).
	WithCode(errors.CodeNotFound)

var ErrPasskeyExists = errors.New("passkey already registered", errors.CategoryConflict).
	WithTextCode(TextCodePasskeyExists).
	WithCode(errors.CodeConflict)

// ErrUnavailable the relying party could not be configured
var ErrUnavailable = errors.New("passkey configuration is not available", errors.CategoryInternal).
	WithTextCode(TextCodeUnavailable).
	WithCode(errors.CodeInternal)
