package social

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound  = "PROVIDER_NOT_FOUND"
	TextCodeInvalidState      = "INVALID_STATE"
	TextCodeStateExpired      = "STATE_EXPIRED"
	TextCodeTokenExchangeFail = "OAUTH_CODE_VERIFICATION_FAILED"
	TextCodeUserInfoFail      = "UNABLE_TO_GET_USER_INFO"
	TextCodeInvalidIDToken    = "INVALID_ID_TOKEN"
	TextCodeEmailMissing      = "EMAIL_NOT_FOUND"
	TextCodeEmailNotVerified  = "EMAIL_NOT_VERIFIED"
	TextCodeSignupDisabled    = "SIGNUP_DISABLED"
	TextCodeLinkingDisabled   = "ACCOUNT_NOT_LINKED"
)

// ErrProviderNotFound the requested provider is not configured
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState the state parameter is malformed or tampered
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired the state parameter is past its expiry
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed the provider rejected the authorization code
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed the provider profile could not be fetched
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidIDToken the id_token signature, issuer, audience or expiry is wrong
var ErrInvalidIDToken = errors.New("invalid id token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidIDToken).
	WithCode(errors.CodeUnauthorized)

// ErrEmailMissing the provider did not return an email address
var ErrEmailMissing = errors.New("provider did not return an email", errors.CategoryAuth).
	WithTextCode(TextCodeEmailMissing).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified the provider email is not verified and the policy
// requires it
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrSignupNotAllowed no user matches and the policy does not create one
var ErrSignupNotAllowed = errors.New("signup not allowed", errors.CategoryAuth).
	WithTextCode(TextCodeSignupDisabled).
	WithCode(errors.CodeForbidden)

// ErrLinkingNotAllowed a user with the email exists and the policy does not
// link the account to it
var ErrLinkingNotAllowed = errors.New("linking not allowed", errors.CategoryAuth).
	WithTextCode(TextCodeLinkingDisabled).
	WithCode(errors.CodeForbidden)
