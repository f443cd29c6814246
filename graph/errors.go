package graph

import (
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
)

// Codes exposed in extensions.code
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// Error is a resolver error carrying GraphQL extensions
type Error struct {
	Code     string
	TextCode string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extensions is read by the executor and rendered next to the message
func (e *Error) Extensions() map[string]any {
	ext := map[string]any{"code": e.Code}
	if e.TextCode != "" && e.TextCode != e.Code {
		ext["reason"] = e.TextCode
	}
	return ext
}

// toError maps a domain error to its GraphQL form. Server side failures keep
// their detail out of the message.
func toError(err error) *Error {
	if err == nil {
		return nil
	}
	if gqlErr, ok := err.(*Error); ok {
		return gqlErr
	}

	richErr := auth.AsRichError(err)
	out := &Error{
		Code:     codeOf(richErr),
		TextCode: richErr.TextCode,
		Message:  richErr.Message,
		Err:      err,
	}
	if out.Code == CodeInternal {
		out.Message = "internal server error"
		if auth.IsStorageError(richErr) {
			out.Message = auth.ErrStorageUnavailable.Message
		}
	}
	return out
}

func codeOf(richErr *errors.Error) string {
	if auth.IsStorageError(richErr) {
		return CodeInternal
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return CodeUnauthenticated
	case errors.CategoryAuthz:
		return CodeForbidden
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict, errors.CategoryNotFound:
		return CodeBadUserInput
	default:
		return CodeInternal
	}
}

func badInput(msg string) *Error {
	return &Error{Code: CodeBadUserInput, Message: msg}
}
