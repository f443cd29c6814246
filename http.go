package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Response codes used when an error carries no text code
const (
	CodeBadUserInput        = "BAD_USER_INPUT"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse is the body of every failed /api/auth request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AsRichError converts err into a go-errors error, wrapping unknown errors
// as internal.
func AsRichError(err error) *errors.Error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
		WithCode(errors.CodeInternal)
}

// StatusOf returns the HTTP status for err
func StatusOf(err error) int {
	richErr := AsRichError(err)
	if richErr.Code != 0 {
		return richErr.Code
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the text code for err
func CodeOf(err error) string {
	richErr := AsRichError(err)
	if richErr.TextCode != "" {
		return richErr.TextCode
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return TextCodeUnauthenticated
	case errors.CategoryAuthz:
		return TextCodeForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return CodeBadUserInput
	default:
		return CodeInternalServerError
	}
}

// WriteError writes err as an ErrorResponse. Server errors other than
// storage outages get a generic message.
func WriteError(c *fiber.Ctx, err error) error {
	richErr := AsRichError(err)
	status := StatusOf(richErr)

	message := richErr.Message
	if status >= http.StatusInternalServerError && !IsStorageError(richErr) {
		message = "internal server error"
	}

	return c.Status(status).JSON(ErrorResponse{
		Code:    CodeOf(richErr),
		Message: message,
	})
}

// LogError logs err with its category and metadata
func LogError(logger Logger, msg string, err error) {
	richErr := AsRichError(err)
	logger.Error(msg,
		"error", richErr.Error(),
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)
}

// TrustedOrigins rejects state changing requests whose Origin, or Referer
// when Origin is absent, is not in the trusted list.
func TrustedOrigins(cfg Config) fiber.Handler {
	trusted := map[string]struct{}{}
	for _, o := range cfg.GetTrustedOrigins() {
		trusted[o] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || origin == "null" {
			origin = originOf(c.Get(fiber.HeaderReferer))
		}
		if origin == "" {
			return c.Next()
		}

		if _, ok := trusted[strings.TrimRight(origin, "/")]; !ok {
			return WriteError(c, ErrInvalidOrigin)
		}
		return c.Next()
	}
}

func originOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// SafeRedirect returns target when it points at a trusted origin. Relative
// paths resolve against the frontend.
func SafeRedirect(cfg Config, target, fallback string) string {
	if target == "" {
		return fallback
	}
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return cfg.GetFrontendURL() + target
	}

	origin := originOf(target)
	if origin == "" {
		return fallback
	}
	for _, o := range cfg.GetTrustedOrigins() {
		if o == origin {
			return target
		}
	}
	return fallback
}

// WithQuery appends key=value to target
func WithQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
