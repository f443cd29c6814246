package auth

import (
	"context"
	"net/url"
	"time"
)

const verificationTokenBytes = 32

// issueVerification stores a single use token for purpose and returns it.
// value is what consuming the token yields back.
func issueVerification(ctx context.Context, repo VerificationRepository, purpose, value string, expiresAt time.Time) (string, error) {
	token := randomToken(verificationTokenBytes)
	_, err := repo.CreateVerification(ctx, &Verification{
		Identifier: VerificationIdentifier(purpose, token),
		Value:      value,
		ExpiresAt:  expiresAt.UTC(),
	})
	if err != nil {
		return "", storageError(err, "failed to store verification token")
	}
	return token, nil
}

// consumeVerification deletes the token and returns its value. Unknown,
// already consumed and expired tokens all fail with
// ErrInvalidVerificationToken.
func consumeVerification(ctx context.Context, repo VerificationRepository, purpose, token string, now time.Time) (string, error) {
	if token == "" {
		return "", ErrInvalidVerificationToken
	}

	record, err := repo.FindVerification(ctx, VerificationIdentifier(purpose, token))
	if err != nil {
		return "", storageError(err, "failed to load verification token")
	}
	if record == nil {
		return "", ErrInvalidVerificationToken
	}

	deleted, err := repo.DeleteVerification(ctx, record.ID)
	if err != nil {
		return "", storageError(err, "failed to consume verification token")
	}
	if !deleted {
		return "", ErrInvalidVerificationToken
	}

	if !record.ExpiresAt.After(now) {
		return "", ErrInvalidVerificationToken
	}

	return record.Value, nil
}

// buildLink appends query params to base + path
func buildLink(base, path string, params map[string]string) string {
	u, err := url.Parse(base + path)
	if err != nil {
		return base + path
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
