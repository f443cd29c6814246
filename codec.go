package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"time"
)

const tokenBytes = 32

// IssuedToken is an opaque session token and the instant it stops being valid
type IssuedToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// TokenCodec issues opaque session tokens and signs them for cookie transport.
// The secret is read only after construction.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec creates a codec keyed with secret
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock overrides the time source
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// Issue generates an unguessable token for userID valid for ttl.
// Tokens are base64url so they never contain a '.'.
func (c *TokenCodec) Issue(userID string, ttl time.Duration) IssuedToken {
	return IssuedToken{
		Token:     randomToken(tokenBytes),
		UserID:    userID,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Sign returns url escaped token + "." + base64(HMAC-SHA256(secret, token))
func (c *TokenCodec) Sign(token string) string {
	return url.QueryEscape(token + "." + c.signature(token))
}

// Verify recovers the token from a signed value. Any failure yields ok=false.
func (c *TokenCodec) Verify(signed string) (string, bool) {
	if signed == "" {
		return "", false
	}

	value := unescapeCookie(signed)

	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}

	token, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(c.signature(token))) {
		return "", false
	}

	return token, true
}

// StripSignature returns the token portion of a signed value without
// checking it. Call Verify first.
func (c *TokenCodec) StripSignature(signed string) string {
	value := unescapeCookie(signed)
	if idx := strings.LastIndex(value, "."); idx > 0 {
		return value[:idx]
	}
	return value
}

// unescapeCookie percent-decodes v leaving '+' intact, since the base64
// signature of a raw cookie value may contain it. Falls back to v.
func unescapeCookie(v string) string {
	value, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return value
}

func (c *TokenCodec) signature(token string) string {
	return base64.StdEncoding.EncodeToString(c.mac(token))
}

func (c *TokenCodec) mac(token string) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(token))
	return h.Sum(nil)
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("auth: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
