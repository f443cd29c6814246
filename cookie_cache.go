package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// CookieCache mints and verifies the stateless session_data JWT
type CookieCache struct {
	signingKey []byte
	now        func() time.Time
	logger     Logger
}

// NewCookieCache creates a new CookieCache instance
func NewCookieCache(secret string, logger Logger) *CookieCache {
	if logger == nil {
		logger = defLogger{}
	}
	return &CookieCache{
		signingKey: []byte(secret),
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock overrides the time source
func (cc *CookieCache) WithClock(now func() time.Time) *CookieCache {
	if now != nil {
		cc.now = now
	}
	return cc
}

// Mint signs a snapshot of state that expires after ttl. The snapshot never
// outlives the session it describes.
func (cc *CookieCache) Mint(state *SessionState, ttl time.Duration) (string, time.Time, error) {
	if state == nil || state.Session == nil || state.User == nil {
		return "", time.Time{}, errors.New("session state must not be nil", errors.CategoryInternal)
	}

	now := cc.now()
	expiresAt := now.Add(ttl)
	if state.Session.ExpiresAt.Before(expiresAt) {
		expiresAt = state.Session.ExpiresAt
	}

	claims := NewSessionClaims(state, now, expiresAt)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(cc.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign session cache")
	}

	return signed, claims.ExpiresAt.Time, nil
}

// Verify parses the cookie value. A payload whose exp is not strictly after
// now is invalid regardless of its signature.
func (cc *CookieCache) Verify(raw string) (*SessionClaims, bool) {
	if raw == "" {
		return nil, false
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cc.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cc.now),
	)
	if err != nil || token == nil || !token.Valid {
		if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
			cc.logger.Debug("session cache rejected", "error", err)
		}
		return nil, false
	}

	now := cc.now()
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
		return nil, false
	}

	if !claims.Session.ExpiresAt.After(now) {
		return nil, false
	}

	return claims, true
}
