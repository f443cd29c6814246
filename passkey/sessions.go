package passkey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	auth "github.com/goliatone/go-sessionauth"
)

// Ceremony is the server side half of a registration or login challenge
type Ceremony struct {
	Kind   SessionKind          `json:"kind"`
	UserID string               `json:"userId,omitempty"`
	Data   webauthn.SessionData `json:"data"`
}

// SessionStore keeps ceremonies in the verifications table under the
// passkey purpose. Each ceremony can be taken once.
type SessionStore struct {
	verifications auth.VerificationRepository
	ttl           time.Duration
	now           func() time.Time
}

// NewSessionStore returns a store that expires ceremonies after ttl
func NewSessionStore(verifications auth.VerificationRepository, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{
		verifications: verifications,
		ttl:           ttl,
		now:           time.Now,
	}
}

func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Put saves a ceremony and returns the key the client presents back
func (s *SessionStore) Put(ctx context.Context, ceremony Ceremony) (string, time.Time, error) {
	key, err := newCeremonyKey()
	if err != nil {
		return "", time.Time{}, err
	}

	value, err := json.Marshal(ceremony)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := s.now().Add(s.ttl)
	_, err = s.verifications.CreateVerification(ctx, &auth.Verification{
		Identifier: auth.VerificationIdentifier(auth.PurposePasskey, key),
		Value:      string(value),
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return "", time.Time{}, auth.WrapStorageError(err, "failed to store passkey challenge")
	}
	return key, expiresAt, nil
}

// Take consumes the ceremony stored under key. Unknown, expired, consumed
// and mismatched ceremonies all return ErrChallengeNotFound.
func (s *SessionStore) Take(ctx context.Context, key string, kind SessionKind) (*Ceremony, error) {
	if key == "" {
		return nil, ErrChallengeNotFound
	}

	record, err := s.verifications.FindVerification(ctx, auth.VerificationIdentifier(auth.PurposePasskey, key))
	if err != nil {
		return nil, auth.WrapStorageError(err, "failed to load passkey challenge")
	}
	if record == nil {
		return nil, ErrChallengeNotFound
	}

	deleted, err := s.verifications.DeleteVerification(ctx, record.ID)
	if err != nil {
		return nil, auth.WrapStorageError(err, "failed to consume passkey challenge")
	}
	if !deleted || !record.ExpiresAt.After(s.now()) {
		return nil, ErrChallengeNotFound
	}

	ceremony := &Ceremony{}
	if err := json.Unmarshal([]byte(record.Value), ceremony); err != nil {
		return nil, ErrChallengeNotFound
	}
	if ceremony.Kind != kind {
		return nil, ErrChallengeNotFound
	}
	return ceremony, nil
}

func newCeremonyKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
