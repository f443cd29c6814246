package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheState(now time.Time, sessionTTL time.Duration) *auth.SessionState {
	userID := uuid.New()
	return &auth.SessionState{
		Session: &auth.Session{
			ID:        uuid.New(),
			UserID:    userID,
			Token:     "session-token",
			ExpiresAt: now.Add(sessionTTL),
			IPAddress: "127.0.0.1",
			CreatedAt: now,
			UpdatedAt: now,
		},
		User: &auth.User{
			ID:            userID,
			Email:         "ada@example.com",
			Name:          "Ada",
			EmailVerified: true,
			Role:          auth.RoleAdmin,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

func TestCookieCache_MintVerify(t *testing.T) {
	clock := newFakeClock()
	cache := auth.NewCookieCache(testSecret, nil).WithClock(clock.Now)
	state := cacheState(clock.Now(), 7*24*time.Hour)

	raw, expiresAt, err := cache.Mint(state, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(5*time.Minute), expiresAt)

	claims, ok := cache.Verify(raw)
	require.True(t, ok)
	assert.Equal(t, auth.CookieCacheVersion, claims.Version)
	assert.Equal(t, clock.Now().UnixMilli(), claims.UpdatedAt)
	assert.Equal(t, "session-token", claims.Session.Token)
	assert.Equal(t, "127.0.0.1", *claims.Session.IPAddress)
	assert.Nil(t, claims.Session.UserAgent)

	got, ok := claims.State()
	require.True(t, ok)
	assert.Equal(t, state.Session.ID, got.Session.ID)
	assert.Equal(t, state.User.ID, got.User.ID)
	assert.Equal(t, "Ada", got.User.Name)
	assert.Equal(t, auth.RoleAdmin, got.User.Role)
	assert.True(t, got.User.EmailVerified)
}

func TestCookieCache_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	cache := auth.NewCookieCache(testSecret, nil).WithClock(clock.Now)

	raw, _, err := cache.Mint(cacheState(clock.Now(), 7*24*time.Hour), 5*time.Minute)
	require.NoError(t, err)

	clock.Advance(5*time.Minute - time.Second)
	_, ok := cache.Verify(raw)
	assert.True(t, ok, "one second before exp is valid")

	clock.Advance(time.Second)
	_, ok = cache.Verify(raw)
	assert.False(t, ok, "exp equal to now is invalid")
}

func TestCookieCache_NeverOutlivesSession(t *testing.T) {
	clock := newFakeClock()
	cache := auth.NewCookieCache(testSecret, nil).WithClock(clock.Now)
	state := cacheState(clock.Now(), 2*time.Minute)

	raw, expiresAt, err := cache.Mint(state, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, state.Session.ExpiresAt, expiresAt)

	clock.Advance(2 * time.Minute)
	_, ok := cache.Verify(raw)
	assert.False(t, ok)
}

func TestCookieCache_Rejects(t *testing.T) {
	clock := newFakeClock()
	cache := auth.NewCookieCache(testSecret, nil).WithClock(clock.Now)
	state := cacheState(clock.Now(), time.Hour)

	raw, _, err := cache.Mint(state, 5*time.Minute)
	require.NoError(t, err)

	other, _, err := auth.NewCookieCache("another-secret-value", nil).WithClock(clock.Now).Mint(state, 5*time.Minute)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone,
		auth.NewSessionClaims(state, clock.Now(), clock.Now().Add(time.Minute)),
	).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"other secret": other,
		"alg none":     unsigned,
		"truncated":    raw[:len(raw)-3],
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := cache.Verify(value)
			assert.False(t, ok)
		})
	}

	_, _, err = cache.Mint(&auth.SessionState{}, time.Minute)
	assert.Error(t, err)
}

func TestSessionClaims_StateRejectsForeignSession(t *testing.T) {
	clock := newFakeClock()
	claims := auth.NewSessionClaims(cacheState(clock.Now(), time.Hour), clock.Now(), clock.Now().Add(time.Minute))
	claims.Session.UserID = uuid.NewString()

	_, ok := claims.State()
	assert.False(t, ok)
}
