package passkey

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	db, err := auth.OpenDatabase(auth.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	return auth.NewRepositoryManager(db)
}

func TestSessionStore_PutTake(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newTestRepo(t).Verifications(), time.Minute)

	key, expiresAt, err := store.Put(ctx, Ceremony{
		Kind:   SessionKindRegistration,
		UserID: "user-1",
		Data:   webauthn.SessionData{Challenge: "challenge-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.True(t, expiresAt.After(time.Now()))

	ceremony, err := store.Take(ctx, key, SessionKindRegistration)
	require.NoError(t, err)
	assert.Equal(t, "user-1", ceremony.UserID)
	assert.Equal(t, "challenge-1", ceremony.Data.Challenge)

	_, err = store.Take(ctx, key, SessionKindRegistration)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestSessionStore_RejectsExpiredAndMismatched(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(newTestRepo(t).Verifications(), time.Minute).
		WithClock(func() time.Time { return now })

	expired, _, err := store.Put(ctx, Ceremony{Kind: SessionKindLogin})
	require.NoError(t, err)
	wrongKind, _, err := store.Put(ctx, Ceremony{Kind: SessionKindLogin})
	require.NoError(t, err)

	_, err = store.Take(ctx, wrongKind, SessionKindRegistration)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	now = now.Add(time.Minute)
	_, err = store.Take(ctx, expired, SessionKindLogin)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = store.Take(ctx, "", SessionKindLogin)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
