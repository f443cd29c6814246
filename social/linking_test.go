package social

import (
	"context"
	"testing"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/google/uuid"
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

func linkingContext(repo auth.RepositoryManager, profile *SocialProfile) LinkingContext {
	return LinkingContext{
		Profile: profile,
		Store:   repo.Store(),
		Users:   repo.Users(),
	}
}

func defaultStrategy() *DefaultLinkingStrategy {
	return &DefaultLinkingStrategy{
		AllowSignup:          true,
		AllowLinking:         true,
		RequireEmailVerified: true,
	}
}

func TestDefaultLinkingStrategy_AlreadyLinkedAccount(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	user, err := repo.Users().CreateUser(ctx, &auth.User{Email: "linked@example.com", EmailVerified: true})
	require.NoError(t, err)
	_, err = repo.Accounts().UpsertAccount(ctx, &auth.Account{
		UserID:     user.ID,
		ProviderID: "github",
		AccountID:  "42",
	})
	require.NoError(t, err)

	// a different email on the provider side must not matter once linked
	result, err := defaultStrategy().ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "github",
		ProviderUserID: "42",
		Email:          "renamed@example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotNil(t, result.Account)
	assert.False(t, result.IsNewUser)
	assert.False(t, result.Linked)
}

func TestDefaultLinkingStrategy_LinksVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	user, err := repo.Users().CreateUser(ctx, &auth.User{Email: "ada@example.com"})
	require.NoError(t, err)

	result, err := defaultStrategy().ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "google",
		ProviderUserID: "g-1",
		Email:          "Ada@Example.com",
		EmailVerified:  true,
	}))
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.True(t, result.Linked)
	assert.True(t, result.User.EmailVerified)
}

func TestDefaultLinkingStrategy_RefusesUnverifiedEmailMatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Users().CreateUser(ctx, &auth.User{Email: "ada@example.com", EmailVerified: true})
	require.NoError(t, err)

	_, err = defaultStrategy().ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "github",
		ProviderUserID: "7",
		Email:          "ada@example.com",
	}))
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestDefaultLinkingStrategy_CreatesUnknownUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	result, err := defaultStrategy().ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "github",
		ProviderUserID: "99",
		Email:          "new@example.com",
		Username:       "newbie",
		AvatarURL:      "https://avatars.example.com/99",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.Equal(t, "new@example.com", result.User.Email)
	assert.Equal(t, "newbie", result.User.Name)
	assert.Equal(t, auth.RoleVisitor, result.User.Role)
	assert.False(t, result.User.EmailVerified)

	stored, err := repo.Users().FindUserByID(ctx, result.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestDefaultLinkingStrategy_DanglingAccountIsNotALink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Accounts().UpsertAccount(ctx, &auth.Account{
		UserID:     uuid.New(),
		ProviderID: "google",
		AccountID:  "orphan",
	})
	require.NoError(t, err)

	result, err := defaultStrategy().ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "google",
		ProviderUserID: "orphan",
		Email:          "orphan@example.com",
		EmailVerified:  true,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.Nil(t, result.Account)
}

func TestDefaultLinkingStrategy_Rejections(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Users().CreateUser(ctx, &auth.User{Email: "taken@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		strategy LinkingStrategy
		profile  *SocialProfile
		want     *errors.Error
	}{
		{
			name:     "missing email",
			strategy: defaultStrategy(),
			profile:  &SocialProfile{Provider: "github", ProviderUserID: "1"},
			want:     ErrEmailMissing,
		},
		{
			name:     "linking disabled",
			strategy: &DefaultLinkingStrategy{AllowSignup: true},
			profile:  &SocialProfile{Provider: "github", ProviderUserID: "2", Email: "taken@example.com", EmailVerified: true},
			want:     ErrLinkingNotAllowed,
		},
		{
			name:     "signup disabled",
			strategy: &DefaultLinkingStrategy{AllowLinking: true},
			profile:  &SocialProfile{Provider: "github", ProviderUserID: "3", Email: "fresh@example.com"},
			want:     ErrSignupNotAllowed,
		},
		{
			name:     "reject unknown policy",
			strategy: &PolicyLinkingStrategy{Policy: PolicyRejectUnknown()},
			profile:  &SocialProfile{Provider: "github", ProviderUserID: "4", Email: "taken@example.com", EmailVerified: true},
			want:     ErrSignupNotAllowed,
		},
		{
			name:     "email match policy",
			strategy: &PolicyLinkingStrategy{Policy: PolicyEmailMatch()},
			profile:  &SocialProfile{Provider: "github", ProviderUserID: "5", Email: "fresh@example.com"},
			want:     ErrSignupNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.strategy.ResolveUser(ctx, linkingContext(repo, tt.profile))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPolicyAutoCreate_CreatesUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	strategy := &PolicyLinkingStrategy{Policy: PolicyAutoCreate()}
	result, err := strategy.ResolveUser(ctx, linkingContext(repo, &SocialProfile{
		Provider:       "google",
		ProviderUserID: "auto",
		Email:          "auto@example.com",
		EmailVerified:  true,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.True(t, result.User.EmailVerified)
}
