package auth_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("BETTER_AUTH_SECRET", testSecret)

	s, err := auth.LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", s.GetBaseURL())
	assert.Equal(t, "http://localhost:3000", s.GetFrontendURL())
	assert.Equal(t, 7*24*time.Hour, s.GetSessionTTL())
	assert.Equal(t, 5*time.Minute, s.GetSessionCacheTTL())
	assert.Equal(t, "goodcorner", s.GetCookiePrefix())
	assert.Equal(t, "better-auth.session_token", s.GetProviderCookieName())
	assert.Equal(t, auth.DriverSQLite, s.DatabaseDriver)
	assert.True(t, s.IsDevelopment())
	assert.False(t, s.GetCookieSecure())
}

func TestLoadSettings_Overrides(t *testing.T) {
	t.Setenv("BETTER_AUTH_SECRET", testSecret)
	t.Setenv("FRONTEND_URL", "https://goodcorner.example/")
	t.Setenv("TRUSTED_ORIGINS", "https://admin.goodcorner.example/, ,https://m.goodcorner.example")
	t.Setenv("SESSION_CACHE_TTL", "90s")
	t.Setenv("APP_ENV", "production")
	t.Setenv("COOKIE_SECURE", "true")

	s, err := auth.LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "https://goodcorner.example", s.GetFrontendURL())
	assert.Equal(t, []string{
		"https://goodcorner.example",
		"http://localhost:4000",
		"https://admin.goodcorner.example",
		"https://m.goodcorner.example",
	}, s.GetTrustedOrigins())
	assert.Equal(t, 90*time.Second, s.GetSessionCacheTTL())
	assert.False(t, s.IsDevelopment())
	assert.True(t, s.GetCookieSecure())
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"BETTER_AUTH_SECRET": "short"},
		"bad driver":     {"BETTER_AUTH_SECRET": testSecret, "DATABASE_DRIVER": "mysql"},
		"bad url":        {"BETTER_AUTH_SECRET": testSecret, "FRONTEND_URL": "not a url"},
		"bad duration":   {"BETTER_AUTH_SECRET": testSecret, "SESSION_TTL": "forever"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BETTER_AUTH_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := auth.LoadSettings()
			require.Error(t, err)

			var richErr *errors.Error
			require.True(t, errors.As(err, &richErr))
			assert.Equal(t, errors.CategoryValidation, richErr.Category)
		})
	}
}
