package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider ids stored on Account rows.
const (
	ProviderCredential = "credential"
	ProviderGoogle     = "google"
	ProviderGitHub     = "github"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	EmailVerified bool      `bun:"email_verified,notnull" json:"emailVerified"`
	Name          string    `bun:"name,nullzero" json:"name"`
	Image         string    `bun:"image,nullzero" json:"image"`
	Role          Role      `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// DisplayName returns the name or the local part of the email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// HasRole reports whether the user holds any of the given roles
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	role := roleOrDefault(u.Role)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is a server recorded proof of authentication
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull" json:"userId"`
	Token         string    `bun:"token,notnull,unique" json:"token"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	IPAddress     string    `bun:"ip_address,nullzero" json:"ipAddress,omitempty"`
	UserAgent     string    `bun:"user_agent,nullzero" json:"userAgent,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.After(now)
}

// Account is a federated identity, or the credential holder for
// email/password users.
type Account struct {
	bun.BaseModel        `bun:"table:accounts,alias:acc"`
	ID                   uuid.UUID  `bun:"id,pk" json:"id"`
	UserID               uuid.UUID  `bun:"user_id,notnull" json:"userId"`
	ProviderID           string     `bun:"provider_id,notnull" json:"providerId"`
	AccountID            string     `bun:"account_id,notnull" json:"accountId"`
	Password             string     `bun:"password,nullzero" json:"-"`
	AccessToken          string     `bun:"access_token,nullzero" json:"-"`
	RefreshToken         string     `bun:"refresh_token,nullzero" json:"-"`
	IDToken              string     `bun:"id_token,nullzero" json:"-"`
	AccessTokenExpiresAt *time.Time `bun:"access_token_expires_at,nullzero" json:"accessTokenExpiresAt,omitempty"`
	Scope                string     `bun:"scope,nullzero" json:"scope,omitempty"`
	CreatedAt            time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// Passkey is a registered WebAuthn credential
type Passkey struct {
	bun.BaseModel `bun:"table:passkeys,alias:pk"`
	ID            uuid.UUID  `bun:"id,pk" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull" json:"userId"`
	Name          string     `bun:"name,nullzero" json:"name,omitempty"`
	CredentialID  string     `bun:"credential_id,notnull,unique" json:"credentialID"`
	Credential    string     `bun:"credential,notnull" json:"-"`
	Counter       int64      `bun:"counter,notnull" json:"counter"`
	DeviceType    string     `bun:"device_type,nullzero" json:"deviceType,omitempty"`
	BackedUp      bool       `bun:"backed_up,notnull" json:"backedUp"`
	Transports    string     `bun:"transports,nullzero" json:"transports,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	LastUsedAt    *time.Time `bun:"last_used_at,nullzero" json:"lastUsedAt,omitempty"`
}

// Verification stores single use tokens and short lived ceremony state.
type Verification struct {
	bun.BaseModel `bun:"table:verifications,alias:ver"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	Identifier    string    `bun:"identifier,notnull" json:"identifier"`
	Value         string    `bun:"value,notnull" json:"value"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Verification identifier prefixes.
const (
	PurposeEmailVerification = "email-verification"
	PurposeResetPassword     = "reset-password"
	PurposeMagicLink         = "magic-link"
	PurposePasskey           = "passkey"
)

// VerificationIdentifier joins a purpose and a key into an identifier
func VerificationIdentifier(purpose, key string) string {
	return purpose + ":" + key
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
