package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieCacheVersion is written into every stateless payload
const CookieCacheVersion = "1"

// SessionSnapshot is the session half of the stateless payload
type SessionSnapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IPAddress *string   `json:"ipAddress"`
	UserAgent *string   `json:"userAgent"`
}

// UserSnapshot is the user half of the stateless payload. It is a cache,
// role and verification state may be stale.
type UserSnapshot struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          *string   `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	Image         *string   `json:"image"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SessionClaims is the JWT carried by the session_data cookie
type SessionClaims struct {
	Session   SessionSnapshot `json:"session"`
	User      UserSnapshot    `json:"user"`
	UpdatedAt int64           `json:"updatedAt"`
	Version   string          `json:"version"`
	jwt.RegisteredClaims
}

// NewSessionClaims builds the payload for state
func NewSessionClaims(state *SessionState, issuedAt, expiresAt time.Time) *SessionClaims {
	s, u := state.Session, state.User
	return &SessionClaims{
		Session: SessionSnapshot{
			ID:        s.ID.String(),
			UserID:    s.UserID.String(),
			Token:     s.Token,
			ExpiresAt: s.ExpiresAt.UTC(),
			CreatedAt: s.CreatedAt.UTC(),
			UpdatedAt: s.UpdatedAt.UTC(),
			IPAddress: optional(s.IPAddress),
			UserAgent: optional(s.UserAgent),
		},
		User: UserSnapshot{
			ID:            u.ID.String(),
			Email:         u.Email,
			Name:          optional(u.Name),
			EmailVerified: u.EmailVerified,
			Image:         optional(u.Image),
			Role:          roleOrDefault(u.Role),
			CreatedAt:     u.CreatedAt.UTC(),
			UpdatedAt:     u.UpdatedAt.UTC(),
		},
		UpdatedAt: issuedAt.UnixMilli(),
		Version:   CookieCacheVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

// State rebuilds the session and user from the snapshot. The bool is false
// when ids are malformed or the session does not belong to the user.
func (c *SessionClaims) State() (*SessionState, bool) {
	if c == nil {
		return nil, false
	}

	sessionID, err := uuid.Parse(c.Session.ID)
	if err != nil {
		return nil, false
	}
	userID, err := uuid.Parse(c.User.ID)
	if err != nil {
		return nil, false
	}
	ownerID, err := uuid.Parse(c.Session.UserID)
	if err != nil || ownerID != userID {
		return nil, false
	}

	return &SessionState{
		Session: &Session{
			ID:        sessionID,
			UserID:    userID,
			Token:     c.Session.Token,
			ExpiresAt: c.Session.ExpiresAt,
			CreatedAt: c.Session.CreatedAt,
			UpdatedAt: c.Session.UpdatedAt,
			IPAddress: deref(c.Session.IPAddress),
			UserAgent: deref(c.Session.UserAgent),
		},
		User: &User{
			ID:            userID,
			Email:         c.User.Email,
			Name:          deref(c.User.Name),
			EmailVerified: c.User.EmailVerified,
			Image:         deref(c.User.Image),
			Role:          roleOrDefault(c.User.Role),
			CreatedAt:     c.User.CreatedAt,
			UpdatedAt:     c.User.UpdatedAt,
		},
	}, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
