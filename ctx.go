package auth

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// Identity is the resolved caller of a request
type Identity struct {
	Session *Session
	User    *User
	Source  Source
}

// WithIdentity sets the Identity in the given context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context. Anonymous
// requests return (nil, false).
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	if !ok || raw == nil || raw.User == nil {
		return nil, false
	}
	return raw, true
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return identity.User, true
}
