package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-sessionauth"
	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	visitor := &auth.User{Email: "v@example.com", Role: auth.RoleVisitor}
	admin := &auth.User{Email: "a@example.com", Role: auth.RoleAdmin}
	legacy := &auth.User{Email: "l@example.com"}

	tests := []struct {
		name string
		user *auth.User
		req  auth.Requirement
		want error
	}{
		{name: "public anonymous", user: nil, req: auth.Public(), want: nil},
		{name: "public visitor", user: visitor, req: auth.Public(), want: nil},
		{name: "authenticated anonymous", user: nil, req: auth.Authenticated(), want: auth.ErrUnauthenticated},
		{name: "authenticated visitor", user: visitor, req: auth.Authenticated(), want: nil},
		{name: "admin anonymous", user: nil, req: auth.RequireRoles(auth.RoleAdmin), want: auth.ErrUnauthenticated},
		{name: "admin visitor", user: visitor, req: auth.RequireRoles(auth.RoleAdmin), want: auth.ErrForbidden},
		{name: "admin admin", user: admin, req: auth.RequireRoles(auth.RoleAdmin), want: nil},
		{name: "either role", user: visitor, req: auth.RequireRoles(auth.RoleAdmin, auth.RoleVisitor), want: nil},
		{name: "empty role is visitor", user: legacy, req: auth.RequireRoles(auth.RoleVisitor), want: nil},
		{name: "no roles behaves like authenticated", user: nil, req: auth.RequireRoles(), want: auth.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Authorize(tt.user, tt.req)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequirement_NeedsFreshIdentity(t *testing.T) {
	assert.False(t, auth.Public().NeedsFreshIdentity())
	assert.False(t, auth.Authenticated().NeedsFreshIdentity())
	assert.True(t, auth.RequireRoles(auth.RoleAdmin).NeedsFreshIdentity())
	assert.Equal(t, "roles", auth.RequireRoles(auth.RoleAdmin).Kind.String())
}

func TestParseRole(t *testing.T) {
	role, ok := auth.ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)

	_, ok = auth.ParseRole("moderator")
	assert.False(t, ok)
}
