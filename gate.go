package auth

// RequirementKind is the level of access an operation asks for
type RequirementKind int

const (
	KindNone RequirementKind = iota
	KindAuthenticated
	KindRoles
)

func (k RequirementKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthenticated:
		return "authenticated"
	case KindRoles:
		return "roles"
	default:
		return "unknown"
	}
}

// Requirement is declared next to each operation and checked by Authorize
type Requirement struct {
	Kind  RequirementKind
	Roles []Role
}

// Public lets anonymous callers through
func Public() Requirement {
	return Requirement{Kind: KindNone}
}

// Authenticated needs any resolved user
func Authenticated() Requirement {
	return Requirement{Kind: KindAuthenticated}
}

// RequireRoles needs a user holding one of roles. No roles behaves like
// Authenticated.
func RequireRoles(roles ...Role) Requirement {
	if len(roles) == 0 {
		return Authenticated()
	}
	return Requirement{Kind: KindRoles, Roles: roles}
}

// NeedsFreshIdentity reports whether the check depends on data a cached
// snapshot may hold stale
func (r Requirement) NeedsFreshIdentity() bool {
	return r.Kind == KindRoles
}

// Authorize returns nil, ErrUnauthenticated or ErrForbidden
func Authorize(user *User, req Requirement) error {
	switch req.Kind {
	case KindNone:
		return nil
	case KindAuthenticated:
		if user == nil {
			return ErrUnauthenticated
		}
		return nil
	case KindRoles:
		if user == nil {
			return ErrUnauthenticated
		}
		if !user.HasRole(req.Roles...) {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}
