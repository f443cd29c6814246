package auth

import "strings"

// Role is the user's role
type Role string

const (
	// RoleAdmin can moderate content and assign roles
	RoleAdmin Role = "admin"
	// RoleVisitor is the default role for every new account
	RoleVisitor Role = "visitor"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleVisitor:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{RoleAdmin, RoleVisitor}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// roleOrDefault maps empty or unknown roles to RoleVisitor
func roleOrDefault(r Role) Role {
	if r.IsValid() {
		return r
	}
	return RoleVisitor
}
