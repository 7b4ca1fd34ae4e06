package enums

import "fmt"

// Role identifies the caller class encoded in access tokens.
type Role string

const (
	RoleUser    Role = "user"
	RoleService Role = "service"
	RoleAdmin   Role = "admin"
)

var validRoles = []Role{
	RoleUser,
	RoleService,
	RoleAdmin,
}

// IsValid reports whether the value matches a known role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts raw input into Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
