package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients and
// service-to-service callers.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token carries the admin role.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.RoleAdmin
}

// IsService reports whether the token belongs to an internal service caller.
func (c *AccessTokenClaims) IsService() bool {
	return c != nil && c.Role == enums.RoleService
}
