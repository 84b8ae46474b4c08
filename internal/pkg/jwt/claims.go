// internal/pkg/jwt/claims.go
package jwt

import "github.com/golang-jwt/jwt/v5"

const (
	RoleDoctor   = "doctor"
	RoleHospital = "hospital"
	RoleAdmin    = "admin"
)

// Claims carried by access tokens. Subject is the user id; EntityID is the
// doctor or hospital profile the user acts as.
type Claims struct {
	Role     string `json:"role"`
	EntityID string `json:"entity_id,omitempty"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

// HasRole checks if the claims carry one of roles
func (c *Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
