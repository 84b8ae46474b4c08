// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"medlink-service/internal/pkg/jwt"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxEntityID = "entity_id"
	ctxJTI      = "jti"
	ctxTokenExp = "token_expires_at"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// RevocationChecker reports tokens that were logged out before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	verifier    TokenVerifier
	revocations RevocationChecker
}

type AuthOption func(*AuthMiddleware)

// WithRevocations rejects tokens found on the revocation list.
func WithRevocations(r RevocationChecker) AuthOption {
	return func(m *AuthMiddleware) { m.revocations = r }
}

func NewAuthMiddleware(verifier TokenVerifier, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier: verifier,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Auth validates the bearer token and stores the caller in the context
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		if m.revocations != nil && claims.ID != "" {
			revoked, err := m.revocations.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// fail closed: a token we cannot check is not trusted
				response.Error(c, http.StatusServiceUnavailable, "unable to validate session", nil)
				return
			}
			if revoked {
				response.Error(c, http.StatusUnauthorized, "token has been revoked", nil)
				return
			}
		}

		c.Set(ctxUserID, claims.UserID())
		c.Set(ctxRole, claims.Role)
		c.Set(ctxEntityID, claims.EntityID)
		c.Set(ctxJTI, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(ctxTokenExp, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// RequireRole requires the caller to hold one of roles.
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			response.Error(c, http.StatusForbidden, "no role found - authentication required", nil)
			return
		}

		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}

		err := errors.New("user does not have required role")
		response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
			"required_roles": roles,
			"user_role":      role,
		})
	}
}

// RequireProfile rejects doctor and hospital callers whose token does not
// name the profile they act as.
func (m *AuthMiddleware) RequireProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetEntityID(c) == "" {
			response.Error(c, http.StatusForbidden, "token is not linked to a doctor or hospital profile", nil)
			return
		}
		c.Next()
	}
}

// HospitalOnly returns Auth + hospital role + profile checks
func (m *AuthMiddleware) HospitalOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{m.Auth(), m.RequireRole(jwt.RoleHospital), m.RequireProfile()}
}

// DoctorOnly returns Auth + doctor role + profile checks
func (m *AuthMiddleware) DoctorOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{m.Auth(), m.RequireRole(jwt.RoleDoctor), m.RequireProfile()}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleAdmin),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Browsers cannot set headers on a websocket upgrade
	return c.Query("token")
}
