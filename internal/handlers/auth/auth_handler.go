// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"time"

	"medlink-service/internal/domain/profile"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/jwt"
	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Tokens are issued by the identity service; this service only reads the
// caller and can revoke the token it was shown.

type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type ProfileReader interface {
	FindDoctor(ctx context.Context, id string) (*profile.Doctor, error)
	FindHospital(ctx context.Context, id string) (*profile.Hospital, error)
}

type AuthHandler struct {
	profiles ProfileReader
	revoker  Revoker
	logger   *zap.Logger
}

func NewAuthHandler(profiles ProfileReader, revoker Revoker, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		profiles: profiles,
		revoker:  revoker,
		logger:   logger,
	}
}

// ========== Profile ==========

// GetMe returns the caller and the doctor or hospital profile they act as
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	role := middleware.GetRole(c)
	entityID := middleware.GetEntityID(c)

	me := gin.H{
		"user_id":   userID,
		"role":      role,
		"entity_id": entityID,
	}

	ctx := c.Request.Context()
	switch {
	case entityID == "":
	case role == jwt.RoleDoctor:
		doctor, err := h.profiles.FindDoctor(ctx, entityID)
		if err != nil {
			response.FromError(c, "failed to get profile", err)
			return
		}
		me["profile"] = doctor
	case role == jwt.RoleHospital:
		hospital, err := h.profiles.FindHospital(ctx, entityID)
		if err != nil {
			response.FromError(c, "failed to get profile", err)
			return
		}
		me["profile"] = hospital
	}

	response.Success(c, http.StatusOK, "profile retrieved", me)
}

// ========== Logout ==========

// Logout revokes the presented token for the rest of its lifetime
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	jti := middleware.GetJTI(c)
	if jti == "" {
		response.ValidationError(c, "token has no id and cannot be revoked", nil)
		return
	}

	exp, ok := middleware.GetTokenExpiry(c)
	if !ok {
		response.ValidationError(c, "token has no expiry and cannot be revoked", nil)
		return
	}

	if err := h.revoker.Revoke(c.Request.Context(), jti, time.Until(exp)); err != nil {
		h.logger.Error("logout failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", nil)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}
